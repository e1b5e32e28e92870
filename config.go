// Copyright 2026 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spahost

import (
	"fmt"
	"io/fs"
	"net"
	"path"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Defaults for a Config; see DefaultConfig.
const (
	DefaultHost  = "localhost"
	DefaultPort  = 8080
	DefaultRoot  = "."
	DefaultIndex = "index.html"
)

// StaticPrefix is the reserved (unrooted) request path prefix of static assets.
// Static assets live in the corresponding subdirectory of the asset root.
const StaticPrefix = "static/"

// Config describes where to listen and what to serve. A Config is a plain
// value; once resolved into an AssetRoot it cannot change anymore for the
// lifetime of a Server.
type Config struct {
	Host        string // host name or IP address to listen on.
	Port        int    // TCP port to listen on; 0 picks an ephemeral port.
	Root        string // asset root directory, relative to the working dir or absolute.
	Index       string // slash-separated path of the index document inside Root.
	RewriteBase bool   // rewrite the index document's <base href> from proxy headers.
}

// DefaultConfig returns the configuration used when nothing else has been
// specified: serve the current working directory on localhost:8080.
func DefaultConfig() Config {
	return Config{
		Host:  DefaultHost,
		Port:  DefaultPort,
		Root:  DefaultRoot,
		Index: DefaultIndex,
	}
}

// ConfigError is a startup configuration error: a Server must never start
// accepting connections when encountering it.
type ConfigError struct {
	Setting string // name of the offending setting, such as "root".
	Value   string // the offending value.
	Err     error  // the underlying cause.
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Setting, e.Value, e.Err.Error())
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Addr returns the "host:port" address to listen on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration settings that can be checked without
// touching the filesystem.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{
			Setting: "port",
			Value:   strconv.Itoa(c.Port),
			Err:     errors.New("port must be in range 0-65535"),
		}
	}
	if c.Root == "" {
		return &ConfigError{Setting: "root", Err: errors.New("asset root must not be empty")}
	}
	index := cleanIndex(c.Index)
	if index == "" || index == "." {
		return &ConfigError{Setting: "index", Value: c.Index, Err: errors.New("index document must name a file")}
	}
	return nil
}

// AssetRoot is an asset root directory resolved once at startup, together
// with its index document.
type AssetRoot struct {
	dir   string // absolute OS path of the asset root.
	index string // unrooted slash-separated index path inside fsys.
	fsys  fs.FS  // read-only and jailed view onto dir.
}

// Dir returns the absolute path of the asset root directory.
func (a *AssetRoot) Dir() string { return a.dir }

// Index returns the unrooted, slash-separated path of the index document
// inside FS.
func (a *AssetRoot) Index() string { return a.index }

// FS returns a read-only view onto the asset root that cannot be escaped.
func (a *AssetRoot) FS() fs.FS { return a.fsys }

// Resolve validates the configuration and resolves its asset root on the
// specified afero filesystem, typically afero.NewOsFs(). It fails with a
// *ConfigError if the asset root is not a directory or the index document
// isn't a regular file.
func (c Config) Resolve(afs afero.Fs) (*AssetRoot, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(c.Root)
	if err != nil {
		return nil, &ConfigError{
			Setting: "root",
			Value:   c.Root,
			Err:     errors.Wrap(err, "cannot determine absolute path"),
		}
	}
	isDir, err := afero.IsDir(afs, dir)
	if err != nil {
		return nil, &ConfigError{
			Setting: "root",
			Value:   c.Root,
			Err:     errors.Wrap(err, "cannot access asset root"),
		}
	}
	if !isDir {
		return nil, &ConfigError{Setting: "root", Value: c.Root, Err: errors.New("not a directory")}
	}
	jailed := afero.NewReadOnlyFs(afero.NewBasePathFs(afs, dir))
	index := cleanIndex(c.Index)
	info, err := jailed.Stat(filepath.FromSlash(index))
	if err != nil {
		return nil, &ConfigError{
			Setting: "index",
			Value:   c.Index,
			Err:     errors.Wrapf(err, "cannot access index document in %s", dir),
		}
	}
	if !info.Mode().IsRegular() {
		return nil, &ConfigError{Setting: "index", Value: c.Index, Err: errors.New("not a regular file")}
	}
	return &AssetRoot{
		dir:   dir,
		index: index,
		fsys:  afero.NewIOFS(jailed),
	}, nil
}

// cleanIndex sanitizes an index path into the unrooted form fs.FS expects.
func cleanIndex(index string) string {
	return path.Clean("/" + filepath.ToSlash(index))[1:]
}
