// Copyright 2022 Harald Albrecht.
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
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
)

// StaticRouter implements an http.Handler that serves static assets for
// request paths starting with StaticPrefix, and the index document for all
// other request paths. There are exactly these two outcomes: a request for a
// static asset never falls back to the index document.
type StaticRouter struct {
	fs            fs.FS              // the FS to serve static assets and index from.
	index         string             // (unrooted) path and name of the index document inside fs.
	rewriteBase   bool               // rewrite the index document's <base> element.
	indexRewriter IndexRewriter      // optional user function to rewrite the index document.
	log           logrus.FieldLogger // where to report server-side failures.
}

// NewStaticRouter returns a new HTTP handler serving static assets below
// StaticPrefix from the specified fs, and the index resource for every other
// request path. The index resource should be specified as an unrooted,
// slash-separated path+name to be servable from the given fs; but
// NewStaticRouter will sanitize the index path anyway.
//
// In order to serve from a directory on the OS file system, either use
// os.DirFS or better resolve a Config, which additionally jails the fs:
//
//	root, err := cfg.Resolve(afero.NewOsFs())
//	h := NewStaticRouter(root.FS(), root.Index())
func NewStaticRouter(fs fs.FS, index string, opts ...RouterOption) *StaticRouter {
	h := &StaticRouter{
		fs:    fs,
		index: path.Clean("/" + index)[1:],
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RouterOption sets optional properties at the time of creating a
// StaticRouter.
type RouterOption func(*StaticRouter)

// IndexRewriter rewrites (parts) of the index document contents to be
// delivered to a requesting client. It can be optionally activated using the
// WithIndexRewriter option when creating a new StaticRouter.
type IndexRewriter func(r *http.Request, index string) string

// WithIndexRewriter sets the specified IndexRewriter that gets called before
// delivering the index document contents to requesting clients, allowing for
// application-specific changes.
func WithIndexRewriter(rewriter IndexRewriter) RouterOption {
	return func(h *StaticRouter) {
		h.indexRewriter = rewriter
	}
}

// WithBaseRewriting enables rewriting the href of the index document's
// <base> element to the base path the client sees, based on forwarding proxy
// headers. Without this option the index document is served as-is.
func WithBaseRewriting() RouterOption {
	return func(h *StaticRouter) {
		h.rewriteBase = true
	}
}

// WithLogger sets the logger to report server-side failures to, instead of
// logrus' standard logger.
func WithLogger(log logrus.FieldLogger) RouterOption {
	return func(h *StaticRouter) {
		if log != nil {
			h.log = log
		}
	}
}

// ServeHTTP either serves a static asset when the request path starts with
// StaticPrefix, or otherwise the index document. The latter is required for
// SPAs with client-side DOM routers, as otherwise bookmarking (router) links
// or reloading an SPA with the current route other than "/" would fail.
func (h *StaticRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
		return
	}
	reqPath := strings.TrimPrefix(r.URL.Path, "/")
	if strings.HasPrefix(reqPath, StaticPrefix) {
		h.serveStaticAsset(w, r, reqPath)
		return
	}
	h.serveIndex(w, r)
}

// serveStaticAsset serves the static asset with the specified unrooted path
// from the StaticRouter's fs, or an HTTP error otherwise.
func (h *StaticRouter) serveStaticAsset(w http.ResponseWriter, r *http.Request, name string) {
	if err := checkAssetPath(name); err != nil {
		h.httpError(w, r, err)
		return
	}
	f, err := h.fs.Open(name)
	if err != nil {
		h.httpError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		h.httpError(w, r, err)
		return
	}
	// No directory listings and no special files, please.
	if !info.Mode().IsRegular() {
		h.httpError(w, r, fs.ErrNotExist)
		return
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		contents, err := io.ReadAll(f)
		if err != nil {
			h.httpError(w, r, err)
			return
		}
		content = bytes.NewReader(contents)
	}
	// http.ServeContent infers the content type from the name's extension
	// and otherwise sniffs the content.
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
}

// checkAssetPath returns nil if the unrooted name is a valid fs.FS path that
// cannot leave the asset root. We deliberately don't clean the name: this way
// "static/../index.html" gets rejected instead of silently turning into
// something outside the static assets. Paths with empty elements, such as
// directory paths with a trailing slash, are reported as not existing.
func checkAssetPath(name string) error {
	if fs.ValidPath(name) {
		return nil
	}
	for _, elem := range strings.Split(name, "/") {
		if elem == "." || elem == ".." {
			return ErrPathEscapesRoot
		}
	}
	return fs.ErrNotExist
}

// serveIndex serves the index document, optionally rewriting its HTML base
// element to refer to the correct base path of the SPA.
func (h *StaticRouter) serveIndex(w http.ResponseWriter, r *http.Request) {
	f, err := h.fs.Open(h.index)
	if err != nil {
		h.httpError(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	fileInfo, err := f.Stat()
	if err != nil {
		h.httpError(w, r, err)
		return
	}
	indexcontents, err := io.ReadAll(f)
	if err != nil {
		h.httpError(w, r, err)
		return
	}
	if !h.rewriteBase && h.indexRewriter == nil {
		http.ServeContent(w, r, path.Base(h.index), fileInfo.ModTime(), bytes.NewReader(indexcontents))
		return
	}
	finalIndex := string(indexcontents)
	if h.rewriteBase {
		finalIndex = rewriteBaseHref(finalIndex, basename(r))
	}
	if h.indexRewriter != nil {
		finalIndex = h.indexRewriter(r, finalIndex)
	}
	http.ServeContent(w, r, path.Base(h.index), fileInfo.ModTime(), strings.NewReader(finalIndex))
}

// httpError sends a normalized HTTP error to the client and logs the cause
// server-side; missing assets are client errors and thus only debug material.
func (h *StaticRouter) httpError(w http.ResponseWriter, r *http.Request, err error) {
	status := NormalizedHttpError(w, err)
	entry := h.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("cannot serve request")
		return
	}
	entry.Debug("rejected request")
}
