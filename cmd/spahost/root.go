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

package main

import (
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/thediveo/spahost"
)

// envPrefix prefixes the environment variables overriding flag defaults; for
// instance, SPAHOST_PORT overrides the default of --port.
const envPrefix = "SPAHOST_"

// appFs is the filesystem asset roots get resolved on.
var appFs = afero.NewOsFs()

func newRootCmd(logOut io.Writer) *cobra.Command {
	cfg := spahost.DefaultConfig()
	var verbosity, envFile string

	cmd := &cobra.Command{
		Use:   "spahost",
		Short: "Serves a single-page application and its static assets",
		Long: `spahost serves the files below the "static/" directory of the asset root
at /static/, and the index document for every other request path, so that
client-side routing of the single-page application can take over.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			if err := applyEnv(cmd.Flags()); err != nil {
				return err
			}
			return setUpLogs(logOut, verbosity)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := spahost.NewServer(cfg, appFs)
			if err != nil {
				return errors.Wrap(err, "refusing to start")
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "host name or IP address to listen on")
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "TCP port to listen on")
	flags.StringVarP(&cfg.Root, "root", "r", cfg.Root, "asset root directory containing the index document and static/")
	flags.StringVar(&cfg.Index, "index", cfg.Index, "path of the index document inside the asset root")
	flags.BoolVar(&cfg.RewriteBase, "rewrite-base", cfg.RewriteBase,
		"rewrite the index document's <base href> from X-Forwarded-Prefix/X-Forwarded-Uri")
	flags.StringVarP(&verbosity, "verbosity", "v", logrus.InfoLevel.String(),
		"log level (debug, info, warn, error, fatal, panic)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file with "+envPrefix+"* settings; ignored if missing")
	return cmd
}

// setUpLogs directs logrus to the specified writer and sets its log level.
func setUpLogs(out io.Writer, level string) error {
	logrus.SetOutput(out)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrap(err, "parsing log level")
	}
	logrus.SetLevel(lvl)
	return nil
}

// loadEnvFile loads the settings from the specified dotenv file into the
// process environment without overriding variables already set. A missing
// file is only an error when it was explicitly asked for.
func loadEnvFile(name string, explicit bool) error {
	if name == "" {
		return nil
	}
	err := godotenv.Load(name)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return errors.Wrapf(err, "loading env file %s", name)
}

// applyEnv sets all flags not explicitly given on the command line from their
// corresponding environment variables, if present. The variable names are the
// envPrefix followed by the upper-cased flag name with dashes turned into
// underscores.
func applyEnv(flags *flag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *flag.Flag) {
		if err != nil || f.Changed || f.Name == "env-file" || f.Name == "help" {
			return
		}
		value, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}
		if seterr := flags.Set(f.Name, value); seterr != nil {
			err = errors.Wrapf(seterr, "invalid %s", envName(f.Name))
		}
	})
	return err
}

func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
