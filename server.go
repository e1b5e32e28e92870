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
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultShutdownTimeout is the time granted to in-flight requests when a
// Server is shut down, before their connections are forcefully closed.
const DefaultShutdownTimeout = 5 * time.Second

// Server serves an SPA from an asset root resolved once when creating the
// Server.
type Server struct {
	cfg             Config
	root            *AssetRoot
	handler         http.Handler
	log             logrus.FieldLogger
	shutdownTimeout time.Duration
	routerOpts      []RouterOption
}

// ServerOption sets optional properties at the time of creating a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger for the access log, lifecycle messages and
// request failures, instead of logrus' standard logger.
func WithServerLogger(log logrus.FieldLogger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithShutdownTimeout sets how long to wait for in-flight requests when
// shutting down.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithRouterOptions passes additional options on to the StaticRouter.
func WithRouterOptions(opts ...RouterOption) ServerOption {
	return func(s *Server) {
		s.routerOpts = append(s.routerOpts, opts...)
	}
}

// NewServer returns a new Server for the specified configuration, resolving
// the asset root on the given afero filesystem. It fails with a *ConfigError
// when the asset root or its index document are missing; in this case
// nothing has been bound yet.
func NewServer(cfg Config, afs afero.Fs, opts ...ServerOption) (*Server, error) {
	root, err := cfg.Resolve(afs)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:             cfg,
		root:            root,
		log:             logrus.StandardLogger(),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	routerOpts := []RouterOption{WithLogger(s.log)}
	if cfg.RewriteBase {
		routerOpts = append(routerOpts, WithBaseRewriting())
	}
	routerOpts = append(routerOpts, s.routerOpts...)
	s.handler = AccessLog(NewStaticRouter(root.FS(), root.Index(), routerOpts...), s.log)
	return s, nil
}

// Handler returns the Server's HTTP handler, including access logging.
func (s *Server) Handler() http.Handler { return s.handler }

// AssetRoot returns the resolved asset root the Server serves from.
func (s *Server) AssetRoot() *AssetRoot { return s.root }

// ListenAndServe listens on the configured address and then serves requests
// until the context gets cancelled, returning nil after a graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves requests on the specified listener until the context gets
// cancelled, returning nil after a graceful shutdown. Serve always closes the
// listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithFields(logrus.Fields{
		"address": l.Addr().String(),
		"root":    s.root.Dir(),
		"index":   s.root.Index(),
	}).Info("serving SPA")

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(l)
	}()

	select {
	case err := <-done:
		// Serve never returns nil; it's always an error here.
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		s.log.WithError(err).Warn("forcefully closed remaining connections")
	}
	if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
