// Package httpapi exposes the file upload and post endpoints of the
// reference API server over HTTP.
package httpapi

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/server/services"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	// multipartOverhead is allowed on top of the file size limit for
	// boundaries, part headers and form fields.
	multipartOverhead = 1 << 20
	// multipartMemory is kept in memory while parsing; the rest spills to
	// temporary files.
	multipartMemory = 8 << 20
	maxJSONBody     = 1 << 20
)

type Server struct {
	address   string
	files     *services.FileService
	posts     *services.PostService
	logger    logging.Logger
	jwtSecret []byte
	tlsConfig *tls.Config
	maxBody   int64
}

type Option func(*Server)

// WithTLS serves over TLS with cfg. Setting cfg.ClientCAs and ClientAuth
// turns on mutual TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// WithMaxUploadSize bounds upload request bodies. n <= 0 leaves them
// unbounded.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n + multipartOverhead
		} else {
			s.maxBody = 0
		}
	}
}

func NewServer(a string, l logging.Logger, fs *services.FileService, ps *services.PostService, secretKey string, opts ...Option) *Server {
	s := &Server{
		address:   a,
		logger:    l.With("module", "http_server"),
		files:     fs,
		posts:     ps,
		jwtSecret: []byte(secretKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v4/system/ping", s.handlePing)
	mux.Handle("POST /api/v4/files", s.authenticated(s.handleUploadFiles))
	mux.Handle("GET /api/v4/files/{id}", s.authenticated(s.handleGetFile))
	mux.Handle("POST /api/v4/posts", s.authenticated(s.handleCreatePost))
	mux.Handle("GET /api/v4/posts/{id}", s.authenticated(s.handleGetPost))
	return s.logRequests(mux)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is done, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		TLSConfig:         s.tlsConfig,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	if s.tlsConfig != nil {
		lis = tls.NewListener(lis, s.tlsConfig)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String(), "tls", s.tlsConfig != nil)

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
