// Package server wires the reference API server: metadata repositories,
// blob storage, the upload and post services, and the HTTP API.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/server/auth"
	"github.com/dmitrijs2005/gophshare/internal/server/blobstore"
	"github.com/dmitrijs2005/gophshare/internal/server/config"
	"github.com/dmitrijs2005/gophshare/internal/server/httpapi"
	"github.com/dmitrijs2005/gophshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophshare/internal/server/services"
	"github.com/dmitrijs2005/gophshare/internal/tlsx"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  repomanager.RepositoryManager
	http   *httpapi.Server
}

// openRepositories keeps metadata in memory when dsn is empty.
func openRepositories(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	if dsn == "" {
		return repomanager.NewInMemoryRepositoryManager(), nil
	}
	m, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if c.SecretKey == "" {
		key, err := common.MakeRandHexString(32)
		if err != nil {
			return nil, err
		}
		c.SecretKey = key
		logger.Warn(ctx, "no secret key configured, using an ephemeral one; tokens will not survive a restart")
	}

	tlsConfig, err := buildTLSConfig(c)
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobStore(ctx, c)
	if err != nil {
		return nil, err
	}

	repos, err := openRepositories(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, metadata is kept in memory")
	}

	fs := services.NewFileService(repos, blobs, c.MaxUploadSize, logger)
	ps := services.NewPostService(repos, logger)

	opts := []httpapi.Option{httpapi.WithMaxUploadSize(c.MaxUploadSize)}
	if tlsConfig != nil {
		opts = append(opts, httpapi.WithTLS(tlsConfig))
	}

	return &App{
		config: c,
		logger: logger,
		repos:  repos,
		http:   httpapi.NewServer(c.HTTPAddr, logger, fs, ps, c.SecretKey, opts...),
	}, nil
}

func openBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobDriver {
	case "", "memory":
		return blobstore.NewMemoryStore(), nil
	case "s3":
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", c.BlobDriver)
	}
}

// buildTLSConfig returns nil when no server certificate is configured. A
// client CA bundle makes client certificates mandatory.
func buildTLSConfig(c *config.Config) (*tls.Config, error) {
	if c.TLSCertFile == "" && c.TLSKeyFile == "" {
		if c.ClientCAFile != "" {
			return nil, errors.New("client CA requires a server certificate and key")
		}
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if c.ClientCAFile != "" {
		pool, err := tlsx.LoadCAPool(c.ClientCAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// IssueToken signs a bearer token for c.IssueTokenFor.
func IssueToken(c *config.Config) (string, error) {
	if c.IssueTokenFor == "" {
		return "", errors.New("no user to issue a token for")
	}
	return auth.GenerateToken(c.IssueTokenFor, []byte(c.SecretKey), c.TokenValidity)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) func() {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelFunc()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Run listens on the configured address and serves until ctx is done or a
// termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		_ = app.repos.Close()
		return err
	}
	return app.Serve(ctx, lis)
}

// Serve is Run on an existing listener.
func (app *App) Serve(ctx context.Context, lis net.Listener) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	stop := app.initSignalHandler(cancelFunc)
	defer stop()

	defer func() {
		if err := app.repos.Close(); err != nil {
			app.logger.Warn(ctx, "closing repositories", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")
	err := app.http.Serve(ctx, lis)
	app.logger.Info(ctx, "App stopped")
	return err
}
