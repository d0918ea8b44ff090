package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophshare/internal/client/config"
	"github.com/dmitrijs2005/gophshare/internal/client/credentials"
	"github.com/dmitrijs2005/gophshare/internal/client/dispatcher"
	"github.com/dmitrijs2005/gophshare/internal/client/metrics"
	"github.com/dmitrijs2005/gophshare/internal/client/orchestrator"
	"github.com/dmitrijs2005/gophshare/internal/client/registry"
	"github.com/dmitrijs2005/gophshare/internal/client/repositories/bucket"
	"github.com/dmitrijs2005/gophshare/internal/client/storage"
	"github.com/dmitrijs2005/gophshare/internal/client/transfer"
	"github.com/dmitrijs2005/gophshare/internal/common"
	"github.com/dmitrijs2005/gophshare/internal/cryptox"
	"github.com/dmitrijs2005/gophshare/internal/logging"
	"github.com/dmitrijs2005/gophshare/internal/tlsx"
	"github.com/redis/go-redis/v9"
)

const (
	saltSize    = 16
	sealPurpose = "share-records-v1"
)

// bucketStore is an opened bucket plus whatever must be closed with it.
type bucketStore struct {
	bucket.Repository
	close func() error
}

func (b *bucketStore) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBucket(ctx context.Context, cfg *config.Config) (*bucketStore, error) {
	switch cfg.BucketDriver {
	case "", "sqlite":
		db, err := storage.InitDatabase(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open bucket database: %w", err)
		}
		return &bucketStore{Repository: bucket.NewSQLiteRepository(db), close: db.Close}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		repo := bucket.NewRedisRepository(client, bucket.WithPrefix(cfg.RedisPrefix))
		return &bucketStore{Repository: repo, close: client.Close}, nil
	default:
		return nil, fmt.Errorf("unknown bucket driver %q", cfg.BucketDriver)
	}
}

func openCredentials(cfg *config.Config) (credentials.Store, error) {
	identity, err := credentials.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return nil, err
	}
	return credentials.NewAgeFileStore(cfg.CredentialsDir, identity)
}

// openSealer returns the record sealer for the group. The salt is created on
// first use and kept in the bucket so every process derives the same key.
func openSealer(ctx context.Context, cfg *config.Config, store bucket.Repository) (registry.Sealer, error) {
	if cfg.SealPassphrase == "" {
		return cryptox.Plain{}, nil
	}

	if _, err := store.SetIfAbsent(ctx, cfg.GroupID, common.SealSaltKey, common.GenerateRandByteArray(saltSize)); err != nil {
		return nil, fmt.Errorf("store seal salt: %w", err)
	}
	salt, err := store.Get(ctx, cfg.GroupID, common.SealSaltKey)
	if err != nil {
		return nil, fmt.Errorf("read seal salt: %w", err)
	}
	if len(salt) == 0 {
		return nil, errors.New("seal salt missing after write")
	}

	sealer, err := cryptox.NewSealerFromPassphrase([]byte(cfg.SealPassphrase), salt, sealPurpose)
	if err != nil {
		return nil, err
	}
	return sealer, nil
}

// stack is a fully wired coordinator.
type stack struct {
	cfg        *config.Config
	logger     logging.Logger
	bucket     *bucketStore
	creds      credentials.Store
	registry   *registry.Registry
	engine     *transfer.Engine
	orch       *orchestrator.Orchestrator
	dispatcher *dispatcher.Dispatcher
	metrics    *metrics.Metrics
}

func openStack(ctx context.Context, cfg *config.Config, logger logging.Logger) (*stack, error) {
	store, err := openBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := buildStack(ctx, cfg, logger, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

func buildStack(ctx context.Context, cfg *config.Config, logger logging.Logger, store *bucketStore) (*stack, error) {
	creds, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}

	sealer, err := openSealer(ctx, cfg, store)
	if err != nil {
		return nil, err
	}

	backend := &transfer.HTTPBackend{Timeout: cfg.TransferTimeout}
	if cfg.CAFile != "" {
		pool, err := tlsx.LoadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		backend.RootCAs = pool
	}

	m := metrics.New()
	reg := registry.New(store, registry.WithSealer(sealer), registry.WithLogger(logger))
	disp := dispatcher.New(logger)
	engine := transfer.New(backend, reg, creds, transfer.WithLogger(logger), transfer.WithMetrics(m))
	orch := orchestrator.New(engine, reg, store, disp,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithSealer(sealer),
	)
	engine.SetHandler(orch)

	return &stack{
		cfg:        cfg,
		logger:     logger,
		bucket:     store,
		creds:      creds,
		registry:   reg,
		engine:     engine,
		orch:       orch,
		dispatcher: disp,
		metrics:    m,
	}, nil
}

func (s *stack) Close() error {
	return s.bucket.Close()
}

// waitIdle blocks until every request this process knows about has produced
// its outcome, or ctx is done.
func (s *stack) waitIdle(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.dispatcher.Register(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
