package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fzdarsky/quietplanet/internal/auth"
	"github.com/fzdarsky/quietplanet/internal/config"
	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/internal/lifecycle"
	"github.com/fzdarsky/quietplanet/internal/logging"
)

const connectTimeout = 10 * time.Second

func openCredentialStore(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
	shutdown *lifecycle.ShutdownManager,
) (credstore.Store, error) {
	var store credstore.Store
	storeLog := logger.WithFields(map[string]any{
		"component": "credential_store",
		"backend":   cfg.CredentialStore.Backend,
	})

	switch cfg.CredentialStore.Backend {
	case config.BackendPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		db, err := credstore.OpenPostgres(connectCtx, cfg.CredentialStore.DSN)
		if err != nil {
			return nil, err
		}
		shutdown.OnShutdown("postgres", func(context.Context) error {
			return db.Close()
		})
		store = credstore.NewPostgresStore(db)
		storeLog.Info("connected to postgres")

	default:
		storeLog.Warn("using in-memory credential store; accounts are lost on restart")
		store = credstore.NewMemoryStore()
	}

	if path := cfg.CredentialStore.SeedFile; path != "" {
		seed, err := credstore.LoadSeedFile(path)
		if err != nil {
			return nil, err
		}
		created, err := seed.Apply(ctx, store)
		if err != nil {
			return nil, fmt.Errorf("failed to apply seed file: %w", err)
		}
		storeLog.Info("applied seed accounts", map[string]any{
			"seed_file": path,
			"accounts":  len(seed.Accounts),
			"created":   created,
		})
	}

	return store, nil
}

func openHandshakeStore(
	ctx context.Context,
	cfg *config.Config,
	shutdown *lifecycle.ShutdownManager,
) (auth.HandshakeStore, error) {
	if cfg.HandshakeStore.Backend != config.BackendRedis {
		store := auth.NewMemoryHandshakeStore(time.Minute)
		shutdown.OnShutdown("handshake store", func(context.Context) error {
			store.Stop()
			return nil
		})
		return store, nil
	}

	rc := cfg.HandshakeStore.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Address,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.Address, err)
	}

	shutdown.OnShutdown("redis", func(context.Context) error {
		return client.Close()
	})
	return auth.NewRedisHandshakeStore(client, rc.Prefix), nil
}
