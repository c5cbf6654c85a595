package kvstore

import (
	"context"
	"fmt"

	"github.com/boddenberg/influmatch-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend        string
	FilePath       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	PostgresDSN    string
	Resilience     resilience.Config
}

// Open builds the configured store. The returned close function releases
// connections; it is a no-op for local backends.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (port.KVStore, func() error, error) {
	noop := func() error { return nil }

	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), noop, nil

	case BackendFile:
		f, err := OpenFile(opts.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return f, noop, nil

	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		store := NewRedis(client, opts.RedisKeyPrefix, resilience.NewCircuitBreaker("kv-redis", logger), opts.Resilience, logger)
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	case BackendPostgres:
		store, err := OpenPostgres(ctx, opts.PostgresDSN, resilience.NewCircuitBreaker("kv-postgres", logger), opts.Resilience, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}
