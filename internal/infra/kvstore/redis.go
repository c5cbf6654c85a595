package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/boddenberg/influmatch-bfa-go/internal/infra/resilience"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("kvstore")

const scanBatch = 200

// Redis is a KVStore backed by a Redis server. Keys are namespaced with
// prefix so several devices or environments can share one instance.
type Redis struct {
	client *redis.Client
	prefix string
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewRedis wraps an already configured client.
func NewRedis(client *redis.Client, prefix string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		cb:     cb,
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Redis.Get")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	var (
		value string
		found bool
	)
	err := r.execute(ctx, func() error {
		v, err := r.client.Get(ctx, r.prefix+key).Result()
		if errors.Is(err, redis.Nil) {
			value, found = "", false
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		r.logger.Error("redis: get failed", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return value, found, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Redis.Set")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	err := r.execute(ctx, func() error {
		return r.client.Set(ctx, r.prefix+key, value, 0).Err()
	})
	if err != nil {
		r.logger.Error("redis: set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Redis.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	err := r.execute(ctx, func() error {
		return r.client.Del(ctx, r.prefix+key).Err()
	})
	if err != nil {
		r.logger.Error("redis: remove failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Keys walks the keyspace with SCAN; it never blocks the server with KEYS.
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Redis.Keys")
	defer span.End()

	var keys []string
	err := r.execute(ctx, func() error {
		keys = keys[:0]
		iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
		}
		return iter.Err()
	})
	if err != nil {
		r.logger.Error("redis: scan failed", zap.Error(err))
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) execute(ctx context.Context, fn func() error) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, r.cfg, fn)
	})
	return err
}
