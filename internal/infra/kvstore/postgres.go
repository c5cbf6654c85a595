package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/boddenberg/influmatch-bfa-go/internal/infra/resilience"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	getQuery    = `SELECT value FROM kv_store WHERE key = $1`
	upsertQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now()) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	deleteQuery = `DELETE FROM kv_store WHERE key = $1`
	keysQuery   = `SELECT key FROM kv_store ORDER BY key`
)

// Postgres is a KVStore backed by a single PostgreSQL table.
type Postgres struct {
	db     *sqlx.DB
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgres(db, cb, cfg, logger), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sqlx.DB, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, cb: cb, cfg: cfg, logger: logger}
}

// Migrate creates the kv_store table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create kv_store table: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Get")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	var (
		value string
		found bool
	)
	err := p.execute(ctx, func() error {
		err := p.db.GetContext(ctx, &value, getQuery, key)
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		p.logger.Error("postgres: get failed", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return value, found, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	ctx, span := tracer.Start(ctx, "Postgres.Set")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	err := p.execute(ctx, func() error {
		_, err := p.db.ExecContext(ctx, upsertQuery, key, value)
		return err
	})
	if err != nil {
		p.logger.Error("postgres: set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Postgres.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("kv.key", key))

	err := p.execute(ctx, func() error {
		_, err := p.db.ExecContext(ctx, deleteQuery, key)
		return err
	})
	if err != nil {
		p.logger.Error("postgres: remove failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

func (p *Postgres) Keys(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Keys")
	defer span.End()

	var keys []string
	err := p.execute(ctx, func() error {
		keys = nil
		return p.db.SelectContext(ctx, &keys, keysQuery)
	})
	if err != nil {
		p.logger.Error("postgres: list keys failed", zap.Error(err))
		return nil, err
	}
	return keys, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) execute(ctx context.Context, fn func() error) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, p.cfg, fn)
	})
	return err
}
