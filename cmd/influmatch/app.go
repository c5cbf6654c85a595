package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/influmatch-bfa-go/internal/config"
	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/cache"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/client"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"go.uber.org/zap"
)

// app holds the wired services shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	kv       port.KVStore
	sessions *cache.InMemory[domain.Session]

	registration *service.RegistrationService
	session      *service.SessionService
	campaigns    *service.CampaignService
	repairs      *service.RepairService

	closeKV func() error
}

func newApp(ctx context.Context, logLevel string) (*app, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	logger := observability.NewLogger(logLevel, "influmatch")

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
	)

	metrics := observability.NewMetrics()

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	kv, closeKV, err := kvstore.Open(ctx, kvstore.Options{
		Backend:        cfg.Store.Backend,
		FilePath:       cfg.Store.FilePath,
		RedisAddr:      cfg.Store.RedisAddr,
		RedisPassword:  cfg.Store.RedisPassword,
		RedisDB:        cfg.Store.RedisDB,
		RedisKeyPrefix: cfg.Store.RedisKeyPrefix,
		PostgresDSN:    cfg.Store.PostgresDSN,
		Resilience:     resilienceCfg,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	store := storage.New(kv, metrics, logger)

	payments := client.NewPaymentClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		client.PaymentConfig{
			BaseURL:    cfg.Payment.APIURL,
			SuccessURL: cfg.Payment.SuccessURL,
			CancelURL:  cfg.Payment.CancelURL,
			Timeout:    cfg.Payment.Timeout,
		},
		resilience.NewCircuitBreaker("payment-api", logger),
		resilienceCfg,
		metrics,
		logger,
	)

	sessions := cache.New[domain.Session](cfg.JWTAccessTTL)

	return &app{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		kv:           kv,
		sessions:     sessions,
		registration: service.NewRegistrationService(store, payments, metrics, logger),
		session:      service.NewSessionService(store, sessions, cfg.JWTSecret, cfg.JWTAccessTTL, metrics, logger),
		campaigns:    service.NewCampaignService(store, logger),
		repairs:      service.NewRepairService(store, metrics, logger),
		closeKV:      closeKV,
	}, nil
}

// bootstrapAdmin creates the configured admin account unless it exists.
func (a *app) bootstrapAdmin(ctx context.Context) error {
	if a.cfg.AdminEmail == "" || a.cfg.AdminPassword == "" {
		return nil
	}
	_, err := a.registration.CreateAdmin(ctx, &domain.CreateAdminRequest{
		Name:     "Administrator",
		Email:    a.cfg.AdminEmail,
		Password: a.cfg.AdminPassword,
	})
	var conflict *domain.ErrConflict
	if errors.As(err, &conflict) {
		a.logger.Debug("bootstrap admin already exists", zap.String("email", a.cfg.AdminEmail))
		return nil
	}
	return err
}

func (a *app) Close() {
	a.sessions.Close()
	if err := a.closeKV(); err != nil {
		a.logger.Warn("closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
