package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/handler"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, "")
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(a.cfg.OTLPEndpoint, "influmatch-bfa")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	if err := a.bootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	// The last device session survives restarts.
	if session, err := a.session.ResumeFromDevice(ctx); err == nil {
		logger.Info("previous session restored",
			zap.String("user_id", session.UserID),
			zap.String("role", string(session.Role)),
		)
	} else {
		var unauthorized *domain.ErrUnauthorized
		if !errors.As(err, &unauthorized) {
			logger.Warn("could not restore previous session", zap.Error(err))
		}
	}

	// --- Router ---
	router := handler.NewRouter(a.registration, a.session, a.campaigns, a.repairs, a.kv, a.metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", a.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
