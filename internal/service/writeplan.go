package service

import (
	"context"
	"errors"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"go.uber.org/zap"
)

// writeStep persists one key of a multi-key record set.
type writeStep struct {
	key   string
	apply func(ctx context.Context) error
}

// writeAll applies steps in order. When a step fails, its own key and every
// key written before it are removed in reverse order and the original failure
// is returned. A remote write can land and still report an error, so the
// failed step's key is never assumed absent.
// A failed removal is reported as *domain.ErrRollback wrapping both errors.
func writeAll(
	ctx context.Context,
	store port.RecordStore,
	steps []writeStep,
	metrics *observability.Metrics,
	logger *zap.Logger,
) error {
	for i, step := range steps {
		err := step.apply(ctx)
		if err == nil {
			continue
		}

		logger.Error("write failed, rolling back",
			zap.String("key", step.key),
			zap.Int("written", i),
			zap.Error(err),
		)
		metrics.IncrRollback()

		var (
			stuck []string
			errs  []error
		)
		for j := i; j >= 0; j-- {
			if rbErr := store.Remove(ctx, steps[j].key); rbErr != nil {
				logger.Error("rollback: remove failed",
					zap.String("key", steps[j].key),
					zap.Error(rbErr),
				)
				stuck = append(stuck, steps[j].key)
				errs = append(errs, rbErr)
			}
		}
		if len(stuck) > 0 {
			return &domain.ErrRollback{Keys: stuck, Cause: err, Err: errors.Join(errs...)}
		}
		return err
	}
	return nil
}
