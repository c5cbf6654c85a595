// Package storage maps the marketplace records onto the key-value store,
// following the device key conventions (company_<id>, admin_campaigns,
// collaboration_requests, temp_company_registration, currentUser).
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("storage")

// Persistence keys.
const (
	KeyCurrentUser      = "currentUser"
	KeyCampaigns        = "admin_campaigns"
	KeyRequests         = "collaboration_requests"
	KeyStaging          = "temp_company_registration"
	KeyOrphanedRequests = "orphaned_collaboration_requests"
	companyPrefix       = "company_"
	userPrefix          = "user_"
	emailIndexPrefix    = "user_email_"
)

// CompanyKey returns the key holding the company with the given id.
func CompanyKey(id string) string { return companyPrefix + id }

// UserKey returns the key holding the user with the given id.
func UserKey(id string) string { return userPrefix + id }

// EmailKey returns the key mapping an email to a user id.
func EmailKey(email string) string { return emailIndexPrefix + domain.NormalizeEmail(email) }

// Store reads and writes typed records through a port.KVStore.
// Collection keys are read-modify-write; mu serializes those writers.
type Store struct {
	kv      port.KVStore
	metrics *observability.Metrics
	logger  *zap.Logger
	mu      sync.Mutex
}

// New creates a record store over kv.
func New(kv port.KVStore, metrics *observability.Metrics, logger *zap.Logger) *Store {
	return &Store{kv: kv, metrics: metrics, logger: logger}
}

// KV exposes the underlying adapter (health checks, raw diagnostics).
func (s *Store) KV() port.KVStore {
	return s.kv
}

// getJSON decodes the value at key into dst. found=false means the key is absent.
func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.metrics.IncrStoreError("get")
		return false, &domain.ErrPersistence{Op: "get", Key: key, Err: err}
	}
	if !found || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.metrics.IncrIntegrityViolation(domain.IssueUndecodableRecord)
		return false, &domain.ErrIntegrity{
			Kind:   domain.IssueUndecodableRecord,
			Key:    key,
			Detail: err.Error(),
		}
	}
	return true, nil
}

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		s.metrics.IncrStoreError("set")
		return &domain.ErrPersistence{Op: "set", Key: key, Err: err}
	}
	s.logger.Debug("storage: wrote key", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Remove deletes key. Removing an absent key succeeds.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.kv.Remove(ctx, key); err != nil {
		s.metrics.IncrStoreError("remove")
		return &domain.ErrPersistence{Op: "remove", Key: key, Err: err}
	}
	s.logger.Debug("storage: removed key", zap.String("key", key))
	return nil
}

// keysWithPrefix lists every key starting with prefix.
func (s *Store) keysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		s.metrics.IncrStoreError("keys")
		return nil, &domain.ErrPersistence{Op: "keys", Key: prefix + "*", Err: err}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// rejectInvalid turns a write-time validation failure into an integrity error:
// the record never reaches the store.
func (s *Store) rejectInvalid(key, id string, err error) error {
	var v *domain.ErrValidation
	if !errors.As(err, &v) {
		return err
	}
	s.metrics.IncrIntegrityViolation(domain.IssueInvalidRecord)
	s.logger.Error("storage: refused invalid record",
		zap.String("key", key),
		zap.String("record_id", id),
		zap.String("field", v.Field),
		zap.String("reason", v.Message),
	)
	return &domain.ErrIntegrity{
		Kind:     domain.IssueInvalidRecord,
		Key:      key,
		RecordID: id,
		Detail:   v.Error(),
	}
}
