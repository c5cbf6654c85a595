package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Users — user_<id> and the user_email_<email> index
// ============================================================

// GetUser returns the user stored under user_<id>, or nil if absent.
// The record is returned as stored; callers check its invariants.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Storage.GetUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	var u domain.User
	found, err := s.getJSON(ctx, UserKey(id), &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

// PutUser validates and writes u.
func (s *Store) PutUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Storage.PutUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", u.ID))

	if err := u.Validate(); err != nil {
		return s.rejectInvalid(UserKey(u.ID), u.ID, err)
	}
	return s.putJSON(ctx, UserKey(u.ID), u)
}

// GetUserIDByEmail resolves an email through the index.
func (s *Store) GetUserIDByEmail(ctx context.Context, email string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "Storage.GetUserIDByEmail")
	defer span.End()

	var id string
	found, err := s.getJSON(ctx, EmailKey(email), &id)
	if err != nil || !found || id == "" {
		return "", false, err
	}
	return id, true, nil
}

// PutEmailIndex maps email to the user id.
func (s *Store) PutEmailIndex(ctx context.Context, email, id string) error {
	ctx, span := tracer.Start(ctx, "Storage.PutEmailIndex")
	defer span.End()

	if strings.TrimSpace(email) == "" || id == "" {
		return s.rejectInvalid(EmailKey(email), id, &domain.ErrValidation{Field: "email", Message: "index entry needs email and id"})
	}
	return s.putJSON(ctx, EmailKey(email), id)
}

// ScanUsers decodes every user_<id> record. Records that cannot be decoded
// are returned as issues instead of failing the scan.
func (s *Store) ScanUsers(ctx context.Context) ([]domain.User, []domain.Issue, error) {
	ctx, span := tracer.Start(ctx, "Storage.ScanUsers")
	defer span.End()

	keys, err := s.keysWithPrefix(ctx, userPrefix)
	if err != nil {
		return nil, nil, err
	}

	var (
		users  []domain.User
		issues []domain.Issue
	)
	for _, key := range keys {
		if strings.HasPrefix(key, emailIndexPrefix) {
			continue
		}
		raw, found, err := s.kv.Get(ctx, key)
		if err != nil {
			s.metrics.IncrStoreError("get")
			return nil, nil, &domain.ErrPersistence{Op: "get", Key: key, Err: err}
		}
		if !found {
			continue
		}
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			issues = append(issues, domain.Issue{
				Kind:   domain.IssueUndecodableRecord,
				Key:    key,
				Detail: err.Error(),
			})
			continue
		}
		users = append(users, u)
	}
	return users, issues, nil
}
