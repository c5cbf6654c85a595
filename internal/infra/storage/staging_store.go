package storage

import (
	"context"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
)

// ============================================================
// Staging & device session — temp_company_registration, currentUser
// ============================================================

// GetStaging returns the pending registration, or nil if none is staged.
func (s *Store) GetStaging(ctx context.Context) (*domain.StagedRegistration, error) {
	ctx, span := tracer.Start(ctx, "Storage.GetStaging")
	defer span.End()

	var staged domain.StagedRegistration
	found, err := s.getJSON(ctx, KeyStaging, &staged)
	if err != nil || !found {
		return nil, err
	}
	return &staged, nil
}

// PutStaging stores the pending registration, replacing any previous one.
func (s *Store) PutStaging(ctx context.Context, staged *domain.StagedRegistration) error {
	ctx, span := tracer.Start(ctx, "Storage.PutStaging")
	defer span.End()

	if staged.Form.Password != "" {
		return s.rejectInvalid(KeyStaging, staged.CheckoutSessionID, &domain.ErrValidation{
			Field:   "password",
			Message: "staged registrations carry a password hash only",
		})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putJSON(ctx, KeyStaging, staged)
}

// ClearStaging removes the pending registration.
func (s *Store) ClearStaging(ctx context.Context) error {
	return s.Remove(ctx, KeyStaging)
}

// ClearStagingFor removes the pending registration only while it still
// belongs to checkoutSessionID. A form staged by a later registration is
// left in place and false is returned.
func (s *Store) ClearStagingFor(ctx context.Context, checkoutSessionID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Storage.ClearStagingFor")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var staged domain.StagedRegistration
	found, err := s.getJSON(ctx, KeyStaging, &staged)
	if err != nil || !found {
		return false, err
	}
	if staged.CheckoutSessionID != checkoutSessionID {
		return false, nil
	}
	if err := s.Remove(ctx, KeyStaging); err != nil {
		return false, err
	}
	return true, nil
}

// GetDeviceSession returns the persisted session snapshot, or nil.
func (s *Store) GetDeviceSession(ctx context.Context) (*domain.DeviceSession, error) {
	var ds domain.DeviceSession
	found, err := s.getJSON(ctx, KeyCurrentUser, &ds)
	if err != nil || !found {
		return nil, err
	}
	return &ds, nil
}

// PutDeviceSession persists the snapshot of the active session.
func (s *Store) PutDeviceSession(ctx context.Context, ds *domain.DeviceSession) error {
	return s.putJSON(ctx, KeyCurrentUser, ds)
}

// ClearDeviceSession removes the snapshot.
func (s *Store) ClearDeviceSession(ctx context.Context) error {
	return s.Remove(ctx, KeyCurrentUser)
}
