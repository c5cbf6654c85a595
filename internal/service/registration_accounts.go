package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ============================================================
// RegisterInfluencer — POST /v1/registrations/influencer
// ============================================================

// RegisterInfluencer creates an influencer account. No payment is involved.
func (s *RegistrationService) RegisterInfluencer(ctx context.Context, form *domain.InfluencerSignupForm) (*domain.User, error) {
	ctx, span := registrationTracer.Start(ctx, "RegistrationService.RegisterInfluencer")
	defer span.End()

	if err := form.Validate(); err != nil {
		return nil, err
	}

	user, err := s.createAccount(ctx, &domain.User{
		Email:     domain.NormalizeEmail(form.Email),
		Name:      strings.TrimSpace(form.Name),
		UserType:  domain.UserTypeInfluencer,
		Instagram: strings.TrimPrefix(strings.TrimSpace(form.Instagram), "@"),
		IsActive:  true,
	}, form.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("influencer registered", zap.String("user_id", user.ID))
	return user, nil
}

// ============================================================
// CreateAdmin — influmatch create-admin / ADMIN_EMAIL bootstrap
// ============================================================

// CreateAdmin creates an admin account. An email that is already registered
// is a *domain.ErrConflict.
func (s *RegistrationService) CreateAdmin(ctx context.Context, req *domain.CreateAdminRequest) (*domain.User, error) {
	ctx, span := registrationTracer.Start(ctx, "RegistrationService.CreateAdmin")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if len(req.Password) < 8 {
		return nil, &domain.ErrValidation{Field: "password", Message: "must have at least 8 characters"}
	}

	user, err := s.createAccount(ctx, &domain.User{
		Email:    domain.NormalizeEmail(req.Email),
		Name:     strings.TrimSpace(req.Name),
		UserType: domain.UserTypeAdmin,
		IsActive: true,
	}, req.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin created", zap.String("user_id", user.ID))
	return user, nil
}

// createAccount fills id, hash and registration date, then writes the User
// and its email index with rollback.
func (s *RegistrationService) createAccount(ctx context.Context, user *domain.User, password string) (*domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureEmailAvailable(ctx, user.Email); err != nil {
		return nil, err
	}

	user.ID = s.newID()
	user.PasswordHash = string(hash)
	user.RegistrationDate = s.now().UTC()
	if err := user.Validate(); err != nil {
		return nil, err
	}

	wctx := context.WithoutCancel(ctx)
	err = writeAll(wctx, s.store, []writeStep{
		{key: storage.UserKey(user.ID), apply: func(ctx context.Context) error { return s.store.PutUser(ctx, user) }},
		{key: storage.EmailKey(user.Email), apply: func(ctx context.Context) error { return s.store.PutEmailIndex(ctx, user.Email, user.ID) }},
	}, s.metrics, s.logger)
	if err != nil {
		return nil, fmt.Errorf("persist %s account: %w", user.UserType, err)
	}

	public := user.Public()
	return &public, nil
}
