// Package service holds the marketplace use cases: company and influencer
// registration, session resolution, campaign operations and data repair.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var registrationTracer = otel.Tracer("service/registration")

const bcryptCost = bcrypt.DefaultCost

// RegistrationService creates User and Company records. Company sign-up is
// gated on the payment collaborator; records are only written once the
// checkout is confirmed as paid.
type RegistrationService struct {
	store    port.RecordStore
	payments port.PaymentGateway
	metrics  *observability.Metrics
	logger   *zap.Logger

	now   func() time.Time
	newID func() string

	// mu serializes the account-creating flows so the email check and the
	// writes that follow it cannot interleave.
	mu sync.Mutex
}

// NewRegistrationService creates a new registration service.
func NewRegistrationService(
	store port.RecordStore,
	payments port.PaymentGateway,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		store:    store,
		payments: payments,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ============================================================
// StartRegistration — POST /v1/registrations/company
// ============================================================

// StartRegistration validates the form, opens a checkout session with the
// payment collaborator and stages the form until the payment is confirmed.
// The store is left untouched unless the checkout session was created.
func (s *RegistrationService) StartRegistration(ctx context.Context, req *domain.StartRegistrationRequest) (*domain.StartRegistrationResponse, error) {
	ctx, span := registrationTracer.Start(ctx, "RegistrationService.StartRegistration")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("registration.start", time.Since(start))
	}()

	if err := req.Form.Validate(); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, err
	}
	plan, ok := domain.LookupPlan(req.PlanID)
	if !ok {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, &domain.ErrValidation{Field: "planId", Message: fmt.Sprintf("unknown plan %q", req.PlanID)}
	}
	span.SetAttributes(attribute.String("plan.id", plan.ID))

	if err := s.ensureEmailAvailable(ctx, req.Form.CompanyEmail); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, &req.Form, plan)
	if err != nil {
		s.metrics.IncrRegistration(observability.OutcomeUnpaid)
		var notConfirmed *domain.ErrPaymentNotConfirmed
		if errors.As(err, &notConfirmed) {
			return nil, err
		}
		return nil, &domain.ErrPaymentNotConfirmed{Reason: "payment collaborator error", Err: err}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Form.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	form := req.Form
	form.Password = ""
	staged := &domain.StagedRegistration{
		Form:              form,
		PasswordHash:      string(hash),
		Plan:              plan,
		CheckoutSessionID: session.ID,
		StagedAt:          s.now().UTC(),
	}
	if err := s.store.PutStaging(ctx, staged); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeFailed)
		return nil, fmt.Errorf("stage registration: %w", err)
	}

	s.metrics.IncrRegistration(observability.OutcomeStarted)
	s.logger.Info("company registration staged",
		zap.String("company_name", form.CompanyName),
		zap.String("plan", plan.ID),
		zap.String("checkout_session_id", session.ID),
	)

	return &domain.StartRegistrationResponse{
		CheckoutSessionID: session.ID,
		CheckoutURL:       session.URL,
		Plan:              plan,
	}, nil
}

// ============================================================
// ConfirmRegistration — POST /v1/registrations/company/confirm
// ============================================================

// ConfirmRegistration consumes the staged form once the collaborator reports
// the checkout as paid. Company, User and email index are written in that
// order under one generated id; a failed write removes the keys already
// written, so either all three exist afterwards or none does.
func (s *RegistrationService) ConfirmRegistration(ctx context.Context, conf *domain.PaymentConfirmation) (*domain.RegistrationResult, error) {
	ctx, span := registrationTracer.Start(ctx, "RegistrationService.ConfirmRegistration")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", conf.CheckoutSessionID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("registration.confirm", time.Since(start))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	staged, err := s.store.GetStaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("load staged registration: %w", err)
	}
	if staged == nil {
		s.metrics.IncrRegistration(observability.OutcomeUnpaid)
		return nil, &domain.ErrPaymentNotConfirmed{Reason: "no registration pending"}
	}
	if conf.CheckoutSessionID == "" || conf.CheckoutSessionID != staged.CheckoutSessionID {
		s.metrics.IncrRegistration(observability.OutcomeUnpaid)
		s.logger.Warn("registration confirm: checkout session mismatch",
			zap.String("staged", staged.CheckoutSessionID),
			zap.String("received", conf.CheckoutSessionID),
		)
		return nil, &domain.ErrPaymentNotConfirmed{Reason: "checkout session does not match the pending registration"}
	}
	if conf.Status != domain.PaymentStatusPaid {
		s.metrics.IncrRegistration(observability.OutcomeUnpaid)
		return nil, &domain.ErrPaymentNotConfirmed{Reason: fmt.Sprintf("payment status %q", conf.Status)}
	}

	if err := s.ensureEmailAvailable(ctx, staged.Form.CompanyEmail); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, err
	}

	now := s.now().UTC()
	id := s.newID()
	company := companyFromStaged(id, staged, now)
	user := &domain.User{
		ID:               id,
		Email:            domain.NormalizeEmail(staged.Form.CompanyEmail),
		Name:             staged.Form.CompanyName,
		UserType:         domain.UserTypeCompany,
		PasswordHash:     staged.PasswordHash,
		IsActive:         true,
		RegistrationDate: now,
	}
	if err := company.Validate(); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, err
	}
	if err := user.Validate(); err != nil {
		s.metrics.IncrRegistration(observability.OutcomeRejected)
		return nil, err
	}

	// The caller going away must not leave a Company without its User.
	wctx := context.WithoutCancel(ctx)
	err = writeAll(wctx, s.store, []writeStep{
		{key: storage.CompanyKey(id), apply: func(ctx context.Context) error { return s.store.PutCompany(ctx, company) }},
		{key: storage.UserKey(id), apply: func(ctx context.Context) error { return s.store.PutUser(ctx, user) }},
		{key: storage.EmailKey(user.Email), apply: func(ctx context.Context) error { return s.store.PutEmailIndex(ctx, user.Email, id) }},
	}, s.metrics, s.logger)
	if err != nil {
		s.metrics.IncrRegistration(observability.OutcomeFailed)
		return nil, fmt.Errorf("persist company registration: %w", err)
	}

	cleared, err := s.store.ClearStagingFor(wctx, staged.CheckoutSessionID)
	switch {
	case err != nil:
		s.logger.Warn("registration confirm: staging not cleared", zap.Error(err))
	case !cleared:
		s.logger.Info("registration confirm: a newer registration is staged, keeping it",
			zap.String("checkout_session_id", staged.CheckoutSessionID))
	}

	s.metrics.IncrRegistration(observability.OutcomeCompleted)
	s.logger.Info("company registered",
		zap.String("user_id", id),
		zap.String("company_name", company.CompanyName),
		zap.String("plan", company.SelectedPlan),
	)

	return &domain.RegistrationResult{
		UserID:  id,
		User:    user.Public(),
		Company: *company,
	}, nil
}

// ============================================================
// CancelRegistration — DELETE /v1/registrations/company
// ============================================================

// CancelRegistration drops the staged form (checkout cancelled).
func (s *RegistrationService) CancelRegistration(ctx context.Context) error {
	ctx, span := registrationTracer.Start(ctx, "RegistrationService.CancelRegistration")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.ClearStaging(ctx); err != nil {
		return fmt.Errorf("clear staged registration: %w", err)
	}
	s.logger.Info("company registration cancelled")
	return nil
}

func (s *RegistrationService) ensureEmailAvailable(ctx context.Context, email string) error {
	_, taken, err := s.store.GetUserIDByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		s.logger.Warn("registration: email already registered", zap.String("email", domain.NormalizeEmail(email)))
		return &domain.ErrConflict{Message: "email already registered"}
	}
	return nil
}

func companyFromStaged(id string, staged *domain.StagedRegistration, now time.Time) *domain.Company {
	f := staged.Form
	return &domain.Company{
		ID:                     id,
		CompanyName:            f.CompanyName,
		CIFNIF:                 f.CIFNIF,
		CompanyAddress:         f.CompanyAddress,
		CompanyPhone:           f.CompanyPhone,
		CompanyEmail:           f.CompanyEmail,
		RepresentativeName:     f.RepresentativeName,
		RepresentativeEmail:    f.RepresentativeEmail,
		RepresentativePosition: f.RepresentativePosition,
		BusinessType:           f.BusinessType,
		BusinessDescription:    f.BusinessDescription,
		Website:                f.Website,
		City:                   f.City,
		Phone:                  f.CompanyPhone,
		SelectedPlan:           staged.Plan.ID,
		Status:                 domain.CompanyStatusActive,
		CheckoutSessionID:      staged.CheckoutSessionID,
		RegistrationDate:       now,
	}
}
