package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var sessionTracer = otel.Tracer("service/session")

const tokenIssuer = "influmatch"

// SessionService logs users in and resolves their role-scoped view.
// Sessions are explicit values: Login creates one, Logout ends it, and every
// identity-dependent operation receives it as an argument.
type SessionService struct {
	store     port.RecordStore
	sessions  port.Cache[domain.Session]
	jwtSecret []byte
	accessTTL time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService creates a new session service. sessions is the registry
// of live sessions keyed by session id.
func NewSessionService(
	store port.RecordStore,
	sessions port.Cache[domain.Session],
	jwtSecret string,
	accessTTL time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		store:     store,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

func (s *SessionService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Login")
	defer span.End()

	email := domain.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email and password are required"}
	}

	id, found, err := s.store.GetUserIDByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if !found {
		return nil, s.authFailure("login: unknown email", zap.String("email", email))
	}
	span.SetAttributes(attribute.String("user.id", id))

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		s.logger.Error("login: email index points to a missing user",
			zap.String("email", email),
			zap.String("user_id", id),
		)
		return nil, s.authFailure("login: user record missing", zap.String("user_id", id))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.authFailure("login: wrong password", zap.String("user_id", id))
	}
	if !user.IsActive {
		return nil, s.authFailure("login: inactive account", zap.String("user_id", id))
	}
	if !user.UserType.Valid() {
		return nil, s.integrity(domain.IssueMissingUserType, storage.UserKey(id), id,
			fmt.Sprintf("user has no valid userType (%q)", user.UserType))
	}

	now := s.now().UTC()
	user.LastLogin = &now
	if err := s.store.PutUser(ctx, user); err != nil {
		return nil, fmt.Errorf("record last login: %w", err)
	}

	session, err := s.openSession(user, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutDeviceSession(ctx, &domain.DeviceSession{
		SessionID: session.ID,
		UserID:    user.ID,
		Token:     session.Token,
		SavedAt:   now,
	}); err != nil {
		s.closeSession(session.ID)
		return nil, fmt.Errorf("save device session: %w", err)
	}

	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("user_type", string(user.UserType)),
	)

	return &domain.LoginResponse{
		AccessToken: session.Token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		SessionID:   session.ID,
		UserID:      user.ID,
		UserType:    user.UserType,
		Name:        user.Name,
	}, nil
}

// ============================================================
// Resume — token → live session
// ============================================================

// Resume returns the live session an access token belongs to. A token whose
// session was logged out is rejected even if it has not expired yet.
func (s *SessionService) Resume(ctx context.Context, token string) (*domain.Session, error) {
	_, span := sessionTracer.Start(ctx, "SessionService.Resume")
	defer span.End()

	claims, err := s.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	session, ok := s.sessions.Get(claims.ID)
	if !ok || session.Token != token {
		return nil, &domain.ErrUnauthorized{Message: "session ended"}
	}
	if session.Expired(s.now()) {
		s.closeSession(session.ID)
		return nil, &domain.ErrUnauthorized{Message: "session expired"}
	}
	return &session, nil
}

// ResumeFromDevice restores the session saved under currentUser, e.g. after
// a restart. The user record is re-read so a session is never rebuilt for a
// user that no longer exists.
func (s *SessionService) ResumeFromDevice(ctx context.Context) (*domain.Session, error) {
	ctx, span := sessionTracer.Start(ctx, "SessionService.ResumeFromDevice")
	defer span.End()

	ds, err := s.store.GetDeviceSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device session: %w", err)
	}
	if ds == nil || ds.Token == "" {
		return nil, &domain.ErrUnauthorized{Message: "no saved session"}
	}

	if session, err := s.Resume(ctx, ds.Token); err == nil {
		return session, nil
	}

	claims, err := s.ValidateToken(ds.Token)
	if err != nil || claims.ID != ds.SessionID || claims.Sub != ds.UserID {
		_ = s.store.ClearDeviceSession(ctx)
		return nil, &domain.ErrUnauthorized{Message: "saved session is no longer valid"}
	}

	user, err := s.store.GetUser(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsActive {
		_ = s.store.ClearDeviceSession(ctx)
		return nil, &domain.ErrUnauthorized{Message: "saved session is no longer valid"}
	}
	if !user.UserType.Valid() {
		return nil, s.integrity(domain.IssueMissingUserType, storage.UserKey(user.ID), user.ID,
			fmt.Sprintf("user has no valid userType (%q)", user.UserType))
	}

	session := domain.Session{
		ID:        claims.ID,
		UserID:    user.ID,
		Role:      user.UserType,
		Token:     ds.Token,
		CreatedAt: ds.SavedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.CreatedAt = claims.IssuedAt.Time
	}
	s.sessions.SetWithTTL(session.ID, session, session.ExpiresAt.Sub(s.now()))
	s.metrics.SetActiveSessions(s.sessions.Len())

	s.logger.Info("session restored from device", zap.String("user_id", user.ID))
	return &session, nil
}

// ============================================================
// Logout — POST /v1/auth/logout
// ============================================================

func (s *SessionService) Logout(ctx context.Context, session *domain.Session) error {
	ctx, span := sessionTracer.Start(ctx, "SessionService.Logout")
	defer span.End()

	s.closeSession(session.ID)

	ds, err := s.store.GetDeviceSession(ctx)
	if err != nil {
		return fmt.Errorf("load device session: %w", err)
	}
	if ds != nil && ds.SessionID == session.ID {
		if err := s.store.ClearDeviceSession(ctx); err != nil {
			return fmt.Errorf("clear device session: %w", err)
		}
	}

	s.logger.Info("user logged out", zap.String("user_id", session.UserID))
	return nil
}

// ============================================================
// Tokens
// ============================================================

// SessionClaims are the claims carried by access tokens. The registered
// jti claim holds the session id.
type SessionClaims struct {
	Sub  string          `json:"sub"`
	Role domain.UserType `json:"role"`
	Type string          `json:"type"`
	jwt.RegisteredClaims
}

// ValidateToken checks signature, expiry and token type.
func (s *SessionService) ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" || claims.ID == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}
	return claims, nil
}

func (s *SessionService) openSession(user *domain.User, now time.Time) (*domain.Session, error) {
	session := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Role:      user.UserType,
		CreatedAt: now,
		ExpiresAt: now.Add(s.accessTTL),
	}

	claims := SessionClaims{
		Sub:  user.ID,
		Role: user.UserType,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			Issuer:    tokenIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	session.Token = token

	s.sessions.SetWithTTL(session.ID, session, s.accessTTL)
	s.metrics.SetActiveSessions(s.sessions.Len())
	return &session, nil
}

func (s *SessionService) closeSession(id string) {
	s.sessions.Delete(id)
	s.metrics.SetActiveSessions(s.sessions.Len())
}

func (s *SessionService) authFailure(msg string, fields ...zap.Field) error {
	s.metrics.IncrAuthFailure()
	s.logger.Warn(msg, fields...)
	return &domain.ErrUnauthorized{Message: "invalid credentials"}
}

func (s *SessionService) integrity(kind domain.IssueKind, key, id, detail string) error {
	s.metrics.IncrIntegrityViolation(kind)
	s.logger.Error("integrity violation",
		zap.String("kind", string(kind)),
		zap.String("key", key),
		zap.String("record_id", id),
		zap.String("detail", detail),
	)
	return &domain.ErrIntegrity{Kind: kind, Key: key, RecordID: id, Detail: detail}
}
