package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_IssuesSessionAndSavesDeviceSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.registerInfluencer(t, "Ana", "ana@example.com")

	resp, err := e.sessions.Login(ctx, &domain.LoginRequest{Email: " ANA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, resp.UserID)
	assert.Equal(t, domain.UserTypeInfluencer, resp.UserType)
	assert.NotEmpty(t, resp.AccessToken)

	session, err := e.sessions.Resume(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, session.ID)
	assert.Equal(t, domain.UserTypeInfluencer, session.Role)

	ds, err := e.store.GetDeviceSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, resp.SessionID, ds.SessionID)

	stored, err := e.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLogin)
}

func TestLogin_BadCredentialsAreAuthFailures(t *testing.T) {
	e := newEnv(t)
	e.registerInfluencer(t, "Ana", "ana@example.com")

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "ana@example.com", "wrong-pass"},
		{"unknown email", "nobody@example.com", "secret1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.sessions.Login(context.Background(), &domain.LoginRequest{Email: tt.email, Password: tt.password})
			var unauthorized *domain.ErrUnauthorized
			require.ErrorAs(t, err, &unauthorized)
		})
	}
	assert.Equal(t, float64(2), e.metrics.Snapshot().AuthFailures)
}

func TestLogin_InactiveUserIsRejected(t *testing.T) {
	e := newEnv(t)
	e.putLegacyUser(t, domain.User{ID: "u-off", Email: "off@example.com", Name: "Off", UserType: domain.UserTypeInfluencer, IsActive: false}, "secret1")

	_, err := e.sessions.Login(context.Background(), &domain.LoginRequest{Email: "off@example.com", Password: "secret1"})
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)
}

func TestLogin_MissingUserTypeIsIntegrityViolation(t *testing.T) {
	e := newEnv(t)
	e.putLegacyUser(t, domain.User{ID: "legacy", Email: "legacy@example.com", Name: "Legacy", IsActive: true}, "secret1")

	_, err := e.sessions.Login(context.Background(), &domain.LoginRequest{Email: "legacy@example.com", Password: "secret1"})

	var integrity *domain.ErrIntegrity
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, domain.IssueMissingUserType, integrity.Kind)
	var unauthorized *domain.ErrUnauthorized
	assert.False(t, errors.As(err, &unauthorized))

	stored, err := e.store.GetUser(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Empty(t, stored.UserType, "the record is not coerced")
}

func TestResolve_MissingUserTypeIsIntegrityViolation(t *testing.T) {
	e := newEnv(t)
	e.putLegacyUser(t, domain.User{ID: "legacy", Email: "legacy@example.com", Name: "Legacy", IsActive: true}, "secret1")

	_, err := e.sessions.Resolve(context.Background(), &domain.Session{ID: "s1", UserID: "legacy"})

	var integrity *domain.ErrIntegrity
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, domain.IssueMissingUserType, integrity.Kind)
}

func TestResolve_CompanyUserWithoutCompanyRecord(t *testing.T) {
	e := newEnv(t)
	res := e.registerCompany(t, acmeForm())
	require.NoError(t, e.kv.Memory.Remove(context.Background(), storage.CompanyKey(res.UserID)))

	session := e.login(t, "info@acme.example", "secret1")
	_, err := e.sessions.Resolve(context.Background(), session)

	var integrity *domain.ErrIntegrity
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, domain.IssueOrphanedUser, integrity.Kind)
}

func TestResolve_StoreReadFailureIsPersistenceFailure(t *testing.T) {
	e := newEnv(t)
	e.registerInfluencer(t, "Ana", "ana@example.com")
	session := e.login(t, "ana@example.com", "secret1")

	e.kv.failGet[storage.KeyCampaigns] = errors.New("device storage unavailable")
	_, err := e.sessions.Resolve(context.Background(), session)

	var persistence *domain.ErrPersistence
	require.ErrorAs(t, err, &persistence)
	var unauthorized *domain.ErrUnauthorized
	assert.False(t, errors.As(err, &unauthorized))
}

func TestResolve_InfluencerSeesActiveCampaignsAndOwnRequests(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	acme := e.registerCompany(t, acmeForm())
	e.createAdmin(t)
	admin := e.login(t, "admin@influmatch.example", "admin-secret")

	active, err := e.campaigns.CreateCampaign(ctx, admin, &domain.CreateCampaignRequest{CompanyID: acme.UserID, Title: "Spring glow"})
	require.NoError(t, err)
	_, err = e.campaigns.CreateCampaign(ctx, admin, &domain.CreateCampaignRequest{CompanyID: acme.UserID, Title: "Draft", Status: domain.CampaignStatusDraft})
	require.NoError(t, err)

	e.registerInfluencer(t, "Ana", "ana@example.com")
	e.registerInfluencer(t, "Bea", "bea@example.com")
	ana := e.login(t, "ana@example.com", "secret1")
	bea := e.login(t, "bea@example.com", "secret1")
	_, err = e.campaigns.ApplyToCampaign(ctx, ana, active.ID, &domain.ApplyRequest{})
	require.NoError(t, err)
	_, err = e.campaigns.ApplyToCampaign(ctx, bea, active.ID, &domain.ApplyRequest{})
	require.NoError(t, err)

	view, err := e.sessions.Resolve(ctx, ana)
	require.NoError(t, err)
	require.Len(t, view.Campaigns, 1)
	assert.Equal(t, active.ID, view.Campaigns[0].ID)
	require.Len(t, view.Requests, 1)
	assert.Equal(t, ana.UserID, view.Requests[0].UserID)
	assert.Nil(t, view.Company)

	adminView, err := e.sessions.Resolve(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, adminView.Campaigns, 2)
	assert.Len(t, adminView.Requests, 2)
}

func TestLogout_EndsSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.registerInfluencer(t, "Ana", "ana@example.com")
	resp, err := e.sessions.Login(ctx, &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	session, err := e.sessions.Resume(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, e.sessions.Logout(ctx, session))

	_, err = e.sessions.Resume(ctx, resp.AccessToken)
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)

	ds, err := e.store.GetDeviceSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, ds)

	_, err = e.sessions.ResumeFromDevice(ctx)
	require.ErrorAs(t, err, &unauthorized)
}

func TestResumeFromDevice_RestoresSessionAfterRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := e.registerInfluencer(t, "Ana", "ana@example.com")
	resp, err := e.sessions.Login(ctx, &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	restarted := newSessionService(t, e.store, e.metrics)
	session, err := restarted.ResumeFromDevice(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, session.ID)
	assert.Equal(t, u.ID, session.UserID)
	assert.Equal(t, domain.UserTypeInfluencer, session.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	again, err := restarted.Resume(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
}

func TestValidateToken_RejectsForeignSignature(t *testing.T) {
	e := newEnv(t)
	e.registerInfluencer(t, "Ana", "ana@example.com")
	resp, err := e.sessions.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = e.sessions.ValidateToken(resp.AccessToken + "x")
	var unauthorized *domain.ErrUnauthorized
	require.ErrorAs(t, err, &unauthorized)
}
