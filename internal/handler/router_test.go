package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/handler"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/cache"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPayments struct {
	err error
}

func (p *stubPayments) CreateCheckoutSession(_ context.Context, _ *domain.CompanyRegistrationForm, _ domain.Plan) (*domain.CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &domain.CheckoutSession{ID: "cs_http_1", URL: "https://checkout.example/cs_http_1"}, nil
}

// brokenKV fails every key listing.
type brokenKV struct {
	*kvstore.Memory
}

func (brokenKV) Keys(context.Context) ([]string, error) {
	return nil, errors.New("disk unavailable")
}

type apiEnv struct {
	kv           *kvstore.Memory
	payments     *stubPayments
	registration *service.RegistrationService
	router       http.Handler
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	kv := kvstore.NewMemory()
	store := storage.New(kv, metrics, logger)
	payments := &stubPayments{}

	registry := cache.New[domain.Session](time.Hour)
	t.Cleanup(registry.Close)

	registration := service.NewRegistrationService(store, payments, metrics, logger)
	sessions := service.NewSessionService(store, registry, "http-test-secret", time.Hour, metrics, logger)

	return &apiEnv{
		kv:           kv,
		payments:     payments,
		registration: registration,
		router: handler.NewRouter(
			registration,
			sessions,
			service.NewCampaignService(store, logger),
			service.NewRepairService(store, metrics, logger),
			kv,
			metrics,
			logger,
		),
	}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *apiEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp domain.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func acmeForm() domain.CompanyRegistrationForm {
	return domain.CompanyRegistrationForm{
		CompanyName:            "Acme Spa",
		CIFNIF:                 "B12345678",
		CompanyAddress:         "Calle Mayor 1, Madrid",
		CompanyPhone:           "+34 600 000 000",
		CompanyEmail:           "info@acme.example",
		Password:               "secret1",
		RepresentativeName:     "Laura Gómez",
		RepresentativeEmail:    "laura@acme.example",
		RepresentativePosition: "CEO",
		BusinessType:           "wellness",
		City:                   "Madrid",
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Services, 2)
}

func TestReadyz(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodGet, "/readyz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_StoreDown(t *testing.T) {
	router := handler.NewRouter(nil, nil, nil, nil, brokenKV{kvstore.NewMemory()}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "disk unavailable")
}

func TestMetrics(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "influmatch_rollbacks_total")
}

// --- Registration and session ---

func TestCompanyRegistrationOverHTTP(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/registrations/company", "",
		domain.StartRegistrationRequest{Form: acmeForm(), PlanID: "basic"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var started domain.StartRegistrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "cs_http_1", started.CheckoutSessionID)

	rec = api.do(t, http.MethodPost, "/v1/registrations/company/confirm", "",
		domain.PaymentConfirmation{CheckoutSessionID: started.CheckoutSessionID, Status: domain.PaymentStatusPaid})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result domain.RegistrationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "Acme Spa", result.Company.CompanyName)
	assert.Equal(t, domain.UserTypeCompany, result.User.UserType)
	assert.Empty(t, result.User.PasswordHash)

	token := api.login(t, "info@acme.example", "secret1")

	rec = api.do(t, http.MethodGet, "/v1/me/view", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view domain.RoleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.NotNil(t, view.Company)
	assert.Equal(t, "Acme Spa", view.Company.CompanyName)
	assert.Equal(t, result.UserID, view.User.ID)

	rec = api.do(t, http.MethodGet, "/v1/session", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, domain.UserTypeCompany, session.Role)
}

func TestStartRegistration_PaymentDeclinedIs402AndWritesNothing(t *testing.T) {
	api := newAPI(t)
	api.payments.err = &domain.ErrPaymentNotConfirmed{Reason: "card_declined", StatusCode: http.StatusPaymentRequired}

	rec := api.do(t, http.MethodPost, "/v1/registrations/company", "",
		domain.StartRegistrationRequest{Form: acmeForm(), PlanID: "basic"})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "payment_not_confirmed", errorCode(t, rec))
	assert.Empty(t, api.kv.Snapshot())
}

func TestStartRegistration_InvalidFormIs400(t *testing.T) {
	api := newAPI(t)
	form := acmeForm()
	form.CompanyEmail = "not-an-email"

	rec := api.do(t, http.MethodPost, "/v1/registrations/company", "",
		domain.StartRegistrationRequest{Form: form, PlanID: "basic"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorCode(t, rec))
}

func TestStartRegistration_MalformedBodyIs400(t *testing.T) {
	api := newAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/registrations/company", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRegistration(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodPost, "/v1/registrations/company", "",
		domain.StartRegistrationRequest{Form: acmeForm(), PlanID: "basic"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = api.do(t, http.MethodDelete, "/v1/registrations/company", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, api.kv.Snapshot(), storage.KeyStaging)
}

func TestLogin_WrongPasswordIs401(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodPost, "/v1/registrations/influencer", "", domain.InfluencerSignupForm{
		Name: "Marta", Email: "marta@example.com", Instagram: "@marta", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "marta@example.com", Password: "nope!!"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestLogin_MissingUserTypeIsIntegrityViolation(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	// A legacy record written before userType existed.
	_, err := api.registration.RegisterInfluencer(ctx, &domain.InfluencerSignupForm{
		Name: "Old", Email: "old@example.com", Instagram: "old", Password: "secret1",
	})
	require.NoError(t, err)
	for key, value := range api.kv.Snapshot() {
		var u domain.User
		if json.Unmarshal([]byte(value), &u) == nil && u.Email == "old@example.com" {
			u.UserType = ""
			data, err := json.Marshal(u)
			require.NoError(t, err)
			require.NoError(t, api.kv.Set(ctx, key, string(data)))
		}
	}

	rec := api.do(t, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "old@example.com", Password: "secret1"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "integrity_violation", errorCode(t, rec))
}

func TestAuthenticatedRoutes_RejectMissingOrBadToken(t *testing.T) {
	api := newAPI(t)

	rec := api.do(t, http.MethodGet, "/v1/me/view", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/me/view", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_InvalidatesToken(t *testing.T) {
	api := newAPI(t)
	rec := api.do(t, http.MethodPost, "/v1/registrations/influencer", "", domain.InfluencerSignupForm{
		Name: "Marta", Email: "marta@example.com", Instagram: "marta", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := api.login(t, "marta@example.com", "secret1")

	rec = api.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Campaigns ---

func TestCampaignLifecycleOverHTTP(t *testing.T) {
	api := newAPI(t)
	ctx := context.Background()

	_, err := api.registration.CreateAdmin(ctx, &domain.CreateAdminRequest{
		Name: "Root", Email: "admin@influmatch.example", Password: "admin-secret",
	})
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/v1/registrations/company", "",
		domain.StartRegistrationRequest{Form: acmeForm(), PlanID: "basic"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = api.do(t, http.MethodPost, "/v1/registrations/company/confirm", "",
		domain.PaymentConfirmation{CheckoutSessionID: "cs_http_1", Status: domain.PaymentStatusPaid})
	require.Equal(t, http.StatusCreated, rec.Code)
	var company domain.RegistrationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))

	rec = api.do(t, http.MethodPost, "/v1/registrations/influencer", "", domain.InfluencerSignupForm{
		Name: "Marta", Email: "marta@example.com", Instagram: "marta", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	adminToken := api.login(t, "admin@influmatch.example", "admin-secret")
	influencerToken := api.login(t, "marta@example.com", "secret1")
	companyToken := api.login(t, "info@acme.example", "secret1")

	newCampaign := domain.CreateCampaignRequest{
		CompanyID:      company.UserID,
		Title:          "Spa weekend",
		Category:       "wellness",
		City:           "Madrid",
		AvailableDates: []string{"2026-11-07"},
	}

	rec = api.do(t, http.MethodPost, "/v1/campaigns", influencerToken, newCampaign)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/v1/campaigns", adminToken, newCampaign)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var campaign domain.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &campaign))

	rec = api.do(t, http.MethodGet, "/v1/campaigns", companyToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data  []domain.Campaign `json:"data"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = api.do(t, http.MethodPost, "/v1/campaigns/"+campaign.ID+"/requests", influencerToken,
		domain.ApplyRequest{SelectedDate: "2026-11-07"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cr domain.CollaborationRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cr))

	rec = api.do(t, http.MethodPost, "/v1/campaigns/"+campaign.ID+"/requests", influencerToken,
		domain.ApplyRequest{SelectedDate: "2026-11-07"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", errorCode(t, rec))

	rec = api.do(t, http.MethodPost, "/v1/campaigns/missing/requests", influencerToken,
		domain.ApplyRequest{SelectedDate: "2026-11-07"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPut, "/v1/requests/"+cr.ID+"/status", companyToken,
		domain.UpdateRequestStatusRequest{Status: domain.RequestStatusApproved})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.CollaborationRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, domain.RequestStatusApproved, updated.Status)
}

// --- Admin ---

func TestAdminRoutes(t *testing.T) {
	api := newAPI(t)
	_, err := api.registration.CreateAdmin(context.Background(), &domain.CreateAdminRequest{
		Name: "Root", Email: "admin@influmatch.example", Password: "admin-secret",
	})
	require.NoError(t, err)
	rec := api.do(t, http.MethodPost, "/v1/registrations/influencer", "", domain.InfluencerSignupForm{
		Name: "Marta", Email: "marta@example.com", Instagram: "marta", Password: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	influencerToken := api.login(t, "marta@example.com", "secret1")
	adminToken := api.login(t, "admin@influmatch.example", "admin-secret")

	rec = api.do(t, http.MethodGet, "/v1/admin/diagnostics", influencerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/v1/admin/diagnostics", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var diag struct {
		Healthy  bool                       `json:"healthy"`
		Report   domain.DiagnosticReport    `json:"report"`
		Counters domain.OperationalCounters `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.True(t, diag.Healthy)
	assert.Equal(t, 2, diag.Report.Users)

	rec = api.do(t, http.MethodPost, "/v1/admin/repair", adminToken, domain.RepairRequest{DryRun: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var repaired struct {
		DryRun  bool                  `json:"dryRun"`
		Results []domain.RepairResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repaired))
	assert.True(t, repaired.DryRun)
	for _, r := range repaired.Results {
		assert.Empty(t, r.Changes, r.Repair)
	}

	rec = api.do(t, http.MethodPost, "/v1/admin/repair", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
