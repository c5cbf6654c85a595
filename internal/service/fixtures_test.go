package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/cache"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/observability"
	"github.com/boddenberg/influmatch-bfa-go/internal/infra/storage"
	"github.com/boddenberg/influmatch-bfa-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Fakes ---

// faultyKV is an in-memory store whose operations can be made to fail for
// keys starting with a given prefix. failAfterSet applies the write and then
// reports the error, as a remote store does when the reply is lost.
type faultyKV struct {
	*kvstore.Memory

	mu           sync.Mutex
	failGet      map[string]error
	failSet      map[string]error
	failAfterSet map[string]error
	failRemove   map[string]error
	onSet        func(key string)
}

func newFaultyKV() *faultyKV {
	return &faultyKV{
		Memory:       kvstore.NewMemory(),
		failGet:      map[string]error{},
		failSet:      map[string]error{},
		failAfterSet: map[string]error{},
		failRemove:   map[string]error{},
	}
}

func match(rules map[string]error, key string) error {
	for prefix, err := range rules {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return nil
}

func (f *faultyKV) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	err := match(f.failGet, key)
	f.mu.Unlock()
	if err != nil {
		return "", false, err
	}
	return f.Memory.Get(ctx, key)
}

func (f *faultyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	err := match(f.failSet, key)
	after := match(f.failAfterSet, key)
	hook := f.onSet
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(key)
	}
	if err := f.Memory.Set(ctx, key, value); err != nil {
		return err
	}
	return after
}

func (f *faultyKV) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	err := match(f.failRemove, key)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Memory.Remove(ctx, key)
}

func (f *faultyKV) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = map[string]error{}
	f.failSet = map[string]error{}
	f.failAfterSet = map[string]error{}
	f.failRemove = map[string]error{}
	f.onSet = nil
}

type fakePayments struct {
	mu      sync.Mutex
	session *domain.CheckoutSession
	err     error
	calls   int
	plans   []string
}

func (f *fakePayments) CreateCheckoutSession(_ context.Context, _ *domain.CompanyRegistrationForm, plan domain.Plan) (*domain.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.plans = append(f.plans, plan.ID)
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// --- Environment ---

const testSecret = "test-secret"

type testEnv struct {
	kv           *faultyKV
	store        *storage.Store
	metrics      *observability.Metrics
	payments     *fakePayments
	registration *service.RegistrationService
	sessions     *service.SessionService
	campaigns    *service.CampaignService
	repairs      *service.RepairService
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	kv := newFaultyKV()
	store := storage.New(kv, metrics, logger)
	payments := &fakePayments{session: &domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}}

	return &testEnv{
		kv:           kv,
		store:        store,
		metrics:      metrics,
		payments:     payments,
		registration: service.NewRegistrationService(store, payments, metrics, logger),
		sessions:     newSessionService(t, store, metrics),
		campaigns:    service.NewCampaignService(store, logger),
		repairs:      service.NewRepairService(store, metrics, logger),
	}
}

func newSessionService(t *testing.T, store *storage.Store, metrics *observability.Metrics) *service.SessionService {
	t.Helper()
	registry := cache.New[domain.Session](time.Hour)
	t.Cleanup(registry.Close)
	return service.NewSessionService(store, registry, testSecret, time.Hour, metrics, zap.NewNop())
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
		BusinessDescription:    "Day spa",
		Website:                "https://acme.example",
		City:                   "Madrid",
	}
}

// registerCompany runs start + confirm for form and returns the result.
func (e *testEnv) registerCompany(t *testing.T, form domain.CompanyRegistrationForm) *domain.RegistrationResult {
	t.Helper()
	ctx := context.Background()

	started, err := e.registration.StartRegistration(ctx, &domain.StartRegistrationRequest{Form: form, PlanID: "basic"})
	require.NoError(t, err)

	res, err := e.registration.ConfirmRegistration(ctx, &domain.PaymentConfirmation{
		CheckoutSessionID: started.CheckoutSessionID,
		Status:            domain.PaymentStatusPaid,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) registerInfluencer(t *testing.T, name, email string) *domain.User {
	t.Helper()
	u, err := e.registration.RegisterInfluencer(context.Background(), &domain.InfluencerSignupForm{
		Name:      name,
		Email:     email,
		Instagram: "@" + strings.ToLower(name),
		Password:  "secret1",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) createAdmin(t *testing.T) *domain.User {
	t.Helper()
	u, err := e.registration.CreateAdmin(context.Background(), &domain.CreateAdminRequest{
		Name:     "Root",
		Email:    "admin@influmatch.example",
		Password: "admin-secret",
	})
	require.NoError(t, err)
	return u
}

// login logs in and returns the live session.
func (e *testEnv) login(t *testing.T, email, password string) *domain.Session {
	t.Helper()
	ctx := context.Background()
	resp, err := e.sessions.Login(ctx, &domain.LoginRequest{Email: email, Password: password})
	require.NoError(t, err)
	session, err := e.sessions.Resume(ctx, resp.AccessToken)
	require.NoError(t, err)
	return session
}

// putRaw writes v under key bypassing validation, as legacy data would be.
func (e *testEnv) putRaw(t *testing.T, key string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, e.kv.Memory.Set(context.Background(), key, string(data)))
}

// putLegacyUser stores a user with an email index and a known password,
// bypassing validation so userType may be missing.
func (e *testEnv) putLegacyUser(t *testing.T, u domain.User, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	u.PasswordHash = string(hash)
	e.putRaw(t, storage.UserKey(u.ID), u)
	e.putRaw(t, storage.EmailKey(u.Email), u.ID)
}

func (e *testEnv) keysWithPrefix(prefix string) []string {
	var out []string
	for k := range e.kv.Snapshot() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}
