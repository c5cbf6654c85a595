package kvstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/boddenberg/influmatch-bfa-go/internal/infra/kvstore"
	"github.com/boddenberg/influmatch-bfa-go/internal/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the KVStore contract against any backend.
func exerciseStore(t *testing.T, store port.KVStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "currentUser")
	require.NoError(t, err)
	assert.False(t, found, "missing key must report found=false")

	require.NoError(t, store.Set(ctx, "company_1", `{"id":"1"}`))
	require.NoError(t, store.Set(ctx, "admin_campaigns", `[]`))

	v, found, err := store.Get(ctx, "company_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"1"}`, v)

	require.NoError(t, store.Set(ctx, "company_1", `{"id":"1","companyName":"Acme Spa"}`))
	v, _, err = store.Get(ctx, "company_1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","companyName":"Acme Spa"}`, v)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin_campaigns", "company_1"}, keys)

	require.NoError(t, store.Remove(ctx, "company_1"))
	require.NoError(t, store.Remove(ctx, "company_1"), "removing a missing key is not an error")

	_, found, err = store.Get(ctx, "company_1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_Contract(t *testing.T) {
	exerciseStore(t, kvstore.NewMemory())
}

func TestMemory_CancelledContext(t *testing.T) {
	store := kvstore.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, store.Set(ctx, "k", "v"))
	_, _, err := store.Get(ctx, "k")
	assert.Error(t, err)
}

func TestFile_Contract(t *testing.T) {
	store, err := kvstore.OpenFile(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	ctx := context.Background()

	store, err := kvstore.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "user_1", `{"id":"1"}`))
	require.NoError(t, store.Set(ctx, "temp_company_registration", `{}`))
	require.NoError(t, store.Remove(ctx, "temp_company_registration"))

	reopened, err := kvstore.OpenFile(path)
	require.NoError(t, err)

	v, found, err := reopened.Get(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"id":"1"}`, v)

	_, found, err = reopened.Get(ctx, "temp_company_registration")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, _, err := kvstore.Open(context.Background(), kvstore.Options{Backend: "sqlite"}, nil)
	assert.Error(t, err)
}

func TestOpen_MemoryDefault(t *testing.T) {
	store, closeFn, err := kvstore.Open(context.Background(), kvstore.Options{}, nil)
	require.NoError(t, err)
	assert.NoError(t, closeFn())
	assert.IsType(t, &kvstore.Memory{}, store)
}
