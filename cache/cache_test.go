package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/billing-ledger/ledger"
)

type countingStore struct {
	settings ledger.CompanySettings
	reads    int
	saveErr  error
}

func (s *countingStore) GetSettings(context.Context) (ledger.CompanySettings, error) {
	s.reads++
	return s.settings, nil
}

func (s *countingStore) SaveSettings(_ context.Context, cs ledger.CompanySettings) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.settings = cs
	return nil
}

// unreachableRedis points at a port nothing listens on.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestMemoryBackend_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	// Returned slices are copies
	v[0] = 'x'
	v, _, _ = b.Get(ctx, "k")
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, b.Delete(ctx, "k"))
	_, ok, _ = b.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	require.NoError(t, b.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, b.Set(ctx, "forever", []byte("2"), 0))

	now = now.Add(time.Second)

	_, ok, _ := b.Get(ctx, "short")
	assert.False(t, ok, "expires at exactly ttl")
	_, ok, _ = b.Get(ctx, "forever")
	assert.True(t, ok, "zero ttl never expires")
}

func TestSettingsCache_ReadThrough(t *testing.T) {
	// GIVEN a store holding custom settings behind an empty cache
	ctx := context.Background()
	store := &countingStore{settings: ledger.CompanySettings{CompanyName: "Warp", InvoicePrefix: "WRP"}}
	c := NewSettingsCache(store, NewMemoryBackend(), time.Minute, zaptest.NewLogger(t))

	// WHEN settings are read twice
	first, err := c.GetSettings(ctx)
	require.NoError(t, err)
	second, err := c.GetSettings(ctx)
	require.NoError(t, err)

	// THEN the store is hit once and both reads agree
	assert.Equal(t, 1, store.reads)
	assert.Equal(t, "WRP", first.InvoicePrefix)
	assert.Equal(t, first.CompanyName, second.CompanyName)
}

func TestSettingsCache_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{settings: ledger.DefaultSettings()}
	c := NewSettingsCache(store, NewMemoryBackend(), time.Minute, nil)

	_, err := c.GetSettings(ctx)
	require.NoError(t, err)

	updated := ledger.DefaultSettings()
	updated.InvoicePrefix = "BILL"
	require.NoError(t, c.SaveSettings(ctx, updated))

	got, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BILL", got.InvoicePrefix)
	assert.Equal(t, 2, store.reads)
}

func TestSettingsCache_FailedSaveKeepsEntry(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{settings: ledger.DefaultSettings(), saveErr: errors.New("read-only")}
	c := NewSettingsCache(store, NewMemoryBackend(), time.Minute, nil)
	_, _ = c.GetSettings(ctx)

	err := c.SaveSettings(ctx, ledger.CompanySettings{InvoicePrefix: "X"})
	assert.Error(t, err)

	_, err = c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, store.reads)
}

func TestSettingsCache_CorruptEntryFallsThrough(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(ctx, settingsKey, []byte("{not json"), time.Minute))
	store := &countingStore{settings: ledger.DefaultSettings()}
	c := NewSettingsCache(store, backend, time.Minute, nil)

	got, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.DefaultInvoicePrefix, got.InvoicePrefix)
	assert.Equal(t, 1, store.reads)
}

func TestSettingsCache_InvalidateAfterReset(t *testing.T) {
	// GIVEN a service whose settings go through the cache
	ctx := context.Background()
	store := &countingStore{settings: ledger.DefaultSettings()}
	c := NewSettingsCache(store, NewMemoryBackend(), time.Hour, nil)
	_, _ = c.GetSettings(ctx)

	// WHEN the underlying row changes and the cache is invalidated
	store.settings.InvoicePrefix = "NEW"
	c.Invalidate(ctx)

	// THEN the next read sees the new row
	got, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.InvoicePrefix)
}

func TestRedisBackend_UnreachableServer(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestSettingsCache_RedisOutageFallsBackToStore(t *testing.T) {
	// GIVEN a Redis backend that cannot be reached
	ctx := context.Background()
	backend := NewRedisBackendWithClient(unreachableRedis(t), "")
	store := &countingStore{settings: ledger.DefaultSettings()}
	c := NewSettingsCache(store, backend, time.Minute, zaptest.NewLogger(t))

	// WHEN settings are read and saved
	got, err := c.GetSettings(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SaveSettings(ctx, got))

	// THEN every call is served by the store
	assert.Equal(t, ledger.DefaultInvoicePrefix, got.InvoicePrefix)
	assert.Equal(t, 1, store.reads)

	_, _, err = backend.Get(ctx, "anything")
	assert.Error(t, err)
	assert.NoError(t, backend.Close(), "borrowed client is not closed")
}
