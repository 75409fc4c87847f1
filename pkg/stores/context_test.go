package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	stores []Store
	err    error
	calls  int
}

func (f *fakeLister) ListStores(ctx context.Context) ([]Store, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.stores, nil
}

func realStores() []Store {
	return []Store{
		{ID: 1, Name: "Jubilee Hills", City: "Hyderabad", IsActive: true},
		{ID: 2, Name: "Koramangala", City: "Bengaluru", IsActive: true},
	}
}

func TestContext_LoadFetchesListAndDefaults(t *testing.T) {
	lister := &fakeLister{stores: realStores()}
	c := NewContext(lister, NewMemoryPreferences())

	c.Load(context.Background(), "u1")

	assert.Equal(t, 2, len(c.Stores()))
	assert.Equal(t, DefaultStoreID, c.CurrentStoreID())
	assert.False(t, c.Degraded())
	assert.Empty(t, c.Err())

	current, ok := c.CurrentStoreData()
	require.True(t, ok)
	assert.Equal(t, "Jubilee Hills", current.Name)
}

func TestContext_LoadFallsBackToPlaceholders(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	c := NewContext(lister, NewMemoryPreferences())

	c.Load(context.Background(), "u1")

	assert.NotEmpty(t, c.Stores(), "placeholder stores keep the UI functional")
	assert.True(t, c.Degraded(), "fallback must be distinguishable from a real fetch")
	assert.NotEmpty(t, c.Err())
}

func TestContext_LoadRestoresSavedSelection(t *testing.T) {
	prefs := NewMemoryPreferences()
	require.NoError(t, prefs.SetCurrentStoreID(context.Background(), "u1", 2))

	c := NewContext(&fakeLister{stores: realStores()}, prefs)
	c.Load(context.Background(), "u1")

	assert.Equal(t, 2, c.CurrentStoreID())
}

func TestContext_SetCurrentStorePersists(t *testing.T) {
	prefs := NewMemoryPreferences()
	c := NewContext(&fakeLister{stores: realStores()}, prefs)
	c.Load(context.Background(), "u1")

	require.NoError(t, c.SetCurrentStore(context.Background(), 2))
	assert.Equal(t, 2, c.CurrentStoreID())

	// a fresh context for the same user restores the choice
	c2 := NewContext(&fakeLister{stores: realStores()}, prefs)
	c2.Load(context.Background(), "u1")
	assert.Equal(t, 2, c2.CurrentStoreID())
}

func TestContext_PerUserSelectionIsIsolated(t *testing.T) {
	prefs := NewMemoryPreferences()
	c := NewContext(&fakeLister{stores: realStores()}, prefs)
	c.Load(context.Background(), "u1")

	require.NoError(t, c.SetCurrentStoreFor(context.Background(), "u2", 2))

	assert.Equal(t, 2, c.CurrentStoreIDFor(context.Background(), "u2"))
	assert.Equal(t, DefaultStoreID, c.CurrentStoreIDFor(context.Background(), "u1"))
	assert.Equal(t, DefaultStoreID, c.CurrentStoreID(),
		"another user's switch must not move the loaded session")

	// The loaded user's own switch still moves the in-memory selection.
	require.NoError(t, c.SetCurrentStoreFor(context.Background(), "u1", 2))
	assert.Equal(t, 2, c.CurrentStoreID())
}

func TestContext_RefreshSwapsListAtomically(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	c := NewContext(lister, NewMemoryPreferences())
	c.Load(context.Background(), "u1")
	require.True(t, c.Degraded())

	lister.err = nil
	lister.stores = realStores()
	require.NoError(t, c.Refresh(context.Background()))

	assert.False(t, c.Degraded())
	assert.Equal(t, 2, len(c.Stores()))
	assert.Empty(t, c.Err())
}

func TestContext_RefreshFailureKeepsLastKnownGood(t *testing.T) {
	lister := &fakeLister{stores: realStores()}
	c := NewContext(lister, NewMemoryPreferences())
	c.Load(context.Background(), "u1")

	lister.err = errors.New("db down")
	err := c.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, len(c.Stores()), "failed refresh must not clear the list")
	assert.NotEmpty(t, c.Err())
}

func TestRedisPreferences_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	prefs := NewRedisPreferences(client, time.Hour)
	ctx := context.Background()

	id, err := prefs.CurrentStoreID(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, id, "unset preference reads as zero")

	require.NoError(t, prefs.SetCurrentStoreID(ctx, "u1", 3))

	id, err = prefs.CurrentStoreID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestRedisPreferences_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.Set(preferenceKey("u1"), "not-a-number")

	prefs := NewRedisPreferences(client, 0)
	_, err := prefs.CurrentStoreID(context.Background(), "u1")
	assert.Error(t, err)
}
