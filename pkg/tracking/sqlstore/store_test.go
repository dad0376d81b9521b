package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/tracking"
	"github.com/dmitrymomot/visitrack/pkg/tracking/sqlstore"
)

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newVisitor(key, address string, lastActivity time.Time) *tracking.Visitor {
	v := tracking.NewVisitor(key, address, "")
	v.UserAgent = "Mozilla/5.0"
	v.PageViews = 1
	v.SessionStart = lastActivity
	v.LastActivity = lastActivity
	return v
}

func TestStore_Visitors(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

	v := newVisitor("sess-1", "10.0.0.1", now)
	v.TrackingTag = "promo"
	v.Referrer = "https://news.example/"
	require.NoError(t, store.Create(ctx, v))

	t.Run("find by session", func(t *testing.T) {
		got, err := store.FindBySession(ctx, "sess-1", "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, v.ID, got.ID)
		assert.Equal(t, "promo", got.TrackingTag)
		assert.Equal(t, "https://news.example/", got.Referrer)
		assert.True(t, now.Equal(got.SessionStart))
		assert.True(t, now.Equal(got.LastActivity))
	})

	t.Run("duplicate pair", func(t *testing.T) {
		err := store.Create(ctx, newVisitor("sess-1", "10.0.0.1", now))
		assert.ErrorIs(t, err, tracking.ErrDuplicateVisitor)
	})

	t.Run("save", func(t *testing.T) {
		got, err := store.FindByID(ctx, v.ID)
		require.NoError(t, err)
		got.PageViews = 2
		got.CurrentURL = "/pricing"
		got.LastActivity = now.Add(time.Minute)
		require.NoError(t, store.Save(ctx, got))

		again, err := store.FindByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, again.PageViews)
		assert.Equal(t, "/pricing", again.CurrentURL)
		assert.True(t, now.Add(time.Minute).Equal(again.LastActivity))
	})

	t.Run("save into taken pair", func(t *testing.T) {
		other := newVisitor("sess-2", "10.0.0.2", now)
		require.NoError(t, store.Create(ctx, other))
		other.SessionKey = "sess-1"
		other.Address = "10.0.0.1"
		assert.ErrorIs(t, store.Save(ctx, other), tracking.ErrDuplicateVisitor)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, tracking.ErrVisitorNotFound)
		_, err = store.FindBySession(ctx, "sess-1", "10.9.9.9")
		assert.ErrorIs(t, err, tracking.ErrVisitorNotFound)
		assert.ErrorIs(t, store.Save(ctx, newVisitor("x", "y", now)), tracking.ErrVisitorNotFound)
	})

	t.Run("invalid", func(t *testing.T) {
		assert.ErrorIs(t, store.Create(ctx, &tracking.Visitor{}), tracking.ErrInvalidVisitor)
	})
}

func TestStore_DeleteInactive(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	stale := newVisitor("a", "10.0.0.1", now.Add(-10*time.Hour))
	fresh := newVisitor("b", "10.0.0.1", now.Add(-time.Hour))
	require.NoError(t, store.Create(ctx, stale))
	require.NoError(t, store.Create(ctx, fresh))

	n, err := store.DeleteInactive(ctx, now.Add(-5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindByID(ctx, stale.ID)
	assert.ErrorIs(t, err, tracking.ErrVisitorNotFound)
	_, err = store.FindByID(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestStore_Policy(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BanAddress(ctx, "10.0.0.2"))
	require.NoError(t, store.BanAddress(ctx, "10.0.0.1"))
	require.NoError(t, store.BanAddress(ctx, "10.0.0.1"))
	require.NoError(t, store.ExcludeAgent(ctx, "Googlebot"))
	require.NoError(t, store.ExcludeAgent(ctx, "curl"))
	require.NoError(t, store.ExcludeAgent(ctx, "Googlebot"))

	bans, err := store.ListBannedAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, bans)

	agents, err := store.ListExcludedAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Googlebot", "curl"}, agents)

	require.NoError(t, store.UnbanAddress(ctx, "10.0.0.2"))
	require.NoError(t, store.IncludeAgent(ctx, "Googlebot"))

	bans, err = store.ListBannedAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, bans)
	agents, err = store.ListExcludedAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, agents)
}

func TestStore_WithTracker(t *testing.T) {
	t.Parallel()

	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.BanAddress(ctx, "10.6.6.6"))

	cache := tracking.NewExclusionCache(store, time.Hour)
	assert.True(t, cache.IsBanned(ctx, "10.6.6.6"))
	assert.False(t, cache.IsBanned(ctx, "10.0.0.1"))
}
