package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/pg"
	"github.com/dmitrymomot/visitrack/pkg/tracking"
	"github.com/dmitrymomot/visitrack/pkg/tracking/pgstore"
)

func setupStore(t *testing.T) *pgstore.Store {
	t.Helper()

	dsn := os.Getenv("PG_CONN_URL")
	if dsn == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{ConnectionString: dsn, RetryAttempts: 1, MigrationsTable: "visitrack_test_migrations"}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pgstore.Migrate(ctx, pool, cfg, logger.Discard()))
	_, err = pool.Exec(ctx, `TRUNCATE visitors, banned_addresses, excluded_agents`)
	require.NoError(t, err)

	return pgstore.New(pool)
}

func TestStore_Visitors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	v := tracking.NewVisitor("sess-1", "10.0.0.1", "promo")
	v.UserAgent = "Mozilla/5.0"
	v.PageViews = 1
	v.SessionStart = now
	v.LastActivity = now
	require.NoError(t, store.Create(ctx, v))

	got, err := store.FindBySession(ctx, "sess-1", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
	assert.Equal(t, "promo", got.TrackingTag)
	assert.True(t, now.Equal(got.SessionStart))

	dup := tracking.NewVisitor("sess-1", "10.0.0.1", "")
	dup.SessionStart, dup.LastActivity = now, now
	assert.ErrorIs(t, store.Create(ctx, dup), tracking.ErrDuplicateVisitor)

	got.PageViews = 2
	got.LastActivity = now.Add(time.Minute)
	require.NoError(t, store.Save(ctx, got))

	again, err := store.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.PageViews)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, tracking.ErrVisitorNotFound)
	assert.ErrorIs(t, store.Save(ctx, dup), tracking.ErrVisitorNotFound)

	old := tracking.NewVisitor("sess-2", "10.0.0.2", "")
	old.SessionStart = now.Add(-10 * time.Hour)
	old.LastActivity = now.Add(-10 * time.Hour)
	require.NoError(t, store.Create(ctx, old))

	n, err := store.DeleteInactive(ctx, now.Add(-5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_Policy(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.BanAddress(ctx, "10.0.0.1"))
	require.NoError(t, store.BanAddress(ctx, "10.0.0.1"))
	require.NoError(t, store.ExcludeAgent(ctx, "Googlebot"))

	bans, err := store.ListBannedAddresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, bans)

	agents, err := store.ListExcludedAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Googlebot"}, agents)

	require.NoError(t, store.UnbanAddress(ctx, "10.0.0.1"))
	require.NoError(t, store.IncludeAgent(ctx, "Googlebot"))

	bans, err = store.ListBannedAddresses(ctx)
	require.NoError(t, err)
	assert.Empty(t, bans)
}
