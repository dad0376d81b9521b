package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/cookie"
	"github.com/dmitrymomot/visitrack/pkg/session"
)

func setupRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return session.NewRedisStore(client, "test:"), srv
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	store, srv := setupRedisStore(t)
	ctx := context.Background()

	userID := uuid.New()
	sess := session.NewSession("token-1", &userID, "fp", time.Hour)
	sess.Set("visitor_id", "v-1")
	require.NoError(t, store.Create(ctx, sess))
	assert.True(t, srv.Exists("test:session:token-1"))

	t.Run("get round trips data", func(t *testing.T) {
		got, err := store.Get(ctx, "token-1")
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		require.NotNil(t, got.UserID)
		assert.Equal(t, userID, *got.UserID)
		v, ok := got.GetString("visitor_id")
		assert.True(t, ok)
		assert.Equal(t, "v-1", v)
	})

	t.Run("update existing", func(t *testing.T) {
		sess.Set("visitor_id", "v-2")
		require.NoError(t, store.Update(ctx, sess))
		got, err := store.Get(ctx, "token-1")
		require.NoError(t, err)
		v, _ := got.GetString("visitor_id")
		assert.Equal(t, "v-2", v)
	})

	t.Run("update missing", func(t *testing.T) {
		missing := session.NewSession("token-missing", nil, "", time.Hour)
		assert.ErrorIs(t, store.Update(ctx, missing), session.ErrSessionNotFound)
	})

	t.Run("key expires with session", func(t *testing.T) {
		short := session.NewSession("token-short", nil, "", time.Minute)
		require.NoError(t, store.Create(ctx, short))
		srv.FastForward(2 * time.Minute)
		_, err := store.Get(ctx, "token-short")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "token-1"))
		_, err := store.Get(ctx, "token-1")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		assert.NoError(t, store.DeleteExpired(ctx))
	})

	t.Run("invalid", func(t *testing.T) {
		assert.ErrorIs(t, store.Create(ctx, &session.Session{}), session.ErrInvalidSession)
	})
}

func TestRedisStore_WithManager(t *testing.T) {
	t.Parallel()

	store, _ := setupRedisStore(t)
	cookieMgr, err := cookie.New([]string{"test-secret-key-that-is-long-enough"})
	require.NoError(t, err)
	manager := session.New(session.WithStore(store), session.WithCookieManager(cookieMgr))
	ctx := context.Background()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := manager.Ensure(ctx, w, r)
	require.NoError(t, err)
	require.NoError(t, manager.Put(ctx, sess.Token, "visitor_id", "v-9"))

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	v, _ := got.GetString("visitor_id")
	assert.Equal(t, "v-9", v)

	// A returning request extends the stored session and keeps its data.
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		r2.AddCookie(c)
	}
	again, err := manager.Ensure(ctx, httptest.NewRecorder(), r2)
	require.NoError(t, err)
	assert.Equal(t, sess.Token, again.Token)

	got, err = store.Get(ctx, sess.Token)
	require.NoError(t, err)
	v, _ = got.GetString("visitor_id")
	assert.Equal(t, "v-9", v)
	assert.True(t, got.LastActivityAt.After(sess.LastActivityAt) || got.LastActivityAt.Equal(sess.LastActivityAt))
}
