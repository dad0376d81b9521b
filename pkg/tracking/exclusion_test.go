package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

func TestExclusionCache_IsBanned(t *testing.T) {
	t.Parallel()

	src := &policySource{bans: []string{"203.0.113.7", "198.51.100.0/24", "::ffff:192.0.2.1", " ", "2001:db8::/32"}}
	cache := tracking.NewExclusionCache(src, time.Hour)
	ctx := context.Background()

	tests := []struct {
		address string
		banned  bool
	}{
		{"203.0.113.7", true},
		{"203.0.113.8", false},
		{"198.51.100.42", true},
		{"198.51.101.1", false},
		{"192.0.2.1", true},
		{"2001:db8::1", true},
		{"2001:db9::1", false},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Equal(t, tt.banned, cache.IsBanned(ctx, tt.address))
		})
	}
}

func TestExclusionCache_IsExcluded(t *testing.T) {
	t.Parallel()

	src := &policySource{agents: []string{"Googlebot", "HealthCheck", ""}}
	ctx := context.Background()

	t.Run("substring match is case sensitive", func(t *testing.T) {
		cache := tracking.NewExclusionCache(src, time.Hour)
		assert.True(t, cache.IsExcluded(ctx, "Mozilla/5.0 (compatible; Googlebot/2.1)"))
		assert.False(t, cache.IsExcluded(ctx, "Mozilla/5.0 (compatible; googlebot/2.1)"))
		assert.True(t, cache.IsExcluded(ctx, "ELB-HealthCheck/2.0"))
		assert.False(t, cache.IsExcluded(ctx, "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0"))
	})

	t.Run("invalid bytes are dropped before matching", func(t *testing.T) {
		cache := tracking.NewExclusionCache(src, time.Hour)
		assert.True(t, cache.IsExcluded(ctx, "Google\xffbot/2.1"))
		assert.False(t, cache.IsExcluded(ctx, "\xfe\xff"))
	})

	t.Run("bot detection is opt in", func(t *testing.T) {
		plain := tracking.NewExclusionCache(src, time.Hour)
		withBots := tracking.NewExclusionCache(src, time.Hour, tracking.WithBotDetection(true))

		ua := "curl/8.5.0"
		assert.False(t, plain.IsExcluded(ctx, ua))
		assert.True(t, withBots.IsExcluded(ctx, ua))
		assert.False(t, withBots.IsExcluded(ctx, "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) Safari/605.1.15"))
	})
}

func TestExclusionCache_TTL(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	src := &policySource{bans: []string{"10.0.0.1"}}
	cache := tracking.NewExclusionCache(src, time.Hour, tracking.WithExclusionClock(clock))
	ctx := context.Background()

	assert.True(t, cache.IsBanned(ctx, "10.0.0.1"))
	assert.False(t, cache.IsExcluded(ctx, "curl/8"))

	src.set([]string{"10.0.0.2"}, []string{"curl"}, false)

	clock.Advance(59 * time.Minute)
	assert.True(t, cache.IsBanned(ctx, "10.0.0.1"), "stale snapshot served within TTL")
	assert.False(t, cache.IsExcluded(ctx, "curl/8"))
	bans, agents := src.loads()
	assert.Equal(t, 1, bans)
	assert.Equal(t, 1, agents)

	clock.Advance(time.Minute)
	assert.False(t, cache.IsBanned(ctx, "10.0.0.1"))
	assert.True(t, cache.IsBanned(ctx, "10.0.0.2"))
	assert.True(t, cache.IsExcluded(ctx, "curl/8"))
	bans, agents = src.loads()
	assert.Equal(t, 2, bans)
	assert.Equal(t, 2, agents)
}

func TestExclusionCache_Refresh(t *testing.T) {
	t.Parallel()

	src := &policySource{bans: []string{"10.0.0.1"}, agents: []string{"Googlebot"}}
	reg := prometheus.NewRegistry()
	metrics := tracking.NewMetrics(reg)
	cache := tracking.NewExclusionCache(src, time.Hour, tracking.WithExclusionMetrics(metrics))
	ctx := context.Background()

	require.NoError(t, cache.Refresh(ctx))
	first := []bool{cache.IsBanned(ctx, "10.0.0.1"), cache.IsBanned(ctx, "10.0.0.2"), cache.IsExcluded(ctx, "Googlebot/2.1")}

	require.NoError(t, cache.Refresh(ctx))
	second := []bool{cache.IsBanned(ctx, "10.0.0.1"), cache.IsBanned(ctx, "10.0.0.2"), cache.IsExcluded(ctx, "Googlebot/2.1")}

	assert.Equal(t, []bool{true, false, true}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Reloads("bans")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Reloads("agents")))

	src.set(nil, []string{"curl"}, false)
	require.NoError(t, cache.Refresh(ctx))
	assert.False(t, cache.IsBanned(ctx, "10.0.0.1"), "refresh ignores TTL")
	assert.True(t, cache.IsExcluded(ctx, "curl/8"))
}

func TestExclusionCache_LoadFailure(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	src := &policySource{fail: true}
	cache := tracking.NewExclusionCache(src, time.Hour, tracking.WithExclusionClock(clock))
	ctx := context.Background()

	t.Run("fails open before first load", func(t *testing.T) {
		assert.False(t, cache.IsBanned(ctx, "10.0.0.1"))
		assert.False(t, cache.IsExcluded(ctx, "Googlebot"))
		assert.ErrorIs(t, cache.Refresh(ctx), errStoreDown)
	})

	t.Run("retries on next call", func(t *testing.T) {
		src.set([]string{"10.0.0.1"}, []string{"Googlebot"}, false)
		assert.True(t, cache.IsBanned(ctx, "10.0.0.1"))
		assert.True(t, cache.IsExcluded(ctx, "Googlebot"))
	})

	t.Run("keeps previous snapshot", func(t *testing.T) {
		src.set(nil, nil, true)
		clock.Advance(2 * time.Hour)
		assert.True(t, cache.IsBanned(ctx, "10.0.0.1"))
		assert.True(t, cache.IsExcluded(ctx, "Googlebot"))
	})
}
