package tracking_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/visitrack/pkg/geoip"
	"github.com/dmitrymomot/visitrack/pkg/tracking"
)

type locatorFunc func(ctx context.Context, address string) (*geoip.Location, error)

func (f locatorFunc) Locate(ctx context.Context, address string) (*geoip.Location, error) {
	return f(ctx, address)
}

func TestUpdater_NewVisitor(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := tracking.NewMemoryStore()
	sessions := &staticSessions{}
	metrics := tracking.NewMetrics(prometheus.NewRegistry())
	locator := locatorFunc(func(ctx context.Context, address string) (*geoip.Location, error) {
		return &geoip.Location{CountryCode: "NL", City: "Amsterdam"}, nil
	})
	u := tracking.NewUpdater(store, sessions, locator, clock, nil, metrics)

	r := newRequest("/docs/start?tid=x", firefox)
	r.Header.Set("Referer", "https://search.example/?q=visitrack")
	res := &tracking.Resolution{
		Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", "x"),
		Created: true,
		Address: "10.0.0.1",
		Session: tracking.SessionInfo{Key: "sess-1", UserID: "user-7"},
	}
	res.Visitor.PageViews = 41

	require.NoError(t, u.Apply(context.Background(), res, r))

	got, err := store.FindByID(context.Background(), res.Visitor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PageViews)
	assert.Equal(t, clock.Now(), got.SessionStart)
	assert.Equal(t, got.SessionStart, got.LastActivity)
	assert.Equal(t, "https://search.example/?q=visitrack", got.Referrer)
	assert.Equal(t, "/docs/start", got.CurrentURL)
	assert.Equal(t, firefox, got.UserAgent)
	assert.Equal(t, "user-7", got.UserID)
	assert.Equal(t, "NL", got.Country)
	assert.Equal(t, "Amsterdam", got.City)

	assert.Equal(t, res.Visitor.ID, sessions.bound["sess-1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VisitorsCreated()))
}

func TestUpdater_ExistingVisitor(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	store := tracking.NewMemoryStore()
	ctx := context.Background()
	locateCalls := 0
	locator := locatorFunc(func(ctx context.Context, address string) (*geoip.Location, error) {
		locateCalls++
		return nil, nil
	})
	u := tracking.NewUpdater(store, nil, locator, clock, nil, nil)

	first := &tracking.Resolution{
		Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", ""),
		Created: true,
		Address: "10.0.0.1",
		Session: tracking.SessionInfo{Key: "sess-1"},
	}
	landing := newRequest("/", firefox)
	landing.Header.Set("Referer", "https://origin.example/")
	require.NoError(t, u.Apply(ctx, first, landing))
	start := clock.Now()

	clock.Advance(5 * time.Minute)

	v, err := store.FindByID(ctx, first.Visitor.ID)
	require.NoError(t, err)
	next := newRequest("/about", firefox)
	next.Header.Set("Referer", "https://elsewhere.example/")
	second := &tracking.Resolution{Visitor: v, Address: "10.0.0.2", Session: tracking.SessionInfo{Key: "sess-1"}}
	require.NoError(t, u.Apply(ctx, second, next))

	got, err := store.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PageViews)
	assert.Equal(t, start, got.SessionStart)
	assert.Equal(t, start.Add(5*time.Minute), got.LastActivity)
	assert.Equal(t, 5*time.Minute, got.TimeOnSite())
	assert.Equal(t, "https://origin.example/", got.Referrer, "referrer kept from session start")
	assert.Equal(t, "/about", got.CurrentURL)
	assert.Equal(t, "10.0.0.2", got.Address)
	assert.Equal(t, 1, locateCalls, "only new visitors are located")
}

func TestUpdater_Failures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("duplicate first visit is skipped", func(t *testing.T) {
		store := tracking.NewMemoryStore()
		require.NoError(t, store.Create(ctx, tracking.NewVisitor("sess-1", "10.0.0.1", "")))
		sessions := &staticSessions{}
		u := tracking.NewUpdater(store, sessions, nil, quartz.NewMock(t), nil, nil)

		res := &tracking.Resolution{
			Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", ""),
			Created: true,
			Address: "10.0.0.1",
			Session: tracking.SessionInfo{Key: "sess-1"},
		}
		err := u.Apply(ctx, res, newRequest("/", firefox))
		assert.ErrorIs(t, err, tracking.ErrDuplicateVisitor)
		assert.Equal(t, 1, store.Len())
		assert.Empty(t, sessions.bound)
	})

	t.Run("store error is returned", func(t *testing.T) {
		store := &faultyStore{MemoryStore: tracking.NewMemoryStore(), failWrite: true}
		u := tracking.NewUpdater(store, nil, nil, quartz.NewMock(t), nil, nil)

		res := &tracking.Resolution{
			Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", ""),
			Created: true,
			Session: tracking.SessionInfo{Key: "sess-1"},
		}
		assert.ErrorIs(t, u.Apply(ctx, res, newRequest("/", firefox)), errStoreDown)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("geolocation failure leaves location empty", func(t *testing.T) {
		store := tracking.NewMemoryStore()
		locator := locatorFunc(func(ctx context.Context, address string) (*geoip.Location, error) {
			return nil, geoip.ErrUnavailable
		})
		u := tracking.NewUpdater(store, nil, locator, quartz.NewMock(t), nil, nil)

		res := &tracking.Resolution{
			Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", ""),
			Created: true,
			Address: "10.0.0.1",
			Session: tracking.SessionInfo{Key: "sess-1"},
		}
		require.NoError(t, u.Apply(ctx, res, newRequest("/", firefox)))
		assert.Empty(t, res.Visitor.Country)
		assert.Empty(t, res.Visitor.City)
	})

	t.Run("fallback sessions are not bound", func(t *testing.T) {
		store := tracking.NewMemoryStore()
		sessions := &staticSessions{}
		u := tracking.NewUpdater(store, sessions, nil, quartz.NewMock(t), nil, nil)

		res := &tracking.Resolution{
			Visitor: tracking.NewVisitor("10.0.0.1:"+firefox, "10.0.0.1", ""),
			Created: true,
			Address: "10.0.0.1",
			Session: tracking.SessionInfo{Key: "10.0.0.1:" + firefox, Fallback: true},
		}
		require.NoError(t, u.Apply(ctx, res, newRequest("/", firefox)))
		assert.Empty(t, sessions.bound)
	})
}

func TestUpdater_SanitizesUserAgent(t *testing.T) {
	t.Parallel()

	store := tracking.NewMemoryStore()
	u := tracking.NewUpdater(store, nil, nil, quartz.NewMock(t), nil, nil)

	long := "Mozilla/5.0 \xff" + strings.Repeat("x", 400)
	res := &tracking.Resolution{
		Visitor: tracking.NewVisitor("sess-1", "10.0.0.1", ""),
		Created: true,
		Session: tracking.SessionInfo{Key: "sess-1"},
	}
	require.NoError(t, u.Apply(context.Background(), res, newRequest("/", long)))
	assert.Len(t, []rune(res.Visitor.UserAgent), 255)
	assert.NotContains(t, res.Visitor.UserAgent, "\xff")
}
