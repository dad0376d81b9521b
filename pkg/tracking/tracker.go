package tracking

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/dmitrymomot/visitrack/pkg/clientip"
	"github.com/dmitrymomot/visitrack/pkg/cookie"
	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/useragent"
)

// Tracker wires the exclusion cache, resolver, updater, cookie binder and
// sweeper into an HTTP middleware.
type Tracker struct {
	config   Config
	store    Repository
	cookies  *cookie.Manager
	sessions SessionSource
	locator  Locator
	clock    quartz.Clock
	logger   *slog.Logger
	metrics  *Metrics
	address  func(*http.Request) string
	random   func() float64

	ignored    []string
	exclusions *ExclusionCache
	resolver   *Resolver
	updater    *Updater
	binder     *CookieBinder
	sweeper    *Sweeper
}

// New returns a Tracker over store.
func New(store Repository, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrNoRepository
	}

	t := &Tracker{
		config:  DefaultConfig(),
		store:   store,
		clock:   quartz.NewReal(),
		logger:  logger.Discard(),
		address: clientip.FromRequest,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cookies == nil {
		return nil, ErrNoCookieManager
	}
	if t.config.CookieName == "" {
		t.config.CookieName = DefaultConfig().CookieName
	}
	if t.config.CookieMaxAge <= 0 {
		t.config.CookieMaxAge = DefaultConfig().CookieMaxAge
	}

	var locator Locator
	if t.config.UseGeoIP {
		locator = t.locator
	}

	t.ignored = t.config.ignoredPrefixes()
	t.exclusions = NewExclusionCache(store, t.config.CacheTTL,
		WithExclusionClock(t.clock),
		WithExclusionLogger(t.logger),
		WithExclusionMetrics(t.metrics),
		WithBotDetection(t.config.ExcludeBots),
	)
	t.resolver = NewResolver(store, t.sessions, t.config.CookieName, t.logger)
	t.updater = NewUpdater(store, t.sessions, locator, t.clock, t.logger, t.metrics)
	t.binder = NewCookieBinder(t.cookies, t.config.CookieName)

	sweepOpts := []SweeperOption{
		WithSweepProbability(t.config.SweepProbability),
		WithSweepClock(t.clock),
		WithSweepLogger(t.logger),
		WithSweepMetrics(t.metrics),
	}
	if t.random != nil {
		sweepOpts = append(sweepOpts, WithSweepRandom(t.random))
	}
	t.sweeper = NewSweeper(store, t.config.CleanupAfter(), sweepOpts...)

	return t, nil
}

// Exclusions returns the tracker's exclusion cache.
func (t *Tracker) Exclusions() *ExclusionCache { return t.exclusions }

// Sweeper returns the tracker's sweeper.
func (t *Tracker) Sweeper() *Sweeper { return t.sweeper }

// Config returns the effective configuration.
func (t *Tracker) Config() Config { return t.config }

// Start begins scheduled sweeps when a schedule is configured.
func (t *Tracker) Start() error {
	return t.sweeper.Start(t.config.SweepSchedule)
}

// Shutdown stops scheduled sweeps and waits for a running one.
func (t *Tracker) Shutdown(ctx context.Context) error {
	return t.sweeper.Stop(ctx)
}

// Middleware tracks every request passing through it. Requests from banned
// addresses get 404 Not Found and never reach next. Tracking failures never
// affect the response.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		address := t.address(r)

		if t.exclusions.IsBanned(ctx, address) {
			t.metrics.request(OutcomeBanned)
			t.logger.DebugContext(ctx, "request from banned address rejected",
				logger.Component("tracker"),
				logger.IPAddress(address),
			)
			http.NotFound(w, r)
			return
		}

		t.sweeper.MaybeSweep(ctx)

		switch {
		case t.isIgnored(r.URL.Path):
			t.metrics.request(OutcomeIgnored)
		case !t.config.TrackAJAX && isAJAX(r):
			t.metrics.request(OutcomeIgnored)
		case t.exclusions.IsExcluded(ctx, r.UserAgent()):
			t.metrics.request(OutcomeExcluded)
			t.logExcluded(r)
		default:
			r = t.track(w, r, address)
		}

		next.ServeHTTP(w, r)
	})
}

func (t *Tracker) logExcluded(r *http.Request) {
	attrs := []any{logger.Component("tracker"), logger.Path(r.URL.Path)}
	if name := useragent.BotName(r.UserAgent()); name != "" {
		attrs = append(attrs, slog.String("bot", name))
	}
	t.logger.DebugContext(r.Context(), "excluded user agent not tracked", attrs...)
}

// isAJAX reports whether r was sent by a script rather than a page load.
func isAJAX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

func (t *Tracker) track(w http.ResponseWriter, r *http.Request, address string) *http.Request {
	ctx := r.Context()

	res, err := t.resolver.Resolve(ctx, w, r, address)
	if err != nil {
		t.logger.WarnContext(ctx, "visitor lookup failed, request not tracked",
			logger.Component("tracker"),
			logger.IPAddress(address),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
	} else {
		err = t.updater.Apply(ctx, res, r)
	}

	if err != nil {
		t.metrics.request(OutcomeSkipped)
		t.binder.Bind(w, res.Session.VisitorID, t.maxAge(res.Session))
		return r
	}

	t.metrics.request(OutcomeTracked)
	t.binder.Bind(w, res.Visitor.ID, t.maxAge(res.Session))
	return r.WithContext(WithVisitor(ctx, res.Visitor))
}

func (t *Tracker) maxAge(info SessionInfo) time.Duration {
	if info.Fallback || info.MaxAge <= 0 {
		return t.config.CookieMaxAge
	}
	return info.MaxAge
}

func (t *Tracker) isIgnored(path string) bool {
	for _, p := range t.ignored {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RefreshHandler reloads the exclusion cache.
func (t *Tracker) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := t.exclusions.Refresh(r.Context()); err != nil {
			t.logger.ErrorContext(r.Context(), "exclusion refresh failed",
				logger.Component("tracker"),
				logger.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CleanupHandler runs a sweep and reports the number of deleted visitors.
func (t *Tracker) CleanupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := t.sweeper.Sweep(r.Context())
		if err != nil {
			t.logger.ErrorContext(r.Context(), "cleanup failed",
				logger.Component("tracker"),
				logger.Error(err),
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"deleted": n,
			"enabled": t.sweeper.Enabled(),
		})
	}
}
