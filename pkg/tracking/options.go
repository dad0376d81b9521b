package tracking

import (
	"log/slog"
	"net/http"

	"github.com/coder/quartz"

	"github.com/dmitrymomot/visitrack/pkg/cookie"
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(t *Tracker) { t.config = cfg }
}

// WithLogger sets the logger shared by every tracker component.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSessions sets the session source. Without one every request is keyed
// by its fallback key.
func WithSessions(s SessionSource) Option {
	return func(t *Tracker) { t.sessions = s }
}

// WithCookieManager sets the cookie manager used for the visitor cookie.
// Use the same manager as the session transport so both cookies share
// domain and path.
func WithCookieManager(m *cookie.Manager) Option {
	return func(t *Tracker) { t.cookies = m }
}

// WithLocator enables geolocation of new visitors when Config.UseGeoIP is set.
func WithLocator(l Locator) Option {
	return func(t *Tracker) { t.locator = l }
}

// WithClock sets the clock used for activity times, cache TTLs and sweeps.
func WithClock(c quartz.Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithAddressFunc replaces the client address extraction.
func WithAddressFunc(fn func(*http.Request) string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.address = fn
		}
	}
}

// WithRandom replaces the random source for request-driven sweeps.
func WithRandom(fn func() float64) Option {
	return func(t *Tracker) { t.random = fn }
}
