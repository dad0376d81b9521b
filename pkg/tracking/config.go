package tracking

import "time"

// Config holds tracker configuration.
type Config struct {
	// IgnorePrefixes are extra path prefixes that are never tracked.
	IgnorePrefixes []string `env:"TRACKING_IGNORE_PREFIXES" envSeparator:","`
	// StaticPrefix is the static asset root, never tracked.
	StaticPrefix string `env:"TRACKING_STATIC_PREFIX" envDefault:"/static/"`
	// RefreshPath reloads the exclusion cache; never tracked.
	RefreshPath string `env:"TRACKING_REFRESH_PATH" envDefault:"/_tracking/refresh"`
	// CleanupPath runs a sweep; never tracked.
	CleanupPath string `env:"TRACKING_CLEANUP_PATH" envDefault:"/_tracking/cleanup"`

	// CleanupTimeout in hours after which inactive visitors are deleted (0 disables cleanup).
	CleanupTimeout int `env:"TRACKING_CLEANUP_TIMEOUT" envDefault:"0"`
	// SweepProbability is the chance that a request triggers a sweep.
	SweepProbability float64 `env:"TRACKING_SWEEP_PROBABILITY" envDefault:"0.01"`
	// SweepSchedule is an optional cron expression for wall-clock sweeps.
	SweepSchedule string `env:"TRACKING_SWEEP_SCHEDULE" envDefault:""`

	// CacheTTL is how long ban and exclusion snapshots are served before a reload.
	CacheTTL time.Duration `env:"TRACKING_CACHE_TTL" envDefault:"1h"`
	// ExcludeBots also skips agents recognized as crawlers by useragent.IsBot.
	ExcludeBots bool `env:"TRACKING_EXCLUDE_BOTS" envDefault:"false"`

	// CookieName of the visitor cookie.
	CookieName string `env:"TRACKING_COOKIE_NAME" envDefault:"visitor_id"`
	// CookieMaxAge is used when no session expiry is known (fallback keys).
	CookieMaxAge time.Duration `env:"TRACKING_COOKIE_MAX_AGE" envDefault:"30m"`

	// TrackAJAX also tracks requests sent with X-Requested-With: XMLHttpRequest.
	TrackAJAX bool `env:"TRACKING_TRACK_AJAX" envDefault:"false"`

	// UseGeoIP enables country/city enrichment of new visitors.
	UseGeoIP bool `env:"TRACKING_USE_GEOIP" envDefault:"false"`
}

// DefaultConfig returns default tracker configuration
func DefaultConfig() Config {
	return Config{
		StaticPrefix:     "/static/",
		RefreshPath:      "/_tracking/refresh",
		CleanupPath:      "/_tracking/cleanup",
		SweepProbability: 0.01,
		CacheTTL:         time.Hour,
		CookieName:       "visitor_id",
		CookieMaxAge:     30 * time.Minute,
	}
}

// CleanupAfter returns the inactivity timeout as a duration; zero means disabled.
func (c Config) CleanupAfter() time.Duration {
	if c.CleanupTimeout <= 0 {
		return 0
	}
	return time.Duration(c.CleanupTimeout) * time.Hour
}

// ignoredPrefixes returns every non-empty path prefix excluded from tracking.
func (c Config) ignoredPrefixes() []string {
	all := append([]string{c.StaticPrefix, c.RefreshPath, c.CleanupPath}, c.IgnorePrefixes...)
	out := make([]string, 0, len(all))
	for _, p := range all {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
