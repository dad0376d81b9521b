package tracking

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/useragent"
)

type banSnapshot struct {
	addrs    map[string]struct{}
	prefixes []netip.Prefix
	loadedAt time.Time
}

func (s *banSnapshot) contains(address string) bool {
	if s == nil || address == "" {
		return false
	}
	if _, ok := s.addrs[address]; ok {
		return true
	}
	if len(s.prefixes) == 0 {
		return false
	}
	ip, err := netip.ParseAddr(address)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range s.prefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

type agentSnapshot struct {
	patterns []string
	loadedAt time.Time
}

func (s *agentSnapshot) matches(ua string) bool {
	if s == nil {
		return false
	}
	for _, p := range s.patterns {
		if strings.Contains(ua, p) {
			return true
		}
	}
	return false
}

// ExclusionCache answers ban and user agent exclusion queries from snapshots
// of the policy records. Each snapshot is reloaded by the first caller that
// finds it older than the TTL; other callers keep reading the current one.
// A failed reload keeps the previous snapshot and is retried on the next call.
type ExclusionCache struct {
	source     PolicyReader
	ttl        time.Duration
	clock      quartz.Clock
	logger     *slog.Logger
	metrics    *Metrics
	detectBots bool

	bans   atomic.Pointer[banSnapshot]
	agents atomic.Pointer[agentSnapshot]
}

// ExclusionOption configures an ExclusionCache.
type ExclusionOption func(*ExclusionCache)

// WithExclusionClock sets the clock used for TTL checks.
func WithExclusionClock(c quartz.Clock) ExclusionOption {
	return func(e *ExclusionCache) { e.clock = c }
}

// WithExclusionLogger sets the logger.
func WithExclusionLogger(l *slog.Logger) ExclusionOption {
	return func(e *ExclusionCache) { e.logger = l }
}

// WithExclusionMetrics sets the metrics sink.
func WithExclusionMetrics(m *Metrics) ExclusionOption {
	return func(e *ExclusionCache) { e.metrics = m }
}

// WithBotDetection also excludes agents recognized by useragent.IsBot.
func WithBotDetection(enabled bool) ExclusionOption {
	return func(e *ExclusionCache) { e.detectBots = enabled }
}

// NewExclusionCache returns a cache over source with the given TTL.
// Non-positive TTLs reload on every call.
func NewExclusionCache(source PolicyReader, ttl time.Duration, opts ...ExclusionOption) *ExclusionCache {
	c := &ExclusionCache{
		source: source,
		ttl:    ttl,
		clock:  quartz.NewReal(),
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsBanned reports whether address is in the ban set.
func (c *ExclusionCache) IsBanned(ctx context.Context, address string) bool {
	return c.banSet(ctx).contains(address)
}

// IsExcluded reports whether the sanitized user agent contains any
// exclusion pattern or, with bot detection on, looks like a crawler.
func (c *ExclusionCache) IsExcluded(ctx context.Context, userAgent string) bool {
	ua := useragent.Sanitize(userAgent)
	if c.agentSet(ctx).matches(ua) {
		return true
	}
	return c.detectBots && useragent.IsBot(ua)
}

// Refresh reloads both snapshots regardless of their age.
func (c *ExclusionCache) Refresh(ctx context.Context) error {
	var errs []error
	if bans, err := c.loadBans(ctx); err != nil {
		errs = append(errs, err)
	} else {
		c.bans.Store(bans)
	}
	if agents, err := c.loadAgents(ctx); err != nil {
		errs = append(errs, err)
	} else {
		c.agents.Store(agents)
	}
	return errors.Join(errs...)
}

func (c *ExclusionCache) fresh(loadedAt time.Time) bool {
	return c.ttl > 0 && c.clock.Since(loadedAt) < c.ttl
}

func (c *ExclusionCache) banSet(ctx context.Context) *banSnapshot {
	cur := c.bans.Load()
	if cur != nil && c.fresh(cur.loadedAt) {
		return cur
	}

	next, err := c.loadBans(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to reload banned addresses, keeping previous snapshot",
			logger.Component("exclusion_cache"),
			logger.Error(err),
		)
		return cur
	}
	c.bans.Store(next)
	return next
}

func (c *ExclusionCache) agentSet(ctx context.Context) *agentSnapshot {
	cur := c.agents.Load()
	if cur != nil && c.fresh(cur.loadedAt) {
		return cur
	}

	next, err := c.loadAgents(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to reload excluded user agents, keeping previous snapshot",
			logger.Component("exclusion_cache"),
			logger.Error(err),
		)
		return cur
	}
	c.agents.Store(next)
	return next
}

func (c *ExclusionCache) loadBans(ctx context.Context) (*banSnapshot, error) {
	entries, err := c.source.ListBannedAddresses(ctx)
	if err != nil {
		return nil, err
	}

	s := &banSnapshot{addrs: make(map[string]struct{}, len(entries)), loadedAt: c.clock.Now()}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			if p, err := netip.ParsePrefix(e); err == nil {
				s.prefixes = append(s.prefixes, p.Masked())
				continue
			}
		}
		if ip, err := netip.ParseAddr(e); err == nil {
			e = ip.Unmap().String()
		}
		s.addrs[e] = struct{}{}
	}

	c.metrics.reloaded("bans")
	c.logger.InfoContext(ctx, "banned addresses reloaded",
		logger.Component("exclusion_cache"),
		logger.Count(int64(len(s.addrs)+len(s.prefixes))),
	)
	return s, nil
}

func (c *ExclusionCache) loadAgents(ctx context.Context) (*agentSnapshot, error) {
	patterns, err := c.source.ListExcludedAgents(ctx)
	if err != nil {
		return nil, err
	}

	s := &agentSnapshot{patterns: make([]string, 0, len(patterns)), loadedAt: c.clock.Now()}
	for _, p := range patterns {
		if p != "" {
			s.patterns = append(s.patterns, p)
		}
	}

	c.metrics.reloaded("agents")
	c.logger.InfoContext(ctx, "excluded user agents reloaded",
		logger.Component("exclusion_cache"),
		logger.Count(int64(len(s.patterns))),
	)
	return s, nil
}
