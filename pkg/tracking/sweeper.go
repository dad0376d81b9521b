package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/visitrack/pkg/logger"
)

const sweepTimeout = time.Minute

// Sweeper deletes visitors inactive for longer than the cleanup timeout.
// Sweeps are triggered by requests with a fixed probability, by an optional
// cron schedule, or directly. At most one triggered sweep runs at a time.
type Sweeper struct {
	store       VisitorStore
	timeout     time.Duration
	probability float64
	random      func() float64
	clock       quartz.Clock
	logger      *slog.Logger
	metrics     *Metrics

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	cron    *cron.Cron
	stopped bool
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepProbability sets the per-request chance of a sweep.
func WithSweepProbability(p float64) SweeperOption {
	return func(s *Sweeper) { s.probability = p }
}

// WithSweepRandom replaces the random source used for the per-request draw.
func WithSweepRandom(fn func() float64) SweeperOption {
	return func(s *Sweeper) { s.random = fn }
}

// WithSweepClock sets the clock used to compute the cutoff.
func WithSweepClock(c quartz.Clock) SweeperOption {
	return func(s *Sweeper) { s.clock = c }
}

// WithSweepLogger sets the logger.
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = l }
}

// WithSweepMetrics sets the metrics sink.
func WithSweepMetrics(m *Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper returns a Sweeper over store. A zero timeout disables cleanup.
func NewSweeper(store VisitorStore, timeout time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:       store,
		timeout:     timeout,
		probability: DefaultConfig().SweepProbability,
		random:      rand.Float64,
		clock:       quartz.NewReal(),
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a cleanup timeout is configured.
func (s *Sweeper) Enabled() bool {
	return s.timeout > 0
}

// Sweep deletes every visitor whose last activity is older than the timeout
// and returns how many were removed. It is a no-op when disabled.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}

	start := s.clock.Now()
	cutoff := start.Add(-s.timeout)
	n, err := s.store.DeleteInactive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete inactive visitors: %w", err)
	}

	s.metrics.sweptVisitors(n)
	s.logger.InfoContext(ctx, "inactive visitors removed",
		logger.Component("sweeper"),
		logger.Count(n),
		slog.Time("cutoff", cutoff),
		logger.Duration(s.clock.Since(start)),
	)
	return n, nil
}

// MaybeSweep draws against the sweep probability and, on success, starts a
// sweep in the background unless one is already running. It reports whether
// a sweep was started. The sweep is detached from ctx cancellation.
func (s *Sweeper) MaybeSweep(ctx context.Context) bool {
	if !s.Enabled() || s.probability <= 0 {
		return false
	}
	if s.probability < 1 && s.random() >= s.probability {
		return false
	}
	return s.trigger(context.WithoutCancel(ctx))
}

func (s *Sweeper) trigger(ctx context.Context) bool {
	s.mu.Lock()
	if s.stopped || !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()

		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep failed",
				logger.Component("sweeper"),
				logger.Error(err),
			)
		}
	}()
	return true
}

// Start runs sweeps on the given cron schedule until Stop is called.
// An empty schedule does nothing, and so does a stopped sweeper.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" || !s.Enabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil || s.stopped {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { s.trigger(context.Background()) }); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("scheduled sweeps started",
		logger.Component("sweeper"),
		slog.String("schedule", schedule),
	)
	return nil
}

// Stop halts the schedule, refuses further sweeps and waits for a running
// sweep to finish or ctx to expire. It is safe to call more than once.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	// A scheduled job may be inside trigger; it sees stopped and returns.
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
