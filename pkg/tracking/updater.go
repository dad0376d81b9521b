package tracking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/coder/quartz"

	"github.com/dmitrymomot/visitrack/pkg/geoip"
	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/useragent"
)

// Field limits applied before persisting.
const (
	maxURLLength      = 2048
	maxReferrerLength = 2048
	maxTagLength      = 255
)

// Locator resolves an address to a location. A nil location with a nil
// error means the address is unknown.
type Locator interface {
	Locate(ctx context.Context, address string) (*geoip.Location, error)
}

// Updater records one tracked request on a resolved visitor and persists it.
type Updater struct {
	store    VisitorStore
	sessions SessionSource
	locator  Locator
	clock    quartz.Clock
	logger   *slog.Logger
	metrics  *Metrics
}

// NewUpdater returns an Updater. sessions, locator and metrics may be nil.
func NewUpdater(store VisitorStore, sessions SessionSource, locator Locator, clock quartz.Clock, log *slog.Logger, m *Metrics) *Updater {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Updater{store: store, sessions: sessions, locator: locator, clock: clock, logger: log, metrics: m}
}

// Apply updates the activity window of res.Visitor from r and saves it.
// On a store failure the error is logged and returned; the caller must not
// attach the visitor to the request. A duplicate created by a concurrent
// first visit is logged at debug level only.
func (u *Updater) Apply(ctx context.Context, res *Resolution, r *http.Request) error {
	v := res.Visitor
	now := u.clock.Now()

	v.UserID = res.Session.UserID
	v.UserAgent = useragent.Normalize(r.UserAgent())
	v.CurrentURL = useragent.Truncate(r.URL.Path, maxURLLength)
	if res.Address != "" {
		v.Address = res.Address
	}

	if res.Created {
		v.Referrer = useragent.Truncate(useragent.Sanitize(r.Referer()), maxReferrerLength)
		v.PageViews = 0
		v.SessionStart = now
		u.locate(ctx, v)
	}
	v.PageViews++
	v.LastActivity = now

	var err error
	if res.Created {
		err = u.store.Create(ctx, v)
	} else {
		err = u.store.Save(ctx, v)
	}
	if err != nil {
		u.logFailure(ctx, res, err)
		return err
	}

	if res.Created {
		u.metrics.visitorCreated()
	}

	if u.sessions != nil && !res.Session.Fallback && res.Session.VisitorID != v.ID {
		if err := u.sessions.Bind(ctx, res.Session, v.ID); err != nil {
			u.logger.WarnContext(ctx, "failed to bind visitor to session",
				logger.Component("updater"),
				logger.VisitorID(v.ID),
				logger.Error(err),
			)
		} else {
			res.Session.VisitorID = v.ID
		}
	}
	return nil
}

func (u *Updater) locate(ctx context.Context, v *Visitor) {
	if u.locator == nil || v.Address == "" {
		return
	}
	loc, err := u.locator.Locate(ctx, v.Address)
	if err != nil {
		u.logger.DebugContext(ctx, "geolocation unavailable",
			logger.Component("updater"),
			logger.IPAddress(v.Address),
			logger.Error(err),
		)
		return
	}
	if loc != nil {
		v.Country = loc.CountryCode
		v.City = loc.City
	}
}

func (u *Updater) logFailure(ctx context.Context, res *Resolution, err error) {
	v := res.Visitor
	if errors.Is(err, ErrDuplicateVisitor) {
		u.logger.DebugContext(ctx, "visitor already recorded by a concurrent request",
			logger.Component("updater"),
			logger.IPAddress(v.Address),
		)
		return
	}
	u.logger.ErrorContext(ctx, "failed to update visitor",
		logger.Component("updater"),
		logger.Error(err),
		logger.Group("visitor",
			logger.VisitorID(v.ID),
			slog.String("session_key", v.SessionKey),
			logger.IPAddress(v.Address),
			logger.UserID(v.UserID),
			slog.String("user_agent", v.UserAgent),
			slog.String("current_url", v.CurrentURL),
			slog.Int("page_views", v.PageViews),
			slog.Bool("new", res.Created),
		),
		logger.Stack(debug.Stack()),
	)
}
