package tracking

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/visitrack/pkg/logger"
	"github.com/dmitrymomot/visitrack/pkg/useragent"
)

// Query parameters carrying a campaign tag, highest priority first.
var trackingTagParams = []string{"tid", "fb_source"}

// Resolver maps a request to its Visitor: first by the visitor cookie, then
// by the (session key, address) pair. Requests without a usable session get
// the fallback key address + ":" + user agent.
type Resolver struct {
	store      VisitorStore
	sessions   SessionSource
	cookieName string
	logger     *slog.Logger
}

// NewResolver returns a Resolver. sessions may be nil.
func NewResolver(store VisitorStore, sessions SessionSource, cookieName string, log *slog.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{store: store, sessions: sessions, cookieName: cookieName, logger: log}
}

// Resolve returns the visitor for r. A lookup failure other than
// ErrVisitorNotFound is returned together with the session information
// already obtained, so callers can still refresh the visitor cookie.
func (rv *Resolver) Resolve(ctx context.Context, w http.ResponseWriter, r *http.Request, address string) (*Resolution, error) {
	res := &Resolution{
		Address: address,
		Session: rv.session(ctx, w, r, address),
	}

	v, err := rv.lookup(ctx, r, res.Session.Key, address)
	switch {
	case err == nil:
		res.Visitor = v
	case errors.Is(err, ErrVisitorNotFound):
		res.Visitor = NewVisitor(res.Session.Key, address, TrackingTag(r.URL.Query()))
		res.Created = true
	default:
		return res, err
	}
	return res, nil
}

func (rv *Resolver) session(ctx context.Context, w http.ResponseWriter, r *http.Request, address string) SessionInfo {
	if rv.sessions != nil {
		info, err := rv.sessions.Session(ctx, w, r)
		if err == nil && info.Key != "" {
			return info
		}
		if err != nil && !errors.Is(err, ErrNoSession) {
			rv.logger.WarnContext(ctx, "session unavailable, using fallback key",
				logger.Component("resolver"),
				logger.Error(err),
			)
		}
	}
	return SessionInfo{
		Key:      FallbackKey(address, r.UserAgent()),
		Fallback: true,
	}
}

func (rv *Resolver) lookup(ctx context.Context, r *http.Request, key, address string) (*Visitor, error) {
	if c, err := r.Cookie(rv.cookieName); err == nil && c.Value != "" {
		v, err := rv.store.FindByID(ctx, c.Value)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrVisitorNotFound) {
			return nil, err
		}
	}
	return rv.store.FindBySession(ctx, key, address)
}

// FallbackKey is the session key used when no session is available.
func FallbackKey(address, userAgent string) string {
	return address + ":" + useragent.Normalize(userAgent)
}

// TrackingTag returns the campaign tag carried by the query, if any.
func TrackingTag(q url.Values) string {
	for _, p := range trackingTagParams {
		if v := q.Get(p); v != "" {
			return useragent.Truncate(v, maxTagLength)
		}
	}
	return ""
}
