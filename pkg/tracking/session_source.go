package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrymomot/visitrack/pkg/session"
)

// SessionVisitorKey is the session data key holding the bound visitor id.
const SessionVisitorKey = "visitor_id"

// SessionInfo describes the session a request belongs to.
type SessionInfo struct {
	// Key is the session token, or the fallback key when Fallback is set.
	Key string
	// UserID of the authenticated user, empty for anonymous sessions.
	UserID string
	// MaxAge is the session lifetime after this request extended it.
	MaxAge time.Duration
	// VisitorID previously bound to the session, if any.
	VisitorID string
	// Fallback marks keys synthesized without session support.
	Fallback bool
}

// SessionSource provides session keys and stores the visitor binding.
// Session returns ErrNoSession when the request carries no usable session
// and none can be created.
type SessionSource interface {
	Session(ctx context.Context, w http.ResponseWriter, r *http.Request) (SessionInfo, error)
	Bind(ctx context.Context, info SessionInfo, visitorID string) error
}

// ManagedSessions adapts session.Manager to SessionSource.
type ManagedSessions struct {
	manager *session.Manager
}

// NewManagedSessions returns a SessionSource backed by the session manager.
func NewManagedSessions(m *session.Manager) *ManagedSessions {
	return &ManagedSessions{manager: m}
}

func (s *ManagedSessions) Session(ctx context.Context, w http.ResponseWriter, r *http.Request) (SessionInfo, error) {
	if s == nil || s.manager == nil {
		return SessionInfo{}, ErrNoSession
	}

	sess, err := s.manager.Ensure(ctx, w, r)
	if err != nil {
		return SessionInfo{}, err
	}

	info := SessionInfo{Key: sess.Token, MaxAge: sess.TTL()}
	if sess.UserID != nil {
		info.UserID = sess.UserID.String()
	}
	info.VisitorID, _ = sess.GetString(SessionVisitorKey)
	return info, nil
}

func (s *ManagedSessions) Bind(ctx context.Context, info SessionInfo, visitorID string) error {
	if s == nil || s.manager == nil || info.Fallback {
		return nil
	}
	return s.manager.Put(ctx, info.Key, SessionVisitorKey, visitorID)
}
