package tracking

import (
	"time"

	"github.com/google/uuid"
)

// Visitor is one browsing session-equivalent: the identity a browser keeps
// while its session lives, with its latest activity window.
type Visitor struct {
	ID           string    `json:"id" db:"id"`
	SessionKey   string    `json:"session_key" db:"session_key"`
	Address      string    `json:"address" db:"address"`
	UserID       string    `json:"user_id,omitempty" db:"user_id"`
	UserAgent    string    `json:"user_agent" db:"user_agent"`
	Referrer     string    `json:"referrer,omitempty" db:"referrer"`
	CurrentURL   string    `json:"current_url" db:"current_url"`
	PageViews    int       `json:"page_views" db:"page_views"`
	SessionStart time.Time `json:"session_start" db:"session_start"`
	LastActivity time.Time `json:"last_activity" db:"last_activity"`
	TrackingTag  string    `json:"tracking_tag,omitempty" db:"tracking_tag"`
	Country      string    `json:"country,omitempty" db:"country"`
	City         string    `json:"city,omitempty" db:"city"`
}

// NewVisitor returns an unsaved visitor bound to the (sessionKey, address) pair.
func NewVisitor(sessionKey, address, trackingTag string) *Visitor {
	return &Visitor{
		ID:          uuid.NewString(),
		SessionKey:  sessionKey,
		Address:     address,
		TrackingTag: trackingTag,
	}
}

// IsAnonymous reports whether the visitor is not linked to a user.
func (v *Visitor) IsAnonymous() bool {
	return v.UserID == ""
}

// TimeOnSite returns the time between the first and the latest tracked request.
func (v *Visitor) TimeOnSite() time.Duration {
	if v.SessionStart.IsZero() || v.LastActivity.Before(v.SessionStart) {
		return 0
	}
	return v.LastActivity.Sub(v.SessionStart)
}

// Resolution is the outcome of resolving a request to a visitor.
type Resolution struct {
	Visitor *Visitor
	// Created is set when Visitor was built for this request and has not
	// been persisted yet. Session-start fields are filled only then.
	Created bool
	Address string
	Session SessionInfo
}
