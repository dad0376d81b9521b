package tracking

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/visitrack/pkg/cookie"
)

// CookieBinder writes the visitor cookie. Path, domain, SameSite and Secure
// come from the shared cookie manager, so the cookie is scoped like the
// session cookie. It stays readable by client scripts.
type CookieBinder struct {
	cookies *cookie.Manager
	name    string
}

// NewCookieBinder returns a binder writing cookie name through m.
func NewCookieBinder(m *cookie.Manager, name string) *CookieBinder {
	return &CookieBinder{cookies: m, name: name}
}

// Bind sets the visitor cookie to visitorID, expiring after maxAge rounded
// up to whole seconds.
// Nothing is written without an id. It must run before the response
// headers are flushed.
func (b *CookieBinder) Bind(w http.ResponseWriter, visitorID string, maxAge time.Duration) {
	if visitorID == "" {
		return
	}
	_ = b.cookies.Set(w, b.name, visitorID,
		cookie.WithTTL(maxAge),
		cookie.WithHTTPOnly(false),
	)
}
