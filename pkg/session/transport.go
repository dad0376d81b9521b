package session

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/visitrack/pkg/cookie"
)

// Transport defines how session tokens are transmitted between client and server
type Transport interface {
	// GetToken extracts the session token from the request
	GetToken(r *http.Request) (string, error)

	// SetToken sends the session token in the response
	SetToken(w http.ResponseWriter, token string, ttl time.Duration) error

	// ClearToken removes the session token from the response
	ClearToken(w http.ResponseWriter) error
}

// CookieTransport implements Transport using an encrypted cookie.
type CookieTransport struct {
	cookieMgr     *cookie.Manager
	cookieName    string
	options       []cookie.Option
	secureCookies bool
}

// NewCookieTransport creates a new cookie-based transport
func NewCookieTransport(cookieMgr *cookie.Manager, cookieName string, secureCookies bool, opts ...cookie.Option) *CookieTransport {
	return &CookieTransport{
		cookieMgr:     cookieMgr,
		cookieName:    cookieName,
		options:       opts,
		secureCookies: secureCookies,
	}
}

func (t *CookieTransport) GetToken(r *http.Request) (string, error) {
	token, err := t.cookieMgr.GetEncrypted(r, t.cookieName)
	if err != nil {
		return "", ErrSessionNotFound
	}
	return token, nil
}

func (t *CookieTransport) SetToken(w http.ResponseWriter, token string, ttl time.Duration) error {
	opts := []cookie.Option{
		cookie.WithTTL(ttl),
		cookie.WithHTTPOnly(true),
	}
	if t.secureCookies {
		opts = append(opts, cookie.WithSecure(true))
	}
	opts = append(opts, t.options...)

	return t.cookieMgr.SetEncrypted(w, t.cookieName, token, opts...)
}

func (t *CookieTransport) ClearToken(w http.ResponseWriter) error {
	t.cookieMgr.Delete(w, t.cookieName)
	return nil
}
