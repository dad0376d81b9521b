package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/visitrack/pkg/cookie"
)

// FingerprintFunc generates a device fingerprint from the request
type FingerprintFunc func(r *http.Request) string

// Manager handles session operations
type Manager struct {
	store           Store
	transport       Transport
	config          Config
	fingerprintFunc FingerprintFunc
	cookieManager   *cookie.Manager
	cookieOptions   []cookie.Option
}

// New creates a new session manager with the given options.
// It panics when neither a transport nor a cookie manager is configured.
func New(opts ...Option) *Manager {
	m := &Manager{config: DefaultConfig()}

	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewMemoryStore(m.config.CleanupInterval)
	}

	if m.transport == nil {
		if m.cookieManager == nil {
			panic("session: cookie manager is required when using default cookie transport")
		}
		m.transport = NewCookieTransport(m.cookieManager, m.config.CookieName, m.config.SecureCookies, m.cookieOptions...)
	}

	return m
}

// Ensure returns the session carried by the request, creating and storing a
// new anonymous one when none is valid. An existing session slides: its
// expiry moves to now plus the idle timeout, capped by the max lifetime, and
// the token is re-issued with the new lifetime. A session already placed in
// ctx by Middleware is reused so one request never creates two sessions.
func (m *Manager) Ensure(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	if sess, ok := FromContext(ctx); ok && !sess.IsExpired() {
		err := m.extend(ctx, w, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}

	sess, err := m.Get(ctx, r)
	if err == nil {
		err = m.extend(ctx, w, sess)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
	}
	if !errors.Is(err, ErrSessionNotFound) {
		_ = m.transport.ClearToken(w)
	}

	sess, err = m.createSession(ctx, nil, r)
	if err != nil {
		return nil, err
	}

	if err := m.transport.SetToken(w, sess.Token, sess.TTL()); err != nil {
		_ = m.store.Delete(ctx, sess.Token)
		return nil, err
	}

	return sess, nil
}

// extend slides the expiry of a live session and re-issues its token.
// It returns ErrSessionNotFound when the store no longer has the session.
func (m *Manager) extend(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	idle, maxLifetime := m.config.GetTimeouts(sess.IsAuthenticated())
	now := time.Now()
	sess.ExpiresAt = calculateExpiry(sess.CreatedAt, now, idle, maxLifetime)
	sess.Touch()

	if err := m.store.Update(ctx, sess); err != nil {
		return err
	}
	return m.transport.SetToken(w, sess.Token, sess.TTL())
}

// Get retrieves an existing session
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := m.validate(sess, r); err != nil {
		return nil, err
	}

	return sess, nil
}

// Authenticate upgrades the request's session to an authenticated one,
// rotating its token.
func (m *Manager) Authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*Session, error) {
	sess, err := m.Get(ctx, r)
	if err != nil {
		if sess, err = m.createSession(ctx, &userID, r); err != nil {
			return nil, err
		}
	} else {
		newToken, err := generateToken()
		if err != nil {
			return nil, err
		}
		_ = m.store.Delete(ctx, sess.Token)

		idle, maxLifetime := m.config.GetTimeouts(true)
		sess.UserID = &userID
		sess.Token = newToken
		sess.ExpiresAt = calculateExpiry(sess.CreatedAt, time.Now(), idle, maxLifetime)
		sess.Touch()

		if err := m.store.Create(ctx, sess); err != nil {
			return nil, err
		}
	}

	return sess, m.transport.SetToken(w, sess.Token, sess.TTL())
}

// Destroy deletes the session
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if token, err := m.transport.GetToken(r); err == nil && token != "" {
		_ = m.store.Delete(ctx, token)
	}
	return m.transport.ClearToken(w)
}

// Put stores a value in the session identified by token.
func (m *Manager) Put(ctx context.Context, token, key string, value any) error {
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return err
	}
	sess.Set(key, value)
	return m.store.Update(ctx, sess)
}

// Config returns the manager configuration.
func (m *Manager) Config() Config {
	return m.config
}

func (m *Manager) createSession(ctx context.Context, userID *uuid.UUID, r *http.Request) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	idle, maxLifetime := m.config.GetTimeouts(userID != nil)
	now := time.Now()

	var fingerprint string
	if m.fingerprintFunc != nil {
		fingerprint = m.fingerprintFunc(r)
	}

	sess := NewSession(token, userID, fingerprint, calculateExpiry(now, now, idle, maxLifetime).Sub(now))
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) validate(sess *Session, r *http.Request) error {
	if sess.IsExpired() {
		return ErrSessionExpired
	}
	if m.fingerprintFunc != nil && !sess.ValidateFingerprint(m.fingerprintFunc(r)) {
		return ErrInvalidSession
	}
	return nil
}

// calculateExpiry returns the next expiry time (min of idle and max lifetime)
func calculateExpiry(createdAt, now time.Time, idle, maxLifetime time.Duration) time.Time {
	idleExpiry := now.Add(idle)
	maxExpiry := createdAt.Add(maxLifetime)
	if maxExpiry.Before(idleExpiry) {
		return maxExpiry
	}
	return idleExpiry
}

// generateToken creates a cryptographically secure token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
