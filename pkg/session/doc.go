// Package session manages server-side sessions addressed by an opaque token
// delivered through a Transport (an encrypted cookie by default) and
// persisted in a Store (MemoryStore and the Redis-backed RedisStore ship with
// the package).
//
// The visitor tracker uses the session token as the primary key for
// anonymous browsers and stores the resolved visitor id in session data:
//
//	mgr := session.New(session.WithCookieManager(cookieMgr))
//	sess, err := mgr.Ensure(ctx, w, r)      // creates one when absent
//	_ = mgr.Put(ctx, sess.Token, "visitor_id", id)
//
// Anonymous and authenticated sessions have separate idle and maximum
// lifetimes; the effective expiry is the earlier of the two. Every Ensure
// on a live session moves the idle expiry forward and re-issues the cookie.
// Errors:
//
//   - ErrSessionNotFound – no token or unknown token
//   - ErrSessionExpired  – the session has passed its expiry
//   - ErrInvalidSession  – malformed session or fingerprint mismatch
package session
