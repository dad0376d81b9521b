// Package cookie manages HTTP cookies with shared defaults and optional
// HMAC signing or AES-GCM encryption.
//
// A single Manager is created per application and handed to every component
// that writes cookies, so the session cookie and the visitor_id cookie are
// guaranteed to share Path and Domain:
//
//	mgr, err := cookie.New([]string{secret}, cookie.WithDomain(".example.com"))
//	_ = mgr.SetEncrypted(w, "sid", token)                         // session token
//	_ = mgr.Set(w, "visitor_id", id, cookie.WithHTTPOnly(false)) // readable by scripts
//
// Secrets must be at least 32 characters. Passing several secrets enables
// rotation: values are written with the first one and accepted with any.
package cookie
