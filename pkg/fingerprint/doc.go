// Package fingerprint derives a browser fingerprint from request headers.
//
// It plugs into session.WithFingerprint so a stolen session token replayed
// from a different browser is rejected and a fresh session is issued:
//
//	session.New(session.WithFingerprint(fingerprint.Generate), ...)
package fingerprint
