package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/dmitrymomot/visitrack/pkg/useragent"
)

// Generate returns a 32-character hex digest of the request's browser
// traits: the sanitized User-Agent and the Accept-Language header.
// The client address is left out so a session survives network changes.
func Generate(r *http.Request) string {
	parts := []string{
		useragent.Sanitize(r.UserAgent()),
		strings.ToLower(strings.TrimSpace(r.Header.Get("Accept-Language"))),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// Validate reports whether r still matches a stored fingerprint.
func Validate(r *http.Request, stored string) bool {
	return stored != "" && Generate(r) == stored
}
