package clientip

import (
	"context"
	"net/http"
)

type clientIPContextKey struct{}

// SetIPToContext stores client IP in context
func SetIPToContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// GetIPFromContext retrieves client IP from context
func GetIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// FromRequest returns the address stored by Middleware, resolving it with
// DefaultHeaders when the middleware did not run.
func FromRequest(r *http.Request) string {
	if ip := GetIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return GetIP(r)
}
