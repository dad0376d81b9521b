package clientip

import "net/http"

// Middleware stores the client IP resolved with DefaultHeaders in the request context.
func Middleware(next http.Handler) http.Handler {
	return defaultResolver.Middleware(next)
}

// Middleware stores the client IP resolved by res in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetIPToContext(r.Context(), res.IP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
