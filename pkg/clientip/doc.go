// Package clientip extracts the originating client address from an
// *http.Request when the application runs behind reverse proxies.
//
// GetIP checks DefaultHeaders in order (CF-Connecting-IP, DO-Connecting-IP,
// X-Forwarded-For, X-Real-IP) and falls back to RemoteAddr. Deployments that
// sit behind a different proxy chain build their own Resolver with New and
// list only the headers they trust:
//
//	res := clientip.New("X-Real-IP")
//	r.Use(res.Middleware)
//
// Every returned address is normalized with net.ParseIP, so IPv6 addresses
// compare equal regardless of the textual form the proxy used.
package clientip
