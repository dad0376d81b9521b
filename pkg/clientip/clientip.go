package clientip

import (
	"net"
	"net/http"
	"strings"
)

// DefaultHeaders lists the proxy headers consulted by GetIP, highest priority first.
var DefaultHeaders = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// Resolver extracts the client address from a request by checking a fixed
// list of proxy headers before falling back to RemoteAddr.
type Resolver struct {
	headers []string
}

// New returns a Resolver that trusts the given headers in order.
// With no headers only RemoteAddr is used.
func New(headers ...string) *Resolver {
	return &Resolver{headers: headers}
}

var defaultResolver = New(DefaultHeaders...)

// GetIP returns the client's IP address using DefaultHeaders.
func GetIP(r *http.Request) string {
	return defaultResolver.IP(r)
}

// IP returns the normalized client address or an empty string when no valid
// address can be found.
func (res *Resolver) IP(r *http.Request) string {
	for _, name := range res.headers {
		value := r.Header.Get(name)
		if value == "" {
			continue
		}
		// X-Forwarded-For style headers carry a list; the first valid entry is the client.
		for candidate := range strings.SplitSeq(value, ",") {
			if ip := parseIP(candidate); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

// parseIP validates and normalizes an IP address string.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
