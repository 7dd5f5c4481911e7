package httputil

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of the request's remote address. Behind a
// trusted proxy the router's RealIP middleware has already rewritten it.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
