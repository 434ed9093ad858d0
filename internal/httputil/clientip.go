// Package httputil holds small request helpers shared by HTTP middleware.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address a request came from, for logging. With
// trustProxy the first X-Forwarded-For entry, then X-Real-IP, is used when it
// parses as an IP address; otherwise the connection's RemoteAddr host.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
			if addr, err := netip.ParseAddr(strings.TrimSpace(candidate)); err == nil {
				return addr.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
