package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the IP address of the client that sent r.
//
// Proxy headers are only consulted when trustProxy is set. X-Forwarded-For is
// read from the right: the last trustedProxyCount entries belong to our own
// proxies and the entry before them is the client. X-Real-IP is the fallback.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}

	ips := strings.Split(xff, ",")
	i := len(ips) - trustedProxyCount - 1
	if i < 0 {
		i = 0
	}

	ip := strings.TrimSpace(ips[i])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
