package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPAllowList admits callers whose remote address falls in one of its networks. Forwarding headers are
// not trusted.
type IPAllowList struct {
	nets []*net.IPNet
}

// ParseAllowList accepts bare IPs and CIDRs. An empty list admits loopback callers only.
func ParseAllowList(entries []string) (*IPAllowList, error) {
	if len(entries) == 0 {
		entries = []string{"127.0.0.0/8", "::1/128"}
	}
	list := &IPAllowList{}
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("allow list: invalid address %q", raw)
			}
			bits := 128
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 32
			}
			list.nets = append(list.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("allow list: %w", err)
		}
		list.nets = append(list.nets, n)
	}
	return list, nil
}

// Allows reports whether remoteAddr (host:port or bare host) is admitted.
func (l *IPAllowList) Allows(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware rejects callers outside the list with 403.
func (l *IPAllowList) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allows(r.RemoteAddr) {
			writeJSON(w, http.StatusForbidden, errorPayload{Message: "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
