package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxyMatcher decides whether a remote address is a trusted proxy whose
// forwarding headers may be believed.
type proxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// newProxyMatcher parses IPs and CIDRs. Invalid entries are logged and
// skipped. It returns nil when nothing is trusted.
func newProxyMatcher(entries []string, logger *slog.Logger) *proxyMatcher {
	ips := make(map[string]struct{})
	var nets []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				continue
			}
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid trusted proxy IP", "entry", entry)
			continue
		}
		ips[ip.String()] = struct{}{}
	}

	if len(ips) == 0 && len(nets) == 0 {
		return nil
	}
	return &proxyMatcher{ips: ips, nets: nets}
}

func (m *proxyMatcher) trusted(ip net.IP) bool {
	if m == nil || ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address used for per-IP limits. Forwarding
// headers are only honored when the direct remote is a trusted proxy; the
// right-most untrusted hop wins.
func clientIP(r *http.Request, proxies *proxyMatcher) string {
	remote := parseHost(r.RemoteAddr)
	if remote == nil {
		return ""
	}
	if !proxies.trusted(remote) {
		return remote.String()
	}

	hops := forwardedFor(r.Header.Get("Forwarded"))
	if len(hops) == 0 {
		hops = xForwardedFor(r.Header.Get("X-Forwarded-For"))
	}
	if len(hops) == 0 {
		return remote.String()
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !proxies.trusted(hops[i]) {
			return hops[i].String()
		}
	}
	return hops[0].String()
}

// forwardedFor extracts the for= parameters of an RFC 7239 header.
func forwardedFor(header string) []net.IP {
	var out []net.IP
	for _, element := range strings.Split(header, ",") {
		for _, param := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(key), "for") {
				continue
			}
			if ip := parseHost(value); ip != nil {
				out = append(out, ip)
			}
		}
	}
	return out
}

func xForwardedFor(header string) []net.IP {
	var out []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := parseHost(part); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// parseHost accepts "ip", "ip:port", "[v6]:port" and quoted forms.
func parseHost(value string) net.IP {
	host := strings.Trim(strings.TrimSpace(value), `"`)
	if host == "" || strings.EqualFold(host, "unknown") {
		return nil
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	return net.ParseIP(host)
}
