// Package security validates outbound URLs so agent tools cannot be
// steered into the server's own network.
//
// The URL validator blocks the classic SSRF targets: loopback, RFC 1918
// ranges, link-local addresses, cloud metadata endpoints, and non-HTTP
// schemes. Static validation catches literal addresses; SafeTransport
// re-checks every resolved IP at dial time, closing the DNS rebinding
// gap.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxRedirects bounds redirect chains before ValidateRedirect gives up.
const maxRedirects = 5

// URL validates URLs before agent tools fetch them.
//
// Usage:
//
//	v := security.NewURL()
//	if err := v.Validate(raw); err != nil {
//	    // target is not safe
//	}
//	client := &http.Client{
//	    Transport:     v.SafeTransport(),
//	    CheckRedirect: v.ValidateRedirect,
//	}
type URL struct {
	allowedSchemes map[string]struct{}
	blockedHosts   map[string]struct{}
}

// NewURL creates a URL validator with the default blocklist.
func NewURL() *URL {
	return &URL{
		allowedSchemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// Validate checks whether a URL is safe to fetch. It rejects non-HTTP
// schemes, blocked hostnames, and literal addresses in private ranges.
// Hostnames that need DNS resolution pass here; SafeTransport checks the
// resolved addresses at dial time.
func (v *URL) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if _, ok := v.allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme %q (allowed: http, https)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	return v.validateHost(host)
}

func (v *URL) validateHost(host string) error {
	if _, blocked := v.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return v.checkIP(ip)
	}
	return nil
}

// checkIP rejects addresses an outbound agent request must never reach.
func (v *URL) checkIP(ip net.IP) error {
	// ::ffff:127.0.0.1 and friends normalize to their IPv4 form.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address not allowed: %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address not allowed: %s", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		// Covers 169.254.169.254, the cloud metadata endpoint.
		return fmt.Errorf("link-local address not allowed: %s", ip)
	case ip.IsMulticast():
		return fmt.Errorf("multicast address not allowed: %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address not allowed: %s", ip)
	}
	return nil
}

// SafeTransport returns a transport whose dialer validates every IP the
// hostname resolves to. This is the authority for SSRF protection;
// Validate alone cannot see what DNS will answer.
func (v *URL) SafeTransport() *http.Transport {
	return &http.Transport{
		DialContext:         v.safeDialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (v *URL) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := v.checkIP(ip); err != nil {
			return nil, fmt.Errorf("request blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %s: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses resolved for %s", host)
	}
	for _, ip := range ips {
		if err := v.checkIP(ip); err != nil {
			return nil, fmt.Errorf("request blocked (%s resolved to %s): %w", host, ip, err)
		}
	}

	// Dial the first vetted address so the connection cannot race a
	// second resolution to a different target.
	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}

// ValidateRedirect is a CheckRedirect function that re-validates every hop
// of a redirect chain and bounds its length.
func (v *URL) ValidateRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if err := v.Validate(req.URL.String()); err != nil {
		return fmt.Errorf("redirect blocked: %w", err)
	}
	return nil
}
