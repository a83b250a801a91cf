package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestURL_Validate(t *testing.T) {
	t.Parallel()
	v := NewURL()

	tests := []struct {
		name    string
		url     string
		wantErr bool
		errMsg  string // substring to check in error message
	}{
		{
			name:    "valid https URL",
			url:     "https://example.com/page",
			wantErr: false,
		},
		{
			name:    "valid http URL",
			url:     "http://example.com/page",
			wantErr: false,
		},
		{
			name:    "valid URL with port",
			url:     "https://example.com:8443/api",
			wantErr: false,
		},
		{
			name:    "public hostname passes static check",
			url:     "https://html.duckduckgo.com/html/",
			wantErr: false,
		},

		{
			name:    "ftp scheme blocked",
			url:     "ftp://example.com/file",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "file scheme blocked",
			url:     "file:///etc/passwd",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "javascript scheme blocked",
			url:     "javascript:alert(1)",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "data scheme blocked",
			url:     "data:text/html,<h1>x</h1>",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},

		{
			name:    "localhost blocked",
			url:     "http://localhost/admin",
			wantErr: true,
			errMsg:  "blocked host",
		},
		{
			name:    "localhost with port blocked",
			url:     "http://localhost:8080/admin",
			wantErr: true,
			errMsg:  "blocked host",
		},
		{
			name:    "LOCALHOST case-insensitive",
			url:     "http://LOCALHOST/",
			wantErr: true,
			errMsg:  "blocked host",
		},
		{
			name:    "metadata.google.internal blocked",
			url:     "http://metadata.google.internal/computeMetadata/v1/",
			wantErr: true,
			errMsg:  "blocked host",
		},

		{
			name:    "127.0.0.1 blocked",
			url:     "http://127.0.0.1/admin",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "127.1.2.3 blocked",
			url:     "http://127.1.2.3/",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "10.0.0.1 blocked",
			url:     "http://10.0.0.1/internal",
			wantErr: true,
			errMsg:  "private",
		},
		{
			name:    "172.16.0.1 blocked",
			url:     "http://172.16.0.1/internal",
			wantErr: true,
			errMsg:  "private",
		},
		{
			name:    "192.168.1.1 blocked",
			url:     "http://192.168.1.1/router",
			wantErr: true,
			errMsg:  "private",
		},
		{
			name:    "cloud metadata endpoint blocked",
			url:     "http://169.254.169.254/latest/meta-data/",
			wantErr: true,
			errMsg:  "link-local",
		},
		{
			name:    "link-local blocked",
			url:     "http://169.254.1.1/",
			wantErr: true,
			errMsg:  "link-local",
		},
		{
			name:    "IPv6 loopback blocked",
			url:     "http://[::1]/admin",
			wantErr: true,
			errMsg:  "loopback",
		},
		{
			name:    "IPv6-mapped IPv4 loopback blocked",
			url:     "http://[::ffff:127.0.0.1]/",
			wantErr: true,
			errMsg:  "loopback",
		},

		{
			name:    "empty URL",
			url:     "",
			wantErr: true,
			errMsg:  "unsupported scheme",
		},
		{
			name:    "malformed URL",
			url:     "://invalid",
			wantErr: true,
			errMsg:  "invalid URL",
		},
		{
			name:    "0.0.0.0 blocked",
			url:     "http://0.0.0.0/",
			wantErr: true,
			errMsg:  "unspecified",
		},
		{
			name:    "multicast blocked",
			url:     "http://224.0.0.1/",
			wantErr: true,
			errMsg:  "multicast",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate(%q) expected error, got nil", tt.url)
					return
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate(%q) error = %q, want error containing %q", tt.url, err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate(%q) unexpected error: %v", tt.url, err)
			}
		})
	}
}

func TestURL_checkIP(t *testing.T) {
	t.Parallel()
	v := NewURL()

	tests := []struct {
		name    string
		ip      string
		wantErr bool
	}{
		{"public IPv4", "8.8.8.8", false},
		{"public IPv4 2", "1.1.1.1", false},
		{"public IPv6", "2606:4700:4700::1111", false},

		{"private 10.x", "10.0.0.1", true},
		{"private 172.16.x", "172.16.0.1", true},
		{"private 192.168.x", "192.168.1.1", true},
		{"loopback", "127.0.0.1", true},
		{"loopback range end", "127.255.255.255", true},
		{"link-local", "169.254.1.1", true},
		{"cloud metadata", "169.254.169.254", true},
		{"IPv6 unique local", "fd12:3456:789a::1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("parsing IP: %s", tt.ip)
			}
			err := v.checkIP(ip)
			if tt.wantErr && err == nil {
				t.Errorf("checkIP(%s) expected error, got nil", tt.ip)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("checkIP(%s) unexpected error: %v", tt.ip, err)
			}
		})
	}
}

// SafeTransport must reject blocked targets at the dial level. This is the
// DNS rebinding guard: a hostname that passed Validate can still resolve
// to an internal address.
func TestURL_SafeTransport(t *testing.T) {
	t.Parallel()
	v := NewURL()
	transport := v.SafeTransport()

	if transport == nil {
		t.Fatal("SafeTransport() returned nil")
	}
	if transport.DialContext == nil {
		t.Fatal("SafeTransport() DialContext is nil")
	}

	tests := []struct {
		name    string
		addr    string
		wantSub string
	}{
		{name: "loopback", addr: "127.0.0.1:80", wantSub: "loopback"},
		{name: "private 10.x", addr: "10.0.0.1:80", wantSub: "private"},
		{name: "private 192.168.x", addr: "192.168.1.1:80", wantSub: "private"},
		{name: "link-local metadata", addr: "169.254.169.254:80", wantSub: "link-local"},
		{name: "IPv6 loopback", addr: "[::1]:80", wantSub: "loopback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := transport.DialContext(t.Context(), "tcp", tt.addr)
			if err == nil {
				t.Errorf("DialContext(%q) = nil, want error", tt.addr)
				return
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("DialContext(%q) error = %q, want error containing %q", tt.addr, err.Error(), tt.wantSub)
			}
		})
	}
}

func TestURL_ValidateRedirect(t *testing.T) {
	t.Parallel()
	v := NewURL()

	redirectReq := func(target string) *http.Request {
		u, err := url.Parse(target)
		if err != nil {
			t.Fatalf("parsing %q: %v", target, err)
		}
		return &http.Request{URL: u}
	}

	t.Run("safe redirect allowed", func(t *testing.T) {
		t.Parallel()
		err := v.ValidateRedirect(redirectReq("https://example.com/next"), make([]*http.Request, 2))
		if err != nil {
			t.Errorf("ValidateRedirect(safe) unexpected error: %v", err)
		}
	})

	t.Run("redirect to loopback blocked", func(t *testing.T) {
		t.Parallel()
		err := v.ValidateRedirect(redirectReq("http://127.0.0.1/steal"), make([]*http.Request, 1))
		if err == nil {
			t.Fatal("ValidateRedirect(loopback) = nil, want error")
		}
		if !strings.Contains(err.Error(), "redirect blocked") {
			t.Errorf("ValidateRedirect(loopback) error = %q, want containing %q", err.Error(), "redirect blocked")
		}
	})

	t.Run("chain length bounded", func(t *testing.T) {
		t.Parallel()
		err := v.ValidateRedirect(redirectReq("https://example.com/"), make([]*http.Request, maxRedirects))
		if err == nil {
			t.Fatal("ValidateRedirect(long chain) = nil, want error")
		}
		if !strings.Contains(err.Error(), "redirects") {
			t.Errorf("ValidateRedirect(long chain) error = %q, want containing %q", err.Error(), "redirects")
		}
	})
}
