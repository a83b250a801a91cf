package cmd

import (
	"net"
	"strconv"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	t.Parallel()

	valid := []string{
		":8080",
		":0",
		":65535",
		"localhost:3400",
		"127.0.0.1:80",
		"0.0.0.0:9999",
		"[::1]:8080",
		"db.internal:443",
	}
	for _, addr := range valid {
		if err := validateAddr(addr); err != nil {
			t.Errorf("validateAddr(%q) = %v, want nil", addr, err)
		}
	}

	invalid := []string{
		"",
		"8080",
		"localhost",
		"localhost:",
		":abc",
		":-1",
		":65536",
		"bad host:8080",
	}
	for _, addr := range invalid {
		if err := validateAddr(addr); err == nil {
			t.Errorf("validateAddr(%q) = nil, want error", addr)
		}
	}
}

func FuzzValidateAddr(f *testing.F) {
	for _, seed := range []string{":8080", "localhost:3400", "[::1]:443", "", "8080", ":abc", "host:65536", "a b:1"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, addr string) {
		if err := validateAddr(addr); err != nil {
			return
		}
		// Anything accepted must split cleanly and carry an in-range
		// numeric port.
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("accepted %q but SplitHostPort failed: %v", addr, err)
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 0 || n > 65535 {
			t.Fatalf("accepted %q with bad port %q", addr, port)
		}
	})
}
