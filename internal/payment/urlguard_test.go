package payment

import (
	"errors"
	"net"
	"testing"
)

func TestCheckOutboundURL(t *testing.T) {
	// Pin DNS so hostname cases do not depend on a live resolver.
	originalLookup := lookupIP
	lookupIP = func(host string) ([]net.IP, error) {
		switch host {
		case "gateway.example.com", "facilitator.example.com":
			return []net.IP{net.ParseIP("93.184.216.34")}, nil
		case "internal.example.com":
			return []net.IP{net.ParseIP("127.0.0.1")}, nil
		default:
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
	}
	defer func() { lookupIP = originalLookup }()
	cases := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"public https host", "https://gateway.example.com", true},
		{"public https with path", "https://facilitator.example.com/verify", true},
		{"public ip", "https://93.184.216.34", true},
		{"plain http", "http://gateway.example.com", false},
		{"no scheme", "gateway.example.com", false},
		{"ipv4 loopback", "https://127.0.0.1", false},
		{"ipv4 loopback range", "https://127.1.2.3", false},
		{"private 10/8", "https://10.0.0.1", false},
		{"private 172.16/12", "https://172.16.5.5", false},
		{"private 192.168/16", "https://192.168.1.1:8443", false},
		{"link-local", "https://169.254.1.1", false},
		{"zero network", "https://0.0.0.0", false},
		{"ipv6 loopback", "https://[::1]", false},
		{"ipv6 link-local", "https://[fe80::1]", false},
		{"ipv6 unique-local", "https://[fd00::1]", false},
		{"ipv4-mapped loopback", "https://[::ffff:7f00:1]", false},
		{"ipv4-mapped dotted loopback", "https://[::ffff:127.0.0.1]", false},
		{"ipv4-mapped private", "https://[::ffff:10.0.0.1]", false},
		{"host resolving to loopback", "https://internal.example.com", false},
		{"unresolvable host", "https://does-not-exist.example.com", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckOutboundURL(tc.url)
			if tc.allowed && err != nil {
				t.Errorf("Expected %q to be allowed, got %v", tc.url, err)
			}
			if !tc.allowed {
				if err == nil {
					t.Fatalf("Expected %q to be rejected", tc.url)
				}
				if !errors.Is(err, ErrDisallowedURL) {
					t.Errorf("Expected ErrDisallowedURL, got %v", err)
				}
			}
			if got := IsAllowedURL(tc.url); got != tc.allowed {
				t.Errorf("IsAllowedURL(%q) = %v, want %v", tc.url, got, tc.allowed)
			}
		})
	}
}
