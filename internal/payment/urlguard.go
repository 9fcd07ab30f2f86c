package payment

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// lookupIP is swappable so hostname resolution can be faked in tests.
var lookupIP = net.LookupIP

// CheckOutboundURL validates a facilitator URL before any network call is
// made. It rejects anything that is not HTTPS and anything whose host is, or
// resolves to, a private, loopback, link-local or unspecified address,
// including IPv4-mapped IPv6 forms. All errors wrap ErrDisallowedURL.
func CheckOutboundURL(rawURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDisallowedURL, err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not https", ErrDisallowedURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrDisallowedURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if reason := blockedIPReason(ip); reason != "" {
			return fmt.Errorf("%w: %s address %s", ErrDisallowedURL, reason, host)
		}
		return nil
	}

	// Resolve the hostname and reject if any address is internal, so a DNS
	// entry pointing at 127.0.0.1 cannot smuggle a request inside.
	addrs, err := lookupIP(host)
	if err != nil {
		return fmt.Errorf("%w: cannot resolve host %s: %v", ErrDisallowedURL, host, err)
	}
	for _, ip := range addrs {
		if reason := blockedIPReason(ip); reason != "" {
			return fmt.Errorf("%w: host %s resolves to %s address %s", ErrDisallowedURL, host, reason, ip)
		}
	}
	return nil
}

// IsAllowedURL is the boolean form of CheckOutboundURL.
func IsAllowedURL(rawURL string) bool {
	return CheckOutboundURL(rawURL) == nil
}

// blockedIPReason returns a non-empty label when the IP must not be dialed.
// net.IP.To4 unwraps IPv4-mapped IPv6 (::ffff:a.b.c.d), so the IPv4 checks
// cover both notations.
func blockedIPReason(ip net.IP) string {
	if ip.IsLoopback() {
		return "loopback"
	}
	if ip.IsPrivate() {
		return "private"
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "link-local"
	}
	if ip.IsUnspecified() {
		return "unspecified"
	}
	if ip4 := ip.To4(); ip4 != nil && ip4[0] == 0 {
		return "reserved"
	}
	return ""
}
