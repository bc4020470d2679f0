package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ParseDomain validates a user supplied domain and returns its canonical
// form: a lowercase ASCII host name, followed by ":port" when the port is
// not the default for scheme. IPv6 literals keep their brackets.
//
// A leading "http://" or "https://" and a single trailing slash are
// tolerated so users can paste a site address. Anything else beyond a host
// and port (a path, a query, credentials) is ErrMalformedDomain.
func ParseDomain(raw, scheme string) (string, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"http://", "https://"} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = strings.TrimSuffix(s, "/")

	if s == "" || strings.ContainsAny(s, " \t\r\n/?#@\\") {
		return "", fmt.Errorf("%w: %q", ErrMalformedDomain, raw)
	}

	u, err := url.Parse("http://" + s)
	if err != nil || u.Host == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedDomain, raw)
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrMalformedDomain, raw)
	}

	port := u.Port()
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return "", fmt.Errorf("%w: %q", ErrMalformedDomain, raw)
		}
		if port == defaultPort(scheme) {
			port = ""
		}
	}
	return joinHostPort(host, port), nil
}

// canonicalHost lowercases host and converts internationalized names to
// their ASCII (punycode) form. IP addresses are returned unchanged.
func canonicalHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", ErrInvalidLink
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return ascii, nil
}

// defaultPort returns the implicit port of scheme.
func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// joinHostPort is net.JoinHostPort that leaves the port off when empty.
func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}

// RootURL returns the URL a crawl of domain starts from.
func RootURL(scheme, domain string) string {
	return strings.ToLower(scheme) + "://" + domain + "/"
}
