package fetch

import (
	"net/http"
	"strings"
)

// SiteHeaders are the extra request values configured for one site.
type SiteHeaders struct {
	// Cookie is a raw cookie string such as "session=abc; theme=dark".
	Cookie string

	// Headers are set on every request, replacing existing values.
	Headers map[string]string
}

// empty reports whether there is nothing to inject.
func (s SiteHeaders) empty() bool {
	return s.Cookie == "" && len(s.Headers) == 0
}

// SiteResolver returns the headers for a request host ("host" or
// "host:port"). It is consulted for every request, including redirects,
// so a redirect to another site never carries the first site's cookie.
type SiteResolver func(host string) SiteHeaders

// headerInjectingTransport wraps an http.RoundTripper to inject
// per-site headers and cookies into every request.
//
// Design decision: We use a custom RoundTripper rather than modifying each
// request, so redirects get the values of the host they land on.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	resolve   SiteResolver
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var site SiteHeaders
	if t.resolve != nil {
		site = t.resolve(strings.ToLower(req.URL.Host))
		if site.empty() && req.URL.Port() != "" {
			site = t.resolve(strings.ToLower(req.URL.Hostname()))
		}
	}
	if site.empty() && t.userAgent == "" {
		return t.base.RoundTrip(req)
	}

	// Clone the request to avoid modifying the caller's copy
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if site.Cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+site.Cookie)
		} else {
			clone.Header.Set("Cookie", site.Cookie)
		}
	}

	for key, value := range site.Headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
