package crawler

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// Scope is the per-site part of a crawl's configuration.
type Scope struct {
	// IncludeSubdomains treats sub.example.com as part of example.com.
	IncludeSubdomains bool

	// IgnorePatterns are glob patterns on the URL path; a match is skipped.
	IgnorePatterns []string

	// FollowPatterns are glob patterns on the URL path; when set, only
	// matching paths are followed.
	FollowPatterns []string

	// MaxPages caps the visited set of the crawl. Zero means unlimited.
	MaxPages int
}

// Normalizer turns raw links into canonical absolute URLs and decides
// whether they belong to the crawl. It is immutable after construction and
// safe for concurrent use.
//
// Normalization rules:
//   - the link is resolved against the page it came from
//   - only http and https are accepted; scheme and host are lowercased
//   - internationalized host names are converted to punycode
//   - the default port of the scheme is dropped
//   - an empty path becomes "/" and the fragment is removed
//   - userinfo is removed
//
// Normalizing an already normalized URL returns it unchanged.
//
// Design decision: membership is an exact host match (plus port). http and
// https links to the same host are both accepted, since sites commonly mix
// the two. Subdomains are only accepted with Scope.IncludeSubdomains.
type Normalizer struct {
	host  string
	port  string
	scope Scope
}

// NewNormalizer creates a Normalizer for a canonical domain as returned by
// ParseDomain.
func NewNormalizer(domain string, scope Scope) *Normalizer {
	u, err := url.Parse("http://" + domain)
	n := &Normalizer{scope: scope}
	if err == nil {
		n.host = u.Hostname()
		n.port = u.Port()
	}
	return n
}

// Normalize resolves raw against base and returns the canonical URL when it
// belongs to the crawl. base must be an absolute URL.
func (n *Normalizer) Normalize(base *url.URL, raw string) (string, error) {
	u, err := n.canonical(base, raw)
	if err != nil {
		return "", err
	}
	if err := n.inScope(u); err != nil {
		return "", err
	}
	return u.String(), nil
}

// Canonical normalizes an absolute URL without applying the scope.
func (n *Normalizer) Canonical(raw string) (string, error) {
	u, err := n.canonical(nil, raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (n *Normalizer) canonical(base *url.URL, raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidLink
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}

	u := ref
	if base != nil {
		u = base.ResolveReference(ref)
	} else if !ref.IsAbs() {
		return nil, ErrInvalidLink
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, ErrInvalidLink
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLink, err)
	}
	port := u.Port()
	if port == defaultPort(u.Scheme) {
		port = ""
	}

	u.Host = joinHostPort(host, port)
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	return u, nil
}

// inScope applies host membership and path patterns.
func (n *Normalizer) inScope(u *url.URL) error {
	if !n.sameDomain(u) {
		return fmt.Errorf("%w: %s", ErrOutOfScope, u.Host)
	}
	if !n.shouldCrawl(u.Path) {
		return fmt.Errorf("%w: %s", ErrOutOfScope, u.Path)
	}
	return nil
}

// sameDomain checks host and port against the crawled domain.
func (n *Normalizer) sameDomain(u *url.URL) bool {
	host := u.Hostname()
	port := u.Port()
	if port != n.port {
		return false
	}
	if host == n.host {
		return true
	}
	if n.scope.IncludeSubdomains && net.ParseIP(n.host) == nil {
		return strings.HasSuffix(host, "."+n.host)
	}
	return false
}

// shouldCrawl checks a path against ignore and follow patterns.
//
// Logic:
//  1. If the path matches any ignore pattern, skip it
//  2. If follow patterns are set and the path matches none, skip it
//  3. Otherwise, crawl it
func (n *Normalizer) shouldCrawl(p string) bool {
	if p == "" {
		p = "/"
	}

	for _, pattern := range n.scope.IgnorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(n.scope.FollowPatterns) > 0 {
		for _, pattern := range n.scope.FollowPatterns {
			if matchPattern(pattern, p) {
				return true
			}
		}
		return false
	}

	return true
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - a trailing /* to match everything below a directory
//   - ? to match any single character
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		ext := strings.TrimPrefix(pattern, "*")
		if strings.HasSuffix(p, ext) {
			return true
		}
	}

	matched, err := path.Match(pattern, p)
	if err != nil {
		return false
	}
	if matched {
		return true
	}

	// Patterns without a slash also match against the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := path.Match(pattern, path.Base(p))
		if err == nil && matched {
			return true
		}
	}

	return false
}
