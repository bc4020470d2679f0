// Package fetch provides the HTTP client used by crawl workers.
//
// A single Client is shared by every worker in the process. It follows up to
// ten redirects, keeps cookies in a public-suffix aware jar, injects
// per-site cookies and headers, optionally dials through a SOCKS5 proxy and
// reads at most a bounded number of body bytes per page.
//
// Fetch classifies failures into two sentinel errors, ErrStatus for a
// response outside 2xx and ErrTransport for everything that prevented a
// response, so callers can decide what to retry with errors.Is.
package fetch
