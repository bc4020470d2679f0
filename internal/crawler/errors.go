package crawler

import (
	"errors"
	"fmt"

	"github.com/nao1215/domaincrawl/internal/fetch"
	"github.com/nao1215/domaincrawl/internal/store"
)

// Errors surfaced to callers of the Registry.
var (
	// ErrNotFound is returned when a domain has never been crawled.
	// It is the same value as store.ErrNotFound.
	ErrNotFound = store.ErrNotFound

	// ErrMalformedDomain is returned when a domain string cannot be turned
	// into a host name, such as "", "a b" or "example.com/path".
	ErrMalformedDomain = errors.New("malformed domain")

	// ErrRegistryClosed is returned by StartCrawl after Shutdown.
	ErrRegistryClosed = errors.New("registry is shut down")
)

// Errors describing why a crawl ended Failed.
var (
	// ErrRootUnreachable means the root URL could not be fetched after all
	// retries. Nothing is recorded for such a crawl.
	ErrRootUnreachable = errors.New("root URL unreachable")

	// ErrCrawlCancelled means the crawl was stopped by process shutdown.
	// URLs recorded before the stop are kept.
	ErrCrawlCancelled = errors.New("crawl cancelled")
)

// Errors recorded against individual URLs.
var (
	// ErrWorkerPanic is recorded when fetching or parsing a page panicked.
	// It wraps fetch.ErrTransport so it is treated like any transport failure.
	ErrWorkerPanic = fmt.Errorf("worker panic: %w", fetch.ErrTransport)

	// ErrLeaseExpired is recorded when a dispatched task produced no
	// outcome within the lease timeout.
	ErrLeaseExpired = fmt.Errorf("task lease expired: %w", fetch.ErrTransport)
)

// Normalizer rejections. Links rejected by the normalizer are dropped
// without being recorded; these values exist so the reason can be logged
// and tested.
var (
	// ErrInvalidLink is returned for links that do not parse as URLs.
	ErrInvalidLink = errors.New("invalid link")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrOutOfScope is returned for links to another host, or links
	// excluded by the site's ignore and follow patterns.
	ErrOutOfScope = errors.New("link out of scope")
)
