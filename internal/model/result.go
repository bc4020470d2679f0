package model

import (
	"time"
)

// DiscoveredURL is a normalized URL confirmed to belong to the crawled domain.
// It is recorded whether or not the fetch succeeded: a page that answers 404
// was still discovered, and the failure is kept as metadata.
type DiscoveredURL struct {
	// URL is the normalized absolute URL.
	URL string `json:"url"`

	// Success is true when the page was fetched with a 2xx status.
	Success bool `json:"success"`

	// StatusCode is the HTTP status of the last attempt, or 0 when no
	// response was received at all.
	StatusCode int `json:"status_code,omitempty"`

	// ContentType is the Content-Type header of a successful response.
	ContentType string `json:"content_type,omitempty"`

	// Attempts is how many fetch attempts were made for this URL.
	Attempts int `json:"attempts"`

	// Error describes the last failure. Empty on success.
	Error string `json:"error,omitempty"`

	// Digest is the hex SHA3-256 of the response body.
	Digest string `json:"digest,omitempty"`

	// LinkCount is the number of raw links extracted from the page.
	LinkCount int `json:"link_count"`

	// DiscoveredAt is when the fetch outcome was recorded.
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CrawlResult is a snapshot of everything known about one domain's crawl.
// It is safe to read mid-crawl: Count always equals len(URLs) and never
// decreases while the crawl is Running.
type CrawlResult struct {
	// Domain is the canonical host name (optionally with port) that was crawled.
	Domain string `json:"domain"`

	// CrawlID uniquely identifies one run; a restart produces a new ID.
	CrawlID string `json:"crawl_id"`

	// State is the lifecycle state at the moment of the snapshot.
	State CrawlState `json:"state"`

	// Error explains a Failed state.
	Error string `json:"error,omitempty"`

	// URLs lists discovered URLs in the order their fetches resolved.
	URLs []DiscoveredURL `json:"urls,omitempty"`

	// Count is the number of discovered URLs.
	Count int `json:"count"`

	// Failed is the number of discovered URLs whose fetch failed.
	Failed int `json:"failed"`

	// Seen is the size of the visited set: every URL ever enqueued,
	// including ones still waiting in the frontier or in flight.
	Seen int `json:"seen"`

	// StartedAt is when the supervisor was spawned.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl reached a terminal state.
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// URLStrings returns just the URL strings of the discovered set.
func (r *CrawlResult) URLStrings() []string {
	out := make([]string, len(r.URLs))
	for i, u := range r.URLs {
		out[i] = u.URL
	}
	return out
}

// Duration returns how long the crawl ran. For a running crawl it is the
// time elapsed so far.
func (r *CrawlResult) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FetchOutcome is the message a fetch worker sends back to the supervisor
// that dispatched the task. Workers are stateless: everything the
// supervisor needs to update the frontier and the result store travels here.
type FetchOutcome struct {
	// TaskID correlates the outcome with the lease the supervisor holds.
	TaskID uint64

	// URL is the normalized URL that was dispatched.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// BaseURL is the URL relative links resolve against: the document's
	// <base href> when present, otherwise FinalURL.
	BaseURL string

	// Success is true when a 2xx response was received.
	Success bool

	// StatusCode of the last attempt, 0 if no response.
	StatusCode int

	// ContentType of the final response.
	ContentType string

	// Links are the raw, unnormalized link strings found in the page.
	Links []string

	// Attempts is the number of fetch attempts made.
	Attempts int

	// Err is the last error when Success is false.
	Err error

	// Digest is the hex SHA3-256 of the body.
	Digest string

	// Elapsed is the wall time spent on the task including retries.
	Elapsed time.Duration
}

// Discovered converts the outcome into the record stored for the URL.
func (o *FetchOutcome) Discovered(at time.Time) DiscoveredURL {
	d := DiscoveredURL{
		URL:          o.URL,
		Success:      o.Success,
		StatusCode:   o.StatusCode,
		ContentType:  o.ContentType,
		Attempts:     o.Attempts,
		Digest:       o.Digest,
		LinkCount:    len(o.Links),
		DiscoveredAt: at,
	}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	return d
}
