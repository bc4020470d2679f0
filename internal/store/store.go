package store

import (
	"errors"
	"sync"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
)

// ErrNotFound is returned when a domain has never been crawled.
var ErrNotFound = errors.New("domain not found")

// entry is the per-domain record. All fields are guarded by mu.
type entry struct {
	mu         sync.RWMutex
	crawlID    string
	state      model.CrawlState
	err        string
	urls       []model.DiscoveredURL
	index      map[string]int
	failed     int
	seen       int
	startedAt  time.Time
	finishedAt time.Time
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	domains map[string]*entry
	now     func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		domains: make(map[string]*entry),
		now:     time.Now,
	}
}

// lookup returns the entry for domain, or nil.
func (s *Store) lookup(domain string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domains[domain]
}

// Begin starts a new run for domain in the Running state, discarding any
// previous result. It replaces the entry rather than clearing it so that a
// reader holding the old entry keeps a consistent view of the old run.
func (s *Store) Begin(domain, crawlID string) {
	e := &entry{
		crawlID:   crawlID,
		state:     model.StateRunning,
		index:     make(map[string]int),
		startedAt: s.now(),
	}
	s.mu.Lock()
	s.domains[domain] = e
	s.mu.Unlock()
}

// Record adds a discovered URL to domain's current run. A URL recorded twice
// keeps its first position and has its metadata replaced, so Count never
// goes down and never counts a URL twice. It returns false when the domain
// has no running crawl.
func (s *Store) Record(domain string, u model.DiscoveredURL) bool {
	e := s.lookup(domain)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateRunning {
		return false
	}
	if i, ok := e.index[u.URL]; ok {
		if e.urls[i].Success != u.Success {
			if u.Success {
				e.failed--
			} else {
				e.failed++
			}
		}
		e.urls[i] = u
		return true
	}
	e.index[u.URL] = len(e.urls)
	e.urls = append(e.urls, u)
	if !u.Success {
		e.failed++
	}
	return true
}

// SetSeen publishes the size of domain's visited set. It is informational
// and may run ahead of the discovered count.
func (s *Store) SetSeen(domain string, n int) {
	e := s.lookup(domain)
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.state == model.StateRunning && n > e.seen {
		e.seen = n
	}
	e.mu.Unlock()
}

// Finish moves domain's current run to a terminal state. A nil err is
// stored as an empty error string. Finishing an unknown or already finished
// domain is a no-op and returns false.
func (s *Store) Finish(domain string, state model.CrawlState, err error) bool {
	e := s.lookup(domain)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateRunning {
		return false
	}
	e.state = state
	if err != nil {
		e.err = err.Error()
	}
	e.finishedAt = s.now()
	return true
}

// State returns domain's state, or StateIdle for a domain never seen.
func (s *Store) State(domain string) model.CrawlState {
	e := s.lookup(domain)
	if e == nil {
		return model.StateIdle
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// List returns a copy of domain's discovered URLs in recording order.
func (s *Store) List(domain string) ([]string, model.CrawlState, error) {
	e := s.lookup(domain)
	if e == nil {
		return nil, model.StateIdle, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.urls))
	for i, u := range e.urls {
		out[i] = u.URL
	}
	return out, e.state, nil
}

// Count returns the number of discovered URLs for domain.
func (s *Store) Count(domain string) (int, model.CrawlState, error) {
	e := s.lookup(domain)
	if e == nil {
		return 0, model.StateIdle, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.urls), e.state, nil
}

// Snapshot returns a deep copy of domain's result. When withURLs is false
// the URL list is omitted but Count is still filled in.
func (s *Store) Snapshot(domain string, withURLs bool) (model.CrawlResult, error) {
	e := s.lookup(domain)
	if e == nil {
		return model.CrawlResult{}, ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	res := model.CrawlResult{
		Domain:     domain,
		CrawlID:    e.crawlID,
		State:      e.state,
		Error:      e.err,
		Count:      len(e.urls),
		Failed:     e.failed,
		Seen:       max(e.seen, len(e.urls)),
		StartedAt:  e.startedAt,
		FinishedAt: e.finishedAt,
	}
	if withURLs {
		res.URLs = make([]model.DiscoveredURL, len(e.urls))
		copy(res.URLs, e.urls)
	}
	return res, nil
}

// Domains returns every domain the store knows about, in no particular order.
func (s *Store) Domains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	return out
}
