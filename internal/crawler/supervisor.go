package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/domaincrawl/internal/metrics"
	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/store"
)

// minLeaseCheck is the shortest interval between lease scans.
const minLeaseCheck = 10 * time.Millisecond

// lease tracks one dispatched task.
type lease struct {
	url      string
	deadline time.Time
}

// supervisor drives one crawl. It is the only goroutine touching its
// frontier and the only writer of its domain in the store.
type supervisor struct {
	domain  string
	crawlID string
	root    string

	norm     *Normalizer
	frontier *Frontier
	store    *store.Store

	tasks   chan<- task
	replies chan model.FetchOutcome
	done    chan struct{}

	maxInFlight  int
	leaseTimeout time.Duration
	outstanding  map[uint64]lease
	nextID       uint64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// supervisorConfig carries what the registry decides per crawl.
type supervisorConfig struct {
	domain       string
	crawlID      string
	scheme       string
	scope        Scope
	maxInFlight  int
	leaseTimeout time.Duration
}

func newSupervisor(cfg supervisorConfig, pool *Pool, st *store.Store, m *metrics.Metrics, logger *slog.Logger) *supervisor {
	maxInFlight := cfg.maxInFlight
	if maxInFlight <= 0 || maxInFlight > pool.Workers() {
		maxInFlight = pool.Workers()
	}
	return &supervisor{
		domain:       cfg.domain,
		crawlID:      cfg.crawlID,
		root:         RootURL(cfg.scheme, cfg.domain),
		norm:         NewNormalizer(cfg.domain, cfg.scope),
		frontier:     NewFrontier(cfg.scope.MaxPages),
		store:        st,
		tasks:        pool.tasks,
		replies:      make(chan model.FetchOutcome, maxInFlight),
		done:         make(chan struct{}),
		maxInFlight:  maxInFlight,
		leaseTimeout: cfg.leaseTimeout,
		outstanding:  make(map[uint64]lease),
		metrics:      m,
		logger:       logger.With("domain", cfg.domain, "crawl_id", cfg.crawlID),
	}
}

// run executes the crawl until the frontier is empty and nothing is
// outstanding, the root fails, or ctx is cancelled. It returns the terminal
// state and, for Failed, the reason.
func (s *supervisor) run(ctx context.Context) (model.CrawlState, error) {
	defer close(s.done)

	s.frontier.Push(s.root)
	s.store.SetSeen(s.domain, s.frontier.Seen())

	ticker := time.NewTicker(max(s.leaseTimeout/4, minLeaseCheck))
	defer ticker.Stop()

	var (
		pending  *task
		draining bool
		ctxDone  = ctx.Done()
	)

	for {
		// Cancellation can be observed through a reply before ctxDone is
		// selected; either way, stop dispatching at once.
		if !draining && ctx.Err() != nil {
			s.logger.Info("crawl cancelled, waiting for in-flight fetches", "in_flight", len(s.outstanding))
			draining = true
			ctxDone = nil
			pending = nil
		}
		if !draining && pending == nil && s.frontier.Len() == 0 && len(s.outstanding) == 0 {
			return model.StateCompleted, nil
		}
		if draining && len(s.outstanding) == 0 {
			return model.StateFailed, fmt.Errorf("%w: %w", ErrCrawlCancelled, context.Cause(ctx))
		}

		// A nil channel disables the send case while there is nothing to
		// dispatch or the per-domain cap is reached.
		var sendCh chan<- task
		if !draining && len(s.outstanding) < s.maxInFlight {
			if pending == nil {
				if u, ok := s.frontier.Pop(); ok {
					s.nextID++
					pending = &task{
						id:    s.nextID,
						url:   u,
						ctx:   ctx,
						reply: s.replies,
						done:  s.done,
					}
				}
			}
			if pending != nil {
				sendCh = s.tasks
			}
		}

		var next task
		if pending != nil {
			next = *pending
		}

		select {
		case sendCh <- next:
			s.outstanding[next.id] = lease{url: next.url, deadline: time.Now().Add(s.leaseTimeout)}
			pending = nil

		case out := <-s.replies:
			if _, ok := s.outstanding[out.TaskID]; !ok {
				s.logger.Debug("ignoring outcome of expired task", "url", out.URL)
				continue
			}
			delete(s.outstanding, out.TaskID)
			if ctx.Err() != nil && !out.Success && errors.Is(out.Err, context.Canceled) {
				continue
			}
			if err := s.handle(out); err != nil {
				return model.StateFailed, err
			}

		case now := <-ticker.C:
			if err := s.expireLeases(now); err != nil {
				return model.StateFailed, err
			}

		case <-ctxDone:
			// Handled at the top of the loop.
		}
	}
}

// handle records an outcome and enqueues the new links it carries.
// It returns an error only when the crawl must end Failed.
func (s *supervisor) handle(out model.FetchOutcome) error {
	if !out.Success && out.URL == s.root {
		return fmt.Errorf("%w: %s: %w", ErrRootUnreachable, s.root, out.Err)
	}

	if s.store.Record(s.domain, out.Discovered(time.Now())) {
		s.metrics.URLDiscovered()
	}
	if !out.Success {
		s.logger.Debug("page failed", "url", out.URL, "status", out.StatusCode, "error", out.Err)
		return nil
	}

	baseURL := out.BaseURL
	if baseURL == "" {
		baseURL = out.URL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	added := 0
	for _, raw := range out.Links {
		u, err := s.norm.Normalize(base, raw)
		if err != nil {
			continue
		}
		if s.frontier.Push(u) {
			added++
		}
	}
	if added > 0 {
		s.store.SetSeen(s.domain, s.frontier.Seen())
	}
	s.logger.Debug("page crawled", "url", out.URL, "links", len(out.Links), "new", added)
	return nil
}

// expireLeases fails every task whose lease deadline has passed.
func (s *supervisor) expireLeases(now time.Time) error {
	for id, l := range s.outstanding {
		if now.Before(l.deadline) {
			continue
		}
		delete(s.outstanding, id)
		s.metrics.LeaseExpired()
		s.logger.Warn("task lease expired", "url", l.url, "timeout", s.leaseTimeout)

		if err := s.handle(model.FetchOutcome{
			TaskID:   id,
			URL:      l.url,
			Attempts: 1,
			Err:      ErrLeaseExpired,
		}); err != nil {
			return err
		}
	}
	return nil
}
