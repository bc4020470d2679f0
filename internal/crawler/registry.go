package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/domaincrawl/internal/metrics"
	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/store"
)

// RestartPolicy decides what StartCrawl does for a finished domain.
type RestartPolicy string

const (
	// PolicyRestart discards the previous result and crawls again.
	PolicyRestart RestartPolicy = "restart"

	// PolicyCached keeps the previous result and reports its state.
	PolicyCached RestartPolicy = "cached"
)

// DefaultLeaseTimeout is used when no lease timeout is configured.
const DefaultLeaseTimeout = time.Minute

// FinishFunc is called once for every crawl that reaches a terminal state,
// with a snapshot that includes the URL list.
type FinishFunc func(res model.CrawlResult)

// ScopeFunc returns the per-site scope of a canonical domain.
type ScopeFunc func(domain string) Scope

// run is a crawl in progress.
type run struct {
	sup  *supervisor
	done chan struct{}
}

// Registry maps domains to their crawls. It guarantees at most one running
// crawl per domain and applies the restart policy to finished ones.
type Registry struct {
	mu      sync.Mutex
	running map[string]*run
	closed  bool

	pool  *Pool
	store *store.Store

	scheme         string
	policy         RestartPolicy
	perDomainLimit int
	leaseTimeout   time.Duration
	maxPages       int
	scopeFor       ScopeFunc
	onFinish       []FinishFunc

	metrics *metrics.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithScheme sets the scheme of root URLs (http or https).
func WithScheme(scheme string) RegistryOption {
	return func(r *Registry) {
		if scheme != "" {
			r.scheme = scheme
		}
	}
}

// WithRestartPolicy sets the restart policy.
func WithRestartPolicy(p RestartPolicy) RegistryOption {
	return func(r *Registry) {
		if p != "" {
			r.policy = p
		}
	}
}

// WithPerDomainLimit caps the in-flight fetches of one crawl. Zero means
// the whole pool.
func WithPerDomainLimit(n int) RegistryOption {
	return func(r *Registry) {
		r.perDomainLimit = n
	}
}

// WithLeaseTimeout sets how long a supervisor waits for one task.
func WithLeaseTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.leaseTimeout = d
		}
	}
}

// WithMaxPages caps the visited set of every crawl unless the site's scope
// sets its own cap.
func WithMaxPages(n int) RegistryOption {
	return func(r *Registry) {
		r.maxPages = n
	}
}

// WithScopeFunc sets the per-site scope lookup.
func WithScopeFunc(f ScopeFunc) RegistryOption {
	return func(r *Registry) {
		r.scopeFor = f
	}
}

// WithFinishFunc adds a callback run when a crawl reaches a terminal state.
func WithFinishFunc(f FinishFunc) RegistryOption {
	return func(r *Registry) {
		r.onFinish = append(r.onFinish, f)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a Registry dispatching to pool and recording into st.
// Crawls run until they finish or ctx is cancelled.
func NewRegistry(ctx context.Context, pool *Pool, st *store.Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		running:      make(map[string]*run),
		pool:         pool,
		store:        st,
		scheme:       "http",
		policy:       PolicyRestart,
		leaseTimeout: DefaultLeaseTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	return r
}

// Canonical validates domain and returns the name the registry keys it by.
func (r *Registry) Canonical(domain string) (string, error) {
	return ParseDomain(domain, r.scheme)
}

// StartCrawl starts crawling domain, or reports why it did not:
//   - a running crawl is left alone and Running is returned
//   - a finished crawl is restarted (PolicyRestart) or its terminal state
//     returned (PolicyCached)
//   - an unknown domain starts a new crawl
//
// It never blocks on the crawl itself.
func (r *Registry) StartCrawl(domain string) (model.CrawlState, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return model.StateIdle, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return model.StateIdle, ErrRegistryClosed
	}
	if _, ok := r.running[d]; ok {
		return model.StateRunning, nil
	}
	if st := r.store.State(d); st.Terminal() && r.policy == PolicyCached {
		return st, nil
	}

	scope := Scope{MaxPages: r.maxPages}
	if r.scopeFor != nil {
		scope = r.scopeFor(d)
		if scope.MaxPages == 0 {
			scope.MaxPages = r.maxPages
		}
	}

	crawlID := uuid.NewString()
	r.store.Begin(d, crawlID)

	sup := newSupervisor(supervisorConfig{
		domain:       d,
		crawlID:      crawlID,
		scheme:       r.scheme,
		scope:        scope,
		maxInFlight:  r.perDomainLimit,
		leaseTimeout: r.leaseTimeout,
	}, r.pool, r.store, r.metrics, r.logger)

	cr := &run{sup: sup, done: make(chan struct{})}
	r.running[d] = cr
	r.metrics.CrawlStarted()
	r.logger.Info("crawl started", "domain", d, "crawl_id", crawlID)

	r.wg.Add(1)
	go r.execute(d, cr)

	return model.StateRunning, nil
}

// execute runs a supervisor and publishes its terminal state.
func (r *Registry) execute(domain string, cr *run) {
	defer r.wg.Done()
	defer close(cr.done)

	state, err := cr.sup.run(r.ctx)

	// Finishing and leaving the running set happen under the registry lock
	// so a concurrent StartCrawl sees either Running or the terminal state.
	r.mu.Lock()
	r.store.Finish(domain, state, err)
	delete(r.running, domain)
	res, snapErr := r.store.Snapshot(domain, true)
	r.mu.Unlock()

	if snapErr != nil {
		r.logger.Error("failed to snapshot finished crawl", "domain", domain, "error", snapErr)
		return
	}

	r.metrics.CrawlFinished(state, res.Duration())
	attrs := []any{
		"domain", domain,
		"crawl_id", res.CrawlID,
		"state", state.String(),
		"count", res.Count,
		"failed", res.Failed,
		"duration", res.Duration().Round(time.Millisecond),
	}
	if err != nil {
		r.logger.Warn("crawl failed", append(attrs, "error", err)...)
	} else {
		r.logger.Info("crawl completed", attrs...)
	}

	for _, f := range r.onFinish {
		f(res)
	}
}

// State returns the state of domain; Idle for a domain never crawled.
func (r *Registry) State(domain string) (model.CrawlState, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return model.StateIdle, err
	}
	return r.store.State(d), nil
}

// Result returns the full result of domain, including the URL list.
func (r *Registry) Result(domain string) (model.CrawlResult, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return model.CrawlResult{}, err
	}
	return r.store.Snapshot(d, true)
}

// Status returns the result of domain without the URL list.
func (r *Registry) Status(domain string) (model.CrawlResult, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return model.CrawlResult{}, err
	}
	return r.store.Snapshot(d, false)
}

// URLs returns the discovered URLs of domain and the crawl state.
func (r *Registry) URLs(domain string) ([]string, model.CrawlState, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return nil, model.StateIdle, err
	}
	return r.store.List(d)
}

// Count returns the number of discovered URLs of domain and the crawl state.
func (r *Registry) Count(domain string) (int, model.CrawlState, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return 0, model.StateIdle, err
	}
	return r.store.Count(d)
}

// Running returns the number of crawls in progress.
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Await blocks until domain's crawl is no longer running, then returns its
// result. It returns ErrNotFound for a domain never started.
func (r *Registry) Await(ctx context.Context, domain string) (model.CrawlResult, error) {
	d, err := r.Canonical(domain)
	if err != nil {
		return model.CrawlResult{}, err
	}

	r.mu.Lock()
	cr, ok := r.running[d]
	r.mu.Unlock()

	if ok {
		select {
		case <-cr.done:
		case <-ctx.Done():
			return model.CrawlResult{}, ctx.Err()
		}
	}
	return r.store.Snapshot(d, true)
}

// Shutdown stops accepting crawls, cancels running ones and waits for them
// to record their partial results, or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for crawls to stop: %w", ctx.Err())
	}
}
