package crawler

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/domaincrawl/internal/fetch"
	"github.com/nao1215/domaincrawl/internal/metrics"
	"github.com/nao1215/domaincrawl/internal/model"
)

const (
	// DefaultWorkers is the pool size when none is configured.
	DefaultWorkers = 16

	// DefaultRetries is the number of re-attempts after a failed fetch.
	DefaultRetries = 2

	// DefaultRetryDelay is the base backoff between attempts.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Fetcher performs one HTTP fetch. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Response, error)
}

// task is one URL handed from a supervisor to a worker.
type task struct {
	id  uint64
	url string

	// ctx cancels the fetch; it is the supervisor's crawl context.
	ctx context.Context

	// reply receives exactly one outcome unless done is closed first.
	reply chan<- model.FetchOutcome

	// done is closed when the supervisor stops listening.
	done <-chan struct{}
}

// Pool is the process-wide set of fetch workers. Supervisors of all crawls
// offer tasks on one unbuffered channel; Go serves blocked senders in
// arrival order, so a busy domain cannot starve a quiet one.
//
// Workers are stateless: a task carries its reply channel and every fact
// the supervisor needs comes back in the outcome.
type Pool struct {
	fetcher    Fetcher
	workers    int
	retries    int
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger

	tasks chan task

	startOnce sync.Once
	group     *errgroup.Group
	cancel    context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of workers. Values <= 0 keep the default.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRetries sets how many times a failed fetch is retried.
func WithRetries(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.retries = n
		}
	}
}

// WithRetryDelay sets the base backoff; the n-th retry waits n times d.
func WithRetryDelay(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d >= 0 {
			p.retryDelay = d
		}
	}
}

// WithPoolMetrics sets the metrics collector.
func WithPoolMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// WithPoolLogger sets the logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a pool around f. Call Start before dispatching.
func NewPool(f Fetcher, opts ...PoolOption) *Pool {
	p := &Pool{
		fetcher:    f,
		workers:    DefaultWorkers,
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
		tasks:      make(chan task),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the number of workers.
func (p *Pool) Workers() int {
	return p.workers
}

// Start launches the workers. They run until ctx is cancelled or Stop is
// called. Calling Start more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		ctx, p.cancel = context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(ctx)
		for i := range p.workers {
			g.Go(func() error {
				p.work(gctx, i)
				return nil
			})
		}
		p.group = g
	})
}

// Stop stops the workers and waits for them to exit. A worker in the
// middle of a task finishes it first; its fetch is cancelled only if the
// task's own context is.
func (p *Pool) Stop() error {
	if p.group == nil {
		return nil
	}
	p.cancel()
	return p.group.Wait()
}

// work is the loop of one worker.
func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			out := p.run(t, logger)
			select {
			case t.reply <- out:
			case <-t.done:
				logger.Debug("dropping outcome for finished crawl", "url", t.url)
			}
		}
	}
}

// run executes one task, converting a panic into a failed outcome.
func (p *Pool) run(t task, logger *slog.Logger) (out model.FetchOutcome) {
	start := time.Now()
	p.metrics.FetchStarted()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while fetching",
				"url", t.url,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			out = model.FetchOutcome{
				TaskID:   t.id,
				URL:      t.url,
				Attempts: max(out.Attempts, 1),
				Err:      fmt.Errorf("%w: %v", ErrWorkerPanic, r),
			}
		}
		out.Elapsed = time.Since(start)
		p.metrics.FetchFinished(resultLabel(out), out.Attempts, out.Elapsed)
	}()

	return p.fetchWithRetry(t, logger)
}

// fetchWithRetry fetches t.url up to retries+1 times.
func (p *Pool) fetchWithRetry(t task, logger *slog.Logger) model.FetchOutcome {
	out := model.FetchOutcome{TaskID: t.id, URL: t.url}

	for attempt := 1; attempt <= p.retries+1; attempt++ {
		if attempt > 1 {
			if !sleepCtx(t.ctx, time.Duration(attempt-1)*p.retryDelay) {
				break
			}
		}
		out.Attempts = attempt

		resp, err := p.fetcher.Fetch(t.ctx, t.url)
		if resp != nil {
			out.StatusCode = resp.StatusCode
			out.ContentType = resp.ContentType
			out.FinalURL = resp.FinalURL
		}
		if err == nil {
			out.Success = true
			out.Err = nil
			p.inspect(&out, resp, logger)
			return out
		}

		out.Err = err
		logger.Debug("fetch attempt failed",
			"url", t.url,
			"attempt", attempt,
			"error", err,
		)
		if t.ctx.Err() != nil {
			break
		}
	}
	return out
}

// inspect fills the digest and, for HTML, the links of a successful fetch.
func (p *Pool) inspect(out *model.FetchOutcome, resp *fetch.Response, logger *slog.Logger) {
	sum := sha3.Sum256(resp.Body)
	out.Digest = hex.EncodeToString(sum[:])

	if out.FinalURL == "" {
		out.FinalURL = out.URL
	}
	out.BaseURL = out.FinalURL

	if !resp.IsHTML() {
		return
	}

	ex, err := ExtractLinks(resp.Body, resp.ContentType)
	if err != nil {
		logger.Debug("failed to parse page", "url", out.URL, "error", err)
		return
	}
	out.Links = ex.Links
	if ex.Base != "" {
		if final, err := url.Parse(out.FinalURL); err == nil {
			if b, err := final.Parse(ex.Base); err == nil {
				out.BaseURL = b.String()
			}
		}
	}
}

// resultLabel maps an outcome to its metrics label.
func resultLabel(out model.FetchOutcome) string {
	switch {
	case out.Success:
		return metrics.ResultOK
	case errors.Is(out.Err, ErrWorkerPanic):
		return metrics.ResultPanic
	case errors.Is(out.Err, fetch.ErrStatus):
		return metrics.ResultStatus
	default:
		return metrics.ResultTransport
	}
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
