package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nao1215/domaincrawl/internal/archive"
	"github.com/nao1215/domaincrawl/internal/config"
	"github.com/nao1215/domaincrawl/internal/crawler"
	"github.com/nao1215/domaincrawl/internal/fetch"
	"github.com/nao1215/domaincrawl/internal/metrics"
	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/store"
)

// archiveSaveTimeout bounds the write of one finished crawl.
const archiveSaveTimeout = 30 * time.Second

// engine is the set of components one domaincrawl process runs:
// a fetch client, the worker pool, the crawl registry and, optionally,
// the metrics collector and the history archive.
type engine struct {
	registry *crawler.Registry
	pool     *crawler.Pool
	metrics  *metrics.Metrics
	archive  *archive.DB
	logger   *slog.Logger
}

// newEngine wires the components described by cfg. Crawls run until they
// finish or ctx is cancelled; close releases everything.
func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine, error) {
	e := &engine{logger: logger}
	if cfg.Metrics {
		e.metrics = metrics.New()
	}

	client, err := fetch.NewClient(cfg.FetchTimeout,
		fetch.WithLogger(logger),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithProxy(cfg.ProxyAddress),
		fetch.WithSiteResolver(siteResolver(cfg.SiteConfigs)),
		fetch.WithMaxConnsPerHost(cfg.EffectivePerDomainLimit()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch client: %w", err)
	}
	if err := client.CheckProxy(ctx); err != nil {
		return nil, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
			err, cfg.ProxyAddress)
	}

	regOpts := []crawler.RegistryOption{
		crawler.WithScheme(strings.ToLower(cfg.Scheme)),
		crawler.WithRestartPolicy(crawler.RestartPolicy(cfg.RestartPolicy)),
		crawler.WithPerDomainLimit(cfg.PerDomainLimit),
		crawler.WithLeaseTimeout(cfg.EffectiveLeaseTimeout()),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithScopeFunc(scopeFunc(cfg)),
		crawler.WithMetrics(e.metrics),
		crawler.WithLogger(logger),
	}

	if cfg.Archive {
		e.archive, err = archive.Open(cfg.DBDir, archive.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		logger.Info("archive opened", "path", e.archive.Path())
		regOpts = append(regOpts, crawler.WithFinishFunc(e.saveCrawl))
	}

	e.pool = crawler.NewPool(client,
		crawler.WithWorkers(cfg.Workers),
		crawler.WithRetries(cfg.Retries),
		crawler.WithRetryDelay(cfg.RetryDelay),
		crawler.WithPoolMetrics(e.metrics),
		crawler.WithPoolLogger(logger),
	)
	e.pool.Start(ctx)

	e.registry = crawler.NewRegistry(ctx, e.pool, store.New(), regOpts...)
	return e, nil
}

// saveCrawl appends a finished crawl to the archive.
func (e *engine) saveCrawl(res model.CrawlResult) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveSaveTimeout)
	defer cancel()

	id, err := e.archive.SaveCrawl(ctx, res)
	if err != nil {
		e.logger.Error("failed to archive crawl", "domain", res.Domain, "crawl_id", res.CrawlID, "error", err)
		return
	}
	e.logger.Debug("crawl archived", "domain", res.Domain, "crawl_id", res.CrawlID, "run_id", id)
}

// close stops the crawls, then the workers, then the archive.
func (e *engine) close(ctx context.Context) error {
	var errs []error
	if err := e.registry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.pool.Stop(); err != nil {
		errs = append(errs, err)
	}
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close archive: %w", err))
		}
	}
	return errors.Join(errs...)
}

// siteConfigFor returns the merged site configuration of a host, which may
// carry a port. A site entry written with the port wins over one without.
func siteConfigFor(cf *config.File, host string) config.SiteConfig {
	if cf == nil {
		return config.SiteConfig{}
	}
	if _, ok := cf.Sites[host]; !ok {
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
	}
	return cf.GetSiteConfig(host)
}

// siteResolver injects the configured cookie and headers of the host each
// request goes to.
func siteResolver(cf *config.File) fetch.SiteResolver {
	if cf == nil {
		return nil
	}
	return func(host string) fetch.SiteHeaders {
		sc := siteConfigFor(cf, strings.ToLower(host))
		return fetch.SiteHeaders{Cookie: sc.Cookie, Headers: sc.Headers}
	}
}

// scopeFunc maps a canonical domain to its crawl scope. The global
// --include-subdomains flag applies to every site.
func scopeFunc(cfg *config.Config) crawler.ScopeFunc {
	return func(domain string) crawler.Scope {
		sc := siteConfigFor(cfg.SiteConfigs, domain)
		return crawler.Scope{
			IncludeSubdomains: cfg.IncludeSubdomains || sc.IncludeSubdomains,
			IgnorePatterns:    sc.IgnorePatterns,
			FollowPatterns:    sc.FollowPatterns,
			MaxPages:          sc.MaxPages,
		}
	}
}
