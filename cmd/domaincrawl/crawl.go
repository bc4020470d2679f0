package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/domaincrawl/internal/config"
	"github.com/nao1215/domaincrawl/internal/crawler"
	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/report"
)

// progressInterval is how often progress bars poll crawl status.
const progressInterval = 200 * time.Millisecond

// errCrawlsFailed is returned when at least one crawl ends Failed, so the
// process exits with a non-zero status.
var errCrawlsFailed = errors.New("crawl failed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [domain]...",
		Short: "Crawl one or more domains and print a report",
		Long: `Crawl runs the crawl engine in-process, crawls the given domains
concurrently and prints a report once every crawl has finished.

A domain is a host name, optionally with a port. A pasted URL such as
https://example.com/ is accepted and reduced to its host.

The command exits with a non-zero status if any crawl fails.

Examples:
  # Crawl a single domain
  domaincrawl crawl example.com

  # Crawl several domains with progress bars
  domaincrawl crawl --progress example.com example.org

  # Crawl over HTTPS and stop after 200 URLs
  domaincrawl crawl --scheme https -p 200 example.com

  # Write a Markdown report to a file
  domaincrawl crawl -m -o reports/example.md example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addEngineFlags(cmd)

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("progress", false,
		"Show a progress bar per domain on stderr")
	cmd.Flags().Bool("failed-only", false,
		"List only failed URLs in the text report")

	// One-shot crawls have nobody to scrape them.
	cmd.Flags().Bool("metrics", false, "Collect Prometheus metrics")
	_ = cmd.Flags().MarkHidden("metrics") //nolint:errcheck // flag is defined above

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCrawl(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(os.Stderr, cfg, slog.LevelWarn)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// runCrawl crawls cfg.Targets and writes the report to stdout, or to
// cfg.ReportFile when set.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) (err error) {
	if len(cfg.Targets) == 0 {
		return config.ErrNoTarget
	}

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		defer cancel()
		err = errors.Join(err, eng.close(closeCtx))
	}()

	domains, err := canonicalTargets(eng.registry, cfg.Targets)
	if err != nil {
		return err
	}

	logger.Info("starting crawl", "domains", domains, "workers", cfg.Workers)

	var progress *mpb.Progress
	if cfg.Progress {
		progress = mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	}

	results := make([]model.CrawlResult, len(domains))
	var g errgroup.Group
	for i, d := range domains {
		bar := newProgressBar(progress, d)
		g.Go(func() error {
			if _, err := eng.registry.StartCrawl(d); err != nil {
				abortBar(bar)
				return fmt.Errorf("failed to start crawl of %s: %w", d, err)
			}
			res, err := awaitCrawl(ctx, eng.registry, d, bar)
			if err != nil {
				return fmt.Errorf("failed to wait for crawl of %s: %w", d, err)
			}
			results[i] = res
			return nil
		})
	}
	waitErr := g.Wait()
	if progress != nil {
		progress.Wait()
	}
	if waitErr != nil {
		return waitErr
	}

	if err := outputReport(cfg, stdout, results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	var failed int
	for _, res := range results {
		if res.State == model.StateFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d domains", errCrawlsFailed, failed, len(results))
	}
	return nil
}

// canonicalTargets validates the targets and removes duplicates,
// keeping the order in which they were given.
func canonicalTargets(reg *crawler.Registry, targets []string) ([]string, error) {
	seen := make(map[string]bool, len(targets))
	domains := make([]string, 0, len(targets))
	for _, target := range targets {
		d, err := reg.Canonical(target)
		if err != nil {
			return nil, fmt.Errorf("invalid domain %q: %w", target, err)
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	return domains, nil
}

// newProgressBar adds a bar counting discovered URLs against the visited
// set. It returns nil when progress is nil.
func newProgressBar(progress *mpb.Progress, domain string) *mpb.Bar {
	if progress == nil {
		return nil
	}
	return progress.New(0,
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Name(domain, decor.WCSyncWidthR),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("[%d / %d]", decor.WCSyncWidth),
			decor.OnComplete(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace), "done",
			),
		),
	)
}

func abortBar(bar *mpb.Bar) {
	if bar != nil {
		bar.Abort(false)
	}
}

// awaitCrawl waits for the crawl of domain to finish, updating bar while
// it runs. Cancelling ctx cancels the crawl through the registry, so the
// wait itself ignores it and returns the partial result.
func awaitCrawl(ctx context.Context, reg *crawler.Registry, domain string, bar *mpb.Bar) (model.CrawlResult, error) {
	waitCtx := context.WithoutCancel(ctx)
	if bar == nil {
		return reg.Await(waitCtx, domain)
	}

	type awaited struct {
		res model.CrawlResult
		err error
	}
	done := make(chan awaited, 1)
	go func() {
		res, err := reg.Await(waitCtx, domain)
		done <- awaited{res, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case a := <-done:
			if a.err != nil {
				abortBar(bar)
				return a.res, a.err
			}
			bar.SetCurrent(int64(a.res.Count))
			bar.SetTotal(-1, true)
			return a.res, nil
		case <-ticker.C:
			st, err := reg.Status(domain)
			if err != nil {
				continue
			}
			bar.SetTotal(int64(st.Seen), false)
			bar.SetCurrent(int64(st.Count))
		}
	}
}

// outputReport writes the results in the requested format.
func outputReport(cfg *config.Config, stdout io.Writer, results []model.CrawlResult) error {
	output := stdout
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may reveal authenticated pages, so only the owner can read them.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	_, err := newReportWriter(cfg, output).WriteAll(results)
	return err
}

// newReportWriter picks the report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output,
			report.WithVerbose(cfg.Verbose),
			report.WithShowEmpty(cfg.Verbose),
			report.WithFailedOnly(cfg.FailedOnly),
		)
	}
}
