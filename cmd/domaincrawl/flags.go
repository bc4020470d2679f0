package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/domaincrawl/internal/config"
	applog "github.com/nao1215/domaincrawl/internal/log"
)

// addEngineFlags registers the flags shared by every command that runs
// crawls in-process.
func addEngineFlags(cmd *cobra.Command) {
	// Worker pool flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of fetch workers shared by all crawls")
	cmd.Flags().Int("per-domain-limit", 0,
		"Maximum in-flight fetches of one crawl (0 = number of workers)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultFetchTimeout,
		"Timeout for each fetch attempt")
	cmd.Flags().Int("retries", config.DefaultRetries,
		"Retries after a failed fetch attempt")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Base delay between retries (grows linearly per attempt)")
	cmd.Flags().Duration("lease-timeout", 0,
		"How long a crawl waits for one fetch before giving up on it (0 = derived from timeout and retries)")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of body bytes read per page")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().StringP("proxy", "x", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")

	// Crawl behavior flags
	cmd.Flags().String("scheme", config.DefaultScheme,
		"Scheme of the root URL: http or https")
	cmd.Flags().String("restart-policy", config.RestartPolicyRestart,
		"What a new request does for a finished domain: restart or cached")
	cmd.Flags().IntP("max-pages", "p", 0,
		"Maximum number of URLs visited per domain (0 = unlimited)")
	cmd.Flags().Bool("include-subdomains", false,
		"Treat subdomains as part of the crawled domain")

	// Archive flags
	cmd.Flags().BoolP("archive", "a", false,
		"Save every finished crawl to the history database")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
}

// flagReader reads flag values into a Config, keeping the first error.
// Flags the command does not define are left at their defaults.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (r *flagReader) skip(name string) bool {
	return r.err != nil || r.cmd.Flags().Lookup(name) == nil
}

func (r *flagReader) stringVar(name string, dst *string) {
	if r.skip(name) {
		return
	}
	*dst, r.err = r.cmd.Flags().GetString(name)
}

func (r *flagReader) boolVar(name string, dst *bool) {
	if r.skip(name) {
		return
	}
	*dst, r.err = r.cmd.Flags().GetBool(name)
}

func (r *flagReader) intVar(name string, dst *int) {
	if r.skip(name) {
		return
	}
	*dst, r.err = r.cmd.Flags().GetInt(name)
}

func (r *flagReader) int64Var(name string, dst *int64) {
	if r.skip(name) {
		return
	}
	*dst, r.err = r.cmd.Flags().GetInt64(name)
}

func (r *flagReader) durationVar(name string, dst *time.Duration) {
	if r.skip(name) {
		return
	}
	*dst, r.err = r.cmd.Flags().GetDuration(name)
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	r := &flagReader{cmd: cmd}
	r.boolVar("verbose", &cfg.Verbose)
	r.stringVar("log-format", &cfg.LogFormat)
	r.stringVar("config", &cfg.ConfigFilePath)

	r.stringVar("listen", &cfg.ListenAddress)
	r.boolVar("metrics", &cfg.Metrics)

	r.intVar("workers", &cfg.Workers)
	r.intVar("per-domain-limit", &cfg.PerDomainLimit)
	r.durationVar("timeout", &cfg.FetchTimeout)
	r.intVar("retries", &cfg.Retries)
	r.durationVar("retry-delay", &cfg.RetryDelay)
	r.durationVar("lease-timeout", &cfg.LeaseTimeout)
	r.int64Var("max-body-size", &cfg.MaxBodySize)
	r.stringVar("user-agent", &cfg.UserAgent)
	r.stringVar("proxy", &cfg.ProxyAddress)

	r.stringVar("scheme", &cfg.Scheme)
	r.stringVar("restart-policy", &cfg.RestartPolicy)
	r.intVar("max-pages", &cfg.MaxPages)
	r.boolVar("include-subdomains", &cfg.IncludeSubdomains)

	r.boolVar("archive", &cfg.Archive)
	r.stringVar("db-dir", &cfg.DBDir)

	r.boolVar("json", &cfg.JSONReport)
	r.boolVar("markdown", &cfg.MarkdownReport)
	r.stringVar("output", &cfg.ReportFile)
	r.boolVar("progress", &cfg.Progress)
	r.boolVar("failed-only", &cfg.FailedOnly)
	if r.err != nil {
		return nil, r.err
	}

	sites, err := loadSiteConfigs(cfg.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	cfg.SiteConfigs = sites
	if sites.Archive {
		cfg.Archive = true
	}

	cfg.Targets = args
	return cfg, nil
}

// loadSiteConfigs loads the configuration file.
// If the user explicitly specified a path, a missing file is an error.
// Otherwise an empty configuration is used when no file is found.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	if configPath == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	sites, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return sites, nil
}

// setupLogger creates the process logger and installs it as the default.
// quiet is the level used without --verbose.
func setupLogger(w io.Writer, cfg *config.Config, quiet slog.Level) *slog.Logger {
	logger := applog.New(w, cfg.LogFormat, applog.Level(cfg.Verbose, quiet))
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
