package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultListenAddress is where the HTTP front end listens.
	// Binding to loopback keeps an unauthenticated crawl trigger off the network
	// unless the operator asks for it.
	DefaultListenAddress = "127.0.0.1:3030"

	// DefaultWorkers is the size of the process-wide fetch worker pool.
	// It bounds the number of concurrent HTTP fetches across all crawls.
	DefaultWorkers = 16

	// DefaultFetchTimeout bounds a single fetch attempt, including reading the body.
	DefaultFetchTimeout = 10 * time.Second

	// DefaultRetries is the number of extra attempts after a failed fetch.
	DefaultRetries = 2

	// DefaultRetryDelay is the base backoff between attempts. The n-th retry
	// waits n times this value.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "domaincrawl/1.0 (+https://github.com/nao1215/domaincrawl)"

	// DefaultScheme is used to build the root URL of a crawl.
	DefaultScheme = "http"

	// DefaultLogFormat is the slog handler used when --log-format is not set.
	DefaultLogFormat = "text"

	// AppName is the application name used for XDG directory paths.
	AppName = "domaincrawl"

	// leaseGrace is added on top of the worst-case task time when deriving
	// the lease timeout.
	leaseGrace = 5 * time.Second
)

// Restart policies for a domain whose crawl has already finished.
const (
	// RestartPolicyRestart discards the previous result and crawls again.
	RestartPolicyRestart = "restart"

	// RestartPolicyCached keeps the previous result and reports its state.
	RestartPolicyCached = "cached"
)

// Config holds all configuration options for domaincrawl.
// It is populated from CLI flags and the optional config file, then passed
// down by the command layer. Nothing below cmd/ reads it directly; each
// package receives the values it needs through its own options.
//
// Design decision: a single flat struct like the rest of the CLI. Only a
// few options are specific to one subcommand and grouping them would add
// indirection without making anything clearer.
type Config struct {
	// ListenAddress is the host:port the HTTP server binds to (serve only).
	ListenAddress string

	// Workers is the number of fetch workers shared by all crawls.
	Workers int

	// PerDomainLimit caps the in-flight fetches of one crawl.
	// Zero means the cap equals Workers.
	PerDomainLimit int

	// FetchTimeout bounds a single fetch attempt.
	FetchTimeout time.Duration

	// Retries is the number of re-attempts after a failed fetch.
	Retries int

	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration

	// LeaseTimeout is how long a supervisor waits for a dispatched task
	// before treating it as failed. Zero derives it from the fetch settings.
	LeaseTimeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string

	// Scheme is the scheme of the root URL, http or https.
	Scheme string

	// RestartPolicy decides what StartCrawl does on a finished domain.
	RestartPolicy string

	// MaxPages caps the number of URLs a single crawl will enqueue.
	// Zero means unlimited. Per-site values from the config file take precedence.
	MaxPages int

	// IncludeSubdomains treats subdomains of the crawled host as same-domain.
	IncludeSubdomains bool

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string

	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool

	// Archive saves every finished crawl into the SQLite history database.
	Archive bool

	// DBDir is the directory of the history database.
	// Defaults to XDG data directory (~/.local/share/domaincrawl on Linux).
	DBDir string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat selects the log handler: text or json.
	LogFormat string

	// ConfigFilePath is an explicit path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds per-site configuration loaded from the config file.
	SiteConfigs *File

	// JSONReport selects JSON output for the crawl command.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output for the crawl command.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the crawl report to a file instead of stdout.
	ReportFile string

	// Progress shows live progress bars during a one-shot crawl.
	Progress bool

	// FailedOnly limits the text report to URLs whose fetch failed.
	FailedOnly bool

	// Targets is the list of domains given to the crawl command.
	Targets []string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., workers, timeouts).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		Workers:       DefaultWorkers,
		FetchTimeout:  DefaultFetchTimeout,
		Retries:       DefaultRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxBodySize:   DefaultMaxBodySize,
		UserAgent:     DefaultUserAgent,
		Scheme:        DefaultScheme,
		RestartPolicy: RestartPolicyRestart,
		Metrics:       true,
		LogFormat:     DefaultLogFormat,
		DBDir:         XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for domaincrawl.
// On Linux: ~/.local/share/domaincrawl
// On macOS: ~/Library/Application Support/domaincrawl
// On Windows: %LOCALAPPDATA%\domaincrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for domaincrawl.
// On Linux: ~/.config/domaincrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectivePerDomainLimit returns the per-crawl in-flight cap,
// resolving zero to the pool size.
func (c *Config) EffectivePerDomainLimit() int {
	if c.PerDomainLimit <= 0 || c.PerDomainLimit > c.Workers {
		return c.Workers
	}
	return c.PerDomainLimit
}

// EffectiveLeaseTimeout returns LeaseTimeout, or when it is zero, the worst
// case time one task can legitimately take: every attempt timing out plus
// every backoff, plus a grace period.
func (c *Config) EffectiveLeaseTimeout() time.Duration {
	if c.LeaseTimeout > 0 {
		return c.LeaseTimeout
	}
	attempts := time.Duration(c.Retries + 1)
	var backoff time.Duration
	for i := 1; i <= c.Retries; i++ {
		backoff += time.Duration(i) * c.RetryDelay
	}
	return attempts*c.FetchTimeout + backoff + leaseGrace
}

// Validate checks if the configuration is valid.
// It returns the first error found.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.PerDomainLimit < 0 {
		return ErrInvalidPerDomainLimit
	}

	if c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}

	if c.LeaseTimeout < 0 {
		return ErrInvalidLeaseTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	switch strings.ToLower(c.Scheme) {
	case "http", "https":
	default:
		return ErrInvalidScheme
	}

	switch c.RestartPolicy {
	case RestartPolicyRestart, RestartPolicyCached:
	default:
		return ErrInvalidRestartPolicy
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	return nil
}

// ValidateCrawl validates the configuration for a one-shot crawl, which
// additionally requires at least one target domain.
func (c *Config) ValidateCrawl() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.Validate()
}
