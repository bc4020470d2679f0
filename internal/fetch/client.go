package fetch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultTimeout bounds one fetch attempt when no timeout is given.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodySize is the number of body bytes read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// maxRedirects stops redirect loops while allowing normal redirect chains.
	maxRedirects = 10

	// acceptHeader prefers HTML; other types are still accepted and simply
	// produce no links.
	acceptHeader = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

// Response is what a successful or non-2xx fetch yields.
type Response struct {
	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the raw Content-Type header.
	ContentType string

	// Body is at most MaxBodySize bytes of the response body.
	Body []byte

	// FinalURL is the URL after redirects.
	FinalURL string
}

// IsHTML reports whether the response declares an HTML content type.
func (r *Response) IsHTML() bool {
	return IsHTML(r.ContentType)
}

// IsHTML reports whether a Content-Type header value denotes HTML.
// Both text/html and application/xhtml+xml qualify.
func IsHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

// Client fetches pages over HTTP(S). It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	timeout      time.Duration
	maxBodySize  int64
	userAgent    string
	proxyAddress string
	resolver     SiteResolver
	maxConns     int
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBodySize limits how many body bytes are read. Values <= 0 keep the default.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithProxy routes every connection through a SOCKS5 proxy.
// An empty address means direct connections.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithSiteResolver injects per-site cookies and headers.
func WithSiteResolver(r SiteResolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithMaxConnsPerHost sizes the idle connection pool per host. It should
// match the number of workers that may hit one host at once.
func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConns = n
		}
	}
}

// NewClient creates a Client whose attempts are bounded by timeout.
// It returns ErrInvalidProxyAddress when WithProxy was given an unusable address.
func NewClient(timeout time.Duration, opts ...Option) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		timeout:     timeout,
		maxBodySize: DefaultMaxBodySize,
		maxConns:    2,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   c.maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
	if c.proxyAddress != "" {
		addr, dialer, err := parseProxy(c.proxyAddress)
		if err != nil {
			return nil, err
		}
		c.proxyAddress = addr
		transport.DialContext = dialContextFunc(dialer)
	}

	// The jar is shared by all crawls; public suffix rules keep a site from
	// setting cookies for a whole registry-controlled domain.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}) //nolint:errcheck // cookiejar.New never fails

	c.httpClient = &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: c.userAgent,
			resolve:   c.resolver,
		},
		Jar: jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return c, nil
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Fetch performs one GET of rawURL bounded by the client timeout.
//
// On a 2xx response it returns the response and nil. On any other status it
// returns the response (without body) and an error wrapping ErrStatus.
// Anything that prevented a complete response yields a nil response and an
// error wrapping ErrTransport, including cancellation of ctx.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    rawURL,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort
		return out, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, transportError(err)
	}
	out.Body = body

	c.logger.Debug("fetched page",
		"url", rawURL,
		"final_url", out.FinalURL,
		"status", out.StatusCode,
		"bytes", len(body),
	)
	return out, nil
}
