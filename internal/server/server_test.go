package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/domaincrawl/internal/crawler"
	"github.com/nao1215/domaincrawl/internal/fetch"
	"github.com/nao1215/domaincrawl/internal/metrics"
	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newSite serves a three page site and returns its domain.
func newSite(t *testing.T) (string, string) {
	t.Helper()
	pages := map[string]string{
		"/":  `<a href="/a">a</a><a href="/b">b</a>`,
		"/a": `<a href="/">home</a>`,
		"/b": `<a href="/missing">broken</a>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body)) //nolint:errcheck // test server
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://"), srv.URL
}

// newAPI wires a registry behind a test HTTP server.
func newAPI(t *testing.T, opts ...Option) (*httptest.Server, *crawler.Registry) {
	t.Helper()
	client, err := fetch.NewClient(5*time.Second, fetch.WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	pool := crawler.NewPool(client, crawler.WithWorkers(4), crawler.WithRetries(0), crawler.WithPoolLogger(discardLogger()))
	pool.Start(context.Background())
	reg := crawler.NewRegistry(context.Background(), pool, store.New(), crawler.WithLogger(discardLogger()))

	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	api := httptest.NewServer(New(reg, opts...).Handler())
	t.Cleanup(func() {
		api.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx) //nolint:errcheck // best effort in tests
		_ = pool.Stop()       //nolint:errcheck // workers never fail
	})
	return api, reg
}

// call performs a request and decodes a JSON body into out when non-nil.
func call(t *testing.T, method, url string, out any) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("invalid JSON from %s: %v\n%s", url, err, body)
		}
	}
	return resp.StatusCode, string(body)
}

func TestPlainEndpoints(t *testing.T) {
	t.Parallel()

	api, _ := newAPI(t)

	code, body := call(t, http.MethodGet, api.URL+"/", nil)
	if code != http.StatusOK || !strings.Contains(body, "nothing to see here") {
		t.Errorf("GET / = %d %q", code, body)
	}
	code, body = call(t, http.MethodGet, api.URL+"/healthz", nil)
	if code != http.StatusOK || body != "ok\n" {
		t.Errorf("GET /healthz = %d %q", code, body)
	}
	if code, _ := call(t, http.MethodGet, api.URL+"/nope", nil); code != http.StatusNotFound {
		t.Errorf("unknown path returned %d", code)
	}
	if code, _ := call(t, http.MethodGet, api.URL+"/metrics", nil); code != http.StatusNotFound {
		t.Errorf("metrics should be off by default, got %d", code)
	}
	if code, _ := call(t, http.MethodDelete, api.URL+"/crawl/example.com", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /crawl returned %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	api, reg := newAPI(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "malformed crawl", path: "/crawl/bad%20domain", want: http.StatusBadRequest},
		{name: "malformed urls", path: "/urls/a@b", want: http.StatusBadRequest},
		{name: "unknown urls", path: "/urls/never.example", want: http.StatusNotFound},
		{name: "unknown detailed urls", path: "/urls/never.example?detail=1", want: http.StatusNotFound},
		{name: "unknown count", path: "/count/never.example", want: http.StatusNotFound},
		{name: "unknown status", path: "/status/never.example", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errResp ErrorResponse
			code, _ := call(t, http.MethodGet, api.URL+tt.path, &errResp)
			if code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, code, tt.want)
			}
			if errResp.Error == "" {
				t.Error("expected an error message")
			}
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if code, _ := call(t, http.MethodPost, api.URL+"/crawl/example.com", nil); code != http.StatusServiceUnavailable {
		t.Errorf("crawl after shutdown returned %d", code)
	}
}

func TestCrawlLifecycle(t *testing.T) {
	t.Parallel()

	domain, base := newSite(t)
	api, _ := newAPI(t)

	var started CrawlResponse
	code, _ := call(t, http.MethodPost, api.URL+"/crawl/"+domain, &started)
	if code != http.StatusAccepted {
		t.Fatalf("POST /crawl returned %d", code)
	}
	if started.Domain != domain || started.CrawlID == "" {
		t.Errorf("unexpected crawl response %+v", started)
	}
	if started.Status != model.StateRunning && started.Status != model.StateCompleted {
		t.Errorf("unexpected status %s", started.Status)
	}

	deadline := time.Now().Add(10 * time.Second)
	var count CountResponse
	for {
		if code, _ := call(t, http.MethodGet, api.URL+"/count/"+domain, &count); code != http.StatusOK {
			t.Fatalf("GET /count returned %d", code)
		}
		if count.State.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("crawl did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if count.State != model.StateCompleted || count.Count != 4 {
		t.Fatalf("unexpected final count %+v", count)
	}

	var list struct {
		Domain string           `json:"domain"`
		State  model.CrawlState `json:"state"`
		Count  int              `json:"count"`
		URLs   []string         `json:"urls"`
	}
	call(t, http.MethodGet, api.URL+"/urls/"+domain, &list)
	slices.Sort(list.URLs)
	want := []string{base + "/", base + "/a", base + "/b", base + "/missing"}
	if !slices.Equal(list.URLs, want) || list.Count != 4 || list.Domain != domain {
		t.Errorf("unexpected list %+v", list)
	}

	var detailed struct {
		URLs []model.DiscoveredURL `json:"urls"`
	}
	call(t, http.MethodGet, api.URL+"/urls/"+domain+"?detail=1", &detailed)
	failed := 0
	for _, u := range detailed.URLs {
		if !u.Success {
			failed++
			if u.StatusCode != http.StatusNotFound {
				t.Errorf("unexpected failure metadata %+v", u)
			}
		}
	}
	if len(detailed.URLs) != 4 || failed != 1 {
		t.Errorf("expected 4 detailed URLs with 1 failure, got %d/%d", len(detailed.URLs), failed)
	}

	var status model.CrawlResult
	_, raw := call(t, http.MethodGet, api.URL+"/status/"+domain, &status)
	if status.CrawlID != started.CrawlID || status.Count != 4 || status.Failed != 1 {
		t.Errorf("unexpected status %+v", status)
	}
	if strings.Contains(raw, `"urls"`) {
		t.Error("status must not carry the URL list")
	}

	// A second request restarts the finished crawl under the default policy.
	var restarted CrawlResponse
	call(t, http.MethodGet, api.URL+"/crawl/"+domain, &restarted)
	if restarted.CrawlID == started.CrawlID {
		t.Error("expected a new crawl id after restart")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	api, _ := newAPI(t, WithMetricsHandler(metrics.New().Handler()))
	code, body := call(t, http.MethodGet, api.URL+"/metrics", nil)
	if code != http.StatusOK || !strings.Contains(body, "domaincrawl_crawls_started_total") {
		t.Errorf("GET /metrics = %d\n%s", code, body)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	_, reg := newAPI(t)
	srv := New(reg, WithLogger(discardLogger()), WithShutdownTimeout(time.Second))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, l) }()

	if code, _ := call(t, http.MethodGet, "http://"+l.Addr().String()+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz returned %d", code)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenAndServeInvalidAddress(t *testing.T) {
	t.Parallel()

	_, reg := newAPI(t)
	err := New(reg, WithLogger(discardLogger())).ListenAndServe(t.Context(), "256.0.0.1:99999")
	if err == nil {
		t.Error("expected listen error")
	}
}
