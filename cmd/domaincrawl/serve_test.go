package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/nao1215/domaincrawl/internal/server"
)

// startServe runs serve on a random port and returns its base URL and a
// function that stops it and returns serve's error.
func startServe(t *testing.T, withMetrics, withArchive bool) (string, func() error) {
	t.Helper()

	cfg := testConfig(t)
	cfg.Metrics = withMetrics
	cfg.Archive = withArchive

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, cfg, discardLogger(), l)
	}()

	var (
		once     sync.Once
		serveErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case serveErr = <-errCh:
			case <-time.After(10 * time.Second):
				serveErr = errors.New("serve did not stop")
			}
		})
		return serveErr
	}
	t.Cleanup(func() { _ = stop() }) //nolint:errcheck // checked by tests that care

	return "http://" + l.Addr().String(), stop
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec,noctx // test URL
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("failed to decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServe(t *testing.T) {
	t.Parallel()

	t.Run("crawl lifecycle over HTTP", func(t *testing.T) {
		t.Parallel()
		domain := newSite(t, sitePages)
		base, stop := startServe(t, false, false)

		resp, err := http.Post(base+"/crawl/"+domain, "", nil) //nolint:gosec,noctx // test URL
		if err != nil {
			t.Fatalf("POST failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}

		var count server.CountResponse
		deadline := time.Now().Add(10 * time.Second)
		for {
			if code := getJSON(t, base+"/count/"+domain, &count); code != http.StatusOK {
				t.Fatalf("expected 200, got %d", code)
			}
			if count.State == model.StateCompleted || time.Now().After(deadline) {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		if count.State != model.StateCompleted || count.Count != 4 {
			t.Errorf("expected 4 URLs and Completed, got %d and %v", count.Count, count.State)
		}

		var urls struct {
			URLs []string `json:"urls"`
		}
		getJSON(t, base+"/urls/"+domain, &urls)
		if len(urls.URLs) != 4 {
			t.Errorf("expected 4 URLs, got %v", urls.URLs)
		}

		if err := stop(); err != nil {
			t.Errorf("serve returned %v", err)
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		t.Parallel()
		base, _ := startServe(t, true, false)

		resp, err := http.Get(base + "/metrics") //nolint:gosec,noctx // test URL
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // checked via content
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "domaincrawl_") {
			t.Errorf("expected metrics, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics disabled", func(t *testing.T) {
		t.Parallel()
		base, _ := startServe(t, false, false)
		if code := getJSON(t, base+"/metrics", nil); code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}
	})

	t.Run("stops cleanly", func(t *testing.T) {
		t.Parallel()
		base, stop := startServe(t, false, true)
		if code := getJSON(t, base+"/healthz", nil); code != http.StatusOK {
			t.Errorf("expected 200, got %d", code)
		}
		if err := stop(); err != nil {
			t.Errorf("serve returned %v", err)
		}
	})
}

func TestServeListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.ListenAddress = "256.0.0.1:99999"
	if err := serve(t.Context(), cfg, discardLogger(), nil); err == nil {
		t.Error("expected listen error")
	}
}
