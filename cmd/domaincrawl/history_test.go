package main

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/domaincrawl/internal/archive"
	"github.com/nao1215/domaincrawl/internal/model"
)

// seedArchive stores two runs of example.com and one of example.org.
// It returns the archive directory and the ID of the latest example.com run.
func seedArchive(t *testing.T) (string, int64) {
	t.Helper()

	dir := t.TempDir()
	db, err := archive.Open(dir, archive.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	crawls := []model.CrawlResult{
		{
			Domain: "example.com", CrawlID: "run-1", State: model.StateFailed,
			Error: "root URL unreachable", Seen: 1,
			StartedAt: start, FinishedAt: start.Add(time.Second),
		},
		{
			Domain: "example.org", CrawlID: "run-2", State: model.StateCompleted,
			URLs:  []model.DiscoveredURL{{URL: "http://example.org/", Success: true, StatusCode: 200, Attempts: 1}},
			Count: 1, Seen: 1,
			StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute + time.Second),
		},
		{
			Domain: "example.com", CrawlID: "run-3", State: model.StateCompleted,
			URLs: []model.DiscoveredURL{
				{URL: "http://example.com/", Success: true, StatusCode: 200, Attempts: 1},
				{URL: "http://example.com/missing", StatusCode: 404, Attempts: 1, Error: "unexpected HTTP status: 404"},
			},
			Count: 2, Failed: 1, Seen: 2,
			StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour + 2*time.Second),
		},
	}

	var last int64
	for _, c := range crawls {
		id, err := db.SaveCrawl(t.Context(), c)
		if err != nil {
			t.Fatalf("failed to save crawl: %v", err)
		}
		if c.Domain == "example.com" {
			last = id
		}
	}
	return dir, last
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	if cmd.Use != "history [domain]" {
		t.Errorf("unexpected use %q", cmd.Use)
	}
	for _, name := range []string{"urls", "json", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	dir, lastID := seedArchive(t)

	t.Run("lists domains", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Archived domains (2)", "example.com", "example.org"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("lists runs of a domain", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir, "https://EXAMPLE.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Crawl history for example.com (2 runs)") {
			t.Errorf("unexpected output:\n%s", out)
		}
		completed := strings.Index(out, "Completed")
		failed := strings.LastIndex(out, "Failed")
		if completed < 0 || failed < 0 || completed > failed {
			t.Errorf("expected newest run first:\n%s", out)
		}
		if !strings.Contains(out, "root URL unreachable") {
			t.Error("expected error of the failed run")
		}
	})

	t.Run("domain without runs", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir, "example.net")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No archived crawls found for example.net") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("lists urls of a run", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir, "--urls", itoa64(lastID))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"[ok   ] http://example.com/", "[404  ] http://example.com/missing", "2 URLs (1 failed)"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
	})

	t.Run("json runs", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir, "-j", "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []archive.Run
		if err := json.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 2 || runs[0].CrawlID != "run-3" {
			t.Errorf("unexpected runs: %+v", runs)
		}
	})

	t.Run("json urls", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--db-dir", dir, "-j", "-u", itoa64(lastID))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var got struct {
			Run  archive.Run           `json:"run"`
			URLs []model.DiscoveredURL `json:"urls"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Run.ID != lastID || len(got.URLs) != 2 {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()
		_, err := runHistory(t, "--db-dir", dir, "--urls", "9999")
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("invalid domain", func(t *testing.T) {
		t.Parallel()
		if _, err := runHistory(t, "--db-dir", dir, "bad domain"); err == nil {
			t.Error("expected invalid domain error")
		}
	})
}

func TestRunHistoryCmdWithoutArchive(t *testing.T) {
	t.Parallel()

	_, err := runHistory(t, "--db-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "archive not found") {
		t.Errorf("expected archive not found error, got %v", err)
	}
}

func TestRunHistoryCmdEmptyArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := archive.Open(dir, archive.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	db.Close()

	out, err := runHistory(t, "--db-dir", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No crawls archived yet.") {
		t.Errorf("unexpected output:\n%s", out)
	}

	out, err = runHistory(t, "--db-dir", dir, "--json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected empty JSON list, got %q", out)
	}
}

func itoa64(n int64) string {
	return strconv.FormatInt(n, 10)
}
