package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
)

// setupTestDB creates a temporary archive for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleResult(domain, crawlID string, finished time.Time) model.CrawlResult {
	started := finished.Add(-3 * time.Second)
	return model.CrawlResult{
		Domain:  domain,
		CrawlID: crawlID,
		State:   model.StateCompleted,
		URLs: []model.DiscoveredURL{
			{
				URL:          "http://" + domain + "/",
				Success:      true,
				StatusCode:   200,
				ContentType:  "text/html",
				Attempts:     1,
				Digest:       "abc123",
				LinkCount:    2,
				DiscoveredAt: started.Add(time.Second),
			},
			{
				URL:          "http://" + domain + "/missing",
				StatusCode:   404,
				Attempts:     3,
				Error:        "unexpected status: 404",
				DiscoveredAt: started.Add(2 * time.Second),
			},
		},
		Count:      2,
		Failed:     1,
		Seen:       2,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open archive: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, DBFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, DBFileName) {
			t.Errorf("unexpected path %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error for missing archive")
		}
		if !strings.Contains(err.Error(), "archive not found") {
			t.Errorf("unexpected error %q", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create archive: %v", err)
		}
		_ = db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen archive: %v", err)
		}
		_ = db2.Close()
	})
}

func TestSaveCrawl(t *testing.T) {
	t.Parallel()

	t.Run("round trip of run and urls", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()
		finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		res := sampleResult("example.com", "run-1", finished)

		id, err := db.SaveCrawl(ctx, res)
		if err != nil {
			t.Fatalf("SaveCrawl failed: %v", err)
		}

		run, err := db.GetRun(ctx, id)
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if run.CrawlID != "run-1" || run.Domain != "example.com" || run.State != model.StateCompleted {
			t.Errorf("unexpected run %+v", run)
		}
		if run.Count != 2 || run.Failed != 1 || run.Seen != 2 {
			t.Errorf("unexpected counts %+v", run)
		}
		if !run.FinishedAt.Equal(finished) || run.Duration() != 3*time.Second {
			t.Errorf("unexpected times %v %v", run.FinishedAt, run.Duration())
		}

		urls, err := db.ListURLs(ctx, id)
		if err != nil {
			t.Fatalf("ListURLs failed: %v", err)
		}
		if len(urls) != 2 {
			t.Fatalf("expected 2 urls, got %d", len(urls))
		}
		first, second := urls[0], urls[1]
		if first.URL != "http://example.com/" || !first.Success || first.Digest != "abc123" || first.LinkCount != 2 {
			t.Errorf("unexpected first url %+v", first)
		}
		if second.Success || second.StatusCode != 404 || second.Attempts != 3 || second.Error == "" {
			t.Errorf("unexpected second url %+v", second)
		}
		if !first.DiscoveredAt.Equal(res.URLs[0].DiscoveredAt) {
			t.Errorf("discovered_at not preserved: %v", first.DiscoveredAt)
		}
	})

	t.Run("same crawl id replaces the run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()
		res := sampleResult("example.com", "run-1", time.Now())

		if _, err := db.SaveCrawl(ctx, res); err != nil {
			t.Fatal(err)
		}
		res.URLs = res.URLs[:1]
		res.Failed = 0
		id, err := db.SaveCrawl(ctx, res)
		if err != nil {
			t.Fatal(err)
		}

		runs, err := db.ListRuns(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].ID != id || runs[0].Count != 1 {
			t.Errorf("expected a single replaced run, got %+v", runs)
		}
	})

	t.Run("running crawl is rejected", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		res := sampleResult("example.com", "run-1", time.Now())
		res.State = model.StateRunning

		if _, err := db.SaveCrawl(t.Context(), res); err == nil {
			t.Error("expected error for running crawl")
		}
	})
}

func TestHistoryQueries(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	failed := sampleResult("b.example", "b-1", base.Add(time.Hour))
	failed.State = model.StateFailed
	failed.Error = "root URL unreachable"
	failed.URLs = nil

	for _, res := range []model.CrawlResult{
		sampleResult("a.example", "a-1", base),
		sampleResult("a.example", "a-2", base.Add(2*time.Hour)),
		failed,
	} {
		if _, err := db.SaveCrawl(ctx, res); err != nil {
			t.Fatalf("SaveCrawl(%s) failed: %v", res.CrawlID, err)
		}
	}

	domains, err := db.ListDomains(ctx)
	if err != nil {
		t.Fatalf("ListDomains failed: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("expected 2 domains, got %+v", domains)
	}
	if domains[0].Domain != "a.example" || domains[0].Runs != 2 || !domains[0].LastFinish.Equal(base.Add(2*time.Hour)) {
		t.Errorf("unexpected summary %+v", domains[0])
	}
	if domains[1].Domain != "b.example" || domains[1].LastState != model.StateFailed {
		t.Errorf("unexpected summary %+v", domains[1])
	}

	runs, err := db.ListRuns(ctx, "a.example")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].CrawlID != "a-2" || runs[1].CrawlID != "a-1" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	bRuns, err := db.ListRuns(ctx, "b.example")
	if err != nil {
		t.Fatal(err)
	}
	if len(bRuns) != 1 || bRuns[0].Error != "root URL unreachable" || bRuns[0].Count != 0 {
		t.Errorf("unexpected failed run %+v", bRuns)
	}

	if runs, err := db.ListRuns(ctx, "unknown.example"); err != nil || len(runs) != 0 {
		t.Errorf("ListRuns(unknown) = %+v, %v", runs, err)
	}
	if _, err := db.GetRun(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.ListURLs(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-01-02T03:04:05.123Z", time.Date(2026, 1, 2, 3, 4, 5, 123000000, time.UTC)},
		{"2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2026-01-02 03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"garbage", time.Time{}},
		{"", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if formatTimestamp(time.Time{}) != "" {
		t.Error("zero time should format as empty")
	}
}
