package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/domaincrawl/internal/model"
)

// DBFileName is the name of the database file inside the data directory.
const DBFileName = "domaincrawl.db"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("archived run not found")

// DB stores finished crawls.
type DB struct {
	db     *sql.DB
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so history can be read while a
	// crawl is being saved.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the archive in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("archive not found at %s (run a crawl with --archive first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check archive path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	a := &DB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := a.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return a, nil
}

// Path returns the database file path.
func (a *DB) Path() string {
	return a.dbPath
}

// Close closes the database connection.
func (a *DB) Close() error {
	return a.db.Close()
}

func (a *DB) createTables() error {
	schema := `
	-- One row per finished crawl
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL UNIQUE,
		domain TEXT NOT NULL,
		state TEXT NOT NULL,
		error TEXT,
		url_count INTEGER NOT NULL DEFAULT 0,
		failed_count INTEGER NOT NULL DEFAULT 0,
		seen_count INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_domain ON runs(domain);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);

	-- Discovered URLs of a run, in discovery order
	CREATE TABLE IF NOT EXISTS urls (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		success INTEGER NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		attempts INTEGER,
		error TEXT,
		digest TEXT,
		link_count INTEGER,
		discovered_at TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_urls_url ON urls(url);
	`

	_, err := a.db.ExecContext(context.Background(), schema)
	return err
}

// Run is the summary of one archived crawl.
type Run struct {
	ID         int64            `json:"id"`
	CrawlID    string           `json:"crawl_id"`
	Domain     string           `json:"domain"`
	State      model.CrawlState `json:"state"`
	Error      string           `json:"error,omitempty"`
	Count      int              `json:"count"`
	Failed     int              `json:"failed"`
	Seen       int              `json:"seen"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DomainSummary describes the archived runs of one domain.
type DomainSummary struct {
	Domain     string           `json:"domain"`
	Runs       int              `json:"runs"`
	LastState  model.CrawlState `json:"last_state"`
	LastFinish time.Time        `json:"last_finished_at"`
}

// SaveCrawl stores a finished crawl and its URLs in one transaction and
// returns the run ID. Saving the same crawl ID twice replaces the earlier
// copy.
func (a *DB) SaveCrawl(ctx context.Context, res model.CrawlResult) (int64, error) {
	if !res.State.Terminal() {
		return 0, fmt.Errorf("cannot archive crawl of %s in state %s", res.Domain, res.State)
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM urls WHERE run_id IN (SELECT id FROM runs WHERE crawl_id = ?)`, res.CrawlID); err != nil {
		return 0, fmt.Errorf("failed to replace run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE crawl_id = ?`, res.CrawlID); err != nil {
		return 0, fmt.Errorf("failed to replace run: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (crawl_id, domain, state, error, url_count, failed_count, seen_count, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.CrawlID,
		res.Domain,
		res.State.String(),
		res.Error,
		len(res.URLs),
		res.Failed,
		res.Seen,
		formatTimestamp(res.StartedAt),
		formatTimestamp(finished),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO urls (run_id, position, url, success, status_code, content_type, attempts, error, digest, link_count, discovered_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare url insert: %w", err)
	}
	defer stmt.Close()

	for i, u := range res.URLs {
		if _, err := stmt.ExecContext(ctx,
			runID,
			i,
			u.URL,
			u.Success,
			u.StatusCode,
			u.ContentType,
			u.Attempts,
			u.Error,
			u.Digest,
			u.LinkCount,
			formatTimestamp(u.DiscoveredAt),
		); err != nil {
			return 0, fmt.Errorf("failed to insert url %s: %w", u.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// ListDomains returns one summary per archived domain, sorted by name.
func (a *DB) ListDomains(ctx context.Context) ([]DomainSummary, error) {
	query := `
	SELECT r.domain, COUNT(*), MAX(r.finished_at),
		(SELECT state FROM runs l WHERE l.domain = r.domain ORDER BY l.finished_at DESC, l.id DESC LIMIT 1)
	FROM runs r
	GROUP BY r.domain
	ORDER BY r.domain
	`

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var results []DomainSummary
	for rows.Next() {
		var s DomainSummary
		var finished, state string
		if err := rows.Scan(&s.Domain, &s.Runs, &finished, &state); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		s.LastFinish = parseTimestamp(finished)
		s.LastState, _ = model.ParseCrawlState(state) //nolint:errcheck // unknown states read as idle
		results = append(results, s)
	}
	return results, rows.Err()
}

// ListRuns returns the runs of domain, newest first.
func (a *DB) ListRuns(ctx context.Context, domain string) ([]Run, error) {
	query := `
	SELECT id, crawl_id, domain, state, error, url_count, failed_count, seen_count, started_at, finished_at
	FROM runs
	WHERE domain = ?
	ORDER BY finished_at DESC, id DESC
	`

	rows, err := a.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// GetRun returns one run by its ID.
func (a *DB) GetRun(ctx context.Context, id int64) (*Run, error) {
	query := `
	SELECT id, crawl_id, domain, state, error, url_count, failed_count, seen_count, started_at, finished_at
	FROM runs
	WHERE id = ?
	`

	r, err := scanRun(a.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return r, err
}

// ListURLs returns the discovered URLs of a run in discovery order.
func (a *DB) ListURLs(ctx context.Context, runID int64) ([]model.DiscoveredURL, error) {
	if _, err := a.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	query := `
	SELECT url, success, status_code, content_type, attempts, error, digest, link_count, discovered_at
	FROM urls
	WHERE run_id = ?
	ORDER BY position
	`

	rows, err := a.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	var results []model.DiscoveredURL
	for rows.Next() {
		var u model.DiscoveredURL
		var contentType, errText, digest, discovered sql.NullString
		if err := rows.Scan(
			&u.URL,
			&u.Success,
			&u.StatusCode,
			&contentType,
			&u.Attempts,
			&errText,
			&digest,
			&u.LinkCount,
			&discovered,
		); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		u.ContentType = contentType.String
		u.Error = errText.String
		u.Digest = digest.String
		u.DiscoveredAt = parseTimestamp(discovered.String)
		results = append(results, u)
	}
	return results, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var state, started, finished string
	var errText sql.NullString
	if err := row.Scan(
		&r.ID,
		&r.CrawlID,
		&r.Domain,
		&state,
		&errText,
		&r.Count,
		&r.Failed,
		&r.Seen,
		&started,
		&finished,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.State, _ = model.ParseCrawlState(state) //nolint:errcheck // unknown states read as idle
	r.Error = errText.String
	r.StartedAt = parseTimestamp(started)
	r.FinishedAt = parseTimestamp(finished)
	return &r, nil
}

// formatTimestamp stores times in UTC so that text ordering matches time
// ordering.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
