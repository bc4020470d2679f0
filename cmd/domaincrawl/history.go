package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/domaincrawl/internal/archive"
	"github.com/nao1215/domaincrawl/internal/config"
	"github.com/nao1215/domaincrawl/internal/crawler"
	"github.com/nao1215/domaincrawl/internal/model"
)

// historyTimeLayout is how timestamps are shown in history listings.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
// This command lists crawls saved to the archive with --archive.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [domain]",
		Short: "List archived crawls",
		Long: `History shows crawls saved by 'serve --archive' or 'crawl --archive'.

Without arguments it lists every archived domain. With a domain it lists
that domain's runs, newest first. --urls lists the URLs of one run.

Examples:
  # List archived domains
  domaincrawl history

  # List the runs of one domain
  domaincrawl history example.com

  # List the URLs discovered by run 3
  domaincrawl history --urls 3

  # Output in JSON format
  domaincrawl history --json example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64P("urls", "u", 0,
		"List the URLs of the run with this ID")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	runID, err := cmd.Flags().GetInt64("urls")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var domain string
	if len(args) > 0 {
		domain, err = crawler.ParseDomain(args[0], config.DefaultScheme)
		if err != nil {
			return fmt.Errorf("invalid domain %q: %w", args[0], err)
		}
	}
	if runID < 0 {
		return fmt.Errorf("invalid run ID: %d", runID)
	}

	db, err := archive.Open(dbDir, archive.Options{EnableWAL: true})
	if err != nil {
		return err
	}
	defer db.Close()

	h := &historyPrinter{db: db, out: cmd.OutOrStdout(), asJSON: jsonOutput}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case runID > 0:
		return h.urls(ctx, runID)
	case domain != "":
		return h.runs(ctx, domain)
	default:
		return h.domains(ctx)
	}
}

// historyPrinter renders archive queries as text or JSON.
type historyPrinter struct {
	db     *archive.DB
	out    io.Writer
	asJSON bool
}

func (h *historyPrinter) encode(v any) error {
	enc := json.NewEncoder(h.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// domains lists every archived domain.
func (h *historyPrinter) domains(ctx context.Context) error {
	summaries, err := h.db.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}
	if h.asJSON {
		if summaries == nil {
			summaries = []archive.DomainSummary{}
		}
		return h.encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(h.out, "No crawls archived yet.")
		fmt.Fprintln(h.out, "\nUse 'domaincrawl crawl --archive <domain>' to save a crawl.")
		return nil
	}

	fmt.Fprintf(h.out, "Archived domains (%d):\n\n", len(summaries))
	fmt.Fprintf(h.out, "  %-32s  %5s  %-10s  %s\n", "Domain", "Runs", "Last state", "Last finished")
	fmt.Fprintln(h.out, "  "+strings.Repeat("-", 72))
	for _, s := range summaries {
		fmt.Fprintf(h.out, "  %-32s  %5d  %-10s  %s\n",
			s.Domain, s.Runs, s.LastState, formatHistoryTime(s.LastFinish))
	}
	fmt.Fprintln(h.out, "\nUse 'domaincrawl history <domain>' to see the runs of a domain.")
	return nil
}

// runs lists the archived runs of one domain.
func (h *historyPrinter) runs(ctx context.Context, domain string) error {
	runs, err := h.db.ListRuns(ctx, domain)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if h.asJSON {
		if runs == nil {
			runs = []archive.Run{}
		}
		return h.encode(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintf(h.out, "No archived crawls found for %s\n", domain)
		return nil
	}

	fmt.Fprintf(h.out, "Crawl history for %s (%d runs):\n\n", domain, len(runs))
	fmt.Fprintf(h.out, "  %-6s  %-19s  %-10s  %6s  %6s  %10s  %s\n",
		"ID", "Finished", "State", "URLs", "Failed", "Duration", "Error")
	fmt.Fprintln(h.out, "  "+strings.Repeat("-", 80))
	for _, r := range runs {
		fmt.Fprintf(h.out, "  %-6d  %-19s  %-10s  %6d  %6d  %10s  %s\n",
			r.ID, formatHistoryTime(r.FinishedAt), r.State, r.Count, r.Failed,
			r.Duration().Round(time.Millisecond), r.Error)
	}
	fmt.Fprintln(h.out, "\nUse 'domaincrawl history --urls <id>' to list the URLs of a run.")
	return nil
}

// urls lists the URLs of one run.
func (h *historyPrinter) urls(ctx context.Context, runID int64) error {
	run, err := h.db.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return fmt.Errorf("run %d not found", runID)
		}
		return fmt.Errorf("failed to get run: %w", err)
	}
	urls, err := h.db.ListURLs(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to list URLs: %w", err)
	}

	if h.asJSON {
		if urls == nil {
			urls = []model.DiscoveredURL{}
		}
		return h.encode(struct {
			Run  *archive.Run          `json:"run"`
			URLs []model.DiscoveredURL `json:"urls"`
		}{run, urls})
	}

	fmt.Fprintf(h.out, "Run %d of %s (%s, crawl %s):\n\n", run.ID, run.Domain, run.State, run.CrawlID)
	for _, u := range urls {
		status := "ok"
		if !u.Success {
			status = "error"
			if u.StatusCode != 0 {
				status = strconv.Itoa(u.StatusCode)
			}
		}
		fmt.Fprintf(h.out, "  [%-5s] %s\n", status, u.URL)
	}
	fmt.Fprintf(h.out, "\n%d URLs (%d failed)\n", run.Count, run.Failed)
	return nil
}

func formatHistoryTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(historyTimeLayout)
}
