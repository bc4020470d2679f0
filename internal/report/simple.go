package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints the URL section even when nothing was discovered.
	showEmpty bool

	// verbose adds content type, attempts and digest per URL.
	verbose bool

	// failedOnly lists only URLs whose fetch failed.
	failedOnly bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithFailedOnly limits the URL listing to failed fetches.
func WithFailedOnly(failedOnly bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.failedOnly = failedOnly
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report of one crawl in human-readable format.
func (w *SimpleWriter) Write(res *model.CrawlResult) (int, error) {
	var sb strings.Builder
	w.writeReport(&sb, res)
	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// WriteAll outputs one report section per crawl followed by a footer.
func (w *SimpleWriter) WriteAll(results []model.CrawlResult) (int, error) {
	var sb strings.Builder
	for i := range results {
		w.writeReport(&sb, &results[i])
	}
	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeReport(sb *strings.Builder, res *model.CrawlResult) {
	w.writeHeader(sb, res)
	w.writeURLs(sb, res)
}

// writeHeader writes the crawl summary.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, res *model.CrawlResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        DOMAINCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Domain:         %s\n", res.Domain)
	fmt.Fprintf(sb, "Crawl ID:       %s\n", res.CrawlID)
	fmt.Fprintf(sb, "Started:        %s\n", formatTime(res.StartedAt))
	if !res.FinishedAt.IsZero() {
		fmt.Fprintf(sb, "Duration:       %s\n", res.Duration().Round(time.Millisecond))
	}
	fmt.Fprintf(sb, "URLs:           %d (%d failed)\n", res.Count, res.Failed)
	fmt.Fprintf(sb, "Seen:           %d\n", res.Seen)

	switch {
	case res.State == model.StateFailed && res.Error != "":
		fmt.Fprintf(sb, "Status:         FAILED - %s\n", res.Error)
	case res.State == model.StateRunning:
		sb.WriteString("Status:         RUNNING (partial results)\n")
	default:
		fmt.Fprintf(sb, "Status:         %s\n", strings.ToUpper(res.State.String()))
	}
	sb.WriteString("\n")
}

// writeURLs lists the discovered URLs in discovery order.
func (w *SimpleWriter) writeURLs(sb *strings.Builder, res *model.CrawlResult) {
	if len(res.URLs) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	if w.failedOnly {
		sb.WriteString("FAILED URLS\n")
	} else {
		sb.WriteString("DISCOVERED URLS\n")
	}
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	written := 0
	for _, u := range res.URLs {
		if w.failedOnly && u.Success {
			continue
		}
		written++
		fmt.Fprintf(sb, "  [%-5s] %s\n", statusCell(u), u.URL)
		if u.Error != "" {
			fmt.Fprintf(sb, "          Error: %s\n", u.Error)
		}
		if w.verbose {
			if u.ContentType != "" {
				fmt.Fprintf(sb, "          Content-Type: %s\n", u.ContentType)
			}
			fmt.Fprintf(sb, "          Attempts: %d, Links: %d\n", u.Attempts, u.LinkCount)
			if u.Digest != "" {
				fmt.Fprintf(sb, "          SHA3-256: %s\n", u.Digest)
			}
		}
	}
	if written == 0 {
		sb.WriteString("  No URLs\n")
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by domaincrawl\n")
	sb.WriteString("https://github.com/nao1215/domaincrawl\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
