package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/domaincrawl/internal/model"
)

// maxMarkdownRows caps the URL table so reports of large sites stay
// readable. The JSON report always carries every URL.
const maxMarkdownRows = 500

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation, which gives us tables, alerts and mermaid charts without
// hand-escaping.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report of one crawl in Markdown format.
func (w *MarkdownWriter) Write(res *model.CrawlResult) (int, error) {
	return w.WriteAll([]model.CrawlResult{*res})
}

// WriteAll outputs one section per crawl in a single document.
func (w *MarkdownWriter) WriteAll(results []model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("domaincrawl Report")
	md.PlainText("")
	if len(results) > 1 {
		w.writeOverview(md, results)
	}
	for i := range results {
		w.writeCrawl(md, &results[i])
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeOverview writes a one-line-per-domain table.
func (w *MarkdownWriter) writeOverview(md *markdown.Markdown, results []model.CrawlResult) {
	rows := make([][]string, len(results))
	for i, res := range results {
		rows[i] = []string{
			"`" + res.Domain + "`",
			res.State.String(),
			strconv.Itoa(res.Count),
			strconv.Itoa(res.Failed),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Domain", "State", "URLs", "Failed"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeCrawl writes the section of one domain.
func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, res *model.CrawlResult) {
	md.H2(res.Domain)
	md.PlainText("")

	duration := "-"
	if !res.FinishedAt.IsZero() {
		duration = res.Duration().Round(time.Millisecond).String()
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Crawl ID", "`" + res.CrawlID + "`"},
			{"Started", formatTime(res.StartedAt)},
			{"Duration", duration},
			{"URLs", strconv.Itoa(res.Count)},
			{"Failed", strconv.Itoa(res.Failed)},
			{"Seen", strconv.Itoa(res.Seen)},
			{"Status", statusText(res)},
		},
	})
	md.PlainText("")

	w.writeAlert(md, res)
	if res.Count > 0 {
		w.writePieChart(md, res)
	}
	w.writeURLTable(md, res)
	w.writeFailures(md, res)
}

// statusText returns the status text based on the crawl state.
func statusText(res *model.CrawlResult) string {
	switch res.State {
	case model.StateCompleted:
		return "✅ Completed"
	case model.StateFailed:
		return "❌ Failed"
	case model.StateRunning:
		return "⏳ Running (partial results)"
	default:
		return res.State.String()
	}
}

// writeAlert writes an alert matching the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, res *model.CrawlResult) {
	switch {
	case res.State == model.StateFailed:
		md.Cautionf("The crawl failed: %s", res.Error)
	case res.Failed > 0:
		md.Warningf("%d of %d URL(s) could not be fetched.", res.Failed, res.Count)
	case res.State == model.StateRunning:
		md.Note("The crawl is still running; the list below is a snapshot.")
	default:
		md.Tip("Every discovered URL was fetched successfully.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of fetched versus failed URLs.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, res *model.CrawlResult) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Fetch Results"),
		piechart.WithShowData(true),
	)
	if ok := res.Count - res.Failed; ok > 0 {
		chart.LabelAndIntValue("Fetched", uint64(ok))
	}
	if res.Failed > 0 {
		chart.LabelAndIntValue("Failed", uint64(res.Failed))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeURLTable writes the discovered URLs in discovery order.
func (w *MarkdownWriter) writeURLTable(md *markdown.Markdown, res *model.CrawlResult) {
	md.H3("Discovered URLs")
	md.PlainText("")

	if len(res.URLs) == 0 {
		md.PlainText("No URLs were discovered.")
		md.PlainText("")
		return
	}

	urls := res.URLs
	if len(urls) > maxMarkdownRows {
		urls = urls[:maxMarkdownRows]
	}
	rows := make([][]string, len(urls))
	for i, u := range urls {
		contentType := u.ContentType
		if contentType == "" {
			contentType = "-"
		}
		rows[i] = []string{
			escapeCell(u.URL),
			statusCell(u),
			truncateString(contentType, 40),
			strconv.Itoa(u.Attempts),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Content-Type", "Attempts"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(res.URLs) > maxMarkdownRows {
		md.PlainTextf("*%d more URL(s) omitted; use the JSON report for the full list.*", len(res.URLs)-maxMarkdownRows)
		md.PlainText("")
	}
}

// writeFailures writes the error of every failed URL in collapsible blocks.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, res *model.CrawlResult) {
	if res.Failed == 0 {
		return
	}
	md.H3("Failures")
	md.PlainText("")
	for _, u := range res.URLs {
		if u.Success || u.Error == "" {
			continue
		}
		md.Details(u.URL, u.Error)
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [domaincrawl](https://github.com/nao1215/domaincrawl)*")
}

// escapeCell keeps a URL from breaking the table layout.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "%7C")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
