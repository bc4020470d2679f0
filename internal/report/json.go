package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs one crawl result as a JSON object.
func (w *JSONWriter) Write(res *model.CrawlResult) (int, error) {
	return w.writeJSON(res)
}

// WriteAll outputs the crawl results as a JSON array.
func (w *JSONWriter) WriteAll(results []model.CrawlResult) (int, error) {
	if results == nil {
		results = []model.CrawlResult{}
	}
	return w.writeJSON(results)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONReport wraps crawl results with metadata about the run that produced
// them.
//
// Design decision: We wrap the results rather than adding fields to
// CrawlResult, which is also the shape served by the HTTP API.
type JSONReport struct {
	// Version is the domaincrawl version that generated this report.
	Version string `json:"version"`

	// GeneratedAt is when the report was written.
	GeneratedAt time.Time `json:"generated_at"`

	// Crawls holds one result per requested domain.
	Crawls []model.CrawlResult `json:"crawls"`
}

// FullJSONWriter outputs results inside a JSONReport envelope.
type FullJSONWriter struct {
	*JSONWriter

	// version is the domaincrawl version string.
	version string

	now func() time.Time
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
		now:        time.Now,
	}
}

// Write outputs one result wrapped with metadata.
func (w *FullJSONWriter) Write(res *model.CrawlResult) (int, error) {
	return w.WriteAll([]model.CrawlResult{*res})
}

// WriteAll outputs the results wrapped with metadata.
func (w *FullJSONWriter) WriteAll(results []model.CrawlResult) (int, error) {
	if results == nil {
		results = []model.CrawlResult{}
	}
	return w.writeJSON(&JSONReport{
		Version:     w.version,
		GeneratedAt: w.now().UTC(),
		Crawls:      results,
	})
}
