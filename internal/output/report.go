// Package output formats batch reports as text, JSON or YAML and writes them
// to stdout or a locked file.
package output

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/uits-lms/macrovars/internal/batch"
	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/metrics"
)

// Report is the outcome of one batch run.
type Report struct {
	RunID     string         `json:"run_id" yaml:"run_id"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Template  string         `json:"template" yaml:"template"`
	Rendered  int            `json:"rendered" yaml:"rendered"`
	Failed    int            `json:"failed" yaml:"failed"`
	Results   []batch.Result `json:"results" yaml:"results"`
	Lookups   *metrics.Stats `json:"lookups,omitempty" yaml:"lookups,omitempty"`
}

// NewRunID returns a ULID for a run started at t. Run ids sort by start
// time.
func NewRunID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// NewReport assembles a report. lookups may be nil when no collector ran.
func NewReport(started time.Time, template string, summary batch.Summary, lookups *metrics.Stats) Report {
	return Report{
		RunID:     NewRunID(started),
		StartedAt: started.UTC(),
		Template:  template,
		Rendered:  summary.Rendered,
		Failed:    summary.Failed,
		Results:   summary.Results,
		Lookups:   lookups,
	}
}

// Write renders r to w in the requested format. An empty format is text.
func Write(w io.Writer, r Report, format config.OutputFormat) error {
	switch format {
	case "", config.FormatText:
		PrintReport(w, r)
		return nil
	case config.FormatJSON:
		return PrintJSONReport(w, r)
	case config.FormatYAML:
		return PrintYAMLReport(w, r)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs one line per rendered record followed by a
// human-readable summary.
func PrintReport(w io.Writer, r Report) {
	for _, res := range r.Results {
		if res.Failed() {
			fmt.Fprintf(w, "#%d ERROR %s\n", res.Index+1, res.Error)
			continue
		}
		fmt.Fprintf(w, "#%d %s\n", res.Index+1, res.Output)
	}

	fmt.Fprintln(w, "\n--- Batch Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	fmt.Fprintf(w, "Records:           %d\n", len(r.Results))
	fmt.Fprintf(w, "Rendered:          %d\n", r.Rendered)
	fmt.Fprintf(w, "Failed:            %d\n", r.Failed)

	if r.Lookups == nil || r.Lookups.Total == 0 {
		return
	}
	stats := r.Lookups
	fmt.Fprintln(w, "\nLookups:")
	fmt.Fprintf(w, "  Total:           %d\n", stats.Total)
	fmt.Fprintf(w, "  Failed:          %d\n", stats.Failures)
	fmt.Fprintf(w, "  Lookups/sec:     %.2f\n", stats.LookupsPerSec)
	for _, name := range stats.SourceNames() {
		src := stats.Sources[name]
		fmt.Fprintf(w, "  %-16s %d (%d failed)\n", name+":", src.Total, src.Failures)
	}
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeErrorBuckets(w, stats.Errors, "  ")
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

func writeErrorBuckets(w io.Writer, rows []metrics.ErrorBucket, indent string) {
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s %s: %d\n", indent, strings.ToUpper(row.Source), row.Label, row.Count)
	}
}
