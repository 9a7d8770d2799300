package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/uits-lms/macrovars/internal/batch"
	"github.com/uits-lms/macrovars/internal/config"
	"github.com/uits-lms/macrovars/internal/macro"
	"github.com/uits-lms/macrovars/internal/metrics"
)

func sampleReport(t *testing.T) Report {
	t.Helper()
	collector := metrics.NewCollector()
	collector.RecordLookup("canvas", 20*time.Millisecond, nil)
	collector.RecordLookup("canvas", 40*time.Millisecond, errors.New("boom"))
	stats := collector.Stats(time.Second)

	failure := errors.New(`canvas lookup for "404" failed: course not found`)
	summary := batch.Summary{
		Results: []batch.Result{
			{Index: 0, Mapper: macro.Mapper{UserFirstName: "John"}, Output: "Hello, John"},
			{Index: 1, Mapper: macro.Mapper{CanvasCourseID: "404"}, Err: failure, Error: failure.Error()},
		},
		Rendered: 1,
		Failed:   1,
	}
	started := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	return NewReport(started, "Hello, [[USER_FIRST_NAME]]", summary, &stats)
}

func TestNewRunID(t *testing.T) {
	started := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	id := NewRunID(started)
	parsed, err := ulid.Parse(id)
	if err != nil {
		t.Fatalf("ulid.Parse(%q) error = %v", id, err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(started) {
		t.Errorf("run id time = %s, want %s", got, started)
	}
	if NewRunID(started) == id {
		t.Error("run ids should be unique")
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport(t))
	out := buf.String()

	for _, want := range []string{
		"#1 Hello, John\n",
		"#2 ERROR canvas lookup for \"404\" failed",
		"--- Batch Results ---",
		"Rendered:          1",
		"Failed:            1",
		"canvas:          2 (1 failed)",
		"P99:",
		"CANVAS Other error: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportWithoutLookups(t *testing.T) {
	r := sampleReport(t)
	r.Lookups = nil
	var buf bytes.Buffer
	PrintReport(&buf, r)
	if strings.Contains(buf.String(), "Lookups:") {
		t.Errorf("unexpected lookup section:\n%s", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(t), config.FormatJSON); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded struct {
		RunID   string `json:"run_id"`
		Results []struct {
			Output string            `json:"output"`
			Error  string            `json:"error"`
			Mapper map[string]string `json:"mapper"`
		} `json:"results"`
		Lookups map[string]interface{} `json:"lookups"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, buf.String())
	}
	if decoded.RunID == "" || len(decoded.Results) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Results[0].Mapper["user_first_name"] != "John" {
		t.Errorf("mapper = %v", decoded.Results[0].Mapper)
	}
	if decoded.Results[1].Error == "" || decoded.Results[1].Output != "" {
		t.Errorf("failed result = %+v", decoded.Results[1])
	}
	if decoded.Lookups["total"] != float64(2) {
		t.Errorf("lookups.total = %v", decoded.Lookups["total"])
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(t), config.FormatYAML); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v\n%s", err, buf.String())
	}
	if decoded["template"] != "Hello, [[USER_FIRST_NAME]]" {
		t.Errorf("template = %v", decoded["template"])
	}
	if decoded["failed"] != 1 {
		t.Errorf("failed = %v", decoded["failed"])
	}
	if !strings.Contains(buf.String(), "p99_latency_ms:") {
		t.Errorf("YAML missing latency fields:\n%s", buf.String())
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, Report{}, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}
