package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/uits-lms/macrovars/internal/metrics"
)

type labeledError struct{ code int }

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

type scanFailure struct{}

func (*scanFailure) Error() string { return "scan failed" }

func (e *labeledError) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e *labeledError) MetricLabel() string { return fmt.Sprintf("HTTP %d", e.code) }

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for _, ms := range []int{10, 20, 30, 40, 50} {
		c.RecordLookup("canvas", time.Duration(ms)*time.Millisecond, nil)
	}

	stats := c.Stats(0)

	if stats.Total != 5 || stats.Successes != 5 || stats.Failures != 0 {
		t.Errorf("counts = %d/%d/%d, want 5/5/0", stats.Total, stats.Successes, stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
	if stats.MeanLatencyMs != 30 {
		t.Errorf("expected mean 30ms as float, got %f", stats.MeanLatencyMs)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	for i := 1; i <= 100; i++ {
		c.RecordLookup("canvas", time.Duration(i)*time.Millisecond, nil)
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 100*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestFailuresGroupedBySourceAndLabel(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordLookup("canvas", time.Millisecond, nil)
	c.RecordLookup("canvas", time.Millisecond, &labeledError{code: 500})
	c.RecordLookup("canvas", time.Millisecond, fmt.Errorf("get course: %w", &labeledError{code: 500}))
	c.RecordLookup("suds", time.Millisecond, context.DeadlineExceeded)

	stats := c.Stats(time.Second)

	if stats.Failures != 3 {
		t.Fatalf("Failures = %d, want 3", stats.Failures)
	}
	if got := stats.Sources["canvas"]; got.Total != 3 || got.Failures != 2 {
		t.Errorf("canvas source = %+v, want 3 total / 2 failures", got)
	}
	if got := stats.Sources["suds"]; got.Total != 1 || got.Failures != 1 {
		t.Errorf("suds source = %+v", got)
	}
	want := []metrics.ErrorBucket{
		{Source: "canvas", Label: "HTTP 500", Count: 2},
		{Source: "suds", Label: "Context deadline exceeded", Count: 1},
	}
	if len(stats.Errors) != len(want) {
		t.Fatalf("Errors = %+v, want %+v", stats.Errors, want)
	}
	for i := range want {
		if stats.Errors[i] != want[i] {
			t.Errorf("Errors[%d] = %+v, want %+v", i, stats.Errors[i], want[i])
		}
	}
	if names := stats.SourceNames(); len(names) != 2 || names[0] != "canvas" || names[1] != "suds" {
		t.Errorf("SourceNames() = %v", names)
	}
	if stats.LookupsPerSec != 4 {
		t.Errorf("LookupsPerSec = %f, want 4", stats.LookupsPerSec)
	}
}

func TestErrorLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"canceled", fmt.Errorf("lookup: %w", context.Canceled), "Context canceled"},
		{"labeler", &labeledError{code: 404}, "HTTP 404"},
		{"deadline", fmt.Errorf("lookup: %w", context.DeadlineExceeded), "Context deadline exceeded"},
		{"plain", errors.New("boom"), "Other error"},
		{"wrapped plain", fmt.Errorf("find class: %w", errors.New("boom")), "Other error"},
		{"postgres", &pq.Error{Code: "42P01", Message: `relation "suds_class" does not exist`}, "Postgres undefined table"},
		{"wrapped postgres", fmt.Errorf("find class: %w", &pq.Error{Code: "57P01"}), "Postgres admin shutdown"},
		{"postgres unknown code", &pq.Error{Code: "ZZ999"}, "Postgres error"},
		{"request", &url.Error{Op: "Get", URL: "https://canvas.test", Err: errors.New("connection refused")}, "Request error"},
		{"request timeout", &url.Error{Op: "Get", URL: "https://canvas.test", Err: timeoutError{}}, "Request timeout"},
		{"typed", &scanFailure{}, "Scan failure (metrics_test)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metrics.ErrorLabel(tt.err); got != tt.want {
				t.Errorf("ErrorLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatsJSON(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordLookup("canvas", 10*time.Millisecond, nil)
	c.RecordLookup("canvas", 20*time.Millisecond, errors.New("boom"))

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"total", "failures", "p99_latency_ms", "duration_ms", "sources", "errors"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON missing %q: %s", key, data)
		}
	}
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := metrics.NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				var err error
				if j%10 == 0 {
					err = errors.New("fail")
				}
				c.RecordLookup("canvas", time.Duration(j+1)*time.Microsecond, err)
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats(0)
	if stats.Total != 800 {
		t.Errorf("Total = %d, want 800", stats.Total)
	}
	if stats.Failures != 80 {
		t.Errorf("Failures = %d, want 80", stats.Failures)
	}
}

func TestNilCollectorRecordIsNoop(t *testing.T) {
	var c *metrics.Collector
	c.RecordLookup("canvas", time.Millisecond, nil)
}
