package metrics

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Labeler lets an error pick the label it is counted under.
type Labeler interface {
	MetricLabel() string
}

// Collector records per-lookup metrics in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	sources    map[string]*sourceCounts
	errors     map[string]map[string]int
}

type sourceCounts struct {
	total    int64
	failures int64
}

// SourceStats summarizes lookups against one source.
type SourceStats struct {
	Total    int64 `json:"total" yaml:"total"`
	Failures int64 `json:"failures" yaml:"failures"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Total         int64         `json:"total" yaml:"total"`
	Successes     int64         `json:"successes" yaml:"successes"`
	Failures      int64         `json:"failures" yaml:"failures"`
	MinLatency    time.Duration `json:"-" yaml:"-"`
	MaxLatency    time.Duration `json:"-" yaml:"-"`
	MeanLatency   time.Duration `json:"-" yaml:"-"`
	P50Latency    time.Duration `json:"-" yaml:"-"`
	P90Latency    time.Duration `json:"-" yaml:"-"`
	P99Latency    time.Duration `json:"-" yaml:"-"`
	Duration      time.Duration `json:"-" yaml:"-"`
	LookupsPerSec float64       `json:"lookups_per_sec" yaml:"lookups_per_sec"`

	// Millisecond fields for JSON and YAML reports.
	MinLatencyMs  float64                `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64                `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64                `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64                `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64                `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs  float64                `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64                `json:"duration_ms" yaml:"duration_ms"`
	Sources       map[string]SourceStats `json:"sources,omitempty" yaml:"sources,omitempty"`
	Errors        []ErrorBucket          `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		hist:    hdrhistogram.New(1, 60_000_000, 3),
		sources: make(map[string]*sourceCounts),
		errors:  make(map[string]map[string]int),
	}
}

// RecordLookup records one lookup against source. A nil err counts as a
// success.
func (c *Collector) RecordLookup(source string, latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency
	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	sc, ok := c.sources[source]
	if !ok {
		sc = &sourceCounts{}
		c.sources[source] = sc
	}
	sc.total++

	if err == nil {
		c.successes++
		return
	}
	c.failures++
	sc.failures++
	labels, ok := c.errors[source]
	if !ok {
		labels = make(map[string]int)
		c.errors[source] = labels
	}
	labels[ErrorLabel(err)]++
}

// ErrorLabel names the class of err for reporting.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Context deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "Context canceled"
	}
	var labeler Labeler
	if errors.As(err, &labeler) {
		if label := labeler.MetricLabel(); label != "" {
			return label
		}
	}
	return typeLabel(err)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.LookupsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.sources) > 0 {
		stats.Sources = make(map[string]SourceStats, len(c.sources))
		for name, sc := range c.sources {
			stats.Sources[name] = SourceStats{Total: sc.total, Failures: sc.failures}
		}
	}
	stats.Errors = FlattenErrorBuckets(c.errors)
	return stats
}

// SourceNames returns the recorded sources in sorted order.
func (s Stats) SourceNames() []string {
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
