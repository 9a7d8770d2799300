package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/uits-lms/macrovars/internal/metrics"
)

// ProgressReporter prints a one-line batch progress summary at an interval.
type ProgressReporter struct {
	collector *metrics.Collector
	total     int
	done      int64
	failed    int64
	ticker    *time.Ticker
	stop      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a reporter for a roster of total records.
// collector may be nil when no lookups are recorded.
func NewProgressReporter(collector *metrics.Collector, total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		total:     total,
		ticker:    time.NewTicker(interval),
		stop:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Record counts one finished record. It is safe to call from any goroutine.
func (p *ProgressReporter) Record(failed bool) {
	atomic.AddInt64(&p.done, 1)
	if failed {
		atomic.AddInt64(&p.failed, 1)
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and ends the line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.stop)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.line())
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line())
		case <-p.stop:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	line := fmt.Sprintf("\rRecords: %d/%d | Failed: %d",
		atomic.LoadInt64(&p.done), p.total, atomic.LoadInt64(&p.failed))
	if p.collector != nil {
		stats := p.collector.Stats(time.Since(p.start))
		if stats.Total > 0 {
			line += fmt.Sprintf(" | Lookups: %d (%.1f/s, P99 %.1fms)", stats.Total, stats.LookupsPerSec, stats.P99LatencyMs)
		}
	}
	return line
}
