// Package feeder loads batch rosters: one record of mapper fields per row of
// a CSV or JSON file.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// Feeder hands out roster records in file order.
// Implementations must be safe for concurrent use.
type Feeder interface {
	// Next returns the next record, or ErrExhausted after the last one.
	Next(ctx context.Context) (Record, error)

	// Close releases any resources held by the feeder.
	Close() error

	// Len returns the total number of records in the dataset.
	Len() int
}

// ErrExhausted is returned once every record has been handed out.
var ErrExhausted = errors.New("feeder exhausted: no more records available")

// Open loads the roster at path. typ is "csv" or "json"; when empty it is
// taken from the file extension. A path of "-" reads stdin.
func Open(path, typ string) (Feeder, error) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open roster: %w", err)
		}
		defer file.Close()
		r = file
	}

	switch typ {
	case "csv":
		return ReadCSV(r)
	case "json":
		return ReadJSON(r)
	default:
		return nil, fmt.Errorf("unsupported roster type %q (use csv or json)", typ)
	}
}

// sliceFeeder serves preloaded records once each.
type sliceFeeder struct {
	records []Record
	index   int
	mu      sync.Mutex
}

func (f *sliceFeeder) Next(ctx context.Context) (Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index >= len(f.records) {
		return nil, ErrExhausted
	}
	record := f.records[f.index]
	f.index++
	return record, nil
}

func (f *sliceFeeder) Close() error { return nil }

func (f *sliceFeeder) Len() int { return len(f.records) }

// FromRecords returns a Feeder over records, mostly for tests and callers
// that build rosters in memory.
func FromRecords(records []Record) Feeder {
	return &sliceFeeder{records: records}
}
