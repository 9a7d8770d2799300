// Package batch renders one template for every record of a roster.
package batch

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/uits-lms/macrovars/internal/feeder"
	"github.com/uits-lms/macrovars/internal/macro"
	"github.com/uits-lms/macrovars/internal/roles"
)

// RolesColumn holds a record's role set, separated by ";" or ",".
const RolesColumn = "roles"

// Renderer enriches a mapper for a role set and renders template with it.
// *replacement.Service implements it.
type Renderer interface {
	Render(ctx context.Context, mapper *macro.Mapper, roleSet []string, template string) (string, error)
}

// Logger interface for warning output.
type Logger interface {
	Warn(format string, args ...interface{})
}

// Options configure a batch run.
type Options struct {
	Concurrency  int               // records rendered at once (default 1)
	Template     string            // template rendered for every record
	Defaults     map[string]string // mapper fields applied before each record's own
	DefaultRoles []string          // used when a record has no roles column
	Renderer     Renderer          // required
	Logger       Logger
	LogErrors    bool         // warn about each failed record
	OnResult     func(Result) // called once per finished record, from worker goroutines
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
}

// Result is the outcome for one roster record.
type Result struct {
	Index  int          `json:"index" yaml:"index"`
	Mapper macro.Mapper `json:"mapper" yaml:"mapper"`
	Roles  []string     `json:"roles,omitempty" yaml:"roles,omitempty"`
	Output string       `json:"output,omitempty" yaml:"output,omitempty"`
	Error  string       `json:"error,omitempty" yaml:"error,omitempty"`
	Err    error        `json:"-" yaml:"-"`
}

// Failed reports whether the record could not be rendered.
func (r Result) Failed() bool { return r.Err != nil }

// Summary collects every result in roster order.
type Summary struct {
	Results  []Result
	Rendered int
	Failed   int
	Duration time.Duration
}

// ErrNoRenderer is returned by Run when Options.Renderer is nil.
var ErrNoRenderer = errors.New("batch: renderer is required")

type job struct {
	index  int
	record feeder.Record
}

// Run renders opts.Template for every record of f with bounded
// concurrency. A record that fails does not stop the run; its error is kept
// on its Result. Run returns an error only when the roster cannot be read or
// ctx ends first, together with the results gathered so far.
func Run(ctx context.Context, f feeder.Feeder, opts Options) (Summary, error) {
	opts.normalize()
	if opts.Renderer == nil {
		return Summary{}, ErrNoRenderer
	}
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, opts.Concurrency)
	var (
		mu      sync.Mutex
		results = make([]Result, 0, f.Len())
		readErr error
		wg      sync.WaitGroup
	)

	go func() {
		defer close(jobs)
		for i := 0; ; i++ {
			record, err := f.Next(ctx)
			if errors.Is(err, feeder.ErrExhausted) {
				return
			}
			if err != nil {
				mu.Lock()
				readErr = err
				mu.Unlock()
				return
			}
			select {
			case jobs <- job{index: i, record: record}:
			case <-ctx.Done():
				mu.Lock()
				readErr = ctx.Err()
				mu.Unlock()
				return
			}
		}
	}()

	for w := 0; w < opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := renderRecord(ctx, j, opts)
				if res.Err != nil && opts.LogErrors && opts.Logger != nil {
					opts.Logger.Warn("record %d: %v", j.index+1, res.Err)
				}
				if opts.OnResult != nil {
					opts.OnResult(res)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	summary := Summary{Results: results, Duration: time.Since(start)}
	for _, r := range results {
		if r.Failed() {
			summary.Failed++
		} else {
			summary.Rendered++
		}
	}
	return summary, readErr
}

func renderRecord(ctx context.Context, j job, opts Options) Result {
	roleSet := opts.DefaultRoles
	fields := make(map[string]string, len(j.record))
	for k, v := range j.record {
		if macro.NormalizeKey(k) == RolesColumn {
			if strings.TrimSpace(v) != "" {
				roleSet = roles.Split(v)
			}
			continue
		}
		fields[k] = v
	}

	mapper := macro.FromRecord(opts.Defaults).Overlay(macro.FromRecord(fields))
	res := Result{Index: j.index, Roles: roleSet}
	out, err := opts.Renderer.Render(ctx, &mapper, roleSet, opts.Template)
	res.Mapper = mapper
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}
	res.Output = out
	return res
}
