package canvas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/uits-lms/macrovars/internal/httpclient"
	"github.com/uits-lms/macrovars/internal/metrics"
	"github.com/uits-lms/macrovars/internal/tracing"
)

const maxCourseBytes = 1 << 20

// Options configure a Client.
type Options struct {
	BaseURL       string            // Canvas root, e.g. https://iu.instructure.com (required)
	Headers       map[string]string // extra headers sent with every call
	Auth          httpclient.AuthProvider
	HTTPClient    *http.Client
	Timeout       time.Duration // used when HTTPClient is nil
	RatePerSecond int           // lookups per second (0 means unlimited)
	Tracer        trace.Tracer
	Propagate     bool // send W3C traceparent headers to Canvas
	Metrics       *metrics.Collector
	Retry         RetryPolicy // zero value makes a single attempt
}

func (o *Options) normalize() {
	if o.HTTPClient == nil {
		o.HTTPClient = httpclient.NewClient(o.Timeout)
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer(Source)
	}
}

// Client implements CourseService against the Canvas REST API. It is safe
// for concurrent use.
type Client struct {
	builder   *httpclient.RequestBuilder
	http      *http.Client
	limiter   *rate.Limiter
	tracer    trace.Tracer
	propagate bool
	metrics   *metrics.Collector
	retry     RetryPolicy
}

var _ CourseService = (*Client)(nil)

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	opts.normalize()
	builder, err := httpclient.NewRequestBuilder(opts.BaseURL, opts.Headers, opts.Auth)
	if err != nil {
		return nil, fmt.Errorf("canvas client: %w", err)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond)
	}
	return &Client{
		builder:   builder,
		http:      opts.HTTPClient,
		limiter:   limiter,
		tracer:    opts.Tracer,
		propagate: opts.Propagate,
		metrics:   opts.Metrics,
		retry:     opts.Retry,
	}, nil
}

// CourseURL returns the API URL for a course id.
func (c *Client) CourseURL(courseID string) string {
	return c.builder.URL("api", "v1", "courses", courseID)
}

// GetCourse fetches GET /api/v1/courses/{id}. The id may be a Canvas id or
// any Canvas id form such as "sis_course_id:ABC". Failed attempts are
// retried per Options.Retry; the lookup is traced and recorded once.
func (c *Client) GetCourse(ctx context.Context, courseID string) (course *Course, err error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, ErrMissingCourseID
	}

	ctx, span := tracing.StartLookupSpan(ctx, c.tracer, Source, courseID)
	start := time.Now()
	defer func() {
		c.metrics.RecordLookup(Source, time.Since(start), err)
		tracing.EndSpan(span, err, tracing.AttrFound.Bool(err == nil))
	}()

	err = c.retry.do(ctx, func(ctx context.Context) error {
		var fetchErr error
		course, fetchErr = c.fetchCourse(ctx, courseID)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return course, nil
}

func (c *Client) fetchCourse(ctx context.Context, courseID string) (*Course, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("canvas rate limit: %w", err)
	}

	req, err := c.builder.Build(ctx, http.MethodGet, "api", "v1", "courses", courseID)
	if err != nil {
		return nil, err
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrCourseNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		snippet, _ := httpclient.ReadSnippet(resp.Body)
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: snippet}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCourseBytes))
	if err != nil {
		return nil, fmt.Errorf("read course body: %w", err)
	}
	return parseCourse(body)
}

// IsNotFound reports whether err means the course does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCourseNotFound)
}
