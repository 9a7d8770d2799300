// Package suds reads SIS class records (campus, term and class number) keyed
// by SIS course id from a SQL class directory.
package suds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	_ "modernc.org/sqlite"

	"github.com/uits-lms/macrovars/internal/metrics"
	"github.com/uits-lms/macrovars/internal/tracing"
)

// Source names directory lookups in spans and metrics.
const Source = "suds"

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Class is one SIS class offering.
type Class struct {
	SISCourseID string `json:"sis_course_id" yaml:"sis_course_id"`
	Campus      string `json:"campus" yaml:"campus"`
	TermID      string `json:"term_id" yaml:"term_id"`
	ClassNumber string `json:"class_nbr" yaml:"class_nbr"`
}

// Directory finds the class for a SIS course id. A missing class is
// reported as (nil, nil).
type Directory interface {
	FindClass(ctx context.Context, sisCourseID string) (*Class, error)
}

// Options configure instrumentation for a SQLDirectory.
type Options struct {
	Tracer  trace.Tracer
	Metrics *metrics.Collector
}

// SQLDirectory is a Directory backed by the suds_class table.
type SQLDirectory struct {
	db      *sql.DB
	driver  string
	tracer  trace.Tracer
	metrics *metrics.Collector
}

var _ Directory = (*SQLDirectory)(nil)

// Open connects to the class directory. driver is "sqlite" or "postgres".
func Open(driver, dsn string, opts Options) (*SQLDirectory, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("suds: dsn is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("suds: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	return New(db, driver, opts)
}

// New wraps an existing connection pool.
func New(db *sql.DB, driver string, opts Options) (*SQLDirectory, error) {
	if db == nil {
		return nil, errors.New("suds: db cannot be nil")
	}
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(Source)
	}
	return &SQLDirectory{db: db, driver: driver, tracer: tracer, metrics: opts.Metrics}, nil
}

func checkDriver(driver string) error {
	switch driver {
	case DriverSQLite, DriverPostgres:
		return nil
	default:
		return fmt.Errorf("suds: unsupported driver %q (use sqlite or postgres)", driver)
	}
}

// Close closes the connection pool.
func (d *SQLDirectory) Close() error { return d.db.Close() }

// Migrate creates the suds_class table when it does not exist.
func (d *SQLDirectory) Migrate(ctx context.Context) error {
	return Migrate(ctx, d.db)
}

// Migrate creates the suds_class table on db when it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	const ddl = `CREATE TABLE IF NOT EXISTS suds_class (
	sis_course_id VARCHAR(255) PRIMARY KEY,
	campus        VARCHAR(32),
	term_id       VARCHAR(32),
	class_nbr     VARCHAR(32)
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("suds: migrate: %w", err)
	}
	return nil
}

// FindClass implements Directory.
func (d *SQLDirectory) FindClass(ctx context.Context, sisCourseID string) (class *Class, err error) {
	sisCourseID = strings.TrimSpace(sisCourseID)
	if sisCourseID == "" {
		return nil, nil
	}

	ctx, span := tracing.StartLookupSpan(ctx, d.tracer, Source, sisCourseID)
	start := time.Now()
	defer func() {
		d.metrics.RecordLookup(Source, time.Since(start), err)
		tracing.EndSpan(span, err, tracing.AttrFound.Bool(class != nil))
	}()

	query := d.rebind(`SELECT sis_course_id, campus, term_id, class_nbr FROM suds_class WHERE sis_course_id = ?`)
	var campus, term, classNbr sql.NullString
	found := Class{}
	err = d.db.QueryRowContext(ctx, query, sisCourseID).Scan(&found.SISCourseID, &campus, &term, &classNbr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("suds: find class %q: %w", sisCourseID, err)
	}
	found.Campus = strings.TrimSpace(campus.String)
	found.TermID = strings.TrimSpace(term.String)
	found.ClassNumber = strings.TrimSpace(classNbr.String)
	return &found, nil
}

// PutClass inserts or replaces the class for c.SISCourseID.
func (d *SQLDirectory) PutClass(ctx context.Context, c Class) error {
	if strings.TrimSpace(c.SISCourseID) == "" {
		return errors.New("suds: sis_course_id is required")
	}
	query := d.rebind(`INSERT INTO suds_class (sis_course_id, campus, term_id, class_nbr)
VALUES (?, ?, ?, ?)
ON CONFLICT (sis_course_id) DO UPDATE SET
	campus = excluded.campus,
	term_id = excluded.term_id,
	class_nbr = excluded.class_nbr`)
	if _, err := d.db.ExecContext(ctx, query, c.SISCourseID, c.Campus, c.TermID, c.ClassNumber); err != nil {
		return fmt.Errorf("suds: put class %q: %w", c.SISCourseID, err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *SQLDirectory) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
