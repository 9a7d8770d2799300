// Package canvas looks up courses through the Canvas LMS REST API.
package canvas

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Source names Canvas lookups in spans and metrics.
const Source = "canvas"

// Error is a fixed Canvas lookup failure.
type Error string

func (e Error) Error() string { return string(e) }

// MetricLabel groups the failure in lookup reports.
func (e Error) MetricLabel() string { return "Canvas " + string(e) }

const (
	// ErrCourseNotFound is returned when Canvas answers 404 for a course.
	ErrCourseNotFound = Error("course not found")
	// ErrMissingCourseID is returned when a lookup is asked for a blank id.
	ErrMissingCourseID = Error("course id is required")
	// ErrMissingSISCourseID reports a course that has no SIS course id.
	ErrMissingSISCourseID = Error("course has no SIS course id")
)

// HTTPError is a non-404 error status from Canvas.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("canvas: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("canvas: unexpected status %d: %s", e.StatusCode, e.Body)
}

// MetricLabel groups the failure by status code.
func (e *HTTPError) MetricLabel() string {
	return fmt.Sprintf("Canvas HTTP %d", e.StatusCode)
}

// Course holds the course fields enrichment reads.
type Course struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	CourseCode       string `json:"course_code" yaml:"course_code"`
	SISCourseID      string `json:"sis_course_id" yaml:"sis_course_id"`
	EnrollmentTermID string `json:"enrollment_term_id" yaml:"enrollment_term_id"`
	AccountID        string `json:"account_id" yaml:"account_id"`
}

// CourseService fetches a course by its Canvas id. Implementations return
// ErrCourseNotFound when the course does not exist.
type CourseService interface {
	GetCourse(ctx context.Context, courseID string) (*Course, error)
}

// CourseServiceFunc adapts a function to CourseService.
type CourseServiceFunc func(ctx context.Context, courseID string) (*Course, error)

func (f CourseServiceFunc) GetCourse(ctx context.Context, courseID string) (*Course, error) {
	return f(ctx, courseID)
}

// parseCourse reads a Canvas course object. Canvas sends numeric ids and
// null for unset SIS ids, so every field is read through gjson.
func parseCourse(body []byte) (*Course, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("canvas: invalid course JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("canvas: course response is not an object")
	}
	course := &Course{
		ID:               field(doc, "id"),
		Name:             field(doc, "name"),
		CourseCode:       field(doc, "course_code"),
		SISCourseID:      field(doc, "sis_course_id"),
		EnrollmentTermID: field(doc, "enrollment_term_id"),
		AccountID:        field(doc, "account_id"),
	}
	if course.ID == "" {
		return nil, fmt.Errorf("canvas: course response has no id")
	}
	return course, nil
}

func field(doc gjson.Result, path string) string {
	res := doc.Get(path)
	if !res.Exists() || res.Type == gjson.Null {
		return ""
	}
	if res.Type == gjson.Number {
		// Raw keeps large ids exact where Float would round them.
		return res.Raw
	}
	return strings.TrimSpace(res.String())
}
