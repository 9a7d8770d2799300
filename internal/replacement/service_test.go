package replacement_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/uits-lms/macrovars/internal/canvas"
	"github.com/uits-lms/macrovars/internal/macro"
	"github.com/uits-lms/macrovars/internal/replacement"
	"github.com/uits-lms/macrovars/internal/roles"
	"github.com/uits-lms/macrovars/internal/suds"
)

func newMapper() *macro.Mapper {
	return &macro.Mapper{
		UserFirstName:  "John",
		UserLastName:   "Smith",
		SISCampus:      "asdf",
		SISTermID:      "1234",
		SISCourseID:    "ASDF-1234-QWER-0987",
		UserNetworkID:  "jsmith",
		UserRole:       roles.LearnerRole,
		UserID:         "000123456789",
		ClassNumber:    "9876",
		CanvasCourseID: "1111111",
	}
}

type fakeCourses struct {
	course *canvas.Course
	err    error
	calls  []string
}

func (f *fakeCourses) GetCourse(ctx context.Context, courseID string) (*canvas.Course, error) {
	f.calls = append(f.calls, courseID)
	return f.course, f.err
}

type fakeDirectory struct {
	class *suds.Class
	err   error
	calls []string
}

func (f *fakeDirectory) FindClass(ctx context.Context, sisCourseID string) (*suds.Class, error) {
	f.calls = append(f.calls, sisCourseID)
	return f.class, f.err
}

type recordingLogger struct{ lines []string }

func (l *recordingLogger) Warn(format string, args ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func theSISCourse() *fakeCourses {
	return &fakeCourses{course: &canvas.Course{ID: "1111111", SISCourseID: "THE_SIS_COURSE_ID"}}
}

func TestSimpleReplacement(t *testing.T) {
	svc := replacement.New(replacement.Options{Courses: theSISCourse()})
	input := fmt.Sprintf("Hello, %[1]s %[2]s.  It is %[1]s, isn't it?", macro.TokenUserFirstName, macro.TokenUserLastName)

	got, err := svc.PerformMacroVariableReplacement(newMapper(), &input)
	if err != nil {
		t.Fatalf("PerformMacroVariableReplacement() error = %v", err)
	}
	if want := "Hello, John Smith.  It is John, isn't it?"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNullCheck(t *testing.T) {
	svc := replacement.New(replacement.Options{})

	_, err := svc.PerformMacroVariableReplacement(newMapper(), nil)
	if err == nil {
		t.Fatal("expected error for nil input")
	}
	if !errors.Is(err, replacement.ErrInvalidArgument) {
		t.Errorf("error %v does not match ErrInvalidArgument", err)
	}
	var argErr *replacement.InvalidArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("error type = %T, want *InvalidArgumentError", err)
	}
	if err.Error() != "inputString cannot be null" {
		t.Errorf("message = %q, want %q", err.Error(), "inputString cannot be null")
	}
}

func TestNilMapper(t *testing.T) {
	svc := replacement.New(replacement.Options{Courses: theSISCourse()})
	input := "x"
	if _, err := svc.PerformMacroVariableReplacement(nil, &input); !errors.Is(err, replacement.ErrInvalidArgument) || err.Error() != "mapper cannot be null" {
		t.Errorf("PerformMacroVariableReplacement(nil mapper) error = %v", err)
	}
	if err := svc.SetupMapper(context.Background(), nil, []string{roles.LearnerRole}); !errors.Is(err, replacement.ErrInvalidArgument) {
		t.Errorf("SetupMapper(nil mapper) error = %v", err)
	}
}

func TestExpandAll(t *testing.T) {
	courses := theSISCourse()
	svc := replacement.New(replacement.Options{Courses: courses})
	m := newMapper()

	if err := svc.SetupMapper(context.Background(), m, []string{roles.LearnerRole}); err != nil {
		t.Fatalf("SetupMapper() error = %v", err)
	}
	if m.SISCourseID != "THE_SIS_COURSE_ID" {
		t.Fatalf("SISCourseID = %q, sis course id did not get set properly", m.SISCourseID)
	}
	if len(courses.calls) != 1 || courses.calls[0] != "1111111" {
		t.Errorf("course lookups = %v, want [1111111]", courses.calls)
	}

	tokens := []interface{}{
		macro.TokenUserFirstName, macro.TokenUserLastName, macro.TokenSISCampus, macro.TokenSISTermID,
		macro.TokenSISCourseID, macro.TokenUserNetworkID, macro.TokenUserRole, macro.TokenUserID,
		macro.TokenClassNumber, macro.TokenCanvasCourseID,
	}
	const template = "%s;%s;%s;%s;%s;%s;%s;%s;%s;%s;"
	input := fmt.Sprintf(template, tokens...)
	want := fmt.Sprintf(template,
		m.UserFirstName, m.UserLastName, m.SISCampus, m.SISTermID, m.SISCourseID,
		m.UserNetworkID, url.QueryEscape(m.UserRole), m.UserID, m.ClassNumber, m.CanvasCourseID)

	got, err := svc.PerformMacroVariableReplacement(m, &input)
	if err != nil {
		t.Fatalf("PerformMacroVariableReplacement() error = %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSetupMapperRoleGating(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		resolver roles.Resolver
		want     string
		lookups  int
	}{
		{"learner enriches", []string{roles.LearnerRole}, nil, "THE_SIS_COURSE_ID", 1},
		{"learner among others", []string{"Instructor", " Learner "}, nil, "THE_SIS_COURSE_ID", 1},
		{"other role untouched", []string{"some-other-role"}, nil, "ASDF-1234-QWER-0987", 0},
		{"no roles untouched", nil, nil, "ASDF-1234-QWER-0987", 0},
		{"configured qualifying role", []string{"TaEnrollment"}, roles.NewDefaultResolver("TaEnrollment"), "THE_SIS_COURSE_ID", 1},
		{"custom policy", []string{"anything"}, roles.ResolverFunc(func([]string) bool { return true }), "THE_SIS_COURSE_ID", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			courses := theSISCourse()
			svc := replacement.New(replacement.Options{Courses: courses, Resolver: tt.resolver})
			m := newMapper()
			if err := svc.SetupMapper(context.Background(), m, tt.roles); err != nil {
				t.Fatalf("SetupMapper() error = %v", err)
			}
			if m.SISCourseID != tt.want {
				t.Errorf("SISCourseID = %q, want %q", m.SISCourseID, tt.want)
			}
			if len(courses.calls) != tt.lookups {
				t.Errorf("lookups = %d, want %d", len(courses.calls), tt.lookups)
			}
		})
	}
}

func TestSetupMapperLookupFailure(t *testing.T) {
	boom := errors.New("connection refused")
	tests := []struct {
		name      string
		courses   canvas.CourseService
		directory suds.Directory
		source    string
		wantErr   error
	}{
		{"lookup error", &fakeCourses{err: boom}, nil, canvas.Source, boom},
		{"course not found", &fakeCourses{err: canvas.ErrCourseNotFound}, nil, canvas.Source, canvas.ErrCourseNotFound},
		{"absent course", &fakeCourses{}, nil, canvas.Source, canvas.ErrCourseNotFound},
		{"empty sis id", &fakeCourses{course: &canvas.Course{ID: "1111111"}}, nil, canvas.Source, canvas.ErrMissingSISCourseID},
		{"no course service", nil, nil, canvas.Source, replacement.ErrNoCourseService},
		{"directory error", theSISCourse(), &fakeDirectory{err: boom}, suds.Source, boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := replacement.New(replacement.Options{Courses: tt.courses, Directory: tt.directory})
			m := newMapper()
			before := *m

			err := svc.SetupMapper(context.Background(), m, []string{roles.LearnerRole})
			if !errors.Is(err, replacement.ErrLookupFailure) {
				t.Fatalf("error = %v, want ErrLookupFailure", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want wrapped %v", err, tt.wantErr)
			}
			var lookupErr *replacement.LookupError
			if !errors.As(err, &lookupErr) || lookupErr.Source != tt.source {
				t.Errorf("LookupError = %+v, want source %q", lookupErr, tt.source)
			}
			if *m != before {
				t.Errorf("mapper modified on failure: %+v", *m)
			}
		})
	}
}

func TestSetupMapperClassDirectory(t *testing.T) {
	t.Run("found record overwrites non-empty fields", func(t *testing.T) {
		dir := &fakeDirectory{class: &suds.Class{SISCourseID: "THE_SIS_COURSE_ID", Campus: "BL", TermID: "4218"}}
		svc := replacement.New(replacement.Options{Courses: theSISCourse(), Directory: dir})
		m := newMapper()
		if err := svc.SetupMapper(context.Background(), m, []string{roles.LearnerRole}); err != nil {
			t.Fatalf("SetupMapper() error = %v", err)
		}
		if len(dir.calls) != 1 || dir.calls[0] != "THE_SIS_COURSE_ID" {
			t.Errorf("directory lookups = %v", dir.calls)
		}
		if m.SISCampus != "BL" || m.SISTermID != "4218" {
			t.Errorf("campus/term = %q/%q, want BL/4218", m.SISCampus, m.SISTermID)
		}
		if m.ClassNumber != "9876" {
			t.Errorf("ClassNumber = %q, empty record value should not overwrite", m.ClassNumber)
		}
	})

	t.Run("missing record leaves fields and warns", func(t *testing.T) {
		logger := &recordingLogger{}
		svc := replacement.New(replacement.Options{Courses: theSISCourse(), Directory: &fakeDirectory{}, Logger: logger})
		m := newMapper()
		if err := svc.SetupMapper(context.Background(), m, []string{roles.LearnerRole}); err != nil {
			t.Fatalf("SetupMapper() error = %v", err)
		}
		if m.SISCourseID != "THE_SIS_COURSE_ID" || m.SISCampus != "asdf" || m.ClassNumber != "9876" {
			t.Errorf("mapper = %+v", *m)
		}
		if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "THE_SIS_COURSE_ID") {
			t.Errorf("warnings = %v", logger.lines)
		}
	})
}

func TestRender(t *testing.T) {
	svc := replacement.New(replacement.Options{Courses: theSISCourse()})
	m := newMapper()
	m.UserRole = "Teaching Assistant"

	got, err := svc.Render(context.Background(), m, []string{roles.LearnerRole}, "[[SIS_COURSE_ID]]?role=[[USER_ROLE]]")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "THE_SIS_COURSE_ID?role=Teaching+Assistant"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	failing := replacement.New(replacement.Options{Courses: &fakeCourses{err: canvas.ErrCourseNotFound}})
	if out, err := failing.Render(context.Background(), newMapper(), []string{roles.LearnerRole}, "x"); err == nil || out != "" {
		t.Errorf("Render() = %q, %v, want lookup failure and no output", out, err)
	}
}

func TestLookupErrorMessage(t *testing.T) {
	err := &replacement.LookupError{Source: "canvas", Key: "42", Err: canvas.ErrCourseNotFound}
	if got := err.Error(); got != `canvas lookup for "42" failed: course not found` {
		t.Errorf("Error() = %q", got)
	}
}
