// Package replacement enriches a macro.Mapper from Canvas and the SIS class
// directory, then substitutes its values into template text.
package replacement

import (
	"context"

	"github.com/uits-lms/macrovars/internal/canvas"
	"github.com/uits-lms/macrovars/internal/macro"
	"github.com/uits-lms/macrovars/internal/roles"
	"github.com/uits-lms/macrovars/internal/suds"
)

const (
	msgNilInput  = "inputString cannot be null"
	msgNilMapper = "mapper cannot be null"
)

// Logger interface for warning output.
type Logger interface {
	Warn(format string, args ...interface{})
}

// Options configure a Service. Every field is optional.
type Options struct {
	Courses   canvas.CourseService
	Directory suds.Directory
	Resolver  roles.Resolver // defaults to the learner policy
	Logger    Logger
}

// Service performs role-gated enrichment and macro substitution. It holds
// no per-call state and is safe for concurrent use when its collaborators
// are.
type Service struct {
	courses   canvas.CourseService
	directory suds.Directory
	resolver  roles.Resolver
	logger    Logger
}

// New returns a Service wired to the given collaborators.
func New(opts Options) *Service {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = roles.NewDefaultResolver()
	}
	return &Service{
		courses:   opts.Courses,
		directory: opts.Directory,
		resolver:  resolver,
		logger:    opts.Logger,
	}
}

// SetupMapper enriches mapper when the resolver accepts roleSet. The SIS
// course id always comes from the Canvas course named by
// mapper.CanvasCourseID. With a class directory configured, campus, term
// and class number are then filled from the class record where it has
// values. Nothing is written to mapper unless every lookup succeeds.
func (s *Service) SetupMapper(ctx context.Context, mapper *macro.Mapper, roleSet []string) error {
	if mapper == nil {
		return &InvalidArgumentError{Message: msgNilMapper}
	}
	if !s.resolver.ShouldResolve(roleSet) {
		return nil
	}

	courseID := mapper.CanvasCourseID
	if s.courses == nil {
		return &LookupError{Source: canvas.Source, Key: courseID, Err: ErrNoCourseService}
	}
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return &LookupError{Source: canvas.Source, Key: courseID, Err: err}
	}
	if course == nil {
		return &LookupError{Source: canvas.Source, Key: courseID, Err: canvas.ErrCourseNotFound}
	}
	if course.SISCourseID == "" {
		return &LookupError{Source: canvas.Source, Key: courseID, Err: canvas.ErrMissingSISCourseID}
	}

	var class *suds.Class
	if s.directory != nil {
		class, err = s.directory.FindClass(ctx, course.SISCourseID)
		if err != nil {
			return &LookupError{Source: suds.Source, Key: course.SISCourseID, Err: err}
		}
		if class == nil && s.logger != nil {
			s.logger.Warn("no class directory entry for %s", course.SISCourseID)
		}
	}

	mapper.SISCourseID = course.SISCourseID
	if class != nil {
		setIfPresent(&mapper.SISCampus, class.Campus)
		setIfPresent(&mapper.SISTermID, class.TermID)
		setIfPresent(&mapper.ClassNumber, class.ClassNumber)
	}
	return nil
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// PerformMacroVariableReplacement substitutes every token in *input with the
// matching mapper value. The role value is form-encoded. A nil input is an
// InvalidArgumentError with the message "inputString cannot be null".
func (s *Service) PerformMacroVariableReplacement(mapper *macro.Mapper, input *string) (string, error) {
	if input == nil {
		return "", &InvalidArgumentError{Message: msgNilInput}
	}
	if mapper == nil {
		return "", &InvalidArgumentError{Message: msgNilMapper}
	}
	return macro.Replace(*mapper, *input), nil
}

// Render runs SetupMapper then substitutes into template. mapper is left
// enriched for the caller.
func (s *Service) Render(ctx context.Context, mapper *macro.Mapper, roleSet []string, template string) (string, error) {
	if err := s.SetupMapper(ctx, mapper, roleSet); err != nil {
		return "", err
	}
	return s.PerformMacroVariableReplacement(mapper, &template)
}
