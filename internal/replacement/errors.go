package replacement

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument matches every *InvalidArgumentError.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrLookupFailure matches every *LookupError.
var ErrLookupFailure = errors.New("lookup failure")

// ErrNoCourseService is wrapped in a LookupError when enrichment applies but
// no course service was configured.
var ErrNoCourseService = errors.New("no course service configured")

// InvalidArgumentError reports a required argument that was absent.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// LookupError reports a failed enrichment lookup. Source is "canvas" or
// "suds" and Key is the id that was looked up.
type LookupError struct {
	Source string
	Key    string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s lookup for %q failed: %v", e.Source, e.Key, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool { return target == ErrLookupFailure }
