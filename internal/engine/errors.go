package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/validation"
)

// Sentinel errors. Every error returned by the engine wraps exactly one of
// them (or storage.ErrNotFound via ErrNotFound).
var (
	// ErrUnauthorized means the actor lacks a capability the mutation needs.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidationFailed is carried by *ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrConcurrentModification means another writer updated the issue
	// between load and save. The whole mutation may be retried.
	ErrConcurrentModification = errors.New("issue was modified concurrently")

	// ErrPartialFailure is carried by *PartialFailureError from the
	// bulk and move coordinators.
	ErrPartialFailure = errors.New("some issues could not be processed")

	// ErrInfrastructure means storage or another collaborator failed.
	// Nothing from the failed operation is committed.
	ErrInfrastructure = errors.New("infrastructure failure")

	// ErrNotFound means the target issue does not exist.
	ErrNotFound = errors.New("issue not found")
)

// ValidationError lists every rejected field of one mutation.
type ValidationError struct {
	Errors []validation.FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Field returns the first error on field, if any.
func (e *ValidationError) Field(field string) (validation.FieldError, bool) {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return fe, true
		}
	}
	return validation.FieldError{}, false
}

// unauthorized builds an ErrUnauthorized with the missing capability.
func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// classify maps whatever escaped a transaction onto the engine taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrInfrastructure),
		errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrentModification, err)
	default:
		return fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
}

// IsBusinessError reports whether err is an expected per-issue outcome
// rather than an infrastructure fault. Coordinators record business errors
// and keep going.
func IsBusinessError(err error) bool {
	return err != nil && !errors.Is(err, ErrInfrastructure)
}

// Reason returns a short machine-readable reason for a per-issue failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInfrastructure):
		return "infrastructure"
	}
	return "error"
}

// Failure is one issue a coordinator could not process.
type Failure struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// NewFailure records err against id.
func NewFailure(id int64, err error) Failure {
	return Failure{ID: id, Reason: Reason(err), Err: err}
}

// Message is the human readable cause, for JSON output.
func (f Failure) Message() string {
	if f.Err == nil {
		return f.Reason
	}
	return f.Err.Error()
}

// PartialFailureError is returned when a multi-issue operation succeeded for
// some ids and failed for others.
type PartialFailureError struct {
	Succeeded []int64
	Failed    []Failure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		ids[i] = fmt.Sprintf("#%d (%s)", f.ID, f.Reason)
	}
	return fmt.Sprintf("%d of %d issues failed: %s",
		len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(ids, ", "))
}

// Is lets errors.Is(err, ErrPartialFailure) match.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}
