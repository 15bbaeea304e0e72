// Package apperr defines the error kinds shared by the detection and
// verification paths.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput means no frames were sampled or scored, so no mean exists.
	ErrEmptyInput = errors.New("no frames checked")
	// ErrUnsupportedInput means the media could not be recognised or decoded.
	ErrUnsupportedInput = errors.New("unsupported media")
	// ErrInvalidInput covers request parameters outside their allowed range.
	ErrInvalidInput = errors.New("invalid input")
)

// ServiceError is a failure reported by, or while talking to, an external
// collaborator (classifier, fact-check search, summarizer).
type ServiceError struct {
	Service string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func External(service string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) && se.Service == service {
		return err
	}
	return &ServiceError{Service: service, Err: err}
}

func IsExternal(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// Invalid formats like fmt.Errorf, so a %w verb keeps the cause in the chain.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, fmt.Errorf(format, args...))
}

func Unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrUnsupportedInput, fmt.Errorf(format, args...))
}
