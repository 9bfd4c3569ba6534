// Package errs defines the error taxonomy shared by the storage, service and
// HTTP layers.  Errors are classified by marking them with one of the
// sentinel kinds below; handlers translate the kind into a status code with
// errors.Is and never need to inspect messages.
package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks missing or malformed input.  Raised before any
	// store access.
	ErrValidation = cr.New("validation error")
	// ErrNotFound marks a referenced seat or show that does not exist.
	ErrNotFound = cr.New("not found")
	// ErrConflict marks a seat whose state does not permit the request.
	ErrConflict = cr.New("conflict")
	// ErrForbidden marks a caller acting on behalf of another identity.
	ErrForbidden = cr.New("forbidden")
	// ErrInternal marks storage or transport failures unrelated to seat
	// state.  They are surfaced to the caller and never retried here.
	ErrInternal = cr.New("internal error")
)

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...any) error {
	return cr.Newf(format, args...)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

func As(err error, target any) bool {
	return cr.As(err, target)
}

// Validation returns a new validation error with msg.
func Validation(msg string) error {
	return cr.Mark(cr.New(msg), ErrValidation)
}

// NotFound returns a new not-found error with msg.
func NotFound(msg string) error {
	return cr.Mark(cr.New(msg), ErrNotFound)
}

// Forbidden returns a new forbidden error with msg.
func Forbidden(msg string) error {
	return cr.Mark(cr.New(msg), ErrForbidden)
}

// Internal wraps err with msg and marks it as an internal failure.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Mark(cr.Wrap(err, msg), ErrInternal)
}

// ExtractStackLines renders err with its stack trace and returns at most
// maxLines lines of it, for logging.
func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
