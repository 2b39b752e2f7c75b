/*
Package loader – error types.

Every failure surfaced by the loader carries an ErrorCode so callers can decide
whether to continue with the next category or stop.
*/
package loader

import (
	"errors"
	"fmt"
)

// ErrorCode names the kind of failure. The CLI reads it to decide whether a
// failed category stops the whole run.
type ErrorCode string

const (
	// ErrArgument marks invalid input to the loader itself.
	ErrArgument       ErrorCode = "ArgumentError"
	// ErrTableMissing means the table could not be confirmed or did not become active.
	ErrTableMissing   ErrorCode = "TableMissing"
	// ErrMapping marks a record that has no DynamoDB representation.
	ErrMapping        ErrorCode = "MappingError"
	// ErrSubmission is a BatchWriteItem call that failed outright.
	ErrSubmission     ErrorCode = "SubmissionError"
	// ErrRetryExhausted means items were still unprocessed when the waves ran out.
	ErrRetryExhausted ErrorCode = "RetryExhausted"
	// ErrCancelled wraps the context error of a cancelled session.
	ErrCancelled      ErrorCode = "Cancelled"
	// ErrRuntime covers table DDL and local file failures.
	ErrRuntime        ErrorCode = "RuntimeError"
)

// LoaderError is returned by Table and Uploader. Context holds the table,
// wave and chunk the failure belongs to, plus the provider error code for
// submissions; Cause is the SDK or context error underneath.
type LoaderError struct {
	Message string
	Code    ErrorCode
	Context map[string]any
	Cause   error
}

// Error renders "[Code] message: cause".
func (e *LoaderError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoaderError) Unwrap() error { return e.Cause }

// NewError builds a LoaderError from msg and the With* options.
func NewError(msg string, opts ...func(*LoaderError)) *LoaderError {
	err := &LoaderError{Message: msg}
	for _, o := range opts {
		o(err)
	}
	return err
}

// WithCode sets the error code.
func WithCode(c ErrorCode) func(*LoaderError) {
	return func(e *LoaderError) { e.Code = c }
}

// WithContext attaches the fields logged alongside the error.
func WithContext(ctx map[string]any) func(*LoaderError) {
	return func(e *LoaderError) { e.Context = ctx }
}

// WithCause sets the error that Unwrap returns.
func WithCause(cause error) func(*LoaderError) {
	return func(e *LoaderError) { e.Cause = cause }
}

// ArgError reports a call the loader refuses before touching DynamoDB, such as
// a table without a name or an oversized batch.
type ArgError struct {
	Message string
	Code    ErrorCode
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewArgError constructs an ArgError.
func NewArgError(msg string) *ArgError {
	return &ArgError{Message: msg, Code: ErrArgument}
}

// CodeOf returns the ErrorCode carried anywhere in err's chain, or "" when
// err was not produced by this package.
func CodeOf(err error) ErrorCode {
	var le *LoaderError
	if errors.As(err, &le) {
		return le.Code
	}
	var ae *ArgError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
