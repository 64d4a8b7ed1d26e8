// Package apperr defines the failure kinds a summarize or ask request can end
// in, and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	KindValidation    Kind = "ValidationError"
	KindAcquisition   Kind = "AcquisitionError"
	KindEmptyAudio    Kind = "EmptyAudioError"
	KindTranscription Kind = "TranscriptionError"
	KindGeneration    Kind = "GenerationError"
	KindInternal      Kind = "InternalError"
)

// Error is a tagged failure. Message is safe to show to callers; the cause
// keeps the underlying error and the stack at the point of creation.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause == nil || e.cause.Error() == e.Message {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.cause)
}

func (e *Error) Unwrap() error {
	return pkgerrors.Cause(e.cause)
}

// New creates an Error of kind with a stack trace.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg, cause: pkgerrors.New(msg)}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap tags err with kind. An err that already carries a kind keeps it.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	return &Error{Kind: kind, Message: msg, cause: pkgerrors.WithStack(err)}
}

// KindOf reports the kind of err, InternalError for untagged errors.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message of err. The cause chain is left
// out; it only appears in Error() and Stack().
func Message(err error) string {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Stack returns the recorded stack trace, empty for untagged errors.
func Stack(err error) string {
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.cause == nil {
		return ""
	}
	return fmt.Sprintf("%+v", tagged.cause)
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAcquisition, KindEmptyAudio, KindTranscription, KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
