package stext

import (
	"github.com/pkg/errors"
)

// Error kinds. Operations wrap one of these with context; test with errors.Is.
var (
	// ErrInvalidHandle indicates a stale, dropped or nil reference.
	ErrInvalidHandle = errors.New("invalid or dropped handle")
	// ErrExtractionFailed indicates the page content could not be interpreted.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrInvalidArgument indicates a bad argument such as an empty needle.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAllocationFailed indicates the context store limit was exceeded.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrAborted is returned when a Cookie aborts extraction. It is an
	// ErrExtractionFailed.
	ErrAborted = &kindError{msg: "extraction aborted", kind: ErrExtractionFailed}
)

// kindError is a sentinel that also matches a broader kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == e.kind
}

// extractionError wraps cause so that it matches ErrExtractionFailed while
// keeping cause reachable through errors.Is and errors.As.
type extractionError struct {
	cause error
}

func (e *extractionError) Error() string {
	return ErrExtractionFailed.Error() + ": " + e.cause.Error()
}

func (e *extractionError) Unwrap() error {
	return e.cause
}

func (e *extractionError) Is(target error) bool {
	return target == ErrExtractionFailed
}

// asExtractionFailed marks err as an extraction failure unless it already is one.
func asExtractionFailed(err error) error {
	if err == nil || errors.Is(err, ErrExtractionFailed) {
		return err
	}
	return &extractionError{cause: err}
}
