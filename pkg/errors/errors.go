// Package errors holds the sentinel errors shared by the index and the
// query service and maps them onto HTTP responses. Callers wrap a
// sentinel with fmt.Errorf("%w: ...") and match it with errors.Is.
package errors

import (
	"errors"
	"net/http"
)

var (
	// Index files.
	ErrCorruptIndex     = errors.New("corrupt index")
	ErrMissingFile      = errors.New("missing index file")
	ErrTruncatedJournal = errors.New("truncated journal")
	ErrSwapFailed       = errors.New("index switch failed")

	// Converter runs.
	ErrInterrupted = errors.New("interrupted")
	ErrTimeout     = errors.New("operation timed out")

	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

// rules is checked in order; the first sentinel err wraps decides.
var rules = []struct {
	sentinel error
	status   int
	public   bool
}{
	{ErrInvalidInput, http.StatusBadRequest, true},
	{ErrSwapFailed, http.StatusConflict, true},
	{ErrMissingFile, http.StatusConflict, false},
	{ErrCorruptIndex, http.StatusConflict, false},
	{ErrTruncatedJournal, http.StatusConflict, false},
	{ErrTimeout, http.StatusServiceUnavailable, false},
	{ErrInterrupted, http.StatusServiceUnavailable, false},
}

// HTTPStatusCode is the status a handler answers err with. Unknown errors
// are 500s.
func HTTPStatusCode(err error) int {
	for _, r := range rules {
		if errors.Is(err, r.sentinel) {
			return r.status
		}
	}
	return http.StatusInternalServerError
}

// Message is the text a client may see for err. Errors caused by the
// request are returned in full; anything else is reduced to its sentinel
// so paths and internals stay in the logs.
func Message(err error) string {
	for _, r := range rules {
		if errors.Is(err, r.sentinel) {
			if r.public {
				return err.Error()
			}
			return r.sentinel.Error()
		}
	}
	return ErrInternal.Error()
}
