package transport

import (
	"fmt"
)

// Error is a network-level failure of a single request.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s %s (status %d): %v", e.Method, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
