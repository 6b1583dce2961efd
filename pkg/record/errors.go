package record

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when a payload has no recognizable shape.
var ErrMalformedResponse = errors.New("malformed response")

// RemoteServiceError is an error envelope reported by the ERP.
type RemoteServiceError struct {
	// Type is the server-side exception type, e.g.
	// P21.Common.Exceptions.ValidationException.
	Type    string
	Message string
}

// Error implements the error interface.
func (e *RemoteServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("P21 service error %s", e.Type)
	}
	return fmt.Sprintf("P21 service error %s: %s", e.Type, e.Message)
}
