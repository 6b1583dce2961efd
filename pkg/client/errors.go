package client

import (
	"errors"

	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
)

// ErrSessionClosed is returned for any call made before the session is open.
var ErrSessionClosed = errors.New("P21 session is not open")

// ErrorClass represents a classification of client errors.
type ErrorClass string

const (
	// ErrorClassConfiguration represents invalid endpoint or credentials.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassSession represents calls on a closed session.
	ErrorClassSession ErrorClass = "session"

	// ErrorClassTransport represents network failures.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassRemoteService represents error envelopes sent by P21.
	ErrorClassRemoteService ErrorClass = "remote_service"

	// ErrorClassMalformed represents payloads without a recognizable shape.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassUnknown represents anything else.
	ErrorClassUnknown ErrorClass = "unknown"
)

// Classify maps an error returned by this module to its class.
func Classify(err error) ErrorClass {
	var (
		cfgErr       *session.ConfigurationError
		transportErr *transport.Error
		remoteErr    *record.RemoteServiceError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return ErrorClassConfiguration
	case errors.Is(err, ErrSessionClosed):
		return ErrorClassSession
	case errors.As(err, &transportErr):
		return ErrorClassTransport
	case errors.As(err, &remoteErr):
		return ErrorClassRemoteService
	case errors.Is(err, record.ErrMalformedResponse):
		return ErrorClassMalformed
	default:
		return ErrorClassUnknown
	}
}
