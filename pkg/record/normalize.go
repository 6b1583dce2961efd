package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "p21_records_normalized_total",
	Help: "Total normalized P21 responses by outcome",
}, []string{"outcome"})

// NotFoundErrorType is the ErrorType P21 uses when a lookup matched nothing.
const NotFoundErrorType = "P21.Common.Exceptions.NotFoundException"

// Options tune normalization.
type Options struct {
	// StrictParse reports unparseable payloads as ErrMalformedResponse
	// instead of an empty result.
	StrictParse bool
}

// Envelope keys. Matched case-sensitively so data fields such as
// "errortype" never read as an error marker.
const (
	errorTypeKey    = "ErrorType"
	errorMessageKey = "ErrorMessage"
)

// Normalize converts a raw payload with default options.
func Normalize(payload []byte) ([]Record, error) {
	return NormalizeWith(payload, Options{})
}

// NormalizeWith converts a raw payload into records.
//
// An empty payload, a not-found envelope, JSON null and (unless StrictParse
// is set) anything that is not a JSON array or object yield an empty slice.
// Any other error envelope yields a *RemoteServiceError.
func NormalizeWith(payload []byte, opts Options) ([]Record, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		recordsNormalized.WithLabelValues("empty").Inc()
		return []Record{}, nil
	}

	if !json.Valid(trimmed) {
		return malformed(opts, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse))
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return malformed(opts, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		records := make([]Record, len(items))
		for i, item := range items {
			records[i] = Record(item)
		}
		recordsNormalized.WithLabelValues("list").Inc()
		return records, nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return malformed(opts, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
		}
		if raw, ok := fields[errorTypeKey]; ok && isMarker(raw) {
			errorType := text(raw)
			if errorType == NotFoundErrorType {
				recordsNormalized.WithLabelValues("not_found").Inc()
				return []Record{}, nil
			}
			recordsNormalized.WithLabelValues("remote_error").Inc()
			return nil, &RemoteServiceError{Type: errorType, Message: text(fields[errorMessageKey])}
		}
		recordsNormalized.WithLabelValues("single").Inc()
		return []Record{Record(trimmed)}, nil

	case 'n':
		recordsNormalized.WithLabelValues("empty").Inc()
		return []Record{}, nil

	default:
		return malformed(opts, fmt.Errorf("%w: unexpected JSON value %.32q", ErrMalformedResponse, trimmed))
	}
}

// isMarker reports whether an ErrorType value flags an error: anything but
// null, false, 0, "", "0" and empty containers.
func isMarker(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`, `"0"`, "[]", "{}":
		return false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return true
}

// text returns a JSON string's value, or the raw JSON text of anything else.
func text(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func malformed(opts Options, err error) ([]Record, error) {
	recordsNormalized.WithLabelValues("malformed").Inc()
	if opts.StrictParse {
		return nil, err
	}
	return []Record{}, nil
}
