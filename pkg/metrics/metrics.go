// Package metrics exposes the Prometheus metrics of the P21 client.
// Collectors are defined in the packages that update them (transport,
// record, pagination, client) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer the client's collectors use.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Names of every metric this module exports.
const (
	TransportRequestsTotal   = "p21_transport_requests_total"
	TransportRequestDuration = "p21_transport_request_duration_seconds"
	RecordsNormalizedTotal   = "p21_records_normalized_total"
	ClientErrorsTotal        = "p21_client_errors_total"
	PaginationPagesTotal     = "p21_pagination_pages_total"
	PaginationRowsTotal      = "p21_pagination_rows_total"
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics:
//
// Transport (pkg/transport):
//   - p21_transport_requests_total{method,status} (Counter): status is the HTTP
//     code, network_error or read_error
//   - p21_transport_request_duration_seconds{method} (Histogram)
//
// Normalizer (pkg/record):
//   - p21_records_normalized_total{outcome} (Counter): empty, list, single,
//     not_found, remote_error, malformed
//
// Client (pkg/client):
//   - p21_client_errors_total{class} (Counter): configuration, session,
//     transport, remote_service, malformed, unknown
//
// Pagination (pkg/pagination):
//   - p21_pagination_pages_total{outcome} (Counter): ok, empty, failed
//   - p21_pagination_rows_total (Counter)
//
// Example queries:
//
//   # Share of windows lost during scans
//   rate(p21_pagination_pages_total{outcome="failed"}[15m]) /
//   rate(p21_pagination_pages_total[15m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(p21_transport_request_duration_seconds_bucket[5m]))
