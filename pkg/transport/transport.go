// Package transport performs single HTTP round trips against the P21 REST API.
// It knows nothing about records, tokens or error envelopes: a request goes
// out, the raw response body comes back.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport round trips.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p21_transport_requests_total",
		Help: "Total P21 HTTP requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "p21_transport_request_duration_seconds",
		Help:    "P21 HTTP request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})
)

// HeaderRequestID carries a per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Request describes one outgoing call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is sent as-is. A nil Body sends no payload.
	Body []byte
}

// Transport sends a single request and returns the raw response body.
type Transport interface {
	Send(ctx context.Context, req Request) ([]byte, error)
}

// Config holds the HTTP transport configuration.
type Config struct {
	// Timeout bounds a whole round trip including reading the body.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	// Only for on-premise ERP hosts with self-signed certificates.
	InsecureSkipVerify bool

	// UserAgent is sent with every request when set.
	UserAgent string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   60 * time.Second,
		UserAgent: "p21-erp-client/0.1.0",
	}
}

// HTTPTransport is the net/http implementation of Transport.
type HTTPTransport struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// NewHTTP creates an HTTP transport.
func NewHTTP(cfg Config) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit opt-in
	}

	logger := log.With().Str("component", "p21-transport").Logger()
	if cfg.InsecureSkipVerify {
		logger.Warn().Msg("TLS certificate verification disabled")
	}

	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: base,
		},
		config: cfg,
		logger: logger,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (t *HTTPTransport) SetHTTPClient(client *http.Client) {
	t.httpClient = client
}

// Send performs the request. Every HTTP status yields its body; only network
// and read failures are reported as *Error.
func (t *HTTPTransport) Send(ctx context.Context, r Request) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, &Error{Method: method, URL: r.URL, Err: fmt.Errorf("create request: %w", err)}
	}

	for key, values := range r.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if r.Body != nil {
		req.ContentLength = int64(len(r.Body))
		req.Header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	if t.config.UserAgent != "" {
		req.Header.Set("User-Agent", t.config.UserAgent)
	}
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	t.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Msg("Executing P21 request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		t.logger.Warn().Err(err).Str("path", req.URL.Path).Str("request_id", requestID).Msg("HTTP request failed")
		return nil, &Error{Method: method, URL: r.URL, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(method, "read_error").Inc()
		return nil, &Error{Method: method, URL: r.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode >= 400 {
		t.logger.Debug().
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Msg("P21 returned error status")
	}

	return payload, nil
}

// Func adapts an ordinary function to Transport.
type Func func(ctx context.Context, req Request) ([]byte, error)

// Send calls f.
func (f Func) Send(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
