// Package client provides the P21 REST client: record queries, writes and
// row counts over an open session, normalized into record sequences.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sternrassler/p21-erp-client/pkg/pagination"
	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var callErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "p21_client_errors_total",
	Help: "Total P21 client call errors by class",
}, []string{"class"})

// QueryRequest is one logical call against an endpoint-relative path.
type QueryRequest struct {
	// Path is relative to the API entry point and may carry a query string.
	Path string

	// Body is JSON-encoded when non-nil.
	Body any
}

// Config holds the client configuration.
type Config struct {
	// SurfaceFetchErrors returns transport failures to the caller. By default
	// they are logged and the call yields an empty result.
	SurfaceFetchErrors bool

	// StrictParse returns record.ErrMalformedResponse for unparseable
	// payloads instead of an empty result.
	StrictParse bool

	// Pagination
	PageSize     int
	AbortOnError bool

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration matching P21's usual behavior.
func DefaultConfig() Config {
	return Config{
		PageSize: pagination.DefaultPageSize,
		Logger:   log.With().Str("component", "p21-client").Logger(),
	}
}

// Client issues P21 API calls over an open session.
type Client struct {
	session   *session.Session
	transport transport.Transport
	config    Config
	logger    zerolog.Logger
}

// New creates a client. The session may still be closed; calls fail with
// ErrSessionClosed until it is opened.
func New(sess *session.Session, t transport.Transport, cfg Config) (*Client, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is required")
	}
	if t == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page_size must be >= 0 (got %d)", cfg.PageSize)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = pagination.DefaultPageSize
	}

	return &Client{
		session:   sess,
		transport: t,
		config:    cfg,
		logger:    cfg.Logger,
	}, nil
}

// Session returns the session the client calls through.
func (c *Client) Session() *session.Session {
	return c.session
}

// Find queries records. A nil Body is sent as GET, otherwise as POST with
// the JSON-encoded body.
func (c *Client) Find(ctx context.Context, req QueryRequest) ([]record.Record, error) {
	method := http.MethodGet
	if req.Body != nil {
		method = http.MethodPost
	}
	return c.call(ctx, method, req, true)
}

// Upload creates or updates a record with a POST of the JSON-encoded body.
func (c *Client) Upload(ctx context.Context, req QueryRequest) ([]record.Record, error) {
	return c.call(ctx, http.MethodPost, req, false)
}

// Count returns the row count of collection from its $count resource.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	token, endpoint, err := c.credentials()
	if err != nil {
		return 0, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	payload, err := c.transport.Send(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    endpoint + "/" + CountPath(collection),
		Header: header,
	})
	if err != nil {
		c.recordError(err)
		return 0, err
	}

	count, err := parseCount(payload)
	if err != nil {
		err = fmt.Errorf("count of %s: %w", collection, err)
		c.recordError(err)
		return 0, err
	}

	c.logger.Debug().Str("collection", collection).Int("count", count).Msg("Row count")
	return count, nil
}

// RowCount implements pagination.PageFetcher.
func (c *Client) RowCount(ctx context.Context, collection string) (int, error) {
	return c.Count(ctx, collection)
}

// FetchWindow implements pagination.PageFetcher.
func (c *Client) FetchWindow(ctx context.Context, collection string, w pagination.Window) ([]record.Record, error) {
	path := NewPath(collection).Skip(w.Offset).Top(w.Limit).String()
	return c.Find(ctx, QueryRequest{Path: path})
}

// AllItems streams every row of collection in pages.
func (c *Client) AllItems(ctx context.Context, collection string) iter.Seq[pagination.PageResult] {
	return pagination.New(c, pagination.Config{
		PageSize:     c.config.PageSize,
		AbortOnError: c.config.AbortOnError,
		Logger:       c.logger,
	}).Pages(ctx, collection)
}

// parseCount reads a bare integer body. A not-found envelope counts as zero
// rows; other envelopes surface as *record.RemoteServiceError.
func parseCount(payload []byte) (int, error) {
	text := strings.TrimSpace(string(payload))
	if count, err := strconv.Atoi(text); err == nil {
		if count < 0 {
			return 0, fmt.Errorf("%w: negative count %d", record.ErrMalformedResponse, count)
		}
		return count, nil
	}

	// some gateways quote scalar responses
	var quoted string
	if err := json.Unmarshal([]byte(text), &quoted); err == nil {
		if count, err := strconv.Atoi(strings.TrimSpace(quoted)); err == nil && count >= 0 {
			return count, nil
		}
	}

	if strings.HasPrefix(text, "{") {
		records, err := record.NormalizeWith(payload, record.Options{StrictParse: true})
		if err != nil {
			return 0, err
		}
		if len(records) == 0 {
			return 0, nil
		}
	}

	return 0, fmt.Errorf("%w: expected integer, got %.64q", record.ErrMalformedResponse, text)
}

func (c *Client) call(ctx context.Context, method string, req QueryRequest, isQuery bool) ([]record.Record, error) {
	token, endpoint, err := c.credentials()
	if err != nil {
		return nil, err
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	} else if !isQuery {
		body = []byte{}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	header.Set("Authorization", "Bearer "+token)

	payload, err := c.transport.Send(ctx, transport.Request{
		Method: method,
		URL:    endpoint + "/" + strings.TrimLeft(req.Path, "/"),
		Header: header,
		Body:   body,
	})
	if err != nil {
		c.recordError(err)
		if c.config.SurfaceFetchErrors {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("path", req.Path).Msg("P21 call failed, returning empty result")
		return []record.Record{}, nil
	}

	records, err := record.NormalizeWith(payload, record.Options{StrictParse: c.config.StrictParse})
	if err != nil {
		c.recordError(err)
		c.logger.Warn().Err(err).Str("path", req.Path).Str("error_class", string(Classify(err))).Msg("P21 call returned an error")
		return nil, err
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", req.Path).
		Int("records", len(records)).
		Msg("P21 call complete")

	return records, nil
}

func (c *Client) credentials() (token, endpoint string, err error) {
	token = c.session.Token()
	if token == "" {
		callErrorsTotal.WithLabelValues(string(ErrorClassSession)).Inc()
		return "", "", ErrSessionClosed
	}
	return token, c.session.Endpoint(), nil
}

func (c *Client) recordError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	callErrorsTotal.WithLabelValues(string(Classify(err))).Inc()
}
