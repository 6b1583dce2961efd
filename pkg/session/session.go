// Package session owns the bearer token used for every P21 API call.
//
// A Session is created empty, opened once by exchanging credentials at the
// token endpoint and then only read. The token is never refreshed; it is
// dropped only by an explicit Reset.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TokenPath is the login endpoint relative to the API entry point.
const TokenPath = "/api/security/token/"

// Credentials identify the API user.
type Credentials struct {
	Username string
	Password string
}

// Session holds the endpoint and the bearer token.
type Session struct {
	mu        sync.RWMutex
	openMu    sync.Mutex
	token     string
	endpoint  string
	storeKey  string
	transport transport.Transport
	store     TokenStore
	logger    zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithStore sets the token store. The default is a MemoryStore private to
// the session.
func WithStore(store TokenStore) Option {
	return func(s *Session) {
		s.store = store
	}
}

// New creates a closed session that will log in through t.
func New(t transport.Transport, opts ...Option) *Session {
	s := &Session{
		transport: t,
		store:     NewMemoryStore(),
		logger:    log.With().Str("component", "p21-session").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsOpen reports whether the session holds a token.
func (s *Session) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the bearer token, or "" when closed.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Endpoint returns the API entry point without a trailing slash.
func (s *Session) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Open exchanges creds for a bearer token at endpoint.
//
// Open on an open session is a no-op. On failure the session stays closed
// and a *ConfigurationError is returned; nothing is retried.
func (s *Session) Open(ctx context.Context, creds Credentials, endpoint string) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if s.IsOpen() {
		s.logger.Debug().Msg("Session already open")
		return nil
	}

	base, err := normalizeEndpoint(endpoint)
	if err != nil {
		return s.fail(err)
	}
	if strings.TrimSpace(creds.Username) == "" {
		return s.fail(&ConfigurationError{Field: "username", Err: ErrMissingCredentials})
	}

	key := storeKey(base, creds.Username)
	if token, ok, err := s.store.Load(ctx, key); err != nil {
		s.logger.Warn().Err(err).Msg("Token store load failed, logging in")
	} else if ok && token != "" {
		s.set(base, token, key)
		s.logger.Info().Str("endpoint", base).Msg("Session opened from stored token")
		return nil
	}

	token, err := s.login(ctx, creds, base)
	if err != nil {
		return s.fail(err)
	}

	if err := s.store.Save(ctx, key, token); err != nil {
		s.logger.Warn().Err(err).Msg("Token store save failed")
	}
	s.set(base, token, key)

	s.logger.Info().
		Str("endpoint", base).
		Str("username", creds.Username).
		Msg("Session opened")

	return nil
}

// Reset drops the token locally and from the token store.
func (s *Session) Reset(ctx context.Context) error {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	s.mu.Lock()
	key := s.storeKey
	s.token = ""
	s.storeKey = ""
	s.mu.Unlock()

	if key == "" {
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete stored token: %w", err)
	}
	return nil
}

func (s *Session) set(endpoint, token, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = endpoint
	s.token = token
	s.storeKey = key
}

func (s *Session) fail(err error) error {
	s.logger.Error().Err(err).Msg("P21 session could not be opened")
	return err
}

// loginResponse is the success shape of the token endpoint.
type loginResponse struct {
	AccessToken string `json:"AccessToken"`
}

func (s *Session) login(ctx context.Context, creds Credentials, base string) (string, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	header.Set("username", creds.Username)
	header.Set("password", creds.Password)

	payload, err := s.transport.Send(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    base + TokenPath,
		Header: header,
		Body:   []byte("{}"),
	})
	if err != nil {
		return "", &ConfigurationError{Field: "endpoint", Err: err}
	}

	var resp loginResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", &ConfigurationError{Field: "login response", Err: fmt.Errorf("%w: %v", ErrInvalidLoginResponse, err)}
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", &ConfigurationError{Field: "login response", Err: ErrInvalidLoginResponse}
	}

	return resp.AccessToken, nil
}

func normalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", &ConfigurationError{Field: "endpoint", Err: ErrMissingEndpoint}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", &ConfigurationError{Field: "endpoint", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &ConfigurationError{Field: "endpoint", Err: fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)}
	}

	return strings.TrimRight(endpoint, "/"), nil
}

func storeKey(endpoint, username string) string {
	return endpoint + "|" + username
}

// Common errors wrapped by ConfigurationError.
var (
	ErrMissingEndpoint      = errors.New("endpoint is required")
	ErrInvalidEndpoint      = errors.New("endpoint must be an absolute http(s) URL")
	ErrMissingCredentials   = errors.New("username is required")
	ErrInvalidLoginResponse = errors.New("login response has no AccessToken")
)

// ConfigurationError reports that a session cannot be opened with the given
// endpoint or credentials.
type ConfigurationError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("P21 configuration error (%s): %v", e.Field, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
