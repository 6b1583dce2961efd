// Package testutil provides testing utilities for the P21 client.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default credentials accepted by MockERP.
const (
	MockUsername = "api_user"
	MockPassword = "s3cret"
	MockToken    = "mock-token-7f3a"
)

// MockResponse defines the behavior for a mock P21 endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockERP is a configurable mock P21 server for testing.
type MockERP struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	tables   map[string][]map[string]any
	// failures maps table path to window offsets whose connection is dropped
	failures map[string]map[int]bool

	// Tracking
	RequestCount      int
	LoginCount        int
	Requests          []string
	LastRequestHeader http.Header
	LastRequestBody   []byte
}

// NewMockERP creates a new mock P21 server.
func NewMockERP() *MockERP {
	return newMock(httptest.NewServer)
}

// NewMockERPTLS creates a mock P21 server with a self-signed certificate.
func NewMockERPTLS() *MockERP {
	return newMock(httptest.NewTLSServer)
}

func newMock(start func(http.Handler) *httptest.Server) *MockERP {
	mock := &MockERP{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		tables:   make(map[string][]map[string]any),
		failures: make(map[string]map[int]bool),
	}

	mock.server = start(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, r.Method+" "+r.URL.RequestURI())
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastRequestBody = body
		mock.mu.Unlock()

		if r.URL.Path == "/api/security/token/" {
			mock.loginHandler(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+MockToken {
			writeEnvelope(w, http.StatusUnauthorized, "P21.Common.Exceptions.UnauthorizedException", "Invalid or missing token")
			return
		}

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.tableHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockERP) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockERP) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockERP) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LoginCount = 0
	m.Requests = nil
	m.LastRequestHeader = nil
	m.LastRequestBody = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockERP) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockERP) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetTable serves rows under path with $count, $skip and $top support.
func (m *MockERP) SetTable(path string, rows []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[tableKey(path)] = rows
}

// FailWindow drops the connection for the window of path starting at offset.
func (m *MockERP) FailWindow(path string, offset int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tableKey(path)
	if m.failures[key] == nil {
		m.failures[key] = make(map[int]bool)
	}
	m.failures[key][offset] = true
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockERP) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLoginCount returns the number of login calls.
func (m *MockERP) GetLoginCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LoginCount
}

// GetRequests returns "METHOD URI" of every request in order.
func (m *MockERP) GetRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Requests...)
}

// GetLastRequestBody returns the body of the latest request.
func (m *MockERP) GetLastRequestBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestBody
}

// GetLastRequestHeader returns the headers of the latest request.
func (m *MockERP) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockERP) loginHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.LoginCount++
	m.mu.Unlock()

	if r.Method != http.MethodPost {
		writeEnvelope(w, http.StatusMethodNotAllowed, "P21.Common.Exceptions.MethodNotAllowedException", "POST required")
		return
	}
	if r.Header.Get("username") != MockUsername || r.Header.Get("password") != MockPassword {
		writeEnvelope(w, http.StatusUnauthorized, "P21.Common.Exceptions.AuthenticationException", "Invalid username or password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"AccessToken": MockToken,
		"TokenType":   "Bearer",
		"ExpiresIn":   86400,
	})
}

// tableHandler serves rows registered with SetTable.
func (m *MockERP) tableHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	isCount := strings.HasSuffix(path, "/$count")
	key := tableKey(strings.TrimSuffix(path, "/$count"))

	m.mu.RLock()
	rows, ok := m.tables[key]
	failures := m.failures[key]
	m.mu.RUnlock()

	if !ok {
		writeEnvelope(w, http.StatusNotFound, "P21.Common.Exceptions.NotFoundException", fmt.Sprintf("Resource %s not found", path))
		return
	}

	if isCount {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(strconv.Itoa(len(rows))))
		return
	}

	query := r.URL.Query()
	skip, _ := strconv.Atoi(query.Get("$skip"))
	top := len(rows)
	if v := query.Get("$top"); v != "" {
		top, _ = strconv.Atoi(v)
	}

	if failures[skip] {
		dropConnection(w)
		return
	}

	start := min(max(skip, 0), len(rows))
	end := min(start+max(top, 0), len(rows))
	writeJSON(w, http.StatusOK, rows[start:end])
}

func tableKey(path string) string {
	return "/" + strings.Trim(path, "/")
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, map[string]any{
		"ErrorType":    errorType,
		"ErrorMessage": message,
		"HostName":     "p21-mock",
	})
}

// Rows builds n synthetic view rows keyed like P21 data views.
func Rows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"inv_mast_uid": i + 1,
			"item_id":      fmt.Sprintf("ITEM-%05d", i+1),
		}
	}
	return rows
}
