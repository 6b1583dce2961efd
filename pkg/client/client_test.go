package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/Sternrassler/p21-erp-client/internal/testutil"
	"github.com/Sternrassler/p21-erp-client/pkg/pagination"
	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/rs/zerolog"
)

const viewPath = "data/erp/views/v1/p21_view_inv_mast"

// setupClient opens a session against mock and returns a client.
func setupClient(t *testing.T, mock *testutil.MockERP, cfg Config) *Client {
	t.Helper()

	tr := transport.NewHTTP(transport.DefaultConfig())
	sess := session.New(tr, session.WithLogger(zerolog.Nop()))
	creds := session.Credentials{Username: testutil.MockUsername, Password: testutil.MockPassword}
	if err := sess.Open(context.Background(), creds, mock.URL()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	cfg.Logger = zerolog.Nop()
	c, err := New(sess, tr, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tr := transport.NewHTTP(transport.DefaultConfig())
	sess := session.New(tr)

	tests := []struct {
		name     string
		sess     *session.Session
		tr       transport.Transport
		cfg      Config
		errorMsg string
	}{
		{name: "valid config", sess: sess, tr: tr, cfg: DefaultConfig()},
		{name: "nil session", sess: nil, tr: tr, cfg: DefaultConfig(), errorMsg: "session is required"},
		{name: "nil transport", sess: sess, tr: nil, cfg: DefaultConfig(), errorMsg: "transport is required"},
		{name: "negative page size", sess: sess, tr: tr, cfg: Config{PageSize: -1}, errorMsg: "page_size must be >= 0 (got -1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.sess, tt.tr, tt.cfg)
			if tt.errorMsg != "" {
				if err == nil {
					t.Fatalf("Expected error but got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil || c == nil {
				t.Fatalf("Unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PageSize != 500 {
		t.Errorf("PageSize = %d, want 500", cfg.PageSize)
	}
	if cfg.SurfaceFetchErrors || cfg.StrictParse || cfg.AbortOnError {
		t.Error("strict options should be off by default")
	}
}

func TestFind_ClosedSessionIssuesNoCall(t *testing.T) {
	calls := 0
	tr := transport.Func(func(ctx context.Context, req transport.Request) ([]byte, error) {
		calls++
		return []byte(`[]`), nil
	})
	c, err := New(session.New(tr), tr, Config{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if _, err := c.Find(ctx, QueryRequest{Path: viewPath}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Find() error = %v, want ErrSessionClosed", err)
	}
	if _, err := c.Upload(ctx, QueryRequest{Path: "api/sales/orders/", Body: map[string]any{}}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Upload() error = %v, want ErrSessionClosed", err)
	}
	if _, err := c.Count(ctx, viewPath); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Count() error = %v, want ErrSessionClosed", err)
	}
	if calls != 0 {
		t.Errorf("transport calls = %d, want 0", calls)
	}
}

func TestFind_ResponseShapes(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()

	mock.SetResponse("/api/sales/orders/1001", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"OrderNo":"1001","CustomerId":"10042"}`,
	})
	mock.SetResponse("/api/entity/contacts/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `[{"Id":"1"},{"Id":"2"},{"Id":"3"}]`,
	})
	mock.SetResponse("/api/inventory/parts/NOPE", testutil.MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"ErrorType":"P21.Common.Exceptions.NotFoundException","ErrorMessage":"Part NOPE not found"}`,
	})
	mock.SetResponse("/api/entity/customers/new", testutil.MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"ErrorType":"P21.Common.Exceptions.BusinessException","ErrorMessage":"Company not set"}`,
	})

	c := setupClient(t, mock, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		wantCount int
		wantErr   string
	}{
		{name: "single object", path: "api/sales/orders/1001", wantCount: 1},
		{name: "array", path: "api/entity/contacts/", wantCount: 3},
		{name: "not found", path: "api/inventory/parts/NOPE", wantCount: 0},
		{name: "remote error", path: "api/entity/customers/new", wantErr: "Company not set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := c.Find(ctx, QueryRequest{Path: tt.path})
			if tt.wantErr != "" {
				var remote *record.RemoteServiceError
				if !errors.As(err, &remote) {
					t.Fatalf("error = %v, want *record.RemoteServiceError", err)
				}
				if remote.Message != tt.wantErr {
					t.Errorf("Message = %q, want %q", remote.Message, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if len(records) != tt.wantCount {
				t.Errorf("len(records) = %d, want %d", len(records), tt.wantCount)
			}
		})
	}
}

func TestFind_SendsBearerAndQuery(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/data/erp/views/v1/p21_view_contacts_x_links", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"value":[{"id":"C7","link_id":"10042"}]}`,
	})

	c := setupClient(t, mock, DefaultConfig())

	path := NewPath("data/erp/views/v1/p21_view_contacts_x_links").Filter(TrimEq("id", "C7")).String()
	records, err := c.Find(context.Background(), QueryRequest{Path: path})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	requests := mock.GetRequests()
	last := requests[len(requests)-1]
	want := "GET /data/erp/views/v1/p21_view_contacts_x_links?$filter=trim%28id%29%20eq%20%27C7%27"
	if last != want {
		t.Errorf("request = %q, want %q", last, want)
	}
	if got := mock.GetLastRequestHeader().Get("Authorization"); got != "Bearer "+testutil.MockToken {
		t.Errorf("Authorization = %q", got)
	}
}

func TestFind_WithBodyUsesPost(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/entity/customers/search", testutil.MockResponse{StatusCode: http.StatusOK, Body: `[]`})

	c := setupClient(t, mock, DefaultConfig())

	if _, err := c.Find(context.Background(), QueryRequest{
		Path: "api/entity/customers/search",
		Body: map[string]string{"EmailAddress": "ada@example.com"},
	}); err != nil {
		t.Fatalf("Find() error = %v", err)
	}

	requests := mock.GetRequests()
	if !strings.HasPrefix(requests[len(requests)-1], "POST ") {
		t.Errorf("request = %q, want POST", requests[len(requests)-1])
	}
}

func TestUpload_EncodesBody(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/entity/addresses/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"AddressId":1295,"Name":"Acme"}`,
	})

	c := setupClient(t, mock, DefaultConfig())

	body := map[string]any{"Name": "Acme", "MailAddress1": "1 Main St"}
	records, err := c.Upload(context.Background(), QueryRequest{Path: "api/entity/addresses/", Body: body})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}

	var address struct {
		AddressID int `json:"AddressId"`
	}
	if err := records[0].Decode(&address); err != nil || address.AddressID != 1295 {
		t.Errorf("decoded AddressId = %d, err %v", address.AddressID, err)
	}

	sent := mock.GetLastRequestBody()
	var decoded map[string]any
	if err := json.Unmarshal(sent, &decoded); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if decoded["Name"] != "Acme" {
		t.Errorf("sent Name = %v", decoded["Name"])
	}
	if got := mock.GetLastRequestHeader().Get("Content-Length"); got != strconv.Itoa(len(sent)) {
		t.Errorf("Content-Length = %q, want %d", got, len(sent))
	}
}

func TestUpload_NilBodySendsZeroLength(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/sales/orders/", testutil.MockResponse{StatusCode: http.StatusOK, Body: `{"OrderNo":"1"}`})

	c := setupClient(t, mock, DefaultConfig())

	if _, err := c.Upload(context.Background(), QueryRequest{Path: "api/sales/orders/"}); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := mock.GetLastRequestHeader().Get("Content-Length"); got != "0" {
		t.Errorf("Content-Length = %q, want 0", got)
	}
}

func TestFind_TransportFailure(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(viewPath, testutil.Rows(10))
	mock.FailWindow(viewPath, 0)

	path := NewPath(viewPath).Skip(0).Top(10).String()

	t.Run("swallowed by default", func(t *testing.T) {
		c := setupClient(t, mock, DefaultConfig())
		records, err := c.Find(context.Background(), QueryRequest{Path: path})
		if err != nil {
			t.Fatalf("Find() error = %v, want nil", err)
		}
		if records == nil || len(records) != 0 {
			t.Errorf("records = %v, want empty", records)
		}
	})

	t.Run("surfaced on opt-in", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SurfaceFetchErrors = true
		c := setupClient(t, mock, cfg)

		_, err := c.Find(context.Background(), QueryRequest{Path: path})
		var terr *transport.Error
		if !errors.As(err, &terr) {
			t.Fatalf("error = %v, want *transport.Error", err)
		}
		if Classify(err) != ErrorClassTransport {
			t.Errorf("Classify() = %q", Classify(err))
		}
	})
}

func TestFind_StrictParse(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetResponse("/api/broken", testutil.MockResponse{StatusCode: http.StatusBadGateway, Body: `<html>Bad Gateway</html>`})

	lenient := setupClient(t, mock, DefaultConfig())
	records, err := lenient.Find(context.Background(), QueryRequest{Path: "api/broken"})
	if err != nil || len(records) != 0 {
		t.Errorf("lenient Find() = %v, %v; want empty, nil", records, err)
	}

	cfg := DefaultConfig()
	cfg.StrictParse = true
	strict := setupClient(t, mock, cfg)
	if _, err := strict.Find(context.Background(), QueryRequest{Path: "api/broken"}); !errors.Is(err, record.ErrMalformedResponse) {
		t.Errorf("strict Find() error = %v, want ErrMalformedResponse", err)
	}
}

func TestCount(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(viewPath, testutil.Rows(750))
	mock.SetResponse("/data/erp/views/v1/quoted/$count", testutil.MockResponse{StatusCode: http.StatusOK, Body: `"12"`})
	mock.SetResponse("/data/erp/views/v1/garbage/$count", testutil.MockResponse{StatusCode: http.StatusOK, Body: `lots`})
	mock.SetResponse("/data/erp/views/v1/denied/$count", testutil.MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"ErrorType":"P21.Common.Exceptions.SecurityException","ErrorMessage":"No access"}`,
	})

	c := setupClient(t, mock, DefaultConfig())
	ctx := context.Background()

	tests := []struct {
		name       string
		collection string
		want       int
		wantClass  ErrorClass
	}{
		{name: "table", collection: viewPath, want: 750},
		{name: "trailing slash", collection: viewPath + "/", want: 750},
		{name: "quoted integer", collection: "data/erp/views/v1/quoted", want: 12},
		{name: "unknown table is not found", collection: "data/erp/views/v1/missing", want: 0},
		{name: "garbage", collection: "data/erp/views/v1/garbage", wantClass: ErrorClassMalformed},
		{name: "remote error", collection: "data/erp/views/v1/denied", wantClass: ErrorClassRemoteService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Count(ctx, tt.collection)
			if tt.wantClass != "" {
				if Classify(err) != tt.wantClass {
					t.Errorf("Classify(%v) = %q, want %q", err, Classify(err), tt.wantClass)
				}
				return
			}
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAllItems(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(viewPath, testutil.Rows(750))

	c := setupClient(t, mock, DefaultConfig())
	mock.Reset()

	var windows []pagination.Window
	var ids []string
	for page := range c.AllItems(context.Background(), viewPath) {
		if page.Err != nil {
			t.Fatalf("page %v error = %v", page.Window, page.Err)
		}
		windows = append(windows, page.Window)
		for _, rec := range page.Records {
			ids = append(ids, rec.String("inv_mast_uid"))
		}
	}

	if len(windows) != 2 || windows[0] != (pagination.Window{Offset: 0, Limit: 500}) || windows[1] != (pagination.Window{Offset: 500, Limit: 250}) {
		t.Errorf("windows = %v", windows)
	}
	if len(ids) != 750 || ids[0] != "1" || ids[749] != "750" {
		t.Errorf("got %d ids, first %q", len(ids), ids[0])
	}

	want := []string{
		"GET /" + viewPath + "/$count",
		"GET /" + viewPath + "?$skip=0&$top=500",
		"GET /" + viewPath + "?$skip=500&$top=250",
	}
	got := mock.GetRequests()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("requests =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestAllItems_FailedWindowAdvances(t *testing.T) {
	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(viewPath, testutil.Rows(1200))
	mock.FailWindow(viewPath, 500)

	tests := []struct {
		name       string
		surface    bool
		wantFailed bool
	}{
		{name: "default yields empty page", surface: false, wantFailed: false},
		{name: "surfaced yields failure marker", surface: true, wantFailed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SurfaceFetchErrors = tt.surface
			c := setupClient(t, mock, cfg)

			var pages []pagination.PageResult
			for page := range c.AllItems(context.Background(), viewPath) {
				pages = append(pages, page)
			}

			if len(pages) != 3 {
				t.Fatalf("pages = %d, want 3", len(pages))
			}
			if len(pages[1].Records) != 0 {
				t.Errorf("failed window has %d records", len(pages[1].Records))
			}
			if (pages[1].Err != nil) != tt.wantFailed {
				t.Errorf("failed window Err = %v, want failed=%v", pages[1].Err, tt.wantFailed)
			}
			if pages[2].Window != (pagination.Window{Offset: 1000, Limit: 200}) {
				t.Errorf("window after failure = %v, want [1000,+200)", pages[2].Window)
			}
			if len(pages[2].Records) != 200 {
				t.Errorf("last page records = %d, want 200", len(pages[2].Records))
			}
		})
	}
}
