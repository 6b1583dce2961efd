package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/p21-erp-client/internal/testutil"
	"github.com/Sternrassler/p21-erp-client/pkg/client"
	"github.com/Sternrassler/p21-erp-client/pkg/pagination"
	"github.com/Sternrassler/p21-erp-client/pkg/session"
	"github.com/Sternrassler/p21-erp-client/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const collection = "api/v2/odataservice/odata/table/inv_mast"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Redis container unavailable: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func openClient(store session.TokenStore, mock *testutil.MockERP, cfg client.Config) (*client.Client, error) {
	tr := transport.NewHTTP(transport.DefaultConfig())
	sess := session.New(tr, session.WithStore(store))
	creds := session.Credentials{Username: testutil.MockUsername, Password: testutil.MockPassword}
	if err := sess.Open(context.Background(), creds, mock.URL()); err != nil {
		return nil, err
	}
	return client.New(sess, tr, cfg)
}

func newClient(t *testing.T, store session.TokenStore, mock *testutil.MockERP, cfg client.Config) *client.Client {
	t.Helper()

	c, err := openClient(store, mock, cfg)
	if err != nil {
		t.Fatalf("openClient() error = %v", err)
	}
	return c
}

// TestSharedTokenStore checks that workers sharing a Redis store log in once.
func TestSharedTokenStore(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(collection, testutil.Rows(3))

	store := session.NewRedisStore(redisClient, time.Minute)

	first := newClient(t, store, mock, client.DefaultConfig())
	if got := mock.GetLoginCount(); got != 1 {
		t.Fatalf("login count after first session = %d, want 1", got)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := openClient(store, mock, client.DefaultConfig())
			if err != nil {
				t.Errorf("openClient() error = %v", err)
				return
			}
			if _, err := c.Count(context.Background(), collection); err != nil {
				t.Errorf("Count() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := mock.GetLoginCount(); got != 1 {
		t.Errorf("login count = %d, want 1", got)
	}

	n, err := first.Count(context.Background(), collection)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

// TestResetForcesLogin checks that Reset removes the shared token.
func TestResetForcesLogin(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockERP()
	defer mock.Close()

	store := session.NewRedisStore(redisClient, time.Minute)
	c := newClient(t, store, mock, client.DefaultConfig())

	if err := c.Session().Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if c.Session().IsOpen() {
		t.Error("IsOpen() = true after Reset, want false")
	}

	newClient(t, store, mock, client.DefaultConfig())
	if got := mock.GetLoginCount(); got != 2 {
		t.Errorf("login count = %d, want 2", got)
	}
}

// TestFullScan runs a paginated scan with a failing window.
func TestFullScan(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockERP()
	defer mock.Close()
	mock.SetTable(collection, testutil.Rows(1205))
	mock.FailWindow(collection, 500)

	cfg := client.DefaultConfig()
	cfg.SurfaceFetchErrors = true
	c := newClient(t, session.NewRedisStore(redisClient, time.Minute), mock, cfg)

	var windows []pagination.Window
	records, errs := pagination.Drain(func(yield func(pagination.PageResult) bool) {
		for page := range c.AllItems(context.Background(), collection) {
			windows = append(windows, page.Window)
			if !yield(page) {
				return
			}
		}
	})

	want := []pagination.Window{{Offset: 0, Limit: 500}, {Offset: 500, Limit: 500}, {Offset: 1000, Limit: 205}}
	if len(windows) != len(want) {
		t.Fatalf("windows = %v, want %v", windows, want)
	}
	for i := range want {
		if windows[i] != want[i] {
			t.Errorf("window[%d] = %v, want %v", i, windows[i], want[i])
		}
	}

	if len(errs) != 1 {
		t.Errorf("errors = %d, want 1", len(errs))
	}
	if len(records) != 705 {
		t.Errorf("records = %d, want 705", len(records))
	}
	if got := records[0].String("item_id"); got != "ITEM-00001" {
		t.Errorf("first item_id = %q, want ITEM-00001", got)
	}
}
