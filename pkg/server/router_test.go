package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/miniserver/pkg/auth"
	"github.com/marmos91/miniserver/pkg/lifecycle"
	"github.com/marmos91/miniserver/pkg/metrics"
	"github.com/marmos91/miniserver/pkg/metrics/prometheus"
	"github.com/marmos91/miniserver/pkg/models"
	"github.com/marmos91/miniserver/pkg/store"
)

type staticPhase lifecycle.Phase

func (p staticPhase) Phase() lifecycle.Phase { return lifecycle.Phase(p) }

type failingStore struct {
	store.Store
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

type brokenUserStore struct {
	store.Store
}

func (brokenUserStore) GetUserByID(context.Context, string) (*models.User, error) {
	return nil, errors.New("relation \"users\" does not exist")
}

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:     store.DatabaseTypeSQLite,
		SQLite:   store.SQLiteConfig{Path: ":memory:"},
		LogLevel: "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrator().Up(context.Background()))
	return st
}

func do(t *testing.T, h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthRoutes(t *testing.T) {
	st := newTestStore(t)

	t.Run("Liveness", func(t *testing.T) {
		h := NewRouter(RouterConfig{Lifecycle: staticPhase(lifecycle.PhaseRunning), Store: st})
		rec := do(t, h, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode(t, rec)
		assert.Equal(t, "healthy", resp.Status)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "miniserver", data["service"])
		assert.Equal(t, "running", data["phase"])
	})

	t.Run("ReadyWhenRunning", func(t *testing.T) {
		h := NewRouter(RouterConfig{Lifecycle: staticPhase(lifecycle.PhaseRunning), Store: st})
		rec := do(t, h, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("NotReadyWhileShuttingDown", func(t *testing.T) {
		h := NewRouter(RouterConfig{Lifecycle: staticPhase(lifecycle.PhaseShuttingDown), Store: st})
		rec := do(t, h, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, decode(t, rec).Error, "shutting_down")
	})

	t.Run("NotReadyWithoutStore", func(t *testing.T) {
		h := NewRouter(RouterConfig{})
		rec := do(t, h, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("NotReadyWhenPingFails", func(t *testing.T) {
		h := NewRouter(RouterConfig{Store: failingStore{}})
		rec := do(t, h, http.MethodGet, "/health/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, decode(t, rec).Error, "connection refused")
	})
}

func TestTestRoutes(t *testing.T) {
	t.Run("NotMountedByDefault", func(t *testing.T) {
		h := NewRouter(RouterConfig{})
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/test/hello/bob", nil).Code)
	})

	t.Run("Hello", func(t *testing.T) {
		h := NewRouter(RouterConfig{TestRoutes: true})
		rec := do(t, h, http.MethodGet, "/test/hello/bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Hello, bob!", rec.Body.String())
	})

	t.Run("UserSeedsOnce", func(t *testing.T) {
		st := newTestStore(t)
		h := NewRouter(RouterConfig{TestRoutes: true, Store: st})

		first := do(t, h, http.MethodGet, "/test/user", nil)
		require.Equal(t, http.StatusOK, first.Code, first.Body.String())

		body := first.Body.String()
		lines := strings.Split(body, "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "2ED533F8-8829-4099-B028-E8BB5AA1131B")
		assert.Contains(t, lines[0], `name: "testUser"`)
		assert.Contains(t, lines[1], "8A2C92A7-A138-49D3-837A-3B20AF4DDD43")

		second := do(t, h, http.MethodGet, "/test/user", nil)
		require.Equal(t, http.StatusOK, second.Code)
		assert.Equal(t, body, second.Body.String())

		users, err := st.ListUsers(context.Background())
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("UserConcurrentSeeding", func(t *testing.T) {
		st := newTestStore(t)
		h := NewRouter(RouterConfig{TestRoutes: true, Store: st})

		var wg sync.WaitGroup
		codes := make([]int, 8)
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				codes[i] = do(t, h, http.MethodGet, "/test/user", nil).Code
			}(i)
		}
		wg.Wait()

		for _, code := range codes {
			assert.Equal(t, http.StatusOK, code)
		}
	})

	t.Run("UserSeedingErrorIsRendered", func(t *testing.T) {
		h := NewRouter(RouterConfig{TestRoutes: true, Store: brokenUserStore{}})
		rec := do(t, h, http.MethodGet, "/test/user", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `relation "users" does not exist`)
	})

	t.Run("UserWithoutStore", func(t *testing.T) {
		h := NewRouter(RouterConfig{TestRoutes: true})
		assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/test/user", nil).Code)
	})
}

func TestAPIMe(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	tag := "ops"
	user := &models.User{Name: "alice", Tag: &tag}
	_, err := st.CreateUser(ctx, user)
	require.NoError(t, err)
	creds := &models.UserCredentials{ModelID: user.ID}
	_, err = st.CreateCredentials(ctx, creds)
	require.NoError(t, err)

	tokens, err := auth.NewTokenService(auth.Config{Secret: strings.Repeat("s", 32)}, st)
	require.NoError(t, err)
	token, err := tokens.Issue(ctx, creds.ID, "test", time.Hour)
	require.NoError(t, err)

	h := NewRouter(RouterConfig{Store: st, Tokens: tokens})

	t.Run("Unauthorized", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/v1/me", nil).Code)
	})

	t.Run("Authorized", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/v1/me", http.Header{"Authorization": {"Bearer " + token.Key}})
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Status string       `json:"status"`
			Data   UserResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, user.ID, body.Data.ID)
		assert.Equal(t, "alice", body.Data.Name)
		require.NotNil(t, body.Data.Tag)
		assert.Equal(t, "ops", *body.Data.Tag)
	})

	t.Run("NotMountedWithoutTokens", func(t *testing.T) {
		h := NewRouter(RouterConfig{Store: st})
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/v1/me", nil).Code)
	})
}

func TestMetricsRoute(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		metrics.Disable()
		h := NewRouter(RouterConfig{})
		assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/metrics", nil).Code)
	})

	t.Run("RecordsRequests", func(t *testing.T) {
		metrics.InitRegistry()
		defer metrics.Disable()

		h := NewRouter(RouterConfig{TestRoutes: true, Metrics: prometheus.NewHTTPMetrics()})
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/test/hello/bob", nil).Code)
		require.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", nil).Code)

		rec := do(t, h, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := rec.Body.String()
		assert.Contains(t, out, `miniserver_http_requests_total{method="GET",route="/test/hello/{name}",status="200"} 1`)
		assert.Contains(t, out, `miniserver_http_requests_total{method="GET",route="unmatched",status="404"}`)
	})
}

func TestRecovererReturns500(t *testing.T) {
	r := NewRouter(RouterConfig{})
	mux, ok := r.(interface {
		Get(string, http.HandlerFunc)
	})
	require.True(t, ok)
	mux.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	assert.Equal(t, http.StatusInternalServerError, do(t, r, http.MethodGet, "/panic", nil).Code)
}
