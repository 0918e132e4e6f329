package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrEthical07/authcore/store/sqlstore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testServerConfig() serverConfig {
	cfg := defaultServerConfig()
	cfg.SecretKey = testSecret
	cfg.Password.BcryptCost = 4
	cfg.Log.Level = "error"
	return cfg
}

func newTestApp(t *testing.T, mutate func(*serverConfig)) *app {
	t.Helper()

	cfg := testServerConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func registerAndLogin(t *testing.T, h http.Handler, email, pw string) string {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/api/v1/auth/register", "", credentials{Email: email, Password: pw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: email, Password: pw})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]string](t, rec)["access_token"]
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, nil)

	rec := do(t, a.handler, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, version, body["version"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRegisterAndDuplicate(t *testing.T) {
	a := newTestApp(t, nil)

	rec := do(t, a.handler, http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "Test@Gmail.com", Password: "test_password"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "test@gmail.com", body["email"])
	assert.NotEmpty(t, body["id"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, a.handler, http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "test@gmail.com", Password: "other_password"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email has been registered")

	rec = do(t, a.handler, http.MethodPost, "/api/v1/auth/register", "", credentials{Email: "not-an-email", Password: "test_password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, a.handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"nope": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginAndMe(t *testing.T) {
	a := newTestApp(t, nil)

	token := registerAndLogin(t, a.handler, "test@gmail.com", "test_password")
	require.NotEmpty(t, token)

	rec := do(t, a.handler, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "test@gmail.com", decode[map[string]any](t, rec)["email"])

	rec = do(t, a.handler, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, a.handler, http.MethodGet, "/api/v1/auth/me", "invalid_token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not validate credentials")
}

func TestLoginWrongPasswordAndUnknownEmail(t *testing.T) {
	a := newTestApp(t, nil)
	registerAndLogin(t, a.handler, "test@gmail.com", "test_password")

	wrong := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "test@gmail.com", Password: "wrongpassword"})
	unknown := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "nonexistent@gmail.com", Password: "password123"})

	for _, rec := range []*httptest.ResponseRecorder{wrong, unknown} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		assert.Contains(t, rec.Body.String(), "Incorrect email or password")
	}
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestLoginRateLimit(t *testing.T) {
	a := newTestApp(t, nil)
	registerAndLogin(t, a.handler, "test@gmail.com", "test_password")

	// registerAndLogin spent one of the five login slots.
	for i := 0; i < 4; i++ {
		rec := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "test@gmail.com", Password: "test_password"})
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
	}

	rec := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "test@gmail.com", Password: "test_password"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginLockout(t *testing.T) {
	a := newTestApp(t, func(c *serverConfig) {
		c.RateLimits = []routeLimitConfig{
			{Route: "auth.login", MaxRequests: 100, Window: time.Minute},
		}
	})
	registerAndLogin(t, a.handler, "test@gmail.com", "test_password")

	for i := 0; i < 5; i++ {
		rec := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "test@gmail.com", Password: "wrong"})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i)
	}

	// The correct password is refused while the client is locked out.
	rec := do(t, a.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "test@gmail.com", Password: "test_password"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many failed attempts")
}

func TestTodosAreOwnerScoped(t *testing.T) {
	a := newTestApp(t, nil)
	alice := registerAndLogin(t, a.handler, "alice@example.com", "secret1")
	bob := registerAndLogin(t, a.handler, "bob@example.com", "secret2")

	for _, title := range []string{"Buy groceries", "Write report"} {
		rec := do(t, a.handler, http.MethodPost, "/api/v1/todos", alice, todoCreate{Title: title})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, a.handler, http.MethodGet, "/api/v1/todos?limit=1", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[todoPage](t, rec)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Buy groceries", page.Items[0].Title)

	rec = do(t, a.handler, http.MethodGet, "/api/v1/todos", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[todoPage](t, rec).Total)

	rec = do(t, a.handler, http.MethodGet, "/api/v1/todos", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, a.handler, http.MethodGet, "/api/v1/todos?limit=500", alice, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, a.handler, http.MethodPost, "/api/v1/todos", alice, todoCreate{Title: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTodoLifecycle(t *testing.T) {
	a := newTestApp(t, nil)
	alice := registerAndLogin(t, a.handler, "alice@example.com", "secret1")
	bob := registerAndLogin(t, a.handler, "bob@example.com", "secret2")

	rec := do(t, a.handler, http.MethodPost, "/api/v1/todos", alice, todoCreate{Title: "Buy groceries"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[todo](t, rec)
	path := fmt.Sprintf("/api/v1/todos/%d", created.ID)

	rec = do(t, a.handler, http.MethodGet, path, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Buy groceries", decode[todo](t, rec).Title)

	rec = do(t, a.handler, http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "another owner's todo does not exist for bob")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("Todo with id %d not found", created.ID))

	ddl := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	rec = do(t, a.handler, http.MethodPut, path, alice, map[string]any{"done": true, "ddl": ddl})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[todo](t, rec)
	assert.True(t, updated.Done)
	assert.Equal(t, "Buy groceries", updated.Title, "fields absent from the body are kept")
	require.NotNil(t, updated.DDL)
	assert.True(t, ddl.Equal(*updated.DDL))

	rec = do(t, a.handler, http.MethodPut, path, alice, map[string]any{"title": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, a.handler, http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, a.handler, http.MethodDelete, path, alice, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, a.handler, http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, a.handler, http.MethodGet, "/api/v1/todos/abc", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, a.handler, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSQLiteTodosSurviveRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "authcore.db")
	cfg := testServerConfig()
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = dbPath

	first, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	token := registerAndLogin(t, first.handler, "alice@example.com", "secret1")
	rec := do(t, first.handler, http.MethodPost, "/api/v1/todos", token, todoCreate{Title: "Write report"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[todo](t, rec).ID
	first.Close()

	second, err := newApp(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	rec = do(t, second.handler, http.MethodPost, "/api/v1/auth/login", "", credentials{Email: "alice@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token = decode[map[string]string](t, rec)["access_token"]

	rec = do(t, second.handler, http.MethodGet, "/api/v1/todos", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[todoPage](t, rec)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, id, page.Items[0].ID)
	assert.Equal(t, "Write report", page.Items[0].Title)
}

func TestArgon2idServer(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "authcore.db")
	a := newTestApp(t, func(c *serverConfig) {
		c.Store.Driver = "sqlite"
		c.Store.SQLitePath = dbPath
		c.Password.Algorithm = "argon2id"
		c.Password.Argon2 = argon2Config{MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	})
	assert.Equal(t, "argon2id", a.engine.SecurityReport().PasswordAlgorithm)

	registerAndLogin(t, a.handler, "alice@example.com", "secret1")

	store, ok := a.backend.identities.(*sqlstore.Store)
	require.True(t, ok)
	var user sqlstore.User
	require.NoError(t, store.DB().Where("email = ?", "alice@example.com").First(&user).Error)
	assert.True(t, strings.HasPrefix(user.PasswordHash, "$argon2id$v=19$m=8192,t=1,p=1$"), user.PasswordHash)
}

func TestTelemetryExportsSpansAndCounters(t *testing.T) {
	cfg := testServerConfig()
	logger, err := setupLogger(cfg.Log, io.Discard)
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	a, err := assembleApp(context.Background(), cfg, logger,
		newTelemetry(resource.Empty(), reader, sdktrace.WithSpanProcessor(spans)))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	registerAndLogin(t, a.handler, "test@gmail.com", "test_password")

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "POST /api/v1/auth/register")
	assert.Contains(t, names, "POST /api/v1/auth/login")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	logins := int64(-1)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "authcore_login_success_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%T", m.Data)
			require.Len(t, sum.DataPoints, 1)
			logins = sum.DataPoints[0].Value
		}
	}
	assert.Equal(t, int64(1), logins)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, nil)
	registerAndLogin(t, a.handler, "test@gmail.com", "test_password")

	rec := do(t, a.handler, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authcore_login_success_total 1")
	assert.Contains(t, rec.Body.String(), "authcore_register_success_total 1")
}

func TestMetricsEndpointDisabled(t *testing.T) {
	a := newTestApp(t, func(c *serverConfig) { c.Metrics.Enabled = false })

	rec := do(t, a.handler, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t, func(c *serverConfig) {
		c.CORS.AllowedOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTrustProxyHeadersSeparatesClients(t *testing.T) {
	a := newTestApp(t, func(c *serverConfig) { c.TrustProxyHeaders = true })

	login := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"nobody@example.com","password":"whatever"}`))
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		a.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, login("203.0.113.9"))
	}
	assert.Equal(t, http.StatusTooManyRequests, login("203.0.113.9"))
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.10"))
}
