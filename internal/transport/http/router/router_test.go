// file: internal/transport/http/router/router_test.go
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeBackend struct {
	healthErr error
	caps      domain.Capability
	capsErr   error
}

func (f *fakeBackend) Backend() string                       { return "sqlite" }
func (f *fakeBackend) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeBackend) Capabilities(ctx context.Context) (domain.Capability, error) {
	return f.caps, f.capsErr
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// ----------------------------------------------------------------------------
// Test: 健康检查与能力
// ----------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	w, out := do(t, New(Dependencies{Backend: &fakeBackend{}}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "sqlite", out["backend"])

	down := &fakeBackend{healthErr: dberr.Connection("sqlite", nil, "unable to open database")}
	w, out = do(t, New(Dependencies{Backend: down}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", out["status"])
}

func TestCapabilities(t *testing.T) {
	b := &fakeBackend{caps: domain.Capability{BasicCRUD: true, Joins: true}}
	w, out := do(t, New(Dependencies{Backend: b}), http.MethodGet, "/api/v1/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := out["data"].(map[string]any)
	caps := data["capabilities"].(map[string]any)
	assert.Equal(t, true, caps["basic_crud"])
	assert.Equal(t, false, caps["geospatial"])

	w, _ = do(t, New(Dependencies{}), http.MethodGet, "/api/v1/capabilities", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{dberr.Query("", "bad"), http.StatusBadRequest},
		{dberr.Permission("", "no"), http.StatusForbidden},
		{dberr.Integrity("", nil, "dup"), http.StatusConflict},
		{dberr.Timeout("", nil, "slow"), http.StatusGatewayTimeout},
		{dberr.Connection("", nil, "down"), http.StatusServiceUnavailable},
		{dberr.Database("", nil, "boom"), http.StatusInternalServerError},
		{errors.New("raw"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := New(Dependencies{Backend: &fakeBackend{capsErr: tt.err}})
		w, out := do(t, h, http.MethodGet, "/api/v1/capabilities", nil)
		assert.Equal(t, tt.code, w.Code, tt.err.Error())
		assert.NotEmpty(t, out["error"])
	}
}

// ----------------------------------------------------------------------------
// Test: SQL / 正则检查
// ----------------------------------------------------------------------------

func TestSQLCheck(t *testing.T) {
	h := New(Dependencies{})

	w, out := do(t, h, http.MethodPost, "/api/v1/sql/check", map[string]any{
		"statement": "SELECT * FROM users WHERE id = :id",
		"params":    map[string]any{"id": 1},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["data"].(map[string]any)["is_safe"])

	_, out = do(t, h, http.MethodPost, "/api/v1/sql/check", map[string]any{"statement": "DROP TABLE users"})
	verdict := out["data"].(map[string]any)
	assert.Equal(t, false, verdict["is_safe"])
	assert.Contains(t, verdict["reason"], "DROP")

	_, out = do(t, h, http.MethodPost, "/api/v1/sql/check", map[string]any{"statement": "DROP TABLE users", "allow_ddl": true})
	assert.Equal(t, true, out["data"].(map[string]any)["is_safe"])

	_, out = do(t, New(Dependencies{AllowDDL: true}), http.MethodPost, "/api/v1/sql/check", map[string]any{"statement": "CREATE TABLE t (id INT)"})
	assert.Equal(t, true, out["data"].(map[string]any)["is_safe"])

	w, _ = do(t, h, http.MethodPost, "/api/v1/sql/check", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegexCheck(t *testing.T) {
	h := New(Dependencies{})
	w, _ := do(t, h, http.MethodPost, "/api/v1/regex/check", map[string]any{"pattern": "^abc$"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, out := do(t, h, http.MethodPost, "/api/v1/regex/check", map[string]any{"pattern": "(a+)+"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "QueryError", out["kind"])
}

// ----------------------------------------------------------------------------
// Test: 过滤条件翻译
// ----------------------------------------------------------------------------

func TestTranslate(t *testing.T) {
	h := New(Dependencies{})

	w, out := do(t, h, http.MethodPost, "/api/v1/filters/translate", map[string]any{
		"backend": "sqlite",
		"filters": map[string]any{"name": "alice"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "name = :name_eq", data["where"])

	_, out = do(t, h, http.MethodPost, "/api/v1/filters/translate", map[string]any{
		"backend": "redis",
		"filters": map[string]any{"name": "alice"},
	})
	assert.Equal(t, true, out["data"].(map[string]any)["executable"])

	w, out = do(t, h, http.MethodPost, "/api/v1/filters/translate", map[string]any{
		"backend": "sqlite",
		"filters": map[string]any{"bad-field": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "QueryError", out["kind"])

	w, _ = do(t, h, http.MethodPost, "/api/v1/filters/translate", map[string]any{"backend": "oracle"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := aegobserve.NewMetrics(reg)
	h := New(Dependencies{Metrics: m, Gatherer: reg})

	do(t, h, http.MethodGet, "/healthz", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "queryaegis_http_request_duration_seconds")
}

func TestCORS(t *testing.T) {
	h := New(Dependencies{AllowOrigins: []string{"https://ops.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sql/check", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	New(Dependencies{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
