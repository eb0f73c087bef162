// file: internal/adapter/datasource/postgrest/manager_test.go
package postgrest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 测试辅助: 假的 PostgREST 服务
// -----------------------------------------------------------------------------

type fakeREST struct {
	mu sync.Mutex

	status       int
	reply        string
	contentRange string

	lastMethod string
	lastPath   string
	lastQuery  url.Values
	lastHeader http.Header
	lastBody   any
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == restPath {
		if r.Header.Get("apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"swagger":"2.0"}`))
		return
	}
	f.lastMethod = r.Method
	f.lastPath = r.URL.Path
	f.lastQuery = r.URL.Query()
	f.lastHeader = r.Header.Clone()
	f.lastBody = nil
	_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	if f.contentRange != "" {
		w.Header().Set("Content-Range", f.contentRange)
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	_, _ = w.Write([]byte(f.reply))
}

func newTestManager(t *testing.T, f *fakeREST) *Manager {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg := domain.NewDatabaseConfig(srv.URL + "/ignored/path")
	cfg.MaxQueryResults = 10
	cfg.Options["api_key"] = "secret"
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	return m
}

// -----------------------------------------------------------------------------
// Test: 连接
// -----------------------------------------------------------------------------

func TestManager_ConnectRequiresKey(t *testing.T) {
	m, err := New(domain.NewDatabaseConfig("https://abc.supabase.co"))
	require.NoError(t, err)

	err = m.Connect(context.Background())
	assert.True(t, dberr.IsConnection(err))
	assert.False(t, m.IsConnected())
}

func TestManager_ConnectBadKey(t *testing.T) {
	srv := httptest.NewServer(&fakeREST{})
	defer srv.Close()

	cfg := domain.NewDatabaseConfig(srv.URL)
	cfg.Options["api_key"] = "wrong"
	m, err := New(cfg)
	require.NoError(t, err)

	err = m.Connect(context.Background())
	assert.True(t, dberr.IsConnection(err))
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(domain.NewDatabaseConfig("not a url"))
	assert.True(t, dberr.IsQuery(err))
}

// -----------------------------------------------------------------------------
// Test: Query
// -----------------------------------------------------------------------------

func TestManager_QueryFiltersAndTotal(t *testing.T) {
	f := &fakeREST{reply: `[{"id":1,"name":"Alice","score":9.5},{"id":2,"name":"Bob","score":7}]`, contentRange: "0-1/5"}
	m := newTestManager(t, f)

	res, err := m.Query(context.Background(), port.QueryRequest{
		Table:   "users",
		Filters: filter.Mapping{"age__gte": 18, "name__startswith": "A"},
		Limit:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, f.lastMethod)
	assert.Equal(t, "/rest/v1/users", f.lastPath)
	assert.Equal(t, "gte.18", f.lastQuery.Get("age"))
	assert.Equal(t, "like.A*", f.lastQuery.Get("name"))
	assert.Equal(t, "2", f.lastQuery.Get("limit"))
	assert.Equal(t, "count=exact", f.lastHeader.Get("Prefer"))
	assert.Equal(t, "Bearer secret", f.lastHeader.Get("Authorization"))
	assert.Equal(t, "secret", f.lastHeader.Get("apikey"))

	assert.Len(t, res.Data, 2)
	assert.Equal(t, int64(1), res.Data[0]["id"])
	assert.Equal(t, 9.5, res.Data[0]["score"])
	assert.Equal(t, int64(5), res.Count)
	assert.True(t, res.HasMore)
}

func TestManager_QueryCeiling(t *testing.T) {
	f := &fakeREST{reply: `[]`, contentRange: "0-9/11"}
	m := newTestManager(t, f)

	_, err := m.Query(context.Background(), port.QueryRequest{Table: "users"})
	require.Error(t, err)
	assert.True(t, dberr.IsQuery(err))
	assert.Contains(t, err.Error(), "exceeds maximum limit of 10")
	assert.Equal(t, "10", f.lastQuery.Get("limit"))
}

func TestManager_QueryWithoutContentRange(t *testing.T) {
	f := &fakeREST{reply: `[{"id":1}]`}
	m := newTestManager(t, f)

	res, err := m.Query(context.Background(), port.QueryRequest{Table: "users", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Count)
	assert.False(t, res.HasMore)
}

func TestManager_QueryRejectsBadInput(t *testing.T) {
	m := newTestManager(t, &fakeREST{reply: `[]`})
	ctx := context.Background()

	_, err := m.Query(ctx, port.QueryRequest{Table: "users;drop"})
	assert.True(t, dberr.IsQuery(err))

	_, err = m.Query(ctx, port.QueryRequest{Table: "users", Limit: -1})
	assert.True(t, dberr.IsQuery(err))

	_, err = m.Query(ctx, port.QueryRequest{Table: "users", Filters: filter.Mapping{"limit": 3}})
	assert.True(t, dberr.IsQuery(err))
}

func TestContentRangeTotal(t *testing.T) {
	n, ok := ContentRangeTotal("0-24/3573")
	assert.True(t, ok)
	assert.Equal(t, int64(3573), n)

	n, ok = ContentRangeTotal("*/0")
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)

	_, ok = ContentRangeTotal("0-24/*")
	assert.False(t, ok)
	_, ok = ContentRangeTotal("")
	assert.False(t, ok)
}

// -----------------------------------------------------------------------------
// Test: 写操作
// -----------------------------------------------------------------------------

func TestManager_Insert(t *testing.T) {
	f := &fakeREST{status: http.StatusCreated, reply: `[{"id":7,"name":"a"},{"id":8,"name":"b"}]`}
	m := newTestManager(t, f)

	res, err := m.Insert(context.Background(), "users", []map[string]any{{"name": "a"}, {"name": "b"}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, f.lastMethod)
	assert.Equal(t, "return=representation", f.lastHeader.Get("Prefer"))
	assert.Equal(t, "application/json", f.lastHeader.Get("Content-Type"))
	assert.Len(t, f.lastBody, 2)
	assert.Equal(t, 2, res.InsertedCount)
	assert.Equal(t, []any{int64(7), int64(8)}, res.InsertedIDs)
	assert.True(t, res.Success)
}

func TestManager_InsertConflict(t *testing.T) {
	f := &fakeREST{status: http.StatusConflict, reply: `{"message":"duplicate key value violates unique constraint","code":"23505"}`}
	m := newTestManager(t, f)

	_, err := m.Insert(context.Background(), "users", []map[string]any{{"email": "a@x"}})
	require.Error(t, err)
	assert.True(t, dberr.IsIntegrity(err))
	assert.Contains(t, err.Error(), "23505")
}

func TestManager_UpdateAndDelete(t *testing.T) {
	f := &fakeREST{reply: `[{"id":1},{"id":2}]`}
	m := newTestManager(t, f)
	ctx := context.Background()

	up, err := m.Update(ctx, "users", map[string]any{"active": false}, filter.Mapping{"id__in": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, f.lastMethod)
	assert.Equal(t, "in.(1,2)", f.lastQuery.Get("id"))
	assert.Equal(t, map[string]any{"active": false}, f.lastBody)
	assert.Equal(t, int64(2), up.UpdatedCount)

	del, err := m.Delete(ctx, "users", filter.Mapping{"deleted_at__notnull": true})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, f.lastMethod)
	assert.Equal(t, "not.is.null", f.lastQuery.Get("deleted_at"))
	assert.Equal(t, int64(2), del.DeletedCount)
}

func TestManager_MutationsRequireFilters(t *testing.T) {
	m := newTestManager(t, &fakeREST{reply: `[]`})
	ctx := context.Background()

	_, err := m.Update(ctx, "users", map[string]any{"a": 1}, nil)
	assert.True(t, dberr.IsQuery(err))
	_, err = m.Delete(ctx, "users", filter.Mapping{})
	assert.True(t, dberr.IsQuery(err))
	_, err = m.Update(ctx, "users", nil, filter.Mapping{"id": 1})
	assert.True(t, dberr.IsQuery(err))
}

// -----------------------------------------------------------------------------
// Test: 错误映射与不支持的操作
// -----------------------------------------------------------------------------

func TestStatusError(t *testing.T) {
	tests := []struct {
		status int
		body   string
		check  func(error) bool
	}{
		{http.StatusUnauthorized, `{"message":"JWT expired"}`, dberr.IsConnection},
		{http.StatusForbidden, `{"message":"permission denied for table users"}`, dberr.IsPermission},
		{http.StatusConflict, `{}`, dberr.IsIntegrity},
		{http.StatusRequestTimeout, ``, dberr.IsTimeout},
		{http.StatusGatewayTimeout, ``, dberr.IsTimeout},
		{http.StatusBadRequest, `{"message":"column users.nope does not exist"}`, dberr.IsQuery},
		{http.StatusNotFound, ``, dberr.IsQuery},
		{http.StatusServiceUnavailable, `connection refused`, dberr.IsConnection},
	}
	for _, tc := range tests {
		err := StatusError(tc.status, []byte(tc.body))
		assert.True(t, tc.check(err), "status %d: %v", tc.status, err)
	}

	err := StatusError(http.StatusInternalServerError, []byte("boom"))
	assert.Equal(t, dberr.KindDatabase, dberr.KindOf(err))
}

func TestManager_Unsupported(t *testing.T) {
	m := newTestManager(t, &fakeREST{})
	ctx := context.Background()

	_, err := m.Execute(ctx, "SELECT 1", nil)
	assert.True(t, dberr.IsQuery(err))
	_, err = m.Advanced(ctx, "transaction", nil)
	assert.True(t, dberr.IsQuery(err))

	caps := m.Capabilities()
	assert.True(t, caps.BasicCRUD)
	assert.True(t, caps.FullTextSearch)
	assert.False(t, caps.Transactions)
	assert.Equal(t, dberr.BackendPostgREST, m.Type())
}

func TestManager_NotConnected(t *testing.T) {
	cfg := domain.NewDatabaseConfig("https://abc.supabase.co")
	cfg.Options["api_key"] = "k"
	m, err := New(cfg)
	require.NoError(t, err)

	_, err = m.Query(context.Background(), port.QueryRequest{Table: "users"})
	assert.True(t, dberr.IsConnection(err))
	assert.True(t, dberr.IsConnection(m.HealthCheck(context.Background())))
}
