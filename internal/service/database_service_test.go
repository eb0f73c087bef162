// file: internal/service/database_service_test.go
package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"QueryAegis/internal/adapter/datasource/sqldb"
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// 测试辅助
// ----------------------------------------------------------------------------

// newSQLiteSource 返回已连接、已建表的内存 SQLite 适配器
func newSQLiteSource(t *testing.T) port.DataSource {
	t.Helper()
	cfg := domain.NewDatabaseConfig("sqlite:///:memory:")
	cfg.AllowDDL = true
	cfg.MaxQueryResults = 50
	ds, err := sqldb.New(cfg)
	require.NoError(t, err)
	require.NoError(t, ds.Connect(context.Background()))
	t.Cleanup(func() { _ = ds.Close() })

	_, err = ds.Execute(context.Background(),
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, password TEXT)`, nil)
	require.NoError(t, err)
	return ds
}

// rawErrorSource 返回未分类的原生错误，用于验证门面的兜底分类
type rawErrorSource struct {
	port.DataSource
}

func (rawErrorSource) Type() string { return dberr.BackendSQLite }

func (rawErrorSource) Query(context.Context, port.QueryRequest) (*domain.QueryResult, error) {
	return nil, errors.New("no such table: ghosts")
}

// ----------------------------------------------------------------------------
// Test: 构造
// ----------------------------------------------------------------------------

func TestNewDatabaseService_RequiresDeps(t *testing.T) {
	_, err := NewDatabaseService(nil, Options{Policy: port.StaticPolicy{}})
	assert.Error(t, err)
	_, err = NewDatabaseService(rawErrorSource{}, Options{})
	assert.Error(t, err)
}

// ----------------------------------------------------------------------------
// Test: 权限与端到端
// ----------------------------------------------------------------------------

func TestDatabaseService_ReadOnlyByDefault(t *testing.T) {
	svc, err := NewDatabaseService(newSQLiteSource(t), Options{Policy: port.StaticPolicy{}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Insert(ctx, "users", []map[string]any{{"name": "a"}})
	assert.True(t, dberr.IsPermission(err))
	_, err = svc.Update(ctx, "users", map[string]any{"name": "b"}, filter.Mapping{"id": 1})
	assert.True(t, dberr.IsPermission(err))
	_, err = svc.Delete(ctx, "users", filter.Mapping{"id": 1})
	assert.True(t, dberr.IsPermission(err))
	_, err = svc.Execute(ctx, "SELECT 1", nil)
	assert.True(t, dberr.IsPermission(err))
	_, err = svc.Advanced(ctx, "transaction", map[string]any{"queries": []any{}})
	assert.True(t, dberr.IsPermission(err))

	res, err := svc.Query(ctx, port.QueryRequest{Table: "users"})
	require.NoError(t, err)
	assert.Empty(t, res.Data)

	caps, err := svc.Capabilities(ctx)
	require.NoError(t, err)
	assert.True(t, caps.Transactions)
	assert.Equal(t, dberr.BackendSQLite, svc.Backend())
	assert.NoError(t, svc.HealthCheck(ctx))
}

func TestDatabaseService_FullPipeline(t *testing.T) {
	var audit bytes.Buffer
	reg := prometheus.NewRegistry()
	metrics := aegobserve.NewMetrics(reg)
	svc, err := NewDatabaseService(newSQLiteSource(t), Options{
		Policy:      port.StaticPolicy{EnableInsert: true, EnableUpdate: true, DangerousAgree: true},
		RateLimit:   &domain.RateLimitConfig{},
		AuditLogger: aegobserve.NewAuditLogger(&audit),
		Metrics:     metrics,
	})
	require.NoError(t, err)
	ctx := context.Background()

	ins, err := svc.Insert(ctx, "users", []map[string]any{
		{"name": "alice", "password": "s3cr3t"},
		{"name": "bob", "password": "hunter2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ins.InsertedCount)

	up, err := svc.Update(ctx, "users", map[string]any{"name": "carol"}, filter.Mapping{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), up.UpdatedCount)

	q, err := svc.Query(ctx, port.QueryRequest{Table: "users", Filters: filter.Mapping{"name__startswith": "c"}})
	require.NoError(t, err)
	require.Len(t, q.Data, 1)
	assert.Equal(t, "carol", q.Data[0]["name"])

	ex, err := svc.Execute(ctx, "SELECT COUNT(*) AS n FROM users WHERE name = :name", map[string]any{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ex.Data[0]["n"])

	del, err := svc.Delete(ctx, "users", filter.Mapping{"id__in": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), del.DeletedCount)

	_, err = svc.Delete(ctx, "users", nil)
	assert.True(t, dberr.IsQuery(err), "unfiltered delete is rejected by the adapter")

	// 审计：4 次修改类调用成功 + 1 次失败，query 不记录，密码被脱敏
	assert.Equal(t, 4, bytes.Count(audit.Bytes(), []byte(`"outcome":"success"`)))
	assert.Equal(t, 1, bytes.Count(audit.Bytes(), []byte(`"outcome":"failure"`)))
	assert.NotContains(t, audit.String(), "s3cr3t")
	assert.NotContains(t, audit.String(), "COUNT(*)")
	assert.Contains(t, audit.String(), `"query_type":"SELECT"`)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("sqlite", "query", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("sqlite", "delete", "QueryError")))
}

func TestDatabaseService_RateLimited(t *testing.T) {
	svc, err := NewDatabaseService(newSQLiteSource(t), Options{
		Policy:    port.StaticPolicy{},
		RateLimit: &domain.RateLimitConfig{PerTablePerSecond: 0.001, PerTableBurst: 1},
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Query(ctx, port.QueryRequest{Table: "users"})
	require.NoError(t, err)
	_, err = svc.Query(ctx, port.QueryRequest{Table: "users"})
	require.Error(t, err)
	assert.True(t, dberr.IsPermission(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestDatabaseService_ClassifiesRawErrors(t *testing.T) {
	svc, err := NewDatabaseService(rawErrorSource{}, Options{Policy: port.StaticPolicy{}})
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), port.QueryRequest{Table: "ghosts"})
	require.Error(t, err)
	de, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, dberr.KindQuery, de.Kind)
	assert.Equal(t, dberr.BackendSQLite, de.Backend)
}

func TestAdvancedTable(t *testing.T) {
	assert.Equal(t, "orders", advancedTable(map[string]any{"table": "orders"}))
	assert.Equal(t, "logs-*", advancedTable(map[string]any{"index": "logs-*"}))
	assert.Equal(t, "", advancedTable(nil))
}
