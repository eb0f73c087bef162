// file: internal/adapter/datasource/redis/manager_test.go
package redis

import (
	"context"
	"fmt"
	"testing"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 测试辅助: miniredis
// -----------------------------------------------------------------------------

func newTestManager(t *testing.T, codec string, maxResults int) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := domain.NewDatabaseConfig("redis://" + mr.Addr())
	cfg.MaxQueryResults = maxResults
	cfg.Options["codec"] = codec
	m, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m, mr
}

func seed(t *testing.T, m *Manager, n int) {
	t.Helper()
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"name": fmt.Sprintf("item%02d", i), "price": 10 + i}
	}
	_, err := m.Insert(context.Background(), "items", rows)
	require.NoError(t, err)
}

// -----------------------------------------------------------------------------
// Test: 存储布局
// -----------------------------------------------------------------------------

func TestManager_InsertLayout(t *testing.T) {
	m, mr := newTestManager(t, "json", 100)
	res, err := m.Insert(context.Background(), "items", []map[string]any{{"name": "a"}, {"name": "b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, res.InsertedIDs)

	counter, err := mr.Get("items:_id_counter")
	require.NoError(t, err)
	assert.Equal(t, "2", counter)

	members, err := mr.Members("items:_index")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"items:1", "items:2"}, members)

	raw, err := mr.Get("items:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"a","id":1}`, raw)
}

func TestManager_QueryAndHasMore(t *testing.T) {
	for _, codec := range []string{"json", "msgpack"} {
		t.Run(codec, func(t *testing.T) {
			m, _ := newTestManager(t, codec, 100)
			seed(t, m, 12)
			ctx := context.Background()

			res, err := m.Query(ctx, port.QueryRequest{Table: "items", Limit: 5})
			require.NoError(t, err)
			require.Len(t, res.Data, 5)
			assert.Equal(t, int64(12), res.Count)
			assert.True(t, res.HasMore)
			assert.Equal(t, int64(1), res.Data[0]["id"], "结果按 id 升序")

			res, err = m.Query(ctx, port.QueryRequest{Table: "items", Filters: filter.Mapping{"price__gte": 15, "price__lt": 18}})
			require.NoError(t, err)
			assert.Len(t, res.Data, 3)
			assert.False(t, res.HasMore)

			res, err = m.Query(ctx, port.QueryRequest{Table: "items", Filters: filter.Mapping{"name__endswith": "07"}})
			require.NoError(t, err)
			require.Len(t, res.Data, 1)
			assert.Equal(t, "item07", res.Data[0]["name"])
		})
	}
}

func TestManager_QueryCeiling(t *testing.T) {
	m, _ := newTestManager(t, "json", 5)
	seed(t, m, 8)
	ctx := context.Background()

	_, err := m.Query(ctx, port.QueryRequest{Table: "items"})
	assert.True(t, dberr.IsQuery(err))

	res, err := m.Query(ctx, port.QueryRequest{Table: "items", Limit: 3})
	require.NoError(t, err, "limit 不超过上限时正常分页")
	assert.Len(t, res.Data, 3)
	assert.True(t, res.HasMore)
}

func TestManager_UpdatePreservesID(t *testing.T) {
	m, _ := newTestManager(t, "json", 100)
	seed(t, m, 4)
	ctx := context.Background()

	up, err := m.Update(ctx, "items", map[string]any{"price": 0, "id": 999}, filter.Mapping{"price__in": []any{10, 11}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), up.UpdatedCount)

	res, err := m.Query(ctx, port.QueryRequest{Table: "items", Filters: filter.Mapping{"price": 0}})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, int64(1), res.Data[0]["id"])
	assert.Equal(t, int64(2), res.Data[1]["id"])
}

func TestManager_DeleteMaintainsIndex(t *testing.T) {
	m, mr := newTestManager(t, "json", 100)
	seed(t, m, 3)
	ctx := context.Background()

	del, err := m.Delete(ctx, "items", filter.Mapping{"name": "item01"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), del.DeletedCount)
	assert.False(t, mr.Exists("items:2"))

	members, _ := mr.Members("items:_index")
	assert.ElementsMatch(t, []string{"items:1", "items:3"}, members)

	del, err = m.Delete(ctx, "items", filter.Mapping{"name": "nothing"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), del.DeletedCount)
}

func TestManager_SkipsDanglingIndexEntries(t *testing.T) {
	m, mr := newTestManager(t, "json", 100)
	seed(t, m, 2)
	mr.Del("items:1")

	res, err := m.Query(context.Background(), port.QueryRequest{Table: "items"})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)
}

// -----------------------------------------------------------------------------
// Test: 拒绝与不支持的操作
// -----------------------------------------------------------------------------

func TestManager_Rejections(t *testing.T) {
	m, _ := newTestManager(t, "json", 100)
	ctx := context.Background()

	_, err := m.Insert(ctx, "items:*", []map[string]any{{"a": 1}})
	assert.True(t, dberr.IsQuery(err), "表名不能包含 : 或 *")

	_, err = m.Update(ctx, "items", map[string]any{"a": 1}, filter.Mapping{})
	assert.True(t, dberr.IsQuery(err))

	_, err = m.Delete(ctx, "items", nil)
	assert.True(t, dberr.IsQuery(err))

	_, err = m.Execute(ctx, "GET x", nil)
	assert.True(t, dberr.IsQuery(err))

	_, err = m.Advanced(ctx, "transaction", nil)
	assert.True(t, dberr.IsQuery(err))

	assert.Equal(t, domain.Capability{BasicCRUD: true}, m.Capabilities())
}

func TestManager_ConnectFailure(t *testing.T) {
	m, err := New(domain.NewDatabaseConfig("redis://127.0.0.1:1"))
	require.NoError(t, err)
	err = m.Connect(context.Background())
	assert.True(t, dberr.IsConnection(err))
	assert.False(t, m.IsConnected())
}

func TestNewCodec(t *testing.T) {
	_, err := NewCodec("xml")
	assert.Error(t, err)

	c, err := NewCodec("msgpack")
	require.NoError(t, err)
	data, err := c.Encode(map[string]any{"n": 3, "nested": map[string]any{"f": 1.5}})
	require.NoError(t, err)
	got, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got["n"])
	assert.Equal(t, map[string]any{"f": 1.5}, got["nested"])

	c, _ = NewCodec("")
	got, err = c.Decode([]byte(`{"n":3,"f":1.5,"l":[1,"a"]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(3), got["n"])
	assert.Equal(t, 1.5, got["f"])
	assert.Equal(t, []any{int64(1), "a"}, got["l"])
}
