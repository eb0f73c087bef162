// file: internal/adapter/datasource/postgrest/ops.go
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"
)

const (
	preferRepresentation = "return=representation"
	preferCount          = "count=exact"
)

func translate(filters filter.Mapping) (url.Values, error) {
	q, err := filter.RESTTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	return q, nil
}

func (m *Manager) ready(table string) error {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return err
	}
	if !m.IsConnected() {
		return errNotConnected()
	}
	return nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}

func decodeRows(body []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var rows []map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, dberr.Database(backend, err, "unexpected PostgREST response: %v", err)
	}
	for _, r := range rows {
		for k, v := range r {
			r[k] = fixNumber(v)
		}
	}
	return rows, nil
}

// fixNumber 把 json.Number 转成 int64 或 float64
func fixNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}

// Insert 一次 POST 写入全部记录；id 取自返回的表示中的 "id" 字段
func (m *Manager) Insert(ctx context.Context, table string, records []map[string]any) (*domain.InsertResult, error) {
	if err := m.ready(table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireRows(backend, records); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, body, err := m.do(ctx, http.MethodPost, restPath+table, nil, records, preferRepresentation)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, r := range rows {
		if id, ok := r["id"]; ok {
			ids = append(ids, id)
		}
	}
	count := len(rows)
	if count == 0 {
		count = len(records)
	}
	return &domain.InsertResult{InsertedCount: count, InsertedIDs: ids, Success: true}, nil
}

// Update 发送 PATCH，受影响行数为返回表示的行数
func (m *Manager) Update(ctx context.Context, table string, data map[string]any, filters filter.Mapping) (*domain.UpdateResult, error) {
	if err := m.ready(table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, dberr.Query(backend, "update data must not be empty")
	}
	if err := dsutil.RequireFilters(backend, "update", filters); err != nil {
		return nil, err
	}
	q, err := translate(filters)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, body, err := m.do(ctx, http.MethodPatch, restPath+table, q, data, preferRepresentation)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return &domain.UpdateResult{UpdatedCount: int64(len(rows)), Success: true}, nil
}

// Delete 发送 DELETE，受影响行数为返回表示的行数
func (m *Manager) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	if err := m.ready(table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireFilters(backend, "delete", filters); err != nil {
		return nil, err
	}
	q, err := translate(filters)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, body, err := m.do(ctx, http.MethodDelete, restPath+table, q, nil, preferRepresentation)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return &domain.DeleteResult{DeletedCount: int64(len(rows)), Success: true}, nil
}

// Query 发送 GET；总数来自 Content-Range 响应头
func (m *Manager) Query(ctx context.Context, req port.QueryRequest) (*domain.QueryResult, error) {
	if err := m.ready(req.Table); err != nil {
		return nil, err
	}
	fetch, ceiling, err := dsutil.ResolveLimit(backend, req.Limit, m.cfg.MaxQueryResults)
	if err != nil {
		return nil, err
	}
	q, err := translate(req.Filters)
	if err != nil {
		return nil, err
	}
	q.Set("select", "*")
	q.Set("limit", strconv.Itoa(fetch))
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	header, body, err := m.do(ctx, http.MethodGet, restPath+req.Table, q, nil, preferCount)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	total, ok := ContentRangeTotal(header.Get("Content-Range"))
	if !ok {
		total = int64(len(rows))
	}
	if ceiling && total > int64(m.cfg.MaxQueryResults) {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}
	return domain.NewQueryResult(rows, total, req.Limit), nil
}

// ContentRangeTotal 解析 "0-24/3573" 或 "*/0" 中的总数；总数未知 ("*") 时返回 false。
func ContentRangeTotal(v string) (int64, bool) {
	idx := strings.LastIndexByte(v, '/')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[idx+1:]), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Execute PostgREST 没有 SQL 入口
func (m *Manager) Execute(context.Context, string, map[string]any) (*domain.ExecuteResult, error) {
	return nil, dberr.Query(backend, "Supabase REST API does not support SQL queries. Use query() instead.")
}

// Advanced 没有后端特有的高级操作
func (m *Manager) Advanced(_ context.Context, operation string, _ map[string]any) (*domain.AdvancedResult, error) {
	return nil, dberr.Query(backend, "Unsupported advanced operation: %s", operation)
}
