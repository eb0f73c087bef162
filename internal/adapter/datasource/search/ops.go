// file: internal/adapter/datasource/search/ops.go
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

type searchHit struct {
	ID     string         `json:"_id"`
	Source map[string]any `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]any `json:"aggregations"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

type bulkItemResult struct {
	ID     string          `json:"_id"`
	Result string          `json:"result"`
	Error  json.RawMessage `json:"error,omitempty"`
}

func translate(filters filter.Mapping) (filter.SearchQuery, error) {
	q, err := filter.SearchTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	return q, nil
}

func (m *Manager) search(ctx context.Context, index string, body map[string]any) (*searchResponse, error) {
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, dberr.Query(backend, "search body is not serializable: %v", err)
	}
	res, err := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(payload),
	}.Do(ctx, client)
	var out searchResponse
	if err := decodeResponse(res, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *Manager) bulk(ctx context.Context, lines []any) (*bulkResponse, error) {
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return nil, dberr.Query(backend, "bulk line is not serializable: %v", err)
		}
	}
	res, err := opensearchapi.BulkRequest{Body: &buf, Refresh: "true"}.Do(ctx, client)
	var out bulkResponse
	if err := decodeResponse(res, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Insert 通过 bulk 写入并立即刷新；部分失败时 Success 为 false，全部失败返回 QueryError。
func (m *Manager) Insert(ctx context.Context, table string, records []map[string]any) (*domain.InsertResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireRows(backend, records); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	lines := make([]any, 0, len(records)*2)
	for _, r := range records {
		lines = append(lines, map[string]any{"index": map[string]any{"_index": table}}, r)
	}
	resp, err := m.bulk(ctx, lines)
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(records))
	var failed []string
	for _, item := range resp.Items {
		r := item["index"]
		if len(r.Error) > 0 {
			failed = append(failed, string(r.Error))
			continue
		}
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		return nil, dberr.Query(backend, "All documents failed to insert: %s", strings.Join(failed, "; "))
	}
	return &domain.InsertResult{InsertedCount: len(ids), InsertedIDs: ids, Success: len(failed) == 0}, nil
}

// matchingIDs 查出满足过滤条件的文档 id；匹配数超过上限时拒绝，避免只处理一部分文档。
func (m *Manager) matchingIDs(ctx context.Context, table string, filters filter.Mapping) ([]string, error) {
	q, err := translate(filters)
	if err != nil {
		return nil, err
	}
	resp, err := m.search(ctx, table, map[string]any{
		"query":            q,
		"size":             m.cfg.MaxQueryResults,
		"track_total_hits": true,
		"_source":          false,
	})
	if err != nil {
		return nil, err
	}
	if resp.Hits.Total.Value > int64(m.cfg.MaxQueryResults) {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}
	ids := make([]string, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// Update 先按条件查出 id，再用 bulk update 写入局部文档
func (m *Manager) Update(ctx context.Context, table string, data map[string]any, filters filter.Mapping) (*domain.UpdateResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, dberr.Query(backend, "update data must not be empty")
	}
	if err := dsutil.RequireFilters(backend, "update", filters); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	ids, err := m.matchingIDs(ctx, table, filters)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &domain.UpdateResult{Success: true}, nil
	}
	lines := make([]any, 0, len(ids)*2)
	for _, id := range ids {
		lines = append(lines,
			map[string]any{"update": map[string]any{"_index": table, "_id": id}},
			map[string]any{"doc": data},
		)
	}
	resp, err := m.bulk(ctx, lines)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, item := range resp.Items {
		if r, ok := item["update"]; ok && (r.Result == "updated" || r.Result == "created" || r.Result == "noop") {
			n++
		}
	}
	return &domain.UpdateResult{UpdatedCount: n, Success: true}, nil
}

// Delete 先按条件查出 id，再用 bulk delete 删除
func (m *Manager) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireFilters(backend, "delete", filters); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	ids, err := m.matchingIDs(ctx, table, filters)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &domain.DeleteResult{Success: true}, nil
	}
	lines := make([]any, len(ids))
	for i, id := range ids {
		lines[i] = map[string]any{"delete": map[string]any{"_index": table, "_id": id}}
	}
	resp, err := m.bulk(ctx, lines)
	if err != nil {
		return nil, err
	}
	var n int64
	for _, item := range resp.Items {
		if r, ok := item["delete"]; ok && r.Result == "deleted" {
			n++
		}
	}
	return &domain.DeleteResult{DeletedCount: n, Success: true}, nil
}

// Query 使用 bool 查询，track_total_hits 保证总数精确
func (m *Manager) Query(ctx context.Context, req port.QueryRequest) (*domain.QueryResult, error) {
	if err := dsutil.ValidateTable(backend, req.Table); err != nil {
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
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := m.search(ctx, req.Table, map[string]any{
		"query":            q,
		"size":             fetch,
		"track_total_hits": true,
	})
	if err != nil {
		return nil, err
	}
	total := resp.Hits.Total.Value
	if ceiling && total > int64(m.cfg.MaxQueryResults) {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}
	rows := make([]map[string]any, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		row := make(map[string]any, len(h.Source)+1)
		for k, v := range h.Source {
			row[k] = v
		}
		if _, exists := row["_id"]; !exists {
			row["_id"] = h.ID
		}
		rows[i] = row
	}
	return domain.NewQueryResult(rows, total, req.Limit), nil
}
