// file: internal/adapter/datasource/redis/ops.go
package redis

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	goredis "github.com/redis/go-redis/v9"
)

func recordKey(table string, id int64) string { return table + ":" + strconv.FormatInt(id, 10) }
func indexKey(table string) string { return table + ":_index" }
func counterKey(table string) string { return table + ":_id_counter" }

// entry 是一条取回的记录及其键
type entry struct {
	key    string
	record map[string]any
}

// Insert 为每条记录分配自增 id，写入记录并加入索引集合。
func (m *Manager) Insert(ctx context.Context, table string, records []map[string]any) (*domain.InsertResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireRows(backend, records); err != nil {
		return nil, err
	}
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	ids := make([]any, 0, len(records))
	for _, rec := range records {
		id, err := client.Incr(ctx, counterKey(table)).Result()
		if err != nil {
			return nil, dberr.Classify(err, backend)
		}
		withID := make(map[string]any, len(rec)+1)
		for k, v := range rec {
			withID[k] = v
		}
		withID["id"] = id
		payload, err := m.codec.Encode(withID)
		if err != nil {
			return nil, dberr.Query(backend, "record is not serializable: %v", err)
		}
		key := recordKey(table, id)
		_, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, indexKey(table), key)
			return nil
		})
		if err != nil {
			return nil, dberr.Classify(err, backend)
		}
		ids = append(ids, id)
	}
	return &domain.InsertResult{InsertedCount: len(ids), InsertedIDs: ids, Success: true}, nil
}

// Update 合并字段后写回；记录的 id 字段保持不变。
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
	pred, err := filter.PredicateTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	matches, err := m.scan(ctx, client, table, pred)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &domain.UpdateResult{Success: true}, nil
	}
	payloads := make(map[string][]byte, len(matches))
	for _, e := range matches {
		id := e.record["id"]
		for k, v := range data {
			e.record[k] = v
		}
		e.record["id"] = id
		payload, err := m.codec.Encode(e.record)
		if err != nil {
			return nil, dberr.Query(backend, "record is not serializable: %v", err)
		}
		payloads[e.key] = payload
	}
	_, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, payload := range payloads {
			pipe.Set(ctx, key, payload, 0)
		}
		return nil
	})
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	return &domain.UpdateResult{UpdatedCount: int64(len(matches)), Success: true}, nil
}

// Delete 删除匹配的记录并同步维护索引集合
func (m *Manager) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireFilters(backend, "delete", filters); err != nil {
		return nil, err
	}
	pred, err := filter.PredicateTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	matches, err := m.scan(ctx, client, table, pred)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &domain.DeleteResult{Success: true}, nil
	}
	keys := make([]string, len(matches))
	members := make([]any, len(matches))
	for i, e := range matches {
		keys[i] = e.key
		members[i] = e.key
	}
	_, err = client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, indexKey(table), members...)
		return nil
	})
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	return &domain.DeleteResult{DeletedCount: int64(len(matches)), Success: true}, nil
}

// Query 取回全部记录后在进程内过滤，结果按 id 升序。
func (m *Manager) Query(ctx context.Context, req port.QueryRequest) (*domain.QueryResult, error) {
	if err := dsutil.ValidateTable(backend, req.Table); err != nil {
		return nil, err
	}
	fetch, ceiling, err := dsutil.ResolveLimit(backend, req.Limit, m.cfg.MaxQueryResults)
	if err != nil {
		return nil, err
	}
	pred, err := filter.PredicateTranslator{}.Translate(req.Filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	client, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	matches, err := m.scan(ctx, client, req.Table, pred)
	if err != nil {
		return nil, err
	}
	total := len(matches)
	if ceiling && total > m.cfg.MaxQueryResults {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}
	if len(matches) > fetch {
		matches = matches[:fetch]
	}
	rows := make([]map[string]any, len(matches))
	for i, e := range matches {
		rows[i] = e.record
	}
	return domain.NewQueryResult(rows, int64(total), req.Limit), nil
}

// scan 通过索引集合取回表的全部记录，分批 MGET，返回满足 pred 的记录。
// 索引中已不存在的键会被跳过。
func (m *Manager) scan(ctx context.Context, client *goredis.Client, table string, pred filter.Predicate) ([]entry, error) {
	keys, err := client.SMembers(ctx, indexKey(table)).Result()
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	sortKeys(keys)

	var out []entry
	for start := 0; start < len(keys); start += mgetBatch {
		end := start + mgetBatch
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		values, err := client.MGet(ctx, batch...).Result()
		if err != nil {
			return nil, dberr.Classify(err, backend)
		}
		for i, v := range values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			rec, err := m.codec.Decode([]byte(s))
			if err != nil {
				return nil, dberr.Database(backend, err, "failed to decode record '%s': %v", batch[i], err)
			}
			if pred(rec) {
				out = append(out, entry{key: batch[i], record: rec})
			}
		}
	}
	return out, nil
}

// sortKeys 按 id 的数值排序，非数字 id 排在后面按字典序
func sortKeys(keys []string) {
	id := func(k string) (int64, bool) {
		n, err := strconv.ParseInt(k[strings.LastIndex(k, ":")+1:], 10, 64)
		return n, err == nil
	}
	sort.Slice(keys, func(i, j int) bool {
		a, okA := id(keys[i])
		b, okB := id(keys[j])
		switch {
		case okA && okB:
			return a < b
		case okA != okB:
			return okA
		}
		return keys[i] < keys[j]
	})
}
