// file: internal/adapter/datasource/mongodb/advanced.go
package mongodb

import (
	"context"
	"fmt"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"

	"go.mongodb.org/mongo-driver/bson"
)

// 高级操作名称
const (
	AdvancedAggregate   = "aggregate"
	AdvancedTransaction = "transaction"
)

// ForbiddenStages 聚合管道中会执行服务端 JavaScript 或写入集合的操作符
var ForbiddenStages = []string{"$where", "$function", "$accumulator", "$out", "$merge"}

// Advanced 实现 aggregate 与 transaction
func (m *Manager) Advanced(ctx context.Context, operation string, params map[string]any) (*domain.AdvancedResult, error) {
	switch operation {
	case AdvancedAggregate:
		return m.aggregate(ctx, params)
	case AdvancedTransaction:
		return m.transaction(ctx, params)
	}
	return nil, dberr.Query(backend, "Unsupported operation: %s", operation)
}

func (m *Manager) aggregate(ctx context.Context, params map[string]any) (*domain.AdvancedResult, error) {
	table, _ := params["table"].(string)
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	pipeline, ok := filter.AsSlice(params["pipeline"])
	if !ok {
		return nil, dberr.Query(backend, "aggregate requires a 'pipeline' list")
	}
	if err := ValidatePipeline(pipeline); err != nil {
		return nil, err
	}
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	defer func() { _ = cur.Close(context.Background()) }()

	rows := make([]map[string]any, 0)
	for cur.Next(ctx) {
		if len(rows) == m.cfg.MaxQueryResults {
			return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
		}
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, dberr.Classify(err, backend)
		}
		rows = append(rows, normalizeDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, dberr.Classify(err, backend)
	}
	return &domain.AdvancedResult{Operation: AdvancedAggregate, Data: rows, Success: true}, nil
}

// ValidatePipeline 拒绝任意深度出现的服务端脚本与写入操作符
func ValidatePipeline(pipeline []any) error {
	for i, stage := range pipeline {
		if _, ok := stage.(map[string]any); !ok {
			if _, isM := stage.(bson.M); !isM {
				return dberr.Query(backend, "pipeline stage %d must be an object", i)
			}
		}
		if op, found := findForbidden(stage); found {
			return dberr.Query(backend, "Forbidden aggregation operator '%s' in pipeline stage %d", op, i)
		}
	}
	return nil
}

func findForbidden(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		return findForbiddenInMap(t)
	case bson.M:
		return findForbiddenInMap(t)
	case []any:
		for _, it := range t {
			if op, ok := findForbidden(it); ok {
				return op, true
			}
		}
	}
	return "", false
}

func findForbiddenInMap(m map[string]any) (string, bool) {
	for k, v := range m {
		for _, f := range ForbiddenStages {
			if k == f {
				return f, true
			}
		}
		if op, ok := findForbidden(v); ok {
			return op, true
		}
	}
	return "", false
}

// transaction 依次执行 operations，不提供多文档事务的原子性。
func (m *Manager) transaction(ctx context.Context, params map[string]any) (*domain.AdvancedResult, error) {
	table, _ := params["table"].(string)
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	ops, ok := filter.AsSlice(params["operations"])
	if !ok || len(ops) == 0 {
		return nil, dberr.Query(backend, "transaction requires a non-empty 'operations' list")
	}

	results := make([]map[string]any, 0, len(ops))
	for i, raw := range ops {
		op, ok := raw.(map[string]any)
		if !ok {
			return nil, dberr.Query(backend, "operation %d must be an object", i)
		}
		data, _ := op["data"].(map[string]any)
		filters, _ := op["filters"].(map[string]any)
		opType := fmt.Sprint(op["type"])

		switch opType {
		case "insert":
			res, err := m.Insert(ctx, table, []map[string]any{data})
			if err != nil {
				return nil, err
			}
			results = append(results, map[string]any{"inserted_id": res.InsertedIDs[0]})
		case "update":
			res, err := m.Update(ctx, table, data, filters)
			if err != nil {
				return nil, err
			}
			results = append(results, map[string]any{"modified_count": res.UpdatedCount})
		case "delete":
			res, err := m.Delete(ctx, table, filters)
			if err != nil {
				return nil, err
			}
			results = append(results, map[string]any{"deleted_count": res.DeletedCount})
		default:
			return nil, dberr.Query(backend, "operation %d has unsupported type '%s'", i, opType)
		}
	}
	return &domain.AdvancedResult{
		Operation: AdvancedTransaction,
		Data:      map[string]any{"results": results},
		Success:   true,
	}, nil
}
