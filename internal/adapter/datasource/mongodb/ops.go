// file: internal/adapter/datasource/mongodb/ops.go
package mongodb

import (
	"context"
	"log/slog"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// translate 把过滤 DSL 转换成 bson 过滤文档
func translate(filters filter.Mapping) (bson.M, error) {
	q, err := filter.DocumentTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	return bson.M(q), nil
}

// Insert 使用 InsertMany 批量插入，ObjectID 以十六进制字符串返回。
func (m *Manager) Insert(ctx context.Context, table string, records []map[string]any) (*domain.InsertResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireRows(backend, records); err != nil {
		return nil, err
	}
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = bson.M(r)
	}
	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	ids := make([]any, len(res.InsertedIDs))
	for i, id := range res.InsertedIDs {
		ids[i] = normalize(id)
	}
	slog.Debug("[MongoAdapter] 插入完成", "collection", table, "count", len(ids))
	return &domain.InsertResult{InsertedCount: len(ids), InsertedIDs: ids, Success: true}, nil
}

// Update 使用 UpdateMany($set)，返回实际修改的文档数
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
	q, err := translate(filters)
	if err != nil {
		return nil, err
	}
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := coll.UpdateMany(ctx, q, bson.M{"$set": bson.M(data)})
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	return &domain.UpdateResult{UpdatedCount: res.ModifiedCount, Success: true}, nil
}

// Delete 使用 DeleteMany
func (m *Manager) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireFilters(backend, "delete", filters); err != nil {
		return nil, err
	}
	q, err := translate(filters)
	if err != nil {
		return nil, err
	}
	coll, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := coll.DeleteMany(ctx, q)
	if err != nil {
		return nil, dberr.Classify(err, backend)
	}
	return &domain.DeleteResult{DeletedCount: res.DeletedCount, Success: true}, nil
}

// Query 并发执行 CountDocuments 与 Find。
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
	coll, err := m.collection(req.Table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		total int64
		docs  []bson.M
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := coll.CountDocuments(gctx, q)
		total = n
		return err
	})
	g.Go(func() error {
		cur, err := coll.Find(gctx, q, options.Find().SetLimit(int64(fetch)))
		if err != nil {
			return err
		}
		return cur.All(gctx, &docs)
	})
	if err := g.Wait(); err != nil {
		return nil, dberr.Classify(err, backend)
	}
	if ceiling && total > int64(m.cfg.MaxQueryResults) {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}

	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = normalizeDoc(d)
	}
	return domain.NewQueryResult(rows, total, req.Limit), nil
}

// Execute MongoDB 没有原始 SQL
func (m *Manager) Execute(context.Context, string, map[string]any) (*domain.ExecuteResult, error) {
	return nil, dberr.Query(backend, "MongoDB does not support raw SQL queries. Use query() instead.")
}
