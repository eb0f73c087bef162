// file: internal/adapter/datasource/sqldb/query.go
package sqldb

import (
	"context"
	"log/slog"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"
)

// Query 是实现 port.DataSource 接口的公开方法。
//
// 先用 LIMIT n+1 探测是否还有更多行，只有探测溢出时才执行 COUNT(*)。
// 两条语句之间发生并发写入时总数是尽力而为的，这里把总数钳制到至少 n+1，保证 HasMore 与行数一致。
func (m *Manager) Query(ctx context.Context, req port.QueryRequest) (*domain.QueryResult, error) {
	backend := m.dialect.backend
	if err := dsutil.ValidateTable(backend, req.Table); err != nil {
		return nil, err
	}
	fetch, ceiling, err := dsutil.ResolveLimit(backend, req.Limit, m.cfg.MaxQueryResults)
	if err != nil {
		return nil, err
	}
	cond, err := filter.SQLTranslator{}.Translate(req.Filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	db, err := m.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	stmt, args, err := bindNamed(buildQuerySQL(req.Table, cond, fetch+1), cond.Params, m.dialect.dollarArgs, backend)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, m.classify(err)
	}
	data, overflow, err := scanRows(rows, fetch)
	closeRows(rows)
	if err != nil {
		return nil, m.classify(err)
	}
	if overflow && ceiling {
		return nil, dsutil.ExceedsLimit(backend, m.cfg.MaxQueryResults)
	}

	total := int64(len(data))
	if overflow {
		countStmt, countArgs, err := bindNamed(buildCountSQL(req.Table, cond), cond.Params, m.dialect.dollarArgs, backend)
		if err != nil {
			return nil, err
		}
		if err := db.QueryRowContext(ctx, countStmt, countArgs...).Scan(&total); err != nil {
			return nil, m.classify(err)
		}
		if total < int64(fetch)+1 {
			total = int64(fetch) + 1
		}
	}
	slog.Debug("[SQLAdapter] 查询完成", "table", req.Table, "rows", len(data), "total", total)
	return domain.NewQueryResult(data, total, req.Limit), nil
}
