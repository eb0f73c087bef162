// file: internal/adapter/datasource/sqldb/mutate.go
package sqldb

import (
	"context"
	"database/sql"
	"log/slog"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
)

// Insert 在一个事务里插入全部记录，任一失败则整体回滚。
func (m *Manager) Insert(ctx context.Context, table string, records []map[string]any) (*domain.InsertResult, error) {
	backend := m.dialect.backend
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireRows(backend, records); err != nil {
		return nil, err
	}
	if m.dialect == dialectPostgres && !filter.ValidIdentifier(m.idColumn) {
		return nil, dsutil.Tag(errInvalidIDColumn(m.idColumn), backend)
	}
	db, err := m.conn()
	if err != nil {
		return nil, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, m.classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]any, 0, len(records))
	for _, rec := range records {
		id, err := m.insertOne(ctx, tx, table, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, m.classify(err)
	}
	slog.Debug("[SQLAdapter] 插入完成", "table", table, "count", len(ids))
	return &domain.InsertResult{InsertedCount: len(ids), InsertedIDs: ids, Success: true}, nil
}

func (m *Manager) insertOne(ctx context.Context, tx *sql.Tx, table string, rec map[string]any) (any, error) {
	backend := m.dialect.backend
	cols, err := sortedColumns(backend, rec)
	if err != nil {
		return nil, err
	}
	query := buildInsertSQL(table, cols)
	if m.dialect == dialectPostgres {
		query += " RETURNING " + m.idColumn
	}
	stmt, args, err := bindNamed(query, rec, m.dialect.dollarArgs, backend)
	if err != nil {
		return nil, err
	}

	if m.dialect == dialectPostgres {
		var id any
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
			return nil, m.classify(err)
		}
		if b, ok := id.([]byte); ok {
			id = string(b)
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, m.classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		// 无自增主键的表拿不到 id，不影响插入本身
		slog.Debug("[SQLAdapter] 无法获取 LastInsertId", "table", table, "error", err)
		return nil, nil
	}
	return id, nil
}

// Update 按过滤条件更新记录
func (m *Manager) Update(ctx context.Context, table string, data map[string]any, filters filter.Mapping) (*domain.UpdateResult, error) {
	backend := m.dialect.backend
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, dsutil.Tag(errEmptyUpdate(), backend)
	}
	if err := dsutil.RequireFilters(backend, "update", filters); err != nil {
		return nil, err
	}
	cond, err := filter.SQLTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	query, params, err := buildUpdateSQL(backend, table, data, cond)
	if err != nil {
		return nil, err
	}
	n, err := m.execAffected(ctx, query, params)
	if err != nil {
		return nil, err
	}
	slog.Debug("[SQLAdapter] 更新完成", "table", table, "count", n)
	return &domain.UpdateResult{UpdatedCount: n, Success: true}, nil
}

// Delete 按过滤条件删除记录
func (m *Manager) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	backend := m.dialect.backend
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if err := dsutil.RequireFilters(backend, "delete", filters); err != nil {
		return nil, err
	}
	cond, err := filter.SQLTranslator{}.Translate(filters)
	if err != nil {
		return nil, dsutil.Tag(err, backend)
	}
	n, err := m.execAffected(ctx, buildDeleteSQL(table, cond), cond.Params)
	if err != nil {
		return nil, err
	}
	slog.Debug("[SQLAdapter] 删除完成", "table", table, "count", n)
	return &domain.DeleteResult{DeletedCount: n, Success: true}, nil
}

func (m *Manager) execAffected(ctx context.Context, query string, params map[string]any) (int64, error) {
	db, err := m.conn()
	if err != nil {
		return 0, err
	}
	stmt, args, err := bindNamed(query, params, m.dialect.dollarArgs, m.dialect.backend)
	if err != nil {
		return 0, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, m.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, m.classify(err)
	}
	return n, nil
}
