// file: internal/adapter/datasource/sqldb/schema.go
package sqldb

import (
	"context"
	"database/sql"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
)

// ColumnInfo 描述一张表的一列
type ColumnInfo struct {
	Name       string  `json:"name" yaml:"name"`
	Type       string  `json:"type" yaml:"type"`
	Nullable   bool    `json:"nullable" yaml:"nullable"`
	PrimaryKey bool    `json:"primary_key" yaml:"primary_key"`
	Default    *string `json:"default,omitempty" yaml:"default,omitempty"`
}

const pgColumnsSQL = `SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default,
  EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage k
      ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_name = c.table_name
      AND tc.table_schema = c.table_schema AND k.column_name = c.column_name)
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = :table
ORDER BY c.ordinal_position`

const mysqlColumnsSQL = `SELECT column_name, column_type, is_nullable = 'YES', column_default, column_key = 'PRI'
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = :table
ORDER BY ordinal_position`

// Columns 返回表的列信息，结果在 LRU 中缓存，DDL 执行后失效。
func (m *Manager) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	backend := m.dialect.backend
	if err := dsutil.ValidateTable(backend, table); err != nil {
		return nil, err
	}
	if cached, ok := m.columns.Get(table); ok {
		return cached, nil
	}
	db, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var cols []ColumnInfo
	if m.dialect == dialectSQLite {
		cols, err = sqliteColumns(ctx, db, table)
	} else {
		query := mysqlColumnsSQL
		if m.dialect == dialectPostgres {
			query = pgColumnsSQL
		}
		cols, err = m.infoSchemaColumns(ctx, db, query, table)
	}
	if err != nil {
		return nil, m.classify(err)
	}
	if len(cols) == 0 {
		return nil, dberr.Query(backend, "Table '%s' not found", table)
	}
	m.columns.Add(table, cols)
	return cols, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]ColumnInfo, error) {
	// table 已通过标识符校验，PRAGMA 不支持参数绑定
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		col := ColumnInfo{Name: name, Type: typ, Nullable: notNull == 0 && pk == 0, PrimaryKey: pk > 0}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (m *Manager) infoSchemaColumns(ctx context.Context, db *sql.DB, query, table string) ([]ColumnInfo, error) {
	stmt, args, err := bindNamed(query, map[string]any{"table": table}, m.dialect.dollarArgs, m.dialect.backend)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col  ColumnInfo
			dflt sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &dflt, &col.PrimaryKey); err != nil {
			return nil, err
		}
		if dflt.Valid {
			col.Default = &dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Tables 列出当前库中的用户表
func (m *Manager) Tables(ctx context.Context) ([]string, error) {
	db, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var query string
	switch m.dialect {
	case dialectPostgres:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name"
	case dialectMySQL:
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() ORDER BY table_name"
	default:
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, m.classify(err)
	}
	defer closeRows(rows)

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, m.classify(err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, m.classify(err)
	}
	return tables, nil
}
