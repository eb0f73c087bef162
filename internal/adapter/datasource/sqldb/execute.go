// file: internal/adapter/datasource/sqldb/execute.go
package sqldb

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"QueryAegis/internal/adapter/datasource/dsutil"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/guard"
)

// 高级操作名称
const (
	AdvancedTransaction = "transaction"
	AdvancedSchema      = "schema"
	AdvancedTables      = "tables"
)

// rowKeywords 是会返回结果集的语句主关键字
var rowKeywords = map[string]bool{
	"SELECT":   true,
	"PRAGMA":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"DESCRIBE": true,
}

// returnsRows 判断语句是否返回结果集：主关键字属于 rowKeywords，或带 RETURNING 子句。
func returnsRows(statement string) bool {
	tokens := guard.Tokens(statement)
	if rowKeywords[guard.LeadingKeyword(tokens)] {
		return true
	}
	for _, t := range tokens {
		if strings.EqualFold(t, "RETURNING") {
			return true
		}
	}
	return false
}

// isDDL 判断语句是否会改变表结构，执行后需要清空表结构缓存
func isDDL(statement string) bool {
	switch guard.LeadingKeyword(guard.Tokens(statement)) {
	case "CREATE", "ALTER", "DROP", "TRUNCATE", "RENAME":
		return true
	}
	return false
}

// querier 是 *sql.DB 与 *sql.Tx 的公共子集
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Execute 先经过 SQL 安全检查，再执行原始语句。
func (m *Manager) Execute(ctx context.Context, statement string, params map[string]any) (*domain.ExecuteResult, error) {
	if err := m.checkStatement(statement, params); err != nil {
		return nil, err
	}
	db, err := m.conn()
	if err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	res, err := m.runStatement(ctx, db, statement, params)
	if err != nil {
		return nil, err
	}
	if isDDL(statement) {
		m.columns.Purge()
	}
	return res, nil
}

func (m *Manager) checkStatement(statement string, params map[string]any) error {
	verdict := guard.CheckSQL(statement, params, m.cfg.AllowDDL)
	if !verdict.IsSafe {
		slog.Warn("[SQLAdapter] 拒绝不安全的 SQL 语句", "reason", verdict.Reason)
		return dberr.Query(m.dialect.backend, "Unsafe SQL statement rejected: %s", verdict.Reason)
	}
	return nil
}

// runStatement 执行一条已通过安全检查的语句；返回结果集的语句同样受全局行数上限约束。
func (m *Manager) runStatement(ctx context.Context, q querier, statement string, params map[string]any) (*domain.ExecuteResult, error) {
	stmt, args, err := bindNamed(statement, params, m.dialect.dollarArgs, m.dialect.backend)
	if err != nil {
		return nil, err
	}

	if returnsRows(statement) {
		rows, err := q.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, m.classify(err)
		}
		data, overflow, err := scanRows(rows, m.cfg.MaxQueryResults)
		closeRows(rows)
		if err != nil {
			return nil, m.classify(err)
		}
		if overflow {
			return nil, dsutil.ExceedsLimit(m.dialect.backend, m.cfg.MaxQueryResults)
		}
		return &domain.ExecuteResult{RowsAffected: int64(len(data)), Data: data, Success: true}, nil
	}

	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, m.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, m.classify(err)
	}
	return &domain.ExecuteResult{RowsAffected: n, Success: true}, nil
}

// Advanced 实现关系型后端的高级操作：transaction / schema / tables。
func (m *Manager) Advanced(ctx context.Context, operation string, params map[string]any) (*domain.AdvancedResult, error) {
	switch operation {
	case AdvancedTransaction:
		return m.transaction(ctx, params)
	case AdvancedSchema:
		table, _ := params["table"].(string)
		cols, err := m.Columns(ctx, table)
		if err != nil {
			return nil, err
		}
		return &domain.AdvancedResult{Operation: operation, Data: cols, Success: true}, nil
	case AdvancedTables:
		tables, err := m.Tables(ctx)
		if err != nil {
			return nil, err
		}
		return &domain.AdvancedResult{Operation: operation, Data: tables, Success: true}, nil
	}
	return nil, dberr.Query(m.dialect.backend, "Unsupported advanced operation '%s' for %s", operation, m.dialect.backend)
}

type txStatement struct {
	query  string
	params map[string]any
}

// parseTxStatements 解析 {"queries": [{"query": "...", "params": {...}}]}
func (m *Manager) parseTxStatements(params map[string]any) ([]txStatement, error) {
	raw, ok := params["queries"].([]any)
	if !ok {
		if typed, isMaps := params["queries"].([]map[string]any); isMaps {
			for _, it := range typed {
				raw = append(raw, it)
			}
		}
	}
	if len(raw) == 0 {
		return nil, dberr.Query(m.dialect.backend, "transaction requires a non-empty 'queries' list")
	}
	out := make([]txStatement, 0, len(raw))
	for i, it := range raw {
		entry, ok := it.(map[string]any)
		if !ok {
			return nil, dberr.Query(m.dialect.backend, "transaction query %d must be an object", i)
		}
		q, _ := entry["query"].(string)
		if strings.TrimSpace(q) == "" {
			return nil, dberr.Query(m.dialect.backend, "transaction query %d has no 'query' text", i)
		}
		p, _ := entry["params"].(map[string]any)
		out = append(out, txStatement{query: q, params: p})
	}
	return out, nil
}

// transaction 在一个事务里依次执行多条语句，全部通过安全检查后才开始执行。
func (m *Manager) transaction(ctx context.Context, params map[string]any) (*domain.AdvancedResult, error) {
	stmts, err := m.parseTxStatements(params)
	if err != nil {
		return nil, err
	}
	for _, s := range stmts {
		if err := m.checkStatement(s.query, s.params); err != nil {
			return nil, err
		}
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

	results := make([]*domain.ExecuteResult, 0, len(stmts))
	ddl := false
	for _, s := range stmts {
		res, err := m.runStatement(ctx, tx, s.query, s.params)
		if err != nil {
			return nil, err
		}
		ddl = ddl || isDDL(s.query)
		results = append(results, res)
	}
	if err := tx.Commit(); err != nil {
		return nil, m.classify(err)
	}
	if ddl {
		m.columns.Purge()
	}
	slog.Debug("[SQLAdapter] 事务提交成功", "statements", len(results))
	return &domain.AdvancedResult{Operation: AdvancedTransaction, Data: results, Success: true}, nil
}
