// file: internal/adapter/datasource/sqldb/helpers_test.go
package sqldb

import (
	"testing"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/filter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Test: bindNamed
// -----------------------------------------------------------------------------

func TestBindNamed_QuestionMarks(t *testing.T) {
	stmt, args, err := bindNamed(
		"SELECT * FROM t WHERE a = :a AND b IN (:b0, :b1) AND a2 = :a",
		map[string]any{"a": 1, "b0": "x", "b1": "y"},
		false, "sqlite",
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b IN (?, ?) AND a2 = ?", stmt)
	assert.Equal(t, []any{1, "x", "y", 1}, args)
}

func TestBindNamed_DollarReusesIndex(t *testing.T) {
	stmt, args, err := bindNamed(
		"UPDATE t SET a = :v WHERE b = :w OR c = :v",
		map[string]any{"v": 1, "w": 2},
		true, "postgresql",
	)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2 OR c = $1", stmt)
	assert.Equal(t, []any{1, 2}, args)
}

func TestBindNamed_IgnoresLiteralsCastsAndComments(t *testing.T) {
	stmt, args, err := bindNamed(
		"SELECT id::text, ':fake' FROM t WHERE at = '12:30' AND x = :x -- :comment",
		map[string]any{"x": 5},
		true, "postgresql",
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id::text, ':fake' FROM t WHERE at = '12:30' AND x = $1 -- :comment", stmt)
	assert.Equal(t, []any{5}, args)
}

func TestBindNamed_MissingParameter(t *testing.T) {
	_, _, err := bindNamed("SELECT * FROM t WHERE a = :a", map[string]any{}, false, "sqlite")
	require.Error(t, err)
	assert.True(t, dberr.IsQuery(err))
	assert.Contains(t, err.Error(), "Missing parameter: a")
}

// -----------------------------------------------------------------------------
// Test: SQL 构建
// -----------------------------------------------------------------------------

func TestBuildUpdateSQL(t *testing.T) {
	cond, err := filter.SQLTranslator{}.Translate(filter.Mapping{"id": 3})
	require.NoError(t, err)

	query, params, err := buildUpdateSQL("sqlite", "users", map[string]any{"name": "bob", "age": 3}, cond)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE users SET age = :set_age, name = :set_name WHERE id = :id_eq", query)
	assert.Equal(t, map[string]any{"set_age": 3, "set_name": "bob", "id_eq": 3}, params)

	_, _, err = buildUpdateSQL("sqlite", "users", map[string]any{"bad col": 1}, cond)
	assert.True(t, dberr.IsQuery(err))
}

func TestBuildQueryAndCountSQL(t *testing.T) {
	cond, err := filter.SQLTranslator{}.Translate(filter.Mapping{"age__gt": 18})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE age > :age_gt LIMIT 11", buildQuerySQL("users", cond, 11))
	assert.Equal(t, "SELECT COUNT(*) FROM users WHERE age > :age_gt", buildCountSQL("users", cond))
	assert.Equal(t, "SELECT * FROM users LIMIT 3", buildQuerySQL("users", filter.SQLCondition{}, 3))
	assert.Equal(t, "INSERT INTO users (age, name) VALUES (:age, :name)", buildInsertSQL("users", []string{"age", "name"}))
}

func TestReturnsRows(t *testing.T) {
	tests := map[string]bool{
		"SELECT 1":                                     true,
		"  select * from t":                            true,
		"WITH x AS (SELECT 1) SELECT * FROM x":         true,
		"PRAGMA table_info(users)":                     true,
		"EXPLAIN SELECT 1":                             true,
		"INSERT INTO t (a) VALUES (1) RETURNING id":    true,
		"INSERT INTO t (a) VALUES (1)":                 false,
		"UPDATE t SET a = 1 WHERE id = 2":              false,
		"UPDATE t SET note = 'returning' WHERE id = 2": false,
	}
	for stmt, want := range tests {
		assert.Equal(t, want, returnsRows(stmt), stmt)
	}
}

// -----------------------------------------------------------------------------
// Test: 连接串解析
// -----------------------------------------------------------------------------

func TestResolveDSN(t *testing.T) {
	d, dsn, err := resolveDSN("sqlite:///./data.db", 0)
	require.NoError(t, err)
	assert.Equal(t, dialectSQLite, d)
	assert.Equal(t, "./data.db", dsn)

	_, dsn, err = resolveDSN("sqlite:///:memory:", 0)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	d, dsn, err = resolveDSN("postgresql+asyncpg://u:p@db:5432/app", 0)
	require.NoError(t, err)
	assert.Equal(t, dialectPostgres, d)
	assert.Equal(t, "postgres://u:p@db:5432/app", dsn)

	d, dsn, err = resolveDSN("mysql://root:pw@localhost/shop", 0)
	require.NoError(t, err)
	assert.Equal(t, dialectMySQL, d)
	assert.Contains(t, dsn, "root:pw@tcp(localhost:3306)/shop")
	assert.Contains(t, dsn, "parseTime=true")

	_, _, err = resolveDSN("oracle://x", 0)
	assert.True(t, dberr.IsQuery(err))
}

func TestSchemeHelpers(t *testing.T) {
	assert.Equal(t, "postgresql", BaseScheme("postgresql+psycopg2://x"))
	assert.True(t, IsSQLScheme("sqlite:///a.db"))
	assert.True(t, IsSQLScheme("MYSQL://a"))
	assert.False(t, IsSQLScheme("mongodb://a"))
	assert.False(t, IsSQLScheme("no-scheme"))
}
