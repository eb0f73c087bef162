// Package dsutil 收集各个后端适配器共用的参数校验与结果上限规则。
package dsutil

import (
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/filter"
)

// ResolveLimit 返回本次实际读取的行数上限，以及它是否由全局上限 max 决定。
//
// limit 为 0 表示不限制；没给 limit 或 limit 超过 max 时使用 max，
// 这种情况下结果超出 max 必须报错而不是静默截断。
func ResolveLimit(backend string, limit, max int) (fetch int, ceiling bool, err error) {
	if limit < 0 {
		return 0, false, dberr.Query(backend, "limit must not be negative, got %d", limit)
	}
	if limit == 0 || limit > max {
		return max, true, nil
	}
	return limit, false, nil
}

// ExceedsLimit 构造结果超出上限的 QueryError
func ExceedsLimit(backend string, max int) error {
	return dberr.Query(backend, "Query result exceeds maximum limit of %d records. Please add more specific filters to reduce the result size.", max)
}

// ValidateTable 校验表名（集合名、索引名）是否为合法标识符
func ValidateTable(backend, table string) error {
	if !filter.ValidIdentifier(table) {
		return dberr.Query(backend, "Invalid table name: '%s'", table)
	}
	return nil
}

// RequireFilters 拒绝不带过滤条件的 update / delete
func RequireFilters(backend, op string, filters filter.Mapping) error {
	if len(filters) == 0 {
		return dberr.Query(backend, "%s without filters is not allowed; provide at least one filter", op)
	}
	return nil
}

// RequireRows 拒绝空的插入
func RequireRows(backend string, rows []map[string]any) error {
	if len(rows) == 0 {
		return dberr.Query(backend, "no records to insert")
	}
	for i, r := range rows {
		if len(r) == 0 {
			return dberr.Query(backend, "record %d is empty", i)
		}
	}
	return nil
}

// Tag 给没有后端标签的 *dberr.Error（通常来自翻译器）补上标签
func Tag(err error, backend string) error {
	if e, ok := dberr.As(err); ok && e.Backend == "" {
		e.Backend = backend
		return e
	}
	return err
}
