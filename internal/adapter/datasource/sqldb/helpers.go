// Package sqldb file: internal/adapter/datasource/sqldb/helpers.go
package sqldb

import (
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/guard"
)

// ============================================================================
//  SQL 构建：表名/列名先做标识符校验，所有值都走具名占位符
// ============================================================================

// sortedColumns 返回排好序的列名，并校验每个列名
func sortedColumns(backend string, data map[string]any) ([]string, error) {
	cols := make([]string, 0, len(data))
	for k := range data {
		if !filter.ValidIdentifier(k) {
			return nil, dberr.Query(backend, "Invalid column name: '%s'", k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// buildQuerySQL 构建 SELECT，limit 为探测用的行数（调用方已 +1）
func buildQuerySQL(table string, cond filter.SQLCondition, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(table)
	if w := cond.Where(); w != "" {
		sb.WriteString(" ")
		sb.WriteString(w)
	}
	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(limit))
	return sb.String()
}

// buildCountSQL 用于构建计算总数的SQL查询
func buildCountSQL(table string, cond filter.SQLCondition) string {
	q := "SELECT COUNT(*) FROM " + table
	if w := cond.Where(); w != "" {
		q += " " + w
	}
	return q
}

// buildInsertSQL 安全地构建 INSERT 语句，占位符与列名同名
func buildInsertSQL(table string, cols []string) string {
	phs := make([]string, len(cols))
	for i, c := range cols {
		phs[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
}

// buildUpdateSQL 安全地构建 UPDATE 语句；SET 的占位符带 set_ 前缀，避免与过滤参数重名
func buildUpdateSQL(backend, table string, data map[string]any, cond filter.SQLCondition) (string, map[string]any, error) {
	cols, err := sortedColumns(backend, data)
	if err != nil {
		return "", nil, err
	}
	params := make(map[string]any, len(cols)+len(cond.Params))
	sets := make([]string, len(cols))
	for i, c := range cols {
		name := "set_" + c
		sets[i] = fmt.Sprintf("%s = :%s", c, name)
		params[name] = data[c]
	}
	for k, v := range cond.Params {
		if _, clash := params[k]; clash {
			return "", nil, dberr.Query(backend, "Parameter '%s' is used by both the update data and the filters", k)
		}
		params[k] = v
	}
	return fmt.Sprintf("UPDATE %s SET %s %s", table, strings.Join(sets, ", "), cond.Where()), params, nil
}

// buildDeleteSQL 安全地构建 DELETE 语句
func buildDeleteSQL(table string, cond filter.SQLCondition) string {
	return fmt.Sprintf("DELETE FROM %s %s", table, cond.Where())
}

// ============================================================================
//  具名占位符绑定
// ============================================================================

// placeholderRe 匹配 :name，排除 ::cast 与 a:b 这类紧贴单词的冒号
var placeholderRe = regexp.MustCompile(`(^|[^:\w]):([A-Za-z_]\w*)`)

// bindNamed 把 :name 占位符改写为驱动的位置参数 (? 或 $n)，并按出现顺序给出参数。
// 占位符在去掉字面量和注释的文本上定位，位置与原文一一对应。
func bindNamed(query string, params map[string]any, dollar bool, backend string) (string, []any, error) {
	var (
		sb    strings.Builder
		args  []any
		index = map[string]int{}
		last  int
	)
	sb.Grow(len(query))
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(guard.StripLiterals(query), -1) {
		nameStart, nameEnd := loc[4], loc[5]
		name := query[nameStart:nameEnd]
		v, ok := params[name]
		if !ok {
			return "", nil, dberr.Query(backend, "Missing parameter: %s", name)
		}
		sb.WriteString(query[last : nameStart-1])
		if dollar {
			pos, seen := index[name]
			if !seen {
				args = append(args, v)
				pos = len(args)
				index[name] = pos
			}
			sb.WriteString("$" + strconv.Itoa(pos))
		} else {
			args = append(args, v)
			sb.WriteByte('?')
		}
		last = nameEnd
	}
	sb.WriteString(query[last:])
	return sb.String(), args, nil
}

// ============================================================================
//  结果扫描
// ============================================================================

// scanRows 把结果集读成 []map；max > 0 时读到第 max+1 行即停止并返回 overflow=true。
func scanRows(rows *sql.Rows, max int) (out []map[string]any, overflow bool, err error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}
	out = make([]map[string]any, 0)
	for rows.Next() {
		if max > 0 && len(out) == max {
			return out, true, nil
		}
		scanDest := make([]any, len(cols))
		scanDestPtrs := make([]any, len(cols))
		for i := range scanDest {
			scanDestPtrs[i] = &scanDest[i]
		}
		if errScan := rows.Scan(scanDestPtrs...); errScan != nil {
			return nil, false, errScan
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := scanDest[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = scanDest[i]
			}
		}
		out = append(out, row)
	}
	return out, false, rows.Err()
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("[SQLAdapter] 关闭结果集失败", "error", err)
	}
}

func errInvalidIDColumn(col string) error {
	return dberr.Query("", "Invalid id_column option: '%s'", col)
}

func errEmptyUpdate() error {
	return dberr.Query("", "update data must not be empty")
}
