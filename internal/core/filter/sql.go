// Package filter file: internal/core/filter/sql.go
package filter

import (
	"fmt"
	"strings"

	"QueryAegis/internal/core/dberr"
)

// SQLCondition 是关系型翻译结果：使用具名占位符的 WHERE 片段（不含 WHERE 关键字）
// 以及占位符到绑定值的映射。片段中不会出现任何字面量值。
type SQLCondition struct {
	Clause string
	Params map[string]any
}

// Empty 表示没有任何条件
func (c SQLCondition) Empty() bool { return c.Clause == "" }

// Where 返回带 "WHERE " 前缀的片段，无条件时返回空串。
func (c SQLCondition) Where() string {
	if c.Clause == "" {
		return ""
	}
	return "WHERE " + c.Clause
}

var sqlComparison = map[Operator]string{
	OpEq:  "=",
	OpGt:  ">",
	OpLt:  "<",
	OpGte: ">=",
	OpLte: "<=",
}

// SQLTranslator 关系型数据库翻译器。
//
// 占位符命名规则：{field}_{op}；in / not_in 为每个元素生成 {field}_in_{i} / {field}_not_in_{i}。
// LIKE 通配符不做转义，搜索词中的 % 与 _ 会按通配符生效。
type SQLTranslator struct{}

// Translate 实现 Translator 接口
func (SQLTranslator) Translate(m Mapping) (SQLCondition, error) {
	out := SQLCondition{Params: make(map[string]any)}
	conds, err := Parse(m)
	if err != nil {
		return out, err
	}

	bind := func(name string, v any) (string, error) {
		if _, dup := out.Params[name]; dup {
			return "", dberr.Query("", "Conflicting filters produce the same parameter '%s'", name)
		}
		out.Params[name] = v
		return ":" + name, nil
	}

	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if !ValidIdentifier(c.Field) {
			return SQLCondition{Params: map[string]any{}}, dberr.Query("", "Invalid field name '%s' in filter '%s'", c.Field, c.Key)
		}
		var part string
		switch c.Op {
		case OpEq, OpGt, OpLt, OpGte, OpLte:
			ph, err := bind(fmt.Sprintf("%s_%s", c.Field, c.Op), c.Value)
			if err != nil {
				return SQLCondition{Params: map[string]any{}}, err
			}
			part = fmt.Sprintf("%s %s %s", c.Field, sqlComparison[c.Op], ph)
		case OpContains, OpStartsWith, OpEndsWith:
			pattern := c.Text()
			switch c.Op {
			case OpContains:
				pattern = "%" + pattern + "%"
			case OpStartsWith:
				pattern = pattern + "%"
			case OpEndsWith:
				pattern = "%" + pattern
			}
			ph, err := bind(fmt.Sprintf("%s_%s", c.Field, c.Op), pattern)
			if err != nil {
				return SQLCondition{Params: map[string]any{}}, err
			}
			part = fmt.Sprintf("%s LIKE %s", c.Field, ph)
		case OpIn, OpNotIn:
			items := c.Items()
			if len(items) == 0 {
				// IN () 不是合法 SQL：空 in 恒假，空 not_in 恒真
				if c.Op == OpIn {
					part = "1=0"
				} else {
					part = "1=1"
				}
				break
			}
			phs := make([]string, len(items))
			for i, it := range items {
				ph, err := bind(fmt.Sprintf("%s_%s_%d", c.Field, c.Op, i), it)
				if err != nil {
					return SQLCondition{Params: map[string]any{}}, err
				}
				phs[i] = ph
			}
			kw := "IN"
			if c.Op == OpNotIn {
				kw = "NOT IN"
			}
			part = fmt.Sprintf("%s %s (%s)", c.Field, kw, strings.Join(phs, ", "))
		case OpIsNull, OpNotNull:
			if c.WantsNull() {
				part = c.Field + " IS NULL"
			} else {
				part = c.Field + " IS NOT NULL"
			}
		}
		parts = append(parts, part)
	}
	out.Clause = strings.Join(parts, " AND ")
	return out, nil
}
