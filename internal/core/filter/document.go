// Package filter file: internal/core/filter/document.go
package filter

import (
	"regexp"
	"strings"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/guard"
)

// DocQuery 是文档数据库的查询树：字段 -> 字面量（相等）或操作符对象。
type DocQuery map[string]any

var docComparison = map[Operator]string{
	OpGt:  "$gt",
	OpLt:  "$lt",
	OpGte: "$gte",
	OpLte: "$lte",
}

// DocumentTranslator 文档数据库 (MongoDB) 翻译器。
// 正则类操作符先对用户文本做转义，再经过 guard.ValidateRegex 检查。
type DocumentTranslator struct{}

// Translate 实现 Translator 接口
func (DocumentTranslator) Translate(m Mapping) (DocQuery, error) {
	out := DocQuery{}
	conds, err := Parse(m)
	if err != nil {
		return out, err
	}

	// 同一字段的多个条件按出现顺序收集，最后再合并
	var fields []string
	byField := make(map[string][]any)
	for _, c := range conds {
		if strings.HasPrefix(c.Field, "$") {
			return DocQuery{}, dberr.Query("", "Invalid field name '%s': operators are not allowed as field names", c.Field)
		}
		expr, err := docExpr(c)
		if err != nil {
			return DocQuery{}, err
		}
		if _, seen := byField[c.Field]; !seen {
			fields = append(fields, c.Field)
		}
		byField[c.Field] = append(byField[c.Field], expr)
	}

	var and []any
	for _, f := range fields {
		exprs := byField[f]
		if len(exprs) == 1 {
			out[f] = exprs[0]
			continue
		}
		if merged, ok := mergeOperators(exprs); ok {
			out[f] = merged
			continue
		}
		for _, e := range exprs {
			and = append(and, map[string]any{f: e})
		}
	}
	if len(and) > 0 {
		out["$and"] = and
	}
	return out, nil
}

func docExpr(c Condition) (any, error) {
	switch c.Op {
	case OpEq:
		// 未知后缀同样走这里：原值透传为字面量
		return c.Value, nil
	case OpGt, OpLt, OpGte, OpLte:
		return map[string]any{docComparison[c.Op]: c.Value}, nil
	case OpContains, OpStartsWith, OpEndsWith:
		pattern := regexp.QuoteMeta(c.Text())
		switch c.Op {
		case OpStartsWith:
			pattern = "^" + pattern
		case OpEndsWith:
			pattern = pattern + "$"
		}
		validated, err := guard.ValidateRegex(pattern)
		if err != nil {
			return nil, err
		}
		return map[string]any{"$regex": validated, "$options": "i"}, nil
	case OpIn:
		return map[string]any{"$in": nonNilItems(c.Items())}, nil
	case OpNotIn:
		return map[string]any{"$nin": nonNilItems(c.Items())}, nil
	case OpIsNull, OpNotNull:
		// {field: null} 同时匹配缺失字段和值为 null 的字段
		if c.WantsNull() {
			return map[string]any{"$eq": nil}, nil
		}
		return map[string]any{"$ne": nil}, nil
	}
	return c.Value, nil
}

// nonNilItems 保证序列化为数组而不是 null
func nonNilItems(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}

// mergeOperators 把同一字段上互不冲突的操作符对象合并为一个。
func mergeOperators(exprs []any) (map[string]any, bool) {
	merged := make(map[string]any)
	for _, e := range exprs {
		ops, isOps := e.(map[string]any)
		if !isOps {
			ops = map[string]any{"$eq": e}
		}
		for k, v := range ops {
			if _, clash := merged[k]; clash {
				return nil, false
			}
			merged[k] = v
		}
	}
	return merged, true
}
