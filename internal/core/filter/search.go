// Package filter file: internal/core/filter/search.go
package filter

import "strings"

// SearchQuery 是倒排索引 (OpenSearch) 的查询 DSL。
type SearchQuery map[string]any

// SearchTranslator 搜索引擎翻译器。
//
// 相等与 contains 都使用分词后的 match 查询，而不是精确的 term 查询：
// 对 text 类型字段做 term 匹配会因为分词而漏掉结果。
type SearchTranslator struct{}

// Translate 实现 Translator 接口；空 Mapping 得到 match_all。
func (SearchTranslator) Translate(m Mapping) (SearchQuery, error) {
	conds, err := Parse(m)
	if err != nil {
		return nil, err
	}
	if len(conds) == 0 {
		return SearchQuery{"match_all": map[string]any{}}, nil
	}
	must := make([]any, 0, len(conds))
	for _, c := range conds {
		must = append(must, searchClause(c))
	}
	return SearchQuery{"bool": map[string]any{"must": must}}, nil
}

func searchClause(c Condition) map[string]any {
	f := c.Field
	switch c.Op {
	case OpContains:
		return map[string]any{"match": map[string]any{f: c.Text()}}
	case OpGt, OpLt, OpGte, OpLte:
		return map[string]any{"range": map[string]any{f: map[string]any{string(c.Op): c.Value}}}
	case OpStartsWith:
		return map[string]any{"prefix": map[string]any{f: c.Text()}}
	case OpEndsWith:
		return map[string]any{"wildcard": map[string]any{f: map[string]any{"value": "*" + escapeWildcard(c.Text())}}}
	case OpIn:
		return map[string]any{"terms": map[string]any{f: nonNilItems(c.Items())}}
	case OpNotIn:
		return mustNot(map[string]any{"terms": map[string]any{f: nonNilItems(c.Items())}})
	case OpIsNull, OpNotNull:
		exists := map[string]any{"exists": map[string]any{"field": f}}
		if c.WantsNull() {
			return mustNot(exists)
		}
		return exists
	}
	return map[string]any{"match": map[string]any{f: c.Value}}
}

func mustNot(clause map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"must_not": []any{clause}}}
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string { return wildcardEscaper.Replace(s) }
