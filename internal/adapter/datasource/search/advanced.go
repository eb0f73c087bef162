// file: internal/adapter/datasource/search/advanced.go
package search

import (
	"context"
	"strings"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
)

// AdvancedAggregation 高级操作名称
const AdvancedAggregation = "aggregation"

// ForbiddenBodyKeys 聚合请求体中任意层级都不允许出现的键
var ForbiddenBodyKeys = []string{"_source", "script", "script_fields"}

// Advanced 只支持 aggregation，返回响应中的 aggregations 部分
func (m *Manager) Advanced(ctx context.Context, operation string, params map[string]any) (*domain.AdvancedResult, error) {
	if operation != AdvancedAggregation {
		return nil, dberr.Query(backend, "Unsupported advanced operation: %s", operation)
	}
	index, _ := params["index"].(string)
	if index == "" {
		index = "*"
	}
	if err := m.ValidateIndex(index); err != nil {
		return nil, err
	}
	body, _ := params["body"].(map[string]any)
	if body == nil {
		body = map[string]any{}
	}
	if err := ValidateBody(body); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	resp, err := m.search(ctx, index, body)
	if err != nil {
		return nil, err
	}
	aggs := resp.Aggregations
	if aggs == nil {
		aggs = map[string]any{}
	}
	return &domain.AdvancedResult{Operation: operation, Data: aggs, Success: true}, nil
}

// ValidateIndex 拒绝通配索引；配置了白名单时只允许名单内的索引
func (m *Manager) ValidateIndex(index string) error {
	if strings.ContainsAny(index, "*,") || strings.HasPrefix(index, "_") {
		return dberr.Query(backend, "Wildcard index access not allowed")
	}
	if len(m.allowed) > 0 && !m.allowed[index] {
		return dberr.Query(backend, "Index '%s' not allowed", index)
	}
	return nil
}

// ValidateBody 递归检查请求体，包括数组中的对象
func ValidateBody(body map[string]any) error {
	if key, found := forbiddenKey(body); found {
		return dberr.Query(backend, "Query contains forbidden parameter '%s'", key)
	}
	return nil
}

func forbiddenKey(v any) (string, bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			for _, f := range ForbiddenBodyKeys {
				if k == f {
					return k, true
				}
			}
			if key, ok := forbiddenKey(child); ok {
				return key, true
			}
		}
	case []any:
		for _, child := range t {
			if key, ok := forbiddenKey(child); ok {
				return key, true
			}
		}
	}
	return "", false
}
