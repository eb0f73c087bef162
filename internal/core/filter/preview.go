// Package filter file: internal/core/filter/preview.go
package filter

import (
	"strings"

	"QueryAegis/internal/core/dberr"
)

// Preview 按后端名称翻译 m，返回可序列化的原生表示，用于调试与预览。
//
// 键值后端的产物是闭包，无法序列化，只返回校验结果。
// 未知后端返回 QueryError。
func Preview(backend string, m Mapping) (map[string]any, error) {
	switch b := dberr.NormalizeBackend(backend); b {
	case "sql", "relational", dberr.BackendPostgreSQL, dberr.BackendMySQL, dberr.BackendSQLite:
		cond, err := SQLTranslator{}.Translate(m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backend": "sql", "where": cond.Clause, "params": cond.Params}, nil
	case dberr.BackendMongoDB:
		q, err := DocumentTranslator{}.Translate(m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backend": b, "query": q}, nil
	case dberr.BackendRedis:
		if _, err := (PredicateTranslator{}).Translate(m); err != nil {
			return nil, err
		}
		return map[string]any{"backend": b, "valid": true, "executable": true}, nil
	case dberr.BackendOpenSearch:
		q, err := SearchTranslator{}.Translate(m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backend": b, "query": q}, nil
	case dberr.BackendPostgREST:
		v, err := RESTTranslator{}.Translate(m)
		if err != nil {
			return nil, err
		}
		return map[string]any{"backend": b, "query": v.Encode(), "params": map[string][]string(v)}, nil
	default:
		return nil, dberr.Query("", "unsupported backend '%s'; expected one of %s", backend, strings.Join(PreviewBackends, ", "))
	}
}

// PreviewBackends 是 Preview 接受的后端名称
var PreviewBackends = []string{"sql", "postgresql", "mysql", "sqlite", "mongodb", "redis", "opensearch", "postgrest"}
