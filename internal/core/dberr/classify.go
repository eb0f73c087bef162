// Package dberr file: internal/core/dberr/classify.go
package dberr

import (
	"context"
	"errors"
	"strings"
)

// 后端类型标签
const (
	BackendPostgreSQL = "postgresql"
	BackendMySQL      = "mysql"
	BackendSQLite     = "sqlite"
	BackendMongoDB    = "mongodb"
	BackendRedis      = "redis"
	BackendOpenSearch = "opensearch"
	BackendPostgREST  = "postgrest"
)

// rule 是一条 (子串, 分类) 规则，按声明顺序匹配，先到先得。
type rule struct {
	substr string
	kind   Kind
}

var rules = map[string][]rule{
	BackendPostgreSQL: {
		{"duplicate key", KindIntegrity},
		{"unique constraint", KindIntegrity},
		{"foreign key", KindIntegrity},
		{"connection refused", KindConnection},
		{"timeout", KindTimeout},
		{"permission denied", KindPermission},
		{"password authentication failed", KindConnection},
		{"canceling statement", KindTimeout},
		{"syntax error", KindQuery},
		{"does not exist", KindQuery},
	},
	BackendMySQL: {
		{"duplicate entry", KindIntegrity},
		{"foreign key constraint", KindIntegrity},
		{"can't connect", KindConnection},
		{"timeout", KindTimeout},
		{"access denied", KindConnection},
		{"lock wait timeout", KindTimeout},
		{"syntax", KindQuery},
		{"doesn't exist", KindQuery},
	},
	BackendSQLite: {
		{"unique constraint", KindIntegrity},
		{"foreign key", KindIntegrity},
		{"database is locked", KindTimeout},
		{"no such table", KindQuery},
		{"no such column", KindQuery},
		{"syntax error", KindQuery},
		{"unable to open database", KindConnection},
	},
	BackendMongoDB: {
		{"duplicate key", KindIntegrity},
		{"network timeout", KindTimeout},
		{"connection", KindConnection},
		{"server selection", KindConnection},
		{"timed out", KindTimeout},
		{"unauthorized", KindPermission},
	},
	BackendRedis: {
		{"connection", KindConnection},
		{"timeout", KindTimeout},
		{"noauth", KindConnection},
		{"wrongpass", KindConnection},
	},
	BackendOpenSearch: {
		{"connection refused", KindConnection},
		{"timeout", KindTimeout},
		{"timed out", KindTimeout},
		{"version_conflict", KindIntegrity},
		{"security_exception", KindPermission},
		{"index_not_found", KindQuery},
		{"parsing_exception", KindQuery},
	},
	BackendPostgREST: {
		{"duplicate key", KindIntegrity},
		{"foreign key", KindIntegrity},
		{"permission denied", KindPermission},
		{"connection refused", KindConnection},
		{"timeout", KindTimeout},
	},
}

// NormalizeBackend 把别名统一成规则表里的标签。
func NormalizeBackend(backend string) string {
	b := strings.ToLower(strings.TrimSpace(backend))
	switch b {
	case "postgres", "pg", "pgx":
		return BackendPostgreSQL
	case "supabase", "rest":
		return BackendPostgREST
	case "mongo":
		return BackendMongoDB
	case "elasticsearch":
		return BackendOpenSearch
	}
	return b
}

// Classify 把后端原生错误映射到统一的错误分类。
//
// 规则：已经是 *Error 的直接返回；context.DeadlineExceeded 一律视为超时；
// 其余按后端的规则表对小写后的错误信息做子串匹配，未命中则归为通用 DatabaseError。
// 返回值始终保留 backend 标签和原始 cause。
func Classify(cause error, backend string) *Error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return existing
	}
	tag := NormalizeBackend(backend)
	msg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: msg, Backend: tag, Cause: cause}
	}

	lower := strings.ToLower(msg)
	for _, r := range rules[tag] {
		if strings.Contains(lower, r.substr) {
			return &Error{Kind: r.kind, Message: msg, Backend: tag, Cause: cause}
		}
	}
	return &Error{Kind: KindDatabase, Message: msg, Backend: tag, Cause: cause}
}
