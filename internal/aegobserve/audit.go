// Package aegobserve file: internal/aegobserve/audit.go
package aegobserve

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"QueryAegis/internal/core/guard"
)

// Redacted 替换敏感字段的值
const Redacted = "[REDACTED]"

// SensitiveFields 键名包含其中任一片段（不区分大小写）即视为敏感
var SensitiveFields = []string{
	"password", "secret", "api_key", "token", "credential", "auth", "authorization",
	"private_key", "access_key", "passphrase", "session_id", "refresh_token",
	"pass_code", "pin", "security_answer",
}

// IsSensitiveKey 判断键名是否敏感
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range SensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// SanitizeParams 返回脱敏后的副本，嵌套的 map 与列表会被递归处理，原值不变。
func SanitizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if IsSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return SanitizeParams(x)
	case []map[string]any:
		list := make([]any, len(x))
		for i, m := range x {
			list[i] = SanitizeParams(m)
		}
		return list
	case []any:
		list := make([]any, len(x))
		for i, it := range x {
			list[i] = sanitizeValue(it)
		}
		return list
	}
	return v
}

// StatementType 返回语句的主关键字，审计日志只记录它而不记录原始 SQL。
func StatementType(statement string) string {
	if kw := guard.LeadingKeyword(guard.Tokens(statement)); kw != "" {
		return kw
	}
	return "UNKNOWN"
}

// NewAuditLogger 返回独立于全局日志的审计 logger，每条记录一行 JSON。
func NewAuditLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("logger", "queryaegis.audit")
}

// OpenAuditFile 以追加方式打开审计日志文件，必要时创建目录。
func OpenAuditFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建审计日志目录失败: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("打开审计日志文件失败: %w", err)
	}
	return f, nil
}
