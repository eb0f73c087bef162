// Package domain file: internal/core/domain/config_models.go
package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Operation 是对外暴露的操作名称
type Operation string

const (
	OpInsert       Operation = "insert"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpQuery        Operation = "query"
	OpExecute      Operation = "execute"
	OpAdvanced     Operation = "advanced_query"
	OpCapabilities Operation = "capabilities"
)

// 默认值
const (
	DefaultDatabaseURL     = "sqlite:///./database.db"
	DefaultPoolSize        = 5
	DefaultMaxOverflow     = 10
	DefaultConnectTimeout  = 10 * time.Second
	DefaultQueryTimeout    = 30 * time.Second
	DefaultMaxQueryResults = 10000
)

// DatabaseConfig 定义了一个后端连接的全部配置，由工厂和适配器构造函数显式接收。
type DatabaseConfig struct {
	URL string `mapstructure:"url" json:"url" validate:"required"`
	// Backend 显式指定后端类型，留空时由 URL 推断
	Backend         string         `mapstructure:"backend" json:"backend,omitempty" validate:"omitempty,oneof=sql mongodb redis opensearch postgrest supabase"`
	PoolSize        int            `mapstructure:"pool_size" json:"pool_size" validate:"gte=1,lte=1000"`
	MaxOverflow     int            `mapstructure:"max_overflow" json:"max_overflow" validate:"gte=0"`
	ConnectTimeout  time.Duration  `mapstructure:"connect_timeout" json:"connect_timeout" validate:"gt=0"`
	QueryTimeout    time.Duration  `mapstructure:"query_timeout" json:"query_timeout" validate:"gt=0"`
	MaxQueryResults int            `mapstructure:"max_query_results" json:"max_query_results" validate:"gte=1"`
	AllowDDL        bool           `mapstructure:"allow_ddl" json:"allow_ddl"`
	Options         map[string]any `mapstructure:"options" json:"options,omitempty"`
}

// NewDatabaseConfig 返回带默认值的配置
func NewDatabaseConfig(rawURL string) DatabaseConfig {
	return DatabaseConfig{
		URL:             rawURL,
		PoolSize:        DefaultPoolSize,
		MaxOverflow:     DefaultMaxOverflow,
		ConnectTimeout:  DefaultConnectTimeout,
		QueryTimeout:    DefaultQueryTimeout,
		MaxQueryResults: DefaultMaxQueryResults,
		Options:         map[string]any{},
	}
}

// OptionString 读取字符串类型的扩展选项
func (c DatabaseConfig) OptionString(key, def string) string {
	if v, ok := c.Options[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return def
}

// OptionStrings 读取列表类型的扩展选项，也接受逗号分隔的字符串。
func (c DatabaseConfig) OptionStrings(key string) []string {
	var out []string
	switch v := c.Options[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, it := range v {
			out = append(out, fmt.Sprint(it))
		}
	case string:
		out = strings.Split(v, ",")
	}
	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// RedactedURL 返回隐藏了密码的连接串，用于日志
func (c DatabaseConfig) RedactedURL() string {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

// PermissionConfig 定义了写操作与危险操作的开关
type PermissionConfig struct {
	EnableInsert   bool        `mapstructure:"enable_insert" json:"enable_insert"`
	EnableUpdate   bool        `mapstructure:"enable_update" json:"enable_update"`
	EnableDelete   bool        `mapstructure:"enable_delete" json:"enable_delete"`
	DangerousAgree bool        `mapstructure:"dangerous_agree" json:"dangerous_agree"`
	TableRules     []TableRule `mapstructure:"table_rules" json:"table_rules,omitempty" validate:"dive"`
}

// IsOperationAllowed 判断基础操作开关；delete 在开启危险操作时同样放行。
func (p PermissionConfig) IsOperationAllowed(op Operation) bool {
	switch op {
	case OpInsert:
		return p.EnableInsert
	case OpUpdate:
		return p.EnableUpdate
	case OpDelete:
		return p.EnableDelete || p.DangerousAgree
	default:
		return true
	}
}

// IsDangerousAllowed 是否允许危险操作
func (p PermissionConfig) IsDangerousAllowed() bool { return p.DangerousAgree }

// TableRule 是一条表级访问规则，Table 支持 * 通配。
type TableRule struct {
	Table  string `mapstructure:"table" json:"table" validate:"required"`
	Action string `mapstructure:"action" json:"action" validate:"required"`
	Effect string `mapstructure:"effect" json:"effect" validate:"oneof=allow deny"`
}

// RateLimitConfig 速率限制配置，PerSecond 为 0 表示不限制
type RateLimitConfig struct {
	PerSecond         float64 `mapstructure:"per_second" json:"per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" json:"burst" validate:"gte=0"`
	PerTablePerSecond float64 `mapstructure:"per_table_per_second" json:"per_table_per_second" validate:"gte=0"`
	PerTableBurst     int     `mapstructure:"per_table_burst" json:"per_table_burst" validate:"gte=0"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

// ServerConfig 运维 HTTP 服务配置
type ServerConfig struct {
	Addr           string `mapstructure:"addr" json:"addr" validate:"required"`
	LogLevel       string `mapstructure:"log_level" json:"log_level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled" json:"metrics_enabled"`

	// PprofAddr 为空时不开启 pprof
	PprofAddr string `mapstructure:"pprof_addr" json:"pprof_addr,omitempty"`

	// CORSOrigins 为空时不输出 CORS 头
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins,omitempty"`
}

// Settings 是进程级配置的完整结构
type Settings struct {
	Server      ServerConfig     `mapstructure:"server" json:"server"`
	Database    DatabaseConfig   `mapstructure:"database" json:"database"`
	Permissions PermissionConfig `mapstructure:"permissions" json:"permissions"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit" json:"rate_limit"`
	Audit       AuditConfig      `mapstructure:"audit" json:"audit"`
}
