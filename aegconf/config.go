// Package aegconf 负责集中式配置加载
//
// 优先级（高到低）：环境变量 → 配置文件 → 默认值。.env 文件在读取环境变量前加载，
// 但不会覆盖进程里已经存在的变量。
package aegconf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"QueryAegis/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是结构化环境变量的前缀，例如 QUERYAEGIS_DATABASE_POOL_SIZE
const EnvPrefix = "QUERYAEGIS"

// DefaultAuditPath 开启审计但未指定路径时使用
const DefaultAuditPath = "./logs/audit.log"

// DefaultAddr 运维 HTTP 默认监听地址
const DefaultAddr = ":10224"

// legacyEnv 兼容旧的扁平环境变量名；同时设置时前缀变量优先
var legacyEnv = map[string]string{
	"database.url":                     "DATABASE_URL",
	"database.allow_ddl":               "MCP_DATABASE_TEST_MODE",
	"database.options.api_key":         "SUPABASE_KEY",
	"database.options.allowed_indices": "OPENSEARCH_ALLOWED_INDICES",
	"permissions.enable_insert":        "ENABLE_INSERT",
	"permissions.enable_update":        "ENABLE_UPDATE",
	"permissions.enable_delete":        "ENABLE_DELETE",
	"permissions.dangerous_agree":      "DANGEROUS_AGREE",
	"server.log_level":                 "LOG_LEVEL",
	"audit.path":                       "MCP_AUDIT_LOG_PATH",
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.log_level", "INFO")
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("database.url", domain.DefaultDatabaseURL)
	v.SetDefault("database.pool_size", domain.DefaultPoolSize)
	v.SetDefault("database.max_overflow", domain.DefaultMaxOverflow)
	v.SetDefault("database.connect_timeout", domain.DefaultConnectTimeout)
	v.SetDefault("database.query_timeout", domain.DefaultQueryTimeout)
	v.SetDefault("database.max_query_results", domain.DefaultMaxQueryResults)
	v.SetDefault("database.allow_ddl", false)

	v.SetDefault("permissions.enable_insert", false)
	v.SetDefault("permissions.enable_update", false)
	v.SetDefault("permissions.enable_delete", false)
	v.SetDefault("permissions.dangerous_agree", false)
}

// LoadDotEnv 加载存在的 .env 文件，不存在的文件直接跳过
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("加载 %s 失败: %w", f, err)
		}
		slog.Debug("[Config] 已加载 .env 文件", "path", f)
	}
	return nil
}

// newViper 创建带默认值与环境变量绑定的 viper 实例
func newViper() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", legacy, err)
		}
	}
	return v, nil
}

// Load 读取配置。path 为空时不读取配置文件，只使用环境变量和默认值。
func Load(path string) (domain.Settings, error) {
	v, err := newViper()
	if err != nil {
		return domain.Settings{}, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return domain.Settings{}, fmt.Errorf("读取配置文件 '%s' 失败: %w", path, err)
		}
	}

	var s domain.Settings
	if err := v.Unmarshal(&s); err != nil {
		return domain.Settings{}, fmt.Errorf("解析配置到结构体失败: %w", err)
	}
	if s.Database.Options == nil {
		s.Database.Options = map[string]any{}
	}
	// 只给了审计路径时视为开启审计
	if !v.IsSet("audit.enabled") && s.Audit.Path != "" {
		s.Audit.Enabled = true
	}
	if s.Audit.Enabled && s.Audit.Path == "" {
		s.Audit.Path = DefaultAuditPath
	}
	if err := Validate(s); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// Validate 校验配置，返回的错误列出全部不合法的字段
func Validate(s domain.Settings) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
	}
	return fmt.Errorf("配置校验失败: %s", strings.Join(msgs, "; "))
}
