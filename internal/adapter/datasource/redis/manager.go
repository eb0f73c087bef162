// Package redis 键值存储适配器。
//
// 记录以 table:id 为键存储，table:_index 集合保存该表的全部记录键，
// table:_id_counter 通过 INCR 分配自增 id。查询时取回全部记录后在进程内过滤。
package redis

import (
	"context"
	"log/slog"
	"sync"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"

	goredis "github.com/redis/go-redis/v9"
)

// 断言 *Manager 实现 port.DataSource 接口，编译期校验
var _ port.DataSource = (*Manager)(nil)

const (
	backend = dberr.BackendRedis

	// mgetBatch 单次 MGET 的键数量
	mgetBatch = 500
)

// Manager 是 Redis 数据源适配器
type Manager struct {
	mu sync.RWMutex

	cfg    domain.DatabaseConfig
	codec  Codec
	client *goredis.Client
}

// New 根据配置创建 Manager；options.codec 可选 json（默认）或 msgpack。
func New(cfg domain.DatabaseConfig) (*Manager, error) {
	codec, err := NewCodec(cfg.OptionString("codec", "json"))
	if err != nil {
		return nil, dberr.Query(backend, "%v", err)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = domain.DefaultQueryTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = domain.DefaultConnectTimeout
	}
	if cfg.MaxQueryResults <= 0 {
		cfg.MaxQueryResults = domain.DefaultMaxQueryResults
	}
	return &Manager{cfg: cfg, codec: codec}, nil
}

// Type 实现 port.DataSource.Type 接口
func (m *Manager) Type() string { return backend }

// Connect 解析连接串并 PING 一次
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}
	opt, err := goredis.ParseURL(m.cfg.URL)
	if err != nil {
		return dberr.Connection(backend, err, "invalid Redis URL: %v", err)
	}
	opt.DialTimeout = m.cfg.ConnectTimeout
	opt.ReadTimeout = m.cfg.QueryTimeout
	opt.WriteTimeout = m.cfg.QueryTimeout
	if m.cfg.PoolSize > 0 {
		opt.PoolSize = m.cfg.PoolSize + m.cfg.MaxOverflow
	}

	client := goredis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return dberr.Connection(backend, err, "Failed to connect to Redis: %v", err)
	}
	m.client = client
	slog.Info("[RedisAdapter] 连接成功", "url", m.cfg.RedactedURL(), "codec", m.codec.Name())
	return nil
}

// Close 关闭客户端
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	if err != nil {
		return dberr.Classify(err, backend)
	}
	return nil
}

// IsConnected 返回当前是否已连接
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// HealthCheck PING
func (m *Manager) HealthCheck(ctx context.Context) error {
	client, err := m.conn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return dberr.Connection(backend, err, "health check failed: %v", err)
	}
	return nil
}

// Capabilities 只支持基础 CRUD
func (m *Manager) Capabilities() domain.Capability {
	return domain.Capability{BasicCRUD: true}
}

// Execute Redis 没有查询语言
func (m *Manager) Execute(context.Context, string, map[string]any) (*domain.ExecuteResult, error) {
	return nil, dberr.Query(backend, "Redis does not support raw queries. Use query() instead.")
}

// Advanced Redis 不提供高级操作
func (m *Manager) Advanced(_ context.Context, operation string, _ map[string]any) (*domain.AdvancedResult, error) {
	return nil, dberr.Query(backend, "Redis does not support advanced operation '%s'", operation)
}

func (m *Manager) conn() (*goredis.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, dberr.Connection(backend, nil, "Not connected to Redis")
	}
	return m.client, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}
