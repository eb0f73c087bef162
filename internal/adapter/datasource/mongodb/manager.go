// Package mongodb 文档数据库适配器
// internal/adapter/datasource/mongodb/manager.go
package mongodb

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// 断言 *Manager 实现 port.DataSource 接口，编译期校验
var _ port.DataSource = (*Manager)(nil)

const backend = dberr.BackendMongoDB

// Manager 是 MongoDB 数据源适配器
type Manager struct {
	mu sync.RWMutex

	cfg    domain.DatabaseConfig
	dbName string
	client *mongo.Client
	db     *mongo.Database
}

// New 根据配置创建 Manager，连接在 Connect 时建立。
func New(cfg domain.DatabaseConfig) *Manager {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = domain.DefaultQueryTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = domain.DefaultConnectTimeout
	}
	if cfg.MaxQueryResults <= 0 {
		cfg.MaxQueryResults = domain.DefaultMaxQueryResults
	}
	return &Manager{cfg: cfg, dbName: DatabaseName(cfg.URL)}
}

// DatabaseName 从连接串路径中取数据库名，缺省为 test。
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "test"
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return "test"
	}
	return name
}

// Type 实现 port.DataSource.Type 接口
func (m *Manager) Type() string { return backend }

// Connect 建立客户端并对 primary 做一次 ping
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}

	opts := options.Client().
		ApplyURI(m.cfg.URL).
		SetServerSelectionTimeout(m.cfg.ConnectTimeout).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetTimeout(m.cfg.QueryTimeout).
		SetMaxPoolSize(uint64(m.cfg.PoolSize + m.cfg.MaxOverflow))

	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return connectionError(err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return connectionError(err)
	}
	m.client = client
	m.db = client.Database(m.dbName)
	slog.Info("[MongoAdapter] 数据库连接成功", "database", m.dbName, "url", m.cfg.RedactedURL())
	return nil
}

// connectionError 连接阶段的错误除超时外一律视为 ConnectionError
func connectionError(err error) error {
	classified := dberr.Classify(err, backend)
	if classified.Kind == dberr.KindConnection || classified.Kind == dberr.KindTimeout {
		return classified
	}
	return dberr.Connection(backend, err, "Failed to connect to MongoDB: %v", err)
}

// Close 断开客户端
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client, m.db = nil, nil
	if err != nil {
		slog.Warn("[MongoAdapter] 断开连接失败", "error", err)
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

// HealthCheck ping primary
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return errNotConnected()
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return dberr.Connection(backend, err, "health check failed: %v", err)
	}
	return nil
}

// Capabilities MongoDB 不支持 join，其余能力均具备
func (m *Manager) Capabilities() domain.Capability {
	return domain.Capability{
		BasicCRUD:      true,
		Transactions:   true,
		Aggregation:    true,
		FullTextSearch: true,
		Geospatial:     true,
	}
}

func errNotConnected() error {
	return dberr.Connection(backend, nil, "Not connected to MongoDB")
}

func (m *Manager) collection(table string) (*mongo.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return nil, errNotConnected()
	}
	return m.db.Collection(table), nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}
