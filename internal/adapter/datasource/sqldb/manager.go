// Package sqldb 关系型数据库适配器，覆盖 SQLite / PostgreSQL / MySQL
// internal/adapter/datasource/sqldb/manager.go
package sqldb

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"

	"github.com/hashicorp/golang-lru/v2/expirable"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// 断言 *Manager 实现 port.DataSource 接口，编译期校验
var _ port.DataSource = (*Manager)(nil)

const (
	schemaCacheSize = 128
	schemaCacheTTL  = 5 * time.Minute
)

// Manager 是关系型数据源适配器的核心结构体。
type Manager struct {
	mu sync.RWMutex

	cfg     domain.DatabaseConfig
	dialect dialect
	dsn     string
	db      *sql.DB

	// idColumn 是 PostgreSQL 插入时 RETURNING 的主键列
	idColumn string

	// columns 缓存表结构查询结果，DDL 执行后清空
	columns *expirable.LRU[string, []ColumnInfo]
}

// New 根据配置创建 Manager，不做任何 I/O，连接在 Connect 时建立。
func New(cfg domain.DatabaseConfig) (*Manager, error) {
	d, dsn, err := resolveDSN(cfg.URL, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	m := newManager(cfg, d)
	m.dsn = dsn
	return m, nil
}

// NewWithDB 用已打开的连接池创建 Manager，backend 为 dberr 的后端标签。
func NewWithDB(db *sql.DB, backend string, cfg domain.DatabaseConfig) *Manager {
	d := dialectSQLite
	switch dberr.NormalizeBackend(backend) {
	case dberr.BackendPostgreSQL:
		d = dialectPostgres
	case dberr.BackendMySQL:
		d = dialectMySQL
	}
	m := newManager(cfg, d)
	m.db = db
	return m
}

func newManager(cfg domain.DatabaseConfig, d dialect) *Manager {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = domain.DefaultQueryTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = domain.DefaultConnectTimeout
	}
	if cfg.MaxQueryResults <= 0 {
		cfg.MaxQueryResults = domain.DefaultMaxQueryResults
	}
	return &Manager{
		cfg:      cfg,
		dialect:  d,
		idColumn: cfg.OptionString("id_column", "id"),
		columns:  expirable.NewLRU[string, []ColumnInfo](schemaCacheSize, nil, schemaCacheTTL),
	}
}

// Type 实现 port.DataSource.Type 接口，返回适配器类型。
func (m *Manager) Type() string { return m.dialect.backend }

// Connect 打开连接池并 Ping 一次；已连接时直接返回。
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	db, err := sql.Open(m.dialect.driver, m.dsn)
	if err != nil {
		return dberr.Connection(m.dialect.backend, err, "failed to open database: %v", err)
	}
	if m.dialect == dialectSQLite && strings.Contains(m.dsn, ":memory:") {
		// 每个连接都是一个独立的内存库，只能保留一个
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(m.cfg.PoolSize + m.cfg.MaxOverflow)
		db.SetMaxIdleConns(m.cfg.PoolSize)
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return dberr.Connection(m.dialect.backend, err, "failed to connect to %s: %v", m.cfg.RedactedURL(), err)
	}
	m.db = db
	slog.Info("[SQLAdapter] 数据库连接成功", "backend", m.dialect.backend, "url", m.cfg.RedactedURL())
	return nil
}

// Close 关闭连接池
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	m.columns.Purge()
	if err != nil {
		slog.Warn("[SQLAdapter] 关闭连接池失败", "error", err)
		return dberr.Classify(err, m.dialect.backend)
	}
	slog.Info("[SQLAdapter] 数据库连接已关闭", "backend", m.dialect.backend)
	return nil
}

// IsConnected 返回当前是否持有连接池
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db != nil
}

// HealthCheck 检查数据库的健康状况
func (m *Manager) HealthCheck(ctx context.Context) error {
	db, err := m.conn()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return dberr.Connection(m.dialect.backend, err, "health check failed: %v", err)
	}
	return nil
}

// Capabilities 实现 port.DataSource；全文检索和地理空间只在 PostgreSQL 上开启。
func (m *Manager) Capabilities() domain.Capability {
	pg := m.dialect == dialectPostgres
	return domain.Capability{
		BasicCRUD:      true,
		Transactions:   true,
		Joins:          true,
		Aggregation:    true,
		FullTextSearch: pg,
		Geospatial:     pg,
	}
}

func (m *Manager) conn() (*sql.DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.db == nil {
		return nil, dberr.Connection(m.dialect.backend, nil, "database is not connected")
	}
	return m.db, nil
}

// withTimeout 为单次后端调用加上 query_timeout
func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}

func (m *Manager) classify(err error) error {
	if err == nil {
		return nil
	}
	return dberr.Classify(err, m.dialect.backend)
}
