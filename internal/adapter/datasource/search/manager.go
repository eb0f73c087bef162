// Package search 倒排索引 (OpenSearch) 适配器，表名即索引名。
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// 断言 *Manager 实现 port.DataSource 接口，编译期校验
var _ port.DataSource = (*Manager)(nil)

const backend = dberr.BackendOpenSearch

// Manager 是 OpenSearch 数据源适配器
type Manager struct {
	mu sync.RWMutex

	cfg     domain.DatabaseConfig
	osCfg   opensearch.Config
	client  *opensearch.Client
	allowed map[string]bool // 空表示不限制
}

// New 解析连接串中的地址与认证信息，不做任何 I/O。
// options.allowed_indices 限定 aggregation 可访问的索引。
func New(cfg domain.DatabaseConfig) (*Manager, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, dberr.Query(backend, "invalid OpenSearch URL")
	}
	osCfg := opensearch.Config{Addresses: []string{u.Scheme + "://" + u.Host}}
	if u.User != nil {
		osCfg.Username = u.User.Username()
		osCfg.Password, _ = u.User.Password()
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

	m := &Manager{cfg: cfg, osCfg: osCfg, allowed: map[string]bool{}}
	for _, idx := range cfg.OptionStrings("allowed_indices") {
		if idx == "*" {
			m.allowed = map[string]bool{}
			break
		}
		m.allowed[idx] = true
	}
	return m, nil
}

// Type 实现 port.DataSource.Type 接口
func (m *Manager) Type() string { return backend }

// Connect 创建客户端并 ping 集群
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}
	client, err := opensearch.NewClient(m.osCfg)
	if err != nil {
		return dberr.Connection(backend, err, "failed to create OpenSearch client: %v", err)
	}
	if err := ping(ctx, client, m.cfg.ConnectTimeout); err != nil {
		return err
	}
	m.client = client
	slog.Info("[OpenSearchAdapter] 连接成功", "url", m.cfg.RedactedURL())
	return nil
}

func ping(ctx context.Context, client *opensearch.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := opensearchapi.PingRequest{}.Do(ctx, client)
	if err != nil {
		return dberr.Connection(backend, err, "Failed to connect to OpenSearch: %v", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return dberr.Connection(backend, nil, "OpenSearch ping failed with status %d", res.StatusCode)
	}
	return nil
}

// Close 释放客户端；HTTP 连接由传输层自行回收
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = nil
	return nil
}

// IsConnected 返回当前是否已连接
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// HealthCheck ping 集群
func (m *Manager) HealthCheck(ctx context.Context) error {
	client, err := m.conn()
	if err != nil {
		return err
	}
	return ping(ctx, client, m.cfg.ConnectTimeout)
}

// Capabilities 支持全文检索与聚合，不支持事务和 join
func (m *Manager) Capabilities() domain.Capability {
	return domain.Capability{BasicCRUD: true, Aggregation: true, FullTextSearch: true}
}

// Execute OpenSearch 没有 SQL 入口
func (m *Manager) Execute(context.Context, string, map[string]any) (*domain.ExecuteResult, error) {
	return nil, dberr.Query(backend, "OpenSearch does not support raw SQL queries. Use query() instead.")
}

func (m *Manager) conn() (*opensearch.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, dberr.Connection(backend, nil, "Not connected to OpenSearch")
	}
	return m.client, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.QueryTimeout)
}

// decodeResponse 读取响应体；错误响应转换为分类后的错误
func decodeResponse(res *opensearchapi.Response, err error, out any) error {
	if err != nil {
		return dberr.Classify(err, backend)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return dberr.Classify(err, backend)
	}
	if res.IsError() {
		return responseError(res.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return dberr.Database(backend, err, "invalid OpenSearch response: %v", err)
	}
	return nil
}

type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func responseError(status int, body []byte) error {
	var eb errorBody
	msg := string(body)
	if json.Unmarshal(body, &eb) == nil && eb.Error.Type != "" {
		msg = eb.Error.Type + ": " + eb.Error.Reason
	}
	switch status {
	case 401:
		return dberr.Connection(backend, nil, "authentication failed: %s", msg)
	case 403:
		return dberr.Permission(backend, "%s", msg)
	case 409:
		return dberr.Integrity(backend, nil, "%s", msg)
	}
	classified := dberr.Classify(fmt.Errorf("status %d: %s", status, msg), backend)
	if classified.Kind == dberr.KindDatabase && status >= 400 && status < 500 {
		return dberr.Query(backend, "status %d: %s", status, msg)
	}
	return classified
}
