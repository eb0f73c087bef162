// Package postgrest PostgREST / Supabase REST 适配器
// internal/adapter/datasource/postgrest/client.go
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
)

// 断言 *Manager 实现 port.DataSource 接口，编译期校验
var _ port.DataSource = (*Manager)(nil)

const (
	backend  = dberr.BackendPostgREST
	restPath = "/rest/v1/"
)

// Manager 是 PostgREST 数据源适配器
type Manager struct {
	mu sync.RWMutex

	cfg       domain.DatabaseConfig
	base      string
	apiKey    string
	http      *http.Client
	connected bool
}

// New 创建 Manager；API key 来自 options.api_key。
func New(cfg domain.DatabaseConfig) (*Manager, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Host == "" {
		return nil, dberr.Query(backend, "invalid PostgREST URL")
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
	return &Manager{
		cfg:    cfg,
		base:   u.Scheme + "://" + u.Host,
		apiKey: cfg.OptionString("api_key", ""),
		http: &http.Client{
			Timeout: cfg.QueryTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				MaxIdleConnsPerHost: cfg.PoolSize,
				MaxConnsPerHost:     cfg.PoolSize + cfg.MaxOverflow,
			},
		},
	}, nil
}

// Type 实现 port.DataSource.Type 接口
func (m *Manager) Type() string { return backend }

// Connect 校验凭据并访问一次 REST 根路径
func (m *Manager) Connect(ctx context.Context) error {
	if m.apiKey == "" {
		return dberr.Connection(backend, nil, "Missing required Supabase credentials (options.api_key / SUPABASE_KEY)")
	}
	if m.IsConnected() {
		return nil
	}
	if err := m.ping(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	slog.Info("[PostgRESTAdapter] 连接成功", "url", m.base)
	return nil
}

func (m *Manager) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	_, _, err := m.do(ctx, http.MethodGet, restPath, nil, nil, "")
	if err != nil {
		if e, ok := dberr.As(err); ok && e.Kind == dberr.KindConnection {
			return e
		}
		return dberr.Connection(backend, err, "Failed to connect to PostgREST: %v", err)
	}
	return nil
}

// Close 释放空闲连接
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.http.CloseIdleConnections()
	return nil
}

// IsConnected 返回当前是否已连接
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// HealthCheck 访问 REST 根路径
func (m *Manager) HealthCheck(ctx context.Context) error {
	if !m.IsConnected() {
		return errNotConnected()
	}
	return m.ping(ctx)
}

// Capabilities 只提供基础 CRUD 与全文检索
func (m *Manager) Capabilities() domain.Capability {
	return domain.Capability{BasicCRUD: true, FullTextSearch: true}
}

func errNotConnected() error {
	return dberr.Connection(backend, nil, "Not connected to PostgREST")
}

// do 发送一次请求，返回响应头与响应体；非 2xx 状态按状态码分类。
func (m *Manager) do(ctx context.Context, method, path string, query url.Values, body any, prefer string) (http.Header, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, dberr.Query(backend, "request body is not serializable: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	target := m.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, dberr.Query(backend, "invalid request: %v", err)
	}
	req.Header.Set("apikey", m.apiKey)
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, nil, transportError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, transportError(err)
	}
	if resp.StatusCode >= 300 {
		return nil, nil, StatusError(resp.StatusCode, data)
	}
	return resp.Header, data, nil
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return dberr.Timeout(backend, err, "PostgREST request timed out: %v", err)
	}
	return dberr.Connection(backend, err, "PostgREST request failed: %v", err)
}

// StatusError 把 HTTP 状态码映射到错误分类
func StatusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var pgErr struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(body, &pgErr) == nil && pgErr.Message != "" {
		msg = pgErr.Message
		if pgErr.Code != "" {
			msg = fmt.Sprintf("%s (%s)", msg, pgErr.Code)
		}
	}
	switch {
	case status == http.StatusUnauthorized:
		return dberr.Connection(backend, nil, "authentication failed: %s", msg)
	case status == http.StatusForbidden:
		return dberr.Permission(backend, "%s", msg)
	case status == http.StatusConflict:
		return dberr.Integrity(backend, nil, "%s", msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return dberr.Timeout(backend, nil, "%s", msg)
	case status >= 400 && status < 500:
		return dberr.Query(backend, "PostgREST request failed with status %d: %s", status, msg)
	}
	return dberr.Classify(errors.New("status "+strconv.Itoa(status)+": "+msg), backend)
}
