// Package factory 根据连接串选择后端适配器
// internal/adapter/factory/factory.go
package factory

import (
	"log/slog"
	"net/url"
	"strings"

	"QueryAegis/internal/adapter/datasource/mongodb"
	"QueryAegis/internal/adapter/datasource/postgrest"
	"QueryAegis/internal/adapter/datasource/redis"
	"QueryAegis/internal/adapter/datasource/search"
	"QueryAegis/internal/adapter/datasource/sqldb"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
)

// searchPorts 是 OpenSearch / Elasticsearch 的常用端口
var searchPorts = map[string]bool{"9200": true, "9201": true}

// AdapterType 返回 cfg 会被路由到的后端标签，不做任何 I/O。
// 显式的 cfg.Backend 优先于连接串推断。
func AdapterType(cfg domain.DatabaseConfig) (string, error) {
	switch dberr.NormalizeBackend(cfg.Backend) {
	case dberr.BackendOpenSearch:
		return dberr.BackendOpenSearch, nil
	case dberr.BackendPostgREST:
		return dberr.BackendPostgREST, nil
	case dberr.BackendMongoDB:
		return dberr.BackendMongoDB, nil
	case dberr.BackendRedis:
		return dberr.BackendRedis, nil
	}

	raw := strings.TrimSpace(cfg.URL)
	switch sqldb.BaseScheme(raw) {
	case "mongodb":
		return dberr.BackendMongoDB, nil
	case "redis", "rediss":
		return dberr.BackendRedis, nil
	case "http", "https":
		u, err := url.Parse(raw)
		if err != nil {
			break
		}
		host := strings.ToLower(u.Hostname())
		if strings.HasSuffix(host, "supabase.co") {
			return dberr.BackendPostgREST, nil
		}
		if searchPorts[u.Port()] {
			return dberr.BackendOpenSearch, nil
		}
	}
	if name := sqldb.BackendName(raw); name != "" {
		return name, nil
	}
	return "", dberr.Query("", "unsupported database url: %s", cfg.RedactedURL())
}

// New 构造适配器，不建立连接；调用方负责 Connect。
func New(cfg domain.DatabaseConfig) (port.DataSource, error) {
	kind, err := AdapterType(cfg)
	if err != nil {
		return nil, err
	}
	var (
		ds    port.DataSource
		build error
	)
	switch kind {
	case dberr.BackendMongoDB:
		ds = mongodb.New(cfg)
	case dberr.BackendRedis:
		ds, build = asDataSource(redis.New(cfg))
	case dberr.BackendOpenSearch:
		ds, build = asDataSource(search.New(cfg))
	case dberr.BackendPostgREST:
		ds, build = asDataSource(postgrest.New(cfg))
	default:
		ds, build = asDataSource(sqldb.New(cfg))
	}
	if build != nil {
		return nil, build
	}
	slog.Info("[Factory] 适配器已创建", "backend", ds.Type(), "url", cfg.RedactedURL())
	return ds, nil
}

// asDataSource 避免把带类型的 nil 指针装进接口
func asDataSource[T port.DataSource](ds T, err error) (port.DataSource, error) {
	if err != nil {
		return nil, err
	}
	return ds, nil
}
