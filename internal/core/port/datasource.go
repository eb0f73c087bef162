// Package port file: internal/core/port/datasource.go
package port

import (
	"context"

	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
)

// QueryRequest 定义一次查询请求；Limit 为 0 表示不限制，负数非法。
type QueryRequest struct {
	Table   string
	Filters filter.Mapping
	Limit   int
}

// DataSource 是每个后端适配器都要实现的统一能力契约。
//
// 所有方法返回的错误都已经过 dberr 分类，调用方只会看到 *dberr.Error。
// 后端不支持的操作（例如文档库上的 Execute）返回 QueryError。
type DataSource interface {
	// Connect 建立连接，重复调用是安全的
	Connect(ctx context.Context) error

	// Close 断开连接并释放资源
	Close() error

	// IsConnected 返回当前是否已连接
	IsConnected() bool

	// Insert 插入一条或多条记录
	Insert(ctx context.Context, table string, rows []map[string]any) (*domain.InsertResult, error)

	// Update 按过滤条件更新记录，过滤条件不能为空
	Update(ctx context.Context, table string, data map[string]any, filters filter.Mapping) (*domain.UpdateResult, error)

	// Delete 按过滤条件删除记录，过滤条件不能为空
	Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error)

	// Query 查询记录
	Query(ctx context.Context, req QueryRequest) (*domain.QueryResult, error)

	// Execute 执行原始语句，执行前必须经过 SQL 安全检查
	Execute(ctx context.Context, statement string, params map[string]any) (*domain.ExecuteResult, error)

	// Advanced 执行后端特有的高级操作（事务、聚合等）
	Advanced(ctx context.Context, operation string, params map[string]any) (*domain.AdvancedResult, error)

	// Capabilities 返回后端能力
	Capabilities() domain.Capability

	// HealthCheck 检查后端的健康状况
	HealthCheck(ctx context.Context) error

	// Type 返回适配器的后端类型标识符，与 dberr 的 backend 标签一致
	Type() string
}
