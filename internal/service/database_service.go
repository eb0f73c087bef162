// Package service file: internal/service/database_service.go
//
// DatabaseService 是调用方使用的唯一入口：每个操作都先经过中间件管道，
// 再交给具体的数据源适配器。
package service

import (
	"context"
	"fmt"
	"log/slog"

	"QueryAegis/internal/aegmiddleware"
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"
)

// Options 组装管道所需的依赖；为 nil 的部分对应的中间件不启用，Policy 除外。
type Options struct {
	Policy      port.PolicyProvider
	RateLimit   *domain.RateLimitConfig
	AuditLogger *slog.Logger
	Metrics     *aegobserve.Metrics
}

// DatabaseService 带权限、限流、审计与指标的数据源门面
type DatabaseService struct {
	ds  port.DataSource
	mws []aegmiddleware.Middleware
}

// NewDatabaseService 按 metrics → permission → rate limit → audit 的顺序组装管道
func NewDatabaseService(ds port.DataSource, opts Options) (*DatabaseService, error) {
	if ds == nil {
		return nil, fmt.Errorf("DatabaseService 初始化失败: 数据源不能为 nil")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("DatabaseService 初始化失败: 缺少权限配置")
	}
	mws := []aegmiddleware.Middleware{
		aegmiddleware.Metrics(opts.Metrics),
		aegmiddleware.Permission(aegmiddleware.NewGate(opts.Policy)),
	}
	if opts.RateLimit != nil {
		mws = append(mws, aegmiddleware.RateLimit(aegmiddleware.NewRateLimiter(*opts.RateLimit)))
	}
	mws = append(mws, aegmiddleware.Audit(opts.AuditLogger))
	return &DatabaseService{ds: ds, mws: mws}, nil
}

// Backend 返回底层适配器的后端标签
func (s *DatabaseService) Backend() string { return s.ds.Type() }

// Connect 连接底层数据源
func (s *DatabaseService) Connect(ctx context.Context) error {
	return s.classify(s.ds.Connect(ctx))
}

// Close 断开底层数据源
func (s *DatabaseService) Close() error { return s.classify(s.ds.Close()) }

// HealthCheck 检查底层数据源
func (s *DatabaseService) HealthCheck(ctx context.Context) error {
	return s.classify(s.ds.HealthCheck(ctx))
}

// Insert 插入记录，需要 enable_insert
func (s *DatabaseService) Insert(ctx context.Context, table string, rows []map[string]any) (*domain.InsertResult, error) {
	call := s.newCall(domain.OpInsert, table, map[string]any{"rows": rows})
	return run(ctx, s, call, func(ctx context.Context) (*domain.InsertResult, error) {
		return s.ds.Insert(ctx, table, rows)
	})
}

// Update 按条件更新记录，需要 enable_update
func (s *DatabaseService) Update(ctx context.Context, table string, data map[string]any, filters filter.Mapping) (*domain.UpdateResult, error) {
	call := s.newCall(domain.OpUpdate, table, map[string]any{"data": data, "filters": map[string]any(filters)})
	return run(ctx, s, call, func(ctx context.Context) (*domain.UpdateResult, error) {
		return s.ds.Update(ctx, table, data, filters)
	})
}

// Delete 按条件删除记录，属于危险操作
func (s *DatabaseService) Delete(ctx context.Context, table string, filters filter.Mapping) (*domain.DeleteResult, error) {
	call := s.newCall(domain.OpDelete, table, map[string]any{"filters": map[string]any(filters)})
	return run(ctx, s, call, func(ctx context.Context) (*domain.DeleteResult, error) {
		return s.ds.Delete(ctx, table, filters)
	})
}

// Query 查询记录
func (s *DatabaseService) Query(ctx context.Context, req port.QueryRequest) (*domain.QueryResult, error) {
	call := s.newCall(domain.OpQuery, req.Table, map[string]any{"filters": map[string]any(req.Filters), "limit": req.Limit})
	return run(ctx, s, call, func(ctx context.Context) (*domain.QueryResult, error) {
		return s.ds.Query(ctx, req)
	})
}

// Execute 执行原始语句，属于危险操作；安全检查由适配器完成
func (s *DatabaseService) Execute(ctx context.Context, statement string, params map[string]any) (*domain.ExecuteResult, error) {
	call := s.newCall(domain.OpExecute, "", map[string]any{"params": params})
	call.Statement = statement
	return run(ctx, s, call, func(ctx context.Context) (*domain.ExecuteResult, error) {
		return s.ds.Execute(ctx, statement, params)
	})
}

// Advanced 执行后端特有操作；transaction 属于危险操作
func (s *DatabaseService) Advanced(ctx context.Context, operation string, params map[string]any) (*domain.AdvancedResult, error) {
	call := s.newCall(domain.OpAdvanced, advancedTable(params), params)
	call.Operation = operation
	return run(ctx, s, call, func(ctx context.Context) (*domain.AdvancedResult, error) {
		return s.ds.Advanced(ctx, operation, params)
	})
}

// Capabilities 返回后端能力，始终允许
func (s *DatabaseService) Capabilities(ctx context.Context) (domain.Capability, error) {
	call := s.newCall(domain.OpCapabilities, "", nil)
	caps, err := run(ctx, s, call, func(context.Context) (*domain.Capability, error) {
		c := s.ds.Capabilities()
		return &c, nil
	})
	if err != nil {
		return domain.Capability{}, err
	}
	return *caps, nil
}

func (s *DatabaseService) newCall(op domain.Operation, table string, params map[string]any) *aegmiddleware.Call {
	return &aegmiddleware.Call{Backend: s.ds.Type(), Op: op, Table: table, Params: params}
}

// advancedTable 从 advanced 参数中取出集合或索引名，供表级规则与审计使用
func advancedTable(params map[string]any) string {
	for _, key := range []string{"table", "collection", "index"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func (s *DatabaseService) classify(err error) error {
	if err == nil {
		return nil
	}
	return dberr.Classify(err, s.ds.Type())
}

// run 让一次调用经过管道；适配器漏掉的原生错误在这里统一分类。
func run[T any](ctx context.Context, s *DatabaseService, call *aegmiddleware.Call, do func(context.Context) (*T, error)) (*T, error) {
	terminal := func(ctx context.Context, _ *aegmiddleware.Call) (any, error) {
		res, err := do(ctx)
		if err != nil {
			return nil, s.classify(err)
		}
		return res, nil
	}
	res, err := aegmiddleware.Chain(terminal, s.mws...)(ctx, call)
	if err != nil {
		return nil, err
	}
	out, _ := res.(*T)
	return out, nil
}
