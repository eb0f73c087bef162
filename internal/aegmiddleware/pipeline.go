// Package aegmiddleware 提供包裹每一次数据源操作的中间件管道。
//
// 每个操作被描述为一个 Call，依次经过 metrics → permission → rate limit → audit，
// 最后由调用方提供的 Handler 真正访问后端。任何一层返回错误都会短路后续环节。
package aegmiddleware

import (
	"context"

	"QueryAegis/internal/core/domain"
)

// Call 描述一次数据源操作，由 service 构造后在管道中只读传递。
type Call struct {
	Backend string
	Op      domain.Operation
	Table   string
	// Operation 是 advanced_query 的子操作名，例如 transaction
	Operation string
	// Statement 仅 execute 使用；审计只记录语句类型
	Statement string
	// Params 是调用参数（data / filters / params），审计时脱敏
	Params map[string]any
}

// Mutating 判断调用是否会修改数据或属于危险操作
func (c *Call) Mutating() bool {
	switch c.Op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete, domain.OpExecute, domain.OpAdvanced:
		return true
	}
	return false
}

// Handler 处理一次调用
type Handler func(ctx context.Context, call *Call) (any, error)

// Middleware 包裹 Handler
type Middleware func(next Handler) Handler

// Chain 把中间件按给定顺序套在 h 外面，mws[0] 在最外层。
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
