// file: internal/aegmiddleware/metrics.go
package aegmiddleware

import (
	"context"
	"time"

	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/dberr"
)

// Metrics 位于管道最外层，被拒绝的调用同样会被计数
func Metrics(m *aegobserve.Metrics) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if m == nil {
				return next(ctx, call)
			}
			start := time.Now()
			res, err := next(ctx, call)
			outcome := "success"
			if err != nil {
				outcome = dberr.KindOf(err).String()
			}
			m.ObserveOperation(call.Backend, string(call.Op), outcome, time.Since(start))
			return res, err
		}
	}
}
