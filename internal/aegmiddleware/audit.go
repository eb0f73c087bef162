// file: internal/aegmiddleware/audit.go
package aegmiddleware

import (
	"context"
	"log/slog"
	"time"

	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/domain"

	"github.com/google/uuid"
)

// Audit 为每一次修改数据或危险的调用写一条审计记录；只读调用直接放行。
func Audit(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if logger == nil || !call.Mutating() {
				return next(ctx, call)
			}
			start := time.Now()
			res, err := next(ctx, call)

			attrs := []any{
				"event_id", uuid.NewString(),
				"backend", call.Backend,
				"operation", string(call.Op),
				"duration_ms", time.Since(start).Milliseconds(),
				"params", aegobserve.SanitizeParams(call.Params),
			}
			switch {
			case call.Op == domain.OpExecute:
				attrs = append(attrs, "query_type", aegobserve.StatementType(call.Statement))
			case call.Op == domain.OpAdvanced:
				attrs = append(attrs, "table", call.Table, "advanced_operation", call.Operation)
			default:
				attrs = append(attrs, "table", call.Table)
			}
			if err != nil {
				logger.ErrorContext(ctx, "audit", append(attrs, "outcome", "failure", "error", err.Error())...)
				return res, err
			}
			logger.InfoContext(ctx, "audit", append(attrs, "outcome", "success", "result", resultSummary(res))...)
			return res, nil
		}
	}
}

// resultSummary 只记录计数，不记录返回的数据行
func resultSummary(res any) map[string]any {
	switch r := res.(type) {
	case *domain.InsertResult:
		return map[string]any{"inserted_count": r.InsertedCount, "success": r.Success}
	case *domain.UpdateResult:
		return map[string]any{"updated_count": r.UpdatedCount, "success": r.Success}
	case *domain.DeleteResult:
		return map[string]any{"deleted_count": r.DeletedCount, "success": r.Success}
	case *domain.ExecuteResult:
		return map[string]any{"rows_affected": r.RowsAffected, "rows_returned": len(r.Data), "success": r.Success}
	case *domain.AdvancedResult:
		return map[string]any{"operation": r.Operation, "success": r.Success}
	}
	return map[string]any{}
}
