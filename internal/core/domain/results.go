// Package domain file: internal/core/domain/results.go
//
// 适配器在一次后端调用完成后构造这些结果对象，之后不再修改。
package domain

// InsertResult 插入结果
type InsertResult struct {
	InsertedCount int   `json:"inserted_count" yaml:"inserted_count"`
	InsertedIDs   []any `json:"inserted_ids" yaml:"inserted_ids"`
	Success       bool  `json:"success" yaml:"success"`
}

// UpdateResult 更新结果
type UpdateResult struct {
	UpdatedCount int64 `json:"updated_count" yaml:"updated_count"`
	Success      bool  `json:"success" yaml:"success"`
}

// DeleteResult 删除结果
type DeleteResult struct {
	DeletedCount int64 `json:"deleted_count" yaml:"deleted_count"`
	Success      bool  `json:"success" yaml:"success"`
}

// QueryResult 查询结果；Count 是满足条件的总行数，而不是本页行数。
type QueryResult struct {
	Data    []map[string]any `json:"data" yaml:"data"`
	Count   int64            `json:"count" yaml:"count"`
	HasMore bool             `json:"has_more" yaml:"has_more"`
	Success bool             `json:"success" yaml:"success"`
}

// NewQueryResult 按统一规则计算 HasMore：
// 调用方给了 limit、本页行数恰好等于 limit、且总数大于 limit。
// limit <= 0 表示没有限制。
func NewQueryResult(rows []map[string]any, total int64, limit int) *QueryResult {
	if rows == nil {
		rows = []map[string]any{}
	}
	return &QueryResult{
		Data:    rows,
		Count:   total,
		HasMore: limit > 0 && len(rows) == limit && total > int64(limit),
		Success: true,
	}
}

// ExecuteResult 原始语句执行结果；不返回行的语句 Data 为 nil。
type ExecuteResult struct {
	RowsAffected int64            `json:"rows_affected" yaml:"rows_affected"`
	Data         []map[string]any `json:"data" yaml:"data"`
	Success      bool             `json:"success" yaml:"success"`
}

// AdvancedResult 后端特有的高级操作结果
type AdvancedResult struct {
	Operation string `json:"operation" yaml:"operation"`
	Data      any    `json:"data" yaml:"data"`
	Success   bool   `json:"success" yaml:"success"`
}
