// Package domain file: internal/core/domain/capability.go
package domain

// 能力名称
const (
	FeatureBasicCRUD      = "basic_crud"
	FeatureTransactions   = "transactions"
	FeatureJoins          = "joins"
	FeatureAggregation    = "aggregation"
	FeatureFullTextSearch = "full_text_search"
	FeatureGeospatial     = "geospatial"
)

// Capability 描述一个后端支持的能力集合
type Capability struct {
	BasicCRUD      bool `json:"basic_crud" yaml:"basic_crud"`
	Transactions   bool `json:"transactions" yaml:"transactions"`
	Joins          bool `json:"joins" yaml:"joins"`
	Aggregation    bool `json:"aggregation" yaml:"aggregation"`
	FullTextSearch bool `json:"full_text_search" yaml:"full_text_search"`
	Geospatial     bool `json:"geospatial" yaml:"geospatial"`
}

// Supports 按名称判断是否支持某项能力，未知名称返回 false
func (c Capability) Supports(feature string) bool {
	switch feature {
	case FeatureBasicCRUD:
		return c.BasicCRUD
	case FeatureTransactions:
		return c.Transactions
	case FeatureJoins:
		return c.Joins
	case FeatureAggregation:
		return c.Aggregation
	case FeatureFullTextSearch:
		return c.FullTextSearch
	case FeatureGeospatial:
		return c.Geospatial
	}
	return false
}
