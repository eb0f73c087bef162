// Package filter file: internal/core/filter/translator.go
package filter

import "net/url"

// Translator 把同一份 Mapping 翻译成某个后端的原生查询表示 Q。
// 实现必须是纯函数：同样的输入得到同样的输出，不读写任何外部状态。
type Translator[Q any] interface {
	Translate(m Mapping) (Q, error)
}

var (
	_ Translator[SQLCondition] = SQLTranslator{}
	_ Translator[DocQuery]     = DocumentTranslator{}
	_ Translator[Predicate]    = PredicateTranslator{}
	_ Translator[SearchQuery]  = SearchTranslator{}
	_ Translator[url.Values]   = RESTTranslator{}
)
