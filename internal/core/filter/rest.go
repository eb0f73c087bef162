// Package filter file: internal/core/filter/rest.go
package filter

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"QueryAegis/internal/core/dberr"
)

// ReservedRESTParams 是 PostgREST 自身使用的查询参数，不能作为过滤字段。
var ReservedRESTParams = map[string]bool{
	"select": true, "order": true, "limit": true, "offset": true,
	"or": true, "and": true, "not": true, "on_conflict": true, "columns": true,
}

// RESTTranslator PostgREST / Supabase 翻译器，产出 "op.value" 形式的查询参数。
// 同一字段上的多个条件以重复参数表示，PostgREST 按 AND 处理。
type RESTTranslator struct{}

// Translate 实现 Translator 接口
func (RESTTranslator) Translate(m Mapping) (url.Values, error) {
	out := url.Values{}
	conds, err := Parse(m)
	if err != nil {
		return out, err
	}
	for _, c := range conds {
		if !ValidIdentifier(c.Field) || ReservedRESTParams[strings.ToLower(c.Field)] {
			return url.Values{}, dberr.Query("", "Invalid field name '%s' in filter '%s'", c.Field, c.Key)
		}
		var v string
		switch c.Op {
		case OpGt, OpLt, OpGte, OpLte:
			v = string(c.Op) + "." + restScalar(c.Value)
		case OpContains:
			v = "like.*" + c.Text() + "*"
		case OpStartsWith:
			v = "like." + c.Text() + "*"
		case OpEndsWith:
			v = "like.*" + c.Text()
		case OpIn:
			v = "in." + restList(c.Items())
		case OpNotIn:
			v = "not.in." + restList(c.Items())
		case OpIsNull, OpNotNull:
			if c.WantsNull() {
				v = "is.null"
			} else {
				v = "not.is.null"
			}
		default:
			v = "eq." + restScalar(c.Value)
		}
		out.Add(c.Field, v)
	}
	return out, nil
}

func restScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// restList 生成 (a,b,c)；含保留字符的元素用双引号包裹。
func restList(items []any) string {
	parts := make([]string, len(items))
	for i, it := range items {
		s := restScalar(it)
		if _, isStr := it.(string); isStr && strings.ContainsAny(s, `,()."\: `) {
			s = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, ",") + ")"
}
