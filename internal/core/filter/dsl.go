// Package filter file: internal/core/filter/dsl.go
//
// filter 包定义了所有后端共用的过滤 DSL：扁平的 "字段__操作符" 键值对。
// 同一个 Mapping 会被翻译成五种后端原生表示，翻译过程是纯函数，没有 I/O。
package filter

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"QueryAegis/internal/core/dberr"
)

// Mapping 是调用方提交的过滤条件，键为 "field" 或 "field__op"。
type Mapping map[string]any

// Operator 是过滤操作符
type Operator string

const (
	OpEq         Operator = "eq"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpIsNull     Operator = "isnull"
	OpNotNull    Operator = "notnull"
)

// Separator 分隔字段名与操作符
const Separator = "__"

var knownOperators = map[string]Operator{
	"eq":         OpEq,
	"gt":         OpGt,
	"lt":         OpLt,
	"gte":        OpGte,
	"lte":        OpLte,
	"contains":   OpContains,
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
	"in":         OpIn,
	"not_in":     OpNotIn,
	"isnull":     OpIsNull,
	"notnull":    OpNotNull,
}

// Operators 返回全部支持的操作符后缀（不含隐式的 eq），按字母序。
func Operators() []string {
	out := make([]string, 0, len(knownOperators))
	for k := range knownOperators {
		if k != "eq" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Condition 是解析后的一条过滤条件。
type Condition struct {
	Key   string   // 原始键
	Field string   // 字段名
	Op    Operator // 操作符；未知后缀会退化为 OpEq
	Value any
	// Fallback 为 true 表示后缀不是已知操作符，条件已退化为对 Field 的相等比较
	Fallback bool
}

// Flag 返回 isnull / notnull 的布尔值，解析阶段已保证类型正确。
func (c Condition) Flag() bool {
	b, _ := c.Value.(bool)
	return b
}

// Text 返回字符串匹配类操作符使用的文本。
func (c Condition) Text() string {
	if s, ok := c.Value.(string); ok {
		return s
	}
	return fmt.Sprint(c.Value)
}

// Items 返回 in / not_in 的元素列表，解析阶段已保证是序列。
func (c Condition) Items() []any {
	items, _ := AsSlice(c.Value)
	return items
}

// WantsNull 把 isnull / notnull 统一成 "字段应当为空" 的布尔值。
func (c Condition) WantsNull() bool {
	if c.Op == OpNotNull {
		return !c.Flag()
	}
	return c.Flag()
}

// Parse 把 Mapping 解析为按键排序的条件列表，并完成所有后端共用的值校验。
// 空 Mapping 返回空列表，表示匹配全部。
func Parse(m Mapping) ([]Condition, error) {
	if len(m) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]Condition, 0, len(keys))
	for _, key := range keys {
		c, err := parseKey(key, m[key])
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseKey(key string, value any) (Condition, error) {
	c := Condition{Key: key, Field: key, Op: OpEq, Value: value}
	if idx := strings.LastIndex(key, Separator); idx >= 0 {
		c.Field = key[:idx]
		suffix := key[idx+len(Separator):]
		if op, ok := knownOperators[suffix]; ok {
			c.Op = op
		} else {
			c.Fallback = true
		}
	}
	if c.Field == "" {
		return c, dberr.Query("", "Invalid filter key '%s': missing field name", key)
	}
	return c, validateValue(c)
}

func validateValue(c Condition) error {
	switch c.Op {
	case OpEq:
		if c.Value == nil {
			return dberr.Query("", "Filter '%s' has a null value; use '%s__isnull' instead", c.Key, c.Field)
		}
		if !IsScalar(c.Value) {
			return dberr.Query("", "Filter '%s' requires a scalar value, got %T", c.Key, c.Value)
		}
	case OpGt, OpLt, OpGte, OpLte:
		if c.Value == nil || !IsScalar(c.Value) {
			return dberr.Query("", "Operator '%s' in filter '%s' requires a comparable scalar value, got %T", c.Op, c.Key, c.Value)
		}
		if _, isBool := c.Value.(bool); isBool {
			return dberr.Query("", "Operator '%s' in filter '%s' cannot compare boolean values", c.Op, c.Key)
		}
	case OpContains, OpStartsWith, OpEndsWith:
		if c.Value == nil || !IsScalar(c.Value) {
			return dberr.Query("", "Operator '%s' in filter '%s' requires a string value, got %T", c.Op, c.Key, c.Value)
		}
	case OpIn, OpNotIn:
		items, ok := AsSlice(c.Value)
		if !ok {
			return dberr.Query("", "Operator '%s' in filter '%s' requires a list value, got %T", c.Op, c.Key, c.Value)
		}
		for _, it := range items {
			if it != nil && !IsScalar(it) {
				return dberr.Query("", "Operator '%s' in filter '%s' only accepts scalar list items, got %T", c.Op, c.Key, it)
			}
		}
	case OpIsNull, OpNotNull:
		if _, ok := c.Value.(bool); !ok {
			return dberr.Query("", "Operator '%s' in filter '%s' requires a boolean value, got %T", c.Op, c.Key, c.Value)
		}
	}
	return nil
}

// AsSlice 把任意切片/数组转换成 []any；[]byte 视为标量。
func AsSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, false
	case []any:
		return s, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsScalar 判断 v 是否是字符串、数字、布尔或时间值。
func IsScalar(v any) bool {
	switch v.(type) {
	case string, bool, json.Number, time.Time:
		return true
	case nil:
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
		return true
	}
	return false
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier 判断 name 是否可以直接出现在 SQL 文本中。
func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}
