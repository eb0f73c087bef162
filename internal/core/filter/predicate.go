// Package filter file: internal/core/filter/predicate.go
package filter

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"time"
)

// Predicate 是键值存储的"查询"：对一条已解码记录求值的闭包。
//
// 与其它翻译器不同，它的产物是可执行代码而不是数据结构，
// 因为键值存储没有原生查询语言，只能逐条取回后在进程内过滤。
// 闭包只捕获解析后的条件，无状态，可以在多条记录、多个 goroutine 间复用。
type Predicate func(record map[string]any) bool

// PredicateTranslator 键值存储 (Redis) 翻译器。
type PredicateTranslator struct{}

// Translate 实现 Translator 接口
func (PredicateTranslator) Translate(m Mapping) (Predicate, error) {
	conds, err := Parse(m)
	if err != nil {
		return nil, err
	}
	checks := make([]func(map[string]any) bool, 0, len(conds))
	for _, c := range conds {
		checks = append(checks, predicateCheck(c))
	}
	return func(record map[string]any) bool {
		for _, check := range checks {
			if !check(record) {
				return false
			}
		}
		return true
	}, nil
}

func predicateCheck(c Condition) func(map[string]any) bool {
	field := c.Field
	switch c.Op {
	case OpGt, OpLt, OpGte, OpLte:
		op := c.Op
		want := c.Value
		return func(r map[string]any) bool {
			v, ok := r[field]
			if !ok || v == nil {
				return false
			}
			cmp, comparable := compareValues(v, want)
			if !comparable {
				return false
			}
			switch op {
			case OpGt:
				return cmp > 0
			case OpLt:
				return cmp < 0
			case OpGte:
				return cmp >= 0
			default:
				return cmp <= 0
			}
		}
	case OpContains, OpStartsWith, OpEndsWith:
		op := c.Op
		text := c.Text()
		return func(r map[string]any) bool {
			v, ok := r[field]
			if !ok || v == nil {
				return false
			}
			s := stringify(v)
			switch op {
			case OpContains:
				return strings.Contains(s, text)
			case OpStartsWith:
				return strings.HasPrefix(s, text)
			default:
				return strings.HasSuffix(s, text)
			}
		}
	case OpIn, OpNotIn:
		items := c.Items()
		negate := c.Op == OpNotIn
		return func(r map[string]any) bool {
			v := r[field]
			member := false
			for _, it := range items {
				if ValuesEqual(v, it) {
					member = true
					break
				}
			}
			return member != negate
		}
	case OpIsNull, OpNotNull:
		wantNull := c.WantsNull()
		return func(r map[string]any) bool {
			v, ok := r[field]
			return (!ok || v == nil) == wantNull
		}
	}
	want := c.Value
	return func(r map[string]any) bool {
		v, ok := r[field]
		return ok && ValuesEqual(v, want)
	}
}

// ValuesEqual 比较两个值，数字按数值比较（25 与 25.0 相等）。
// 两边都是整数时精确比较，不经过 float64。
func ValuesEqual(a, b any) bool {
	if ia, ok := toInteger(a); ok {
		if ib, ok := toInteger(b); ok {
			return ia.Cmp(ib) == 0
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues 返回 a 与 b 的大小关系；类型不可比较时第二个返回值为 false。
func compareValues(a, b any) (int, bool) {
	if ia, ok := toInteger(a); ok {
		if ib, ok := toInteger(b); ok {
			return ia.Cmp(ib), true
		}
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), true
		}
		if tb, ok := b.(time.Time); ok {
			if ta, err := time.Parse(time.RFC3339Nano, sa); err == nil {
				return ta.Compare(tb), true
			}
		}
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		switch tb := b.(type) {
		case time.Time:
			return ta.Compare(tb), true
		case string:
			if t, err := time.Parse(time.RFC3339Nano, tb); err == nil {
				return ta.Compare(t), true
			}
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil, bool, string:
		return 0, false
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// toInteger 只接受整数类型和整数形式的 json.Number
func toInteger(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case nil, bool, string, float32, float64:
		return nil, false
	case json.Number:
		return new(big.Int).SetString(string(n), 10)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), true
	}
	return nil, false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
