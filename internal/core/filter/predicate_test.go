package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// PredicateTranslator
// ----------------------------------------------------------------------------

func mustPredicate(t *testing.T, m Mapping) Predicate {
	t.Helper()
	p, err := PredicateTranslator{}.Translate(m)
	require.NoError(t, err)
	return p
}

func TestPredicate_Ordering(t *testing.T) {
	p := mustPredicate(t, Mapping{"age__gt": 18})
	assert.True(t, p(map[string]any{"age": 25}))
	assert.False(t, p(map[string]any{"age": 15}))
	assert.False(t, p(map[string]any{}), "缺失字段不满足比较条件")
	assert.False(t, p(map[string]any{"age": nil}))
	assert.False(t, p(map[string]any{"age": "old"}), "类型不可比较")
	assert.True(t, p(map[string]any{"age": float64(18.5)}))

	s := mustPredicate(t, Mapping{"name__gte": "m"})
	assert.True(t, s(map[string]any{"name": "mike"}))
	assert.False(t, s(map[string]any{"name": "alice"}))
}

func TestPredicate_EqualityAndFallback(t *testing.T) {
	p := mustPredicate(t, Mapping{"age": 25})
	assert.True(t, p(map[string]any{"age": 25.0}))
	assert.True(t, p(map[string]any{"age": int64(25)}))
	assert.False(t, p(map[string]any{"age": "25"}))
	assert.False(t, p(map[string]any{}))

	f := mustPredicate(t, Mapping{"status__unknown": "on"})
	assert.True(t, f(map[string]any{"status": "on"}))
	assert.False(t, f(map[string]any{"status__unknown": "on"}))
}

func TestPredicate_StringOperators(t *testing.T) {
	p := mustPredicate(t, Mapping{"name__contains": "li", "name__startswith": "a", "name__endswith": "e"})
	assert.True(t, p(map[string]any{"name": "alice"}))
	assert.False(t, p(map[string]any{"name": "bob"}))
	assert.False(t, p(map[string]any{}))

	n := mustPredicate(t, Mapping{"zip__startswith": 10})
	assert.True(t, n(map[string]any{"zip": 10001}))
}

func TestPredicate_Membership(t *testing.T) {
	in := mustPredicate(t, Mapping{"role__in": []string{"admin", "owner"}})
	assert.True(t, in(map[string]any{"role": "admin"}))
	assert.False(t, in(map[string]any{"role": "guest"}))
	assert.False(t, in(map[string]any{}))

	notIn := mustPredicate(t, Mapping{"role__not_in": []string{"guest"}})
	assert.True(t, notIn(map[string]any{"role": "admin"}))
	assert.False(t, notIn(map[string]any{"role": "guest"}))

	empty := mustPredicate(t, Mapping{"role__in": []string{}})
	assert.False(t, empty(map[string]any{"role": "admin"}))
}

func TestPredicate_NullChecks(t *testing.T) {
	p := mustPredicate(t, Mapping{"status__isnull": true})
	assert.True(t, p(map[string]any{}))
	assert.True(t, p(map[string]any{"status": nil}))
	assert.False(t, p(map[string]any{"status": "x"}))

	q := mustPredicate(t, Mapping{"status__notnull": true})
	assert.True(t, q(map[string]any{"status": "x"}))
	assert.False(t, q(map[string]any{}))

	_, err := PredicateTranslator{}.Translate(Mapping{"status__isnull": "yes"})
	assert.Error(t, err, "非布尔值与其它翻译器一致地报错")
}

func TestPredicate_EmptyMatchesAll(t *testing.T) {
	p := mustPredicate(t, nil)
	assert.True(t, p(map[string]any{"anything": 1}))
	assert.True(t, p(nil))
}

// 去掉任意一个键只会让匹配结果变多（AND 语义的单调性）
func TestPredicate_RemovingKeyIsMonotonic(t *testing.T) {
	records := []map[string]any{
		{"age": 17, "name": "ann", "role": "guest"},
		{"age": 25, "name": "bob", "role": "admin"},
		{"age": 40, "name": "bella", "role": "owner", "deleted": nil},
		{"age": 33, "name": "carl"},
		{"name": "dora", "role": "admin", "deleted": true},
	}
	filters := []Mapping{
		{"age__gte": 18, "name__startswith": "b", "role__in": []string{"admin", "owner"}},
		{"age__lt": 35, "deleted__isnull": true, "name__contains": "a"},
		{"role": "admin", "age__gt": 20, "name__endswith": "b"},
	}
	matches := func(m Mapping) map[int]bool {
		p := mustPredicate(t, m)
		out := map[int]bool{}
		for i, r := range records {
			if p(r) {
				out[i] = true
			}
		}
		return out
	}
	for _, f := range filters {
		full := matches(f)
		for k := range f {
			reduced := Mapping{}
			for kk, v := range f {
				if kk != k {
					reduced[kk] = v
				}
			}
			sub := matches(reduced)
			for i := range full {
				assert.True(t, sub[i], "去掉 %s 后记录 %d 不应丢失", k, i)
			}
		}
	}
}

func TestPredicate_LargeIntegersCompareExactly(t *testing.T) {
	const huge = int64(9007199254740993) // 2^53 + 1
	record := map[string]any{"id": int64(9007199254740992)}

	assert.False(t, mustPredicate(t, Mapping{"id": huge})(record))
	assert.True(t, mustPredicate(t, Mapping{"id": huge - 1})(record))
	assert.False(t, mustPredicate(t, Mapping{"id__in": []int64{huge}})(record))
	assert.True(t, mustPredicate(t, Mapping{"id__not_in": []int64{huge}})(record))
	assert.True(t, mustPredicate(t, Mapping{"id__lt": huge})(record))
	assert.False(t, mustPredicate(t, Mapping{"id__gte": huge})(record))

	assert.True(t, mustPredicate(t, Mapping{"id": json.Number("9007199254740992")})(record))
	assert.True(t, mustPredicate(t, Mapping{"id": uint64(9007199254740992)})(record))
	// 小数仍按数值比较
	assert.True(t, mustPredicate(t, Mapping{"n": 25.0})(map[string]any{"n": int64(25)}))
}
