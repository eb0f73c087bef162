// Package guard file: internal/core/guard/regex.go
//
// guard 包提供两类纯函数式的安全检查：
// 正则表达式的回溯风险检查，以及原始 SQL 语句的静态安全检查。
// 两者都不持有任何状态，可以被任意并发调用。
package guard

import (
	"fmt"
	"unicode/utf8"

	"QueryAegis/internal/core/dberr"
)

const (
	MaxPatternLength = 500
	MaxCharClasses   = 10
	MaxAlternations  = 20
)

// ReasonNestedQuantifiers 是嵌套/相邻量词被拒绝时的原因文本
const ReasonNestedQuantifiers = "nested quantifiers"

// patternShape 是一次扫描得到的结构统计。
type patternShape struct {
	nested       bool
	classes      int
	alternations int
}

// token 类别
const (
	tokNone = iota
	tokAtom
	tokQuant   // * + ?
	tokBounded // {n} {n,} {n,m}
	tokGroup   // 刚闭合的分组
)

// ValidateRegex 检查 pattern 是否可能导致灾难性回溯 (ReDoS)。
// 通过时原样返回 pattern，否则返回 QueryError。
func ValidateRegex(pattern string) (string, error) {
	if n := utf8.RuneCountInString(pattern); n > MaxPatternLength {
		return "", rejectPattern(fmt.Sprintf("pattern too long (%d > %d characters)", n, MaxPatternLength))
	}
	shape := scanPattern(pattern)
	if shape.nested {
		return "", rejectPattern(ReasonNestedQuantifiers)
	}
	if shape.classes > MaxCharClasses {
		return "", rejectPattern(fmt.Sprintf("too many character classes (%d > %d)", shape.classes, MaxCharClasses))
	}
	if shape.alternations > MaxAlternations {
		return "", rejectPattern(fmt.Sprintf("too many alternations (%d > %d)", shape.alternations, MaxAlternations))
	}
	return pattern, nil
}

func rejectPattern(reason string) error {
	return dberr.Query("", "unsafe regex pattern: %s", reason)
}

// scanPattern 单遍扫描 pattern。
// 转义字符视为普通原子，方括号字符类整体视为一个原子，因此
// regexp.QuoteMeta 产生的 `\*\*` 不会被误判为相邻量词。
func scanPattern(p string) patternShape {
	var (
		shape patternShape
		prev  = tokNone
		// groups 记录每个未闭合分组内部是否出现过量词
		groups         []bool
		lastGroupQuant bool
	)

	markQuantified := func() {
		for i := range groups {
			groups[i] = true
		}
	}

	// quantify 处理一个量词 token，cur 为 tokQuant 或 tokBounded
	quantify := func(cur int) {
		switch prev {
		case tokQuant, tokBounded:
			shape.nested = true
		case tokGroup:
			if lastGroupQuant {
				shape.nested = true
			}
		}
		markQuantified()
		prev = cur
	}

	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '\\':
			i++ // 跳过被转义的字符
			prev = tokAtom
		case '[':
			i = skipClass(p, i)
			shape.classes++
			prev = tokAtom
		case '(':
			groups = append(groups, false)
			i = skipGroupPrefix(p, i)
			prev = tokNone
		case ')':
			if n := len(groups); n > 0 {
				lastGroupQuant = groups[n-1]
				groups = groups[:n-1]
			} else {
				lastGroupQuant = false
			}
			prev = tokGroup
		case '|':
			shape.alternations++
			prev = tokNone
		case '*', '+':
			quantify(tokQuant)
		case '?':
			if prev == tokQuant || prev == tokBounded {
				// 惰性修饰符，例如 `*?`、`{2}?`
				prev = tokAtom
				continue
			}
			quantify(tokQuant)
		case '{':
			if end, ok := boundedEnd(p, i); ok {
				quantify(tokBounded)
				i = end
				continue
			}
			prev = tokAtom
		case '^', '$':
			prev = tokNone
		default:
			prev = tokAtom
		}
	}
	return shape
}

// skipClass 返回字符类结束符 ']' 的下标；未闭合时返回末尾。
func skipClass(p string, start int) int {
	i := start + 1
	if i < len(p) && p[i] == '^' {
		i++
	}
	if i < len(p) && p[i] == ']' {
		i++ // 紧跟在 '[' 后的 ']' 是字面量
	}
	for ; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return len(p) - 1
}

// skipGroupPrefix 跳过 `(?:`、`(?=`、`(?<name>` 之类的分组前缀。
func skipGroupPrefix(p string, open int) int {
	i := open + 1
	if i >= len(p) || p[i] != '?' {
		return open
	}
	i++
	if i >= len(p) {
		return i - 1
	}
	switch p[i] {
	case ':', '=', '!', '>':
		return i
	case '<', 'P':
		if p[i] == 'P' {
			i++
		}
		if i+1 < len(p) && p[i] == '<' && (p[i+1] == '=' || p[i+1] == '!') {
			return i + 1
		}
		for ; i < len(p); i++ {
			if p[i] == '>' {
				return i
			}
		}
		return len(p) - 1
	}
	return i - 1
}

// boundedEnd 判断 p[start:] 是否是 {n}、{n,}、{n,m} 形式，返回 '}' 的下标。
func boundedEnd(p string, start int) (int, bool) {
	i := start + 1
	digits := 0
	for i < len(p) && p[i] >= '0' && p[i] <= '9' {
		i++
		digits++
	}
	if digits == 0 || i >= len(p) {
		return 0, false
	}
	if p[i] == ',' {
		i++
		for i < len(p) && p[i] >= '0' && p[i] <= '9' {
			i++
		}
	}
	if i < len(p) && p[i] == '}' {
		return i, true
	}
	return 0, false
}
