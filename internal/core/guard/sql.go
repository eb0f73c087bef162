// Package guard file: internal/core/guard/sql.go
package guard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Verdict 是一次原始 SQL 检查的结论，创建后不再修改。
type Verdict struct {
	IsSafe bool   `json:"is_safe" yaml:"is_safe"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func safe() Verdict                { return Verdict{IsSafe: true} }
func unsafe(reason string) Verdict { return Verdict{IsSafe: false, Reason: reason} }

// ForbiddenKeywords 修改 schema 或权限的语句，allowDDL 时跳过该项检查
var ForbiddenKeywords = []string{"DROP", "TRUNCATE", "ALTER", "GRANT", "REVOKE", "CREATE"}

var forbiddenRe = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

type injectionPattern struct {
	label string
	re    *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{"chained DROP statement", regexp.MustCompile(`(?i);\s*DROP`)},
	{"chained TRUNCATE statement", regexp.MustCompile(`(?i);\s*TRUNCATE`)},
	{"chained DELETE statement", regexp.MustCompile(`(?i);\s*DELETE`)},
	{"inline comment (--)", regexp.MustCompile(`--`)},
	{"block comment (/* */)", regexp.MustCompile(`(?s)/\*.*\*/`)},
	{"UNION SELECT", regexp.MustCompile(`(?i)UNION\s+(ALL\s+)?SELECT`)},
	{"tautology (OR 1=1)", regexp.MustCompile(`(?i)\bOR\s+1\s*=\s*1\b`)},
	{"tautology (AND 1=1)", regexp.MustCompile(`(?i)\bAND\s+1\s*=\s*1\b`)},
	{"tautology (1=1)", regexp.MustCompile(`\b1\s*=\s*1\b`)},
}

// 具名占位符 :name；排除 PostgreSQL 的 `::type` 类型转换
var placeholderRe = regexp.MustCompile(`(^|[^:\w]):([A-Za-z_]\w*)`)

var wordRe = regexp.MustCompile(`[A-Za-z_]\w*|[()]`)

// mutatingFamily 没有 WHERE 时会作用于整张表的语句
var mutatingFamily = map[string]bool{"DELETE": true, "UPDATE": true}

var dmlKeywords = map[string]bool{"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true}

// CheckSQL 依次执行四项检查，第一项失败即返回：
//  1. 禁用关键字（allowDDL 为 true 时跳过）
//  2. 注入特征
//  3. 不带 WHERE 的 UPDATE / DELETE
//  4. 占位符与参数是否齐全（params 为 nil 表示调用方没有提供参数）
func CheckSQL(statement string, params map[string]any, allowDDL bool) Verdict {
	if strings.TrimSpace(statement) == "" {
		return unsafe("Empty SQL statement")
	}

	if !allowDDL {
		if kw := forbiddenRe.FindString(statement); kw != "" {
			return unsafe(fmt.Sprintf("Forbidden SQL keyword detected: %s", strings.ToUpper(kw)))
		}
	}

	for _, p := range injectionPatterns {
		if p.re.MatchString(statement) {
			return unsafe(fmt.Sprintf("Potential SQL injection pattern detected: %s", p.label))
		}
	}

	stripped := StripLiterals(statement)
	tokens := Tokens(statement)
	if lead := LeadingKeyword(tokens); mutatingFamily[lead] && !containsToken(tokens, "WHERE") {
		return unsafe(fmt.Sprintf("%s statement without WHERE clause is not allowed", lead))
	}

	names := Placeholders(stripped)
	if len(names) > 0 {
		if params == nil {
			return unsafe(fmt.Sprintf("Statement uses placeholders but no parameters were provided: %s", strings.Join(names, ", ")))
		}
		var missing []string
		for _, n := range names {
			if _, ok := params[n]; !ok {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			return unsafe(fmt.Sprintf("Missing parameters: %s", strings.Join(missing, ", ")))
		}
	}
	return safe()
}

// Tokens 返回去掉字面量和注释后的单词与括号序列。
func Tokens(statement string) []string {
	return wordRe.FindAllString(StripLiterals(statement), -1)
}

// LeadingKeyword 返回语句的主关键字（大写）。
// WITH 开头时取 CTE 定义之后、括号深度为 0 的第一个 DML 关键字。
func LeadingKeyword(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	first := strings.ToUpper(tokens[0])
	if first == "(" {
		for _, t := range tokens {
			if u := strings.ToUpper(t); dmlKeywords[u] {
				return u
			}
		}
		return ""
	}
	if first != "WITH" {
		return first
	}
	depth := 0
	for _, t := range tokens[1:] {
		switch t {
		case "(":
			depth++
		case ")":
			depth--
		default:
			if u := strings.ToUpper(t); depth == 0 && dmlKeywords[u] {
				return u
			}
		}
	}
	return first
}

// Placeholders 返回语句中出现的具名占位符（去重、排序）。
// 调用方应先用 StripLiterals 去掉字符串字面量。
func Placeholders(statement string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(statement, -1) {
		seen[m[2]] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StripLiterals 把引号内的内容和注释替换为空格，保持长度与位置不变。
func StripLiterals(statement string) string {
	b := []byte(statement)
	for i := 0; i < len(b); i++ {
		switch c := b[i]; {
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(b) {
				if b[j] == c {
					if j+1 < len(b) && b[j+1] == c { // 转义的引号 ''
						b[j], b[j+1] = ' ', ' '
						j += 2
						continue
					}
					break
				}
				b[j] = ' '
				j++
			}
			i = j
		case c == '-' && i+1 < len(b) && b[i+1] == '-':
			for i < len(b) && b[i] != '\n' {
				b[i] = ' '
				i++
			}
		case c == '/' && i+1 < len(b) && b[i+1] == '*':
			for i < len(b) && !(b[i] == '*' && i+1 < len(b) && b[i+1] == '/') {
				b[i] = ' '
				i++
			}
			if i+1 < len(b) {
				b[i], b[i+1] = ' ', ' '
				i++
			}
		}
	}
	return string(b)
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
