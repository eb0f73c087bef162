// file: internal/aegmiddleware/permission.go
package aegmiddleware

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/port"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
)

// AdvancedTransaction 需要危险操作授权的 advanced 子操作
const AdvancedTransaction = "transaction"

// tableModel 表级规则：命中 allow 且没有命中 deny 才放行
const tableModel = `
[request_definition]
r = obj, act

[policy_definition]
p = obj, act, eft

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = globMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

// Gate 是权限闸门：先检查操作开关与危险操作授权，再检查表级规则。
// 配置来自 PolicyProvider，热更新后新的调用立即生效。
type Gate struct {
	policy port.PolicyProvider

	mu       sync.Mutex
	rules    []domain.TableRule
	enforcer *casbin.Enforcer
}

// NewGate 创建权限闸门
func NewGate(policy port.PolicyProvider) *Gate {
	return &Gate{policy: policy}
}

// Check 返回 nil 表示放行，否则返回 PermissionError
func (g *Gate) Check(call *Call) error {
	p := g.policy.Permissions()
	backend := call.Backend

	if !p.IsOperationAllowed(call.Op) {
		return dberr.Permission(backend, "Operation '%s' is not allowed", call.Op)
	}
	if dangerous(call) && !p.IsDangerousAllowed() {
		return dberr.Permission(backend, "Dangerous operations are not allowed. Set DANGEROUS_AGREE=true to enable.")
	}
	if len(p.TableRules) == 0 || call.Table == "" {
		return nil
	}

	e, err := g.enforcerFor(p.TableRules)
	if err != nil {
		return dberr.Permission(backend, "invalid table rules: %v", err)
	}
	ok, err := e.Enforce(call.Table, string(call.Op))
	if err != nil {
		return dberr.Permission(backend, "table rule evaluation failed: %v", err)
	}
	if !ok {
		return dberr.Permission(backend, "Operation '%s' on table '%s' is denied by table rules", call.Op, call.Table)
	}
	return nil
}

// dangerous delete、execute、advanced transaction 以及写入集合的聚合属于危险操作
func dangerous(call *Call) bool {
	switch call.Op {
	case domain.OpDelete, domain.OpExecute:
		return true
	case domain.OpAdvanced:
		return strings.EqualFold(call.Operation, AdvancedTransaction) || writesCollection(call.Params)
	}
	return false
}

// writeStages 会把聚合结果写入集合的阶段
var writeStages = []string{"$out", "$merge"}

// writesCollection 聚合管道的顶层阶段是否写入集合
func writesCollection(params map[string]any) bool {
	stages, ok := filter.AsSlice(params["pipeline"])
	if !ok {
		return false
	}
	for _, stage := range stages {
		rv := reflect.ValueOf(stage)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			continue
		}
		for _, k := range rv.MapKeys() {
			if slices.Contains(writeStages, k.String()) {
				return true
			}
		}
	}
	return false
}

// enforcerFor 规则没有变化时复用已构建的 enforcer
func (g *Gate) enforcerFor(rules []domain.TableRule) (*casbin.Enforcer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enforcer != nil && slices.Equal(g.rules, rules) {
		return g.enforcer, nil
	}

	m, err := model.NewModelFromString(tableModel)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}
	for _, r := range rules {
		effect := strings.ToLower(r.Effect)
		if effect != "allow" && effect != "deny" {
			return nil, fmt.Errorf("rule for table '%s' has unknown effect '%s'", r.Table, r.Effect)
		}
		if _, err := e.AddPolicy(r.Table, r.Action, effect); err != nil {
			return nil, err
		}
	}
	g.rules = slices.Clone(rules)
	g.enforcer = e
	slog.Debug("[Pipeline] 表级规则已加载", "rules", len(rules))
	return e, nil
}

// Permission 返回权限检查中间件
func Permission(g *Gate) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if err := g.Check(call); err != nil {
				slog.Warn("[Pipeline] 操作被拒绝", "operation", call.Op, "table", call.Table, "reason", err.Error())
				return nil, err
			}
			return next(ctx, call)
		}
	}
}
