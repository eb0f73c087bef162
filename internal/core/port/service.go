// Package port file: internal/core/port/service.go
package port

import (
	"QueryAegis/internal/core/domain"
)

// PolicyProvider 提供当前生效的权限配置。
// 实现需要支持并发读取，配置热更新后新的调用立即看到新值。
type PolicyProvider interface {
	Permissions() domain.PermissionConfig
}

// StaticPolicy 是不会变化的 PolicyProvider，主要用于测试和一次性命令。
type StaticPolicy domain.PermissionConfig

// Permissions 实现 PolicyProvider
func (p StaticPolicy) Permissions() domain.PermissionConfig { return domain.PermissionConfig(p) }
