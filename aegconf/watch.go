// file: aegconf/watch.go
package aegconf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"

	"github.com/fsnotify/fsnotify"
)

// debounceDuration 编辑器保存文件时往往连续触发多个事件
const debounceDuration = 300 * time.Millisecond

var _ port.PolicyProvider = (*Policy)(nil)

// Policy 是可以热更新的权限配置，并发读安全
type Policy struct {
	current atomic.Pointer[domain.PermissionConfig]
}

// NewPolicy 以初始配置创建 Policy
func NewPolicy(initial domain.PermissionConfig) *Policy {
	p := &Policy{}
	p.Store(initial)
	return p
}

// Permissions 实现 port.PolicyProvider
func (p *Policy) Permissions() domain.PermissionConfig { return *p.current.Load() }

// Store 替换当前配置
func (p *Policy) Store(cfg domain.PermissionConfig) { p.current.Store(&cfg) }

// Watch 监视配置文件，变更后重新加载并把新的权限配置写入 policy。
// 新配置不合法时保留旧配置。onReload 可为 nil。ctx 取消后停止监视。
func Watch(ctx context.Context, path string, policy *Policy, onReload func(domain.Settings)) error {
	if path == "" {
		return fmt.Errorf("未指定配置文件，无法启用热更新")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}
	target := filepath.Clean(path)
	// 监视目录而不是文件本身：很多编辑器通过重命名替换文件
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("监视配置目录失败: %w", err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		s, err := Load(target)
		if err != nil {
			slog.Error("[Config] 热更新失败，继续使用旧配置", "path", target, "error", err)
			return
		}
		policy.Store(s.Permissions)
		slog.Info("[Config] 权限配置已热更新", "path", target,
			"enable_insert", s.Permissions.EnableInsert,
			"enable_update", s.Permissions.EnableUpdate,
			"enable_delete", s.Permissions.EnableDelete,
			"dangerous_agree", s.Permissions.DangerousAgree,
			"table_rules", len(s.Permissions.TableRules))
		if onReload != nil {
			onReload(s)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Op.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceDuration, reload)
				mu.Unlock()
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("[Config] 文件监视器报告错误", "error", werr)
			}
		}
	}()
	slog.Info("[Config] 已启用配置热更新", "path", target)
	return nil
}
