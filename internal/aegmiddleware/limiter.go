// file: internal/aegmiddleware/limiter.go
package aegmiddleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// 不活跃的表级限制器 15 分钟后过期，每 10 分钟清理一次
const (
	tableLimiterIdle    = 15 * time.Minute
	tableLimiterCleanup = 10 * time.Minute
)

// RateLimiter 管理全局与按表的速率限制，速率为 0 的维度不限制。
type RateLimiter struct {
	global *rate.Limiter

	tableRate  rate.Limit
	tableBurst int
	tableMu    sync.Mutex
	tables     *cache.Cache
}

// NewRateLimiter 根据配置创建限制器
func NewRateLimiter(cfg domain.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		tableRate:  limitOf(cfg.PerTablePerSecond),
		tableBurst: burstOf(cfg.PerTablePerSecond, cfg.PerTableBurst),
		tables:     cache.New(tableLimiterIdle, tableLimiterCleanup),
	}
	if cfg.PerSecond > 0 {
		rl.global = rate.NewLimiter(limitOf(cfg.PerSecond), burstOf(cfg.PerSecond, cfg.Burst))
	}
	slog.Info("[Pipeline] 速率限制初始化完成",
		"global_rate", cfg.PerSecond, "global_burst", cfg.Burst,
		"table_rate", cfg.PerTablePerSecond, "table_burst", cfg.PerTableBurst)
	return rl
}

func limitOf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// burstOf 未配置 burst 时至少允许 1 个请求，否则限制器永远拒绝
func burstOf(perSecond float64, burst int) int {
	if burst > 0 {
		return burst
	}
	if perSecond >= 1 {
		return int(perSecond)
	}
	return 1
}

// tableLimiter 返回或创建指定表的限制器，每次访问刷新过期时间
func (rl *RateLimiter) tableLimiter(table string) *rate.Limiter {
	rl.tableMu.Lock()
	defer rl.tableMu.Unlock()
	if x, found := rl.tables.Get(table); found {
		l := x.(*rate.Limiter)
		rl.tables.Set(table, l, cache.DefaultExpiration)
		return l
	}
	l := rate.NewLimiter(rl.tableRate, rl.tableBurst)
	rl.tables.Set(table, l, cache.DefaultExpiration)
	return l
}

// Allow 判断本次调用是否放行
func (rl *RateLimiter) Allow(call *Call) error {
	if rl.global != nil && !rl.global.Allow() {
		return dberr.Permission(call.Backend, "rate limit exceeded (global limit)")
	}
	if rl.tableRate == rate.Inf || call.Table == "" {
		return nil
	}
	if !rl.tableLimiter(call.Table).Allow() {
		return dberr.Permission(call.Backend, "rate limit exceeded for table '%s'", call.Table)
	}
	return nil
}

// RateLimit 返回速率限制中间件
func RateLimit(rl *RateLimiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) (any, error) {
			if err := rl.Allow(call); err != nil {
				slog.Warn("[Pipeline] 请求过于频繁", "operation", call.Op, "table", call.Table)
				return nil, err
			}
			return next(ctx, call)
		}
	}
}
