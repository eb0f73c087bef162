// file: internal/transport/http/router/router.go
package router

import (
	"context"
	"net/http"
	"time"

	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/dberr"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/filter"
	"QueryAegis/internal/core/guard"
	"QueryAegis/internal/transport/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const healthTimeout = 5 * time.Second

// Backend 是运维接口需要的最小数据源能力，由 service.DatabaseService 实现
type Backend interface {
	Backend() string
	HealthCheck(ctx context.Context) error
	Capabilities(ctx context.Context) (domain.Capability, error)
}

// Dependencies 结构体用于将所有依赖项注入到路由器中
type Dependencies struct {
	Backend Backend
	Metrics *aegobserve.Metrics

	// AllowDDL 是 /sql/check 请求未显式指定 allow_ddl 时的默认值
	AllowDDL bool

	// Gatherer 为 nil 时使用默认注册表
	Gatherer prometheus.Gatherer

	// AllowOrigins 为空时不启用 CORS
	AllowOrigins []string
}

// New 创建基于 Gin 的运维 HTTP 路由器
func New(deps Dependencies) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gzip.Gzip(gzip.DefaultCompression))
	if len(deps.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  deps.AllowOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}
	router.Use(middleware.ErrorHandlingMiddleware())

	router.GET("/healthz", healthHandler(deps.Backend))
	router.GET("/metrics", gin.WrapH(aegobserve.Handler(deps.Gatherer)))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/capabilities", capabilitiesHandler(deps.Backend))
		v1.POST("/sql/check", sqlCheckHandler(deps.AllowDDL))
		v1.POST("/regex/check", regexCheckHandler())
		v1.POST("/filters/translate", translateHandler())
	}
	return router
}

// =============================================================================
//  处理器 (Handlers)
// =============================================================================

func healthHandler(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if b == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := b.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"backend": b.Backend(),
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": b.Backend()})
	}
}

func capabilitiesHandler(b Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if b == nil {
			_ = c.Error(dberr.Connection("", nil, "no database configured"))
			return
		}
		caps, err := b.Capabilities(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"backend": b.Backend(), "capabilities": caps}})
	}
}

func sqlCheckHandler(defaultAllowDDL bool) gin.HandlerFunc {
	type RequestBody struct {
		Statement string         `json:"statement" binding:"required"`
		Params    map[string]any `json:"params"`
		AllowDDL  *bool          `json:"allow_ddl"`
	}
	return func(c *gin.Context) {
		var req RequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
		allow := defaultAllowDDL
		if req.AllowDDL != nil {
			allow = *req.AllowDDL
		}
		c.JSON(http.StatusOK, gin.H{"data": guard.CheckSQL(req.Statement, req.Params, allow)})
	}
}

func regexCheckHandler() gin.HandlerFunc {
	type RequestBody struct {
		Pattern string `json:"pattern" binding:"required"`
	}
	return func(c *gin.Context) {
		var req RequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
		if _, err := guard.ValidateRegex(req.Pattern); err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"pattern": req.Pattern, "is_safe": true}})
	}
}

func translateHandler() gin.HandlerFunc {
	type RequestBody struct {
		Backend string         `json:"backend" binding:"required"`
		Filters filter.Mapping `json:"filters"`
	}
	return func(c *gin.Context) {
		var req RequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
		out, err := filter.Preview(req.Backend, req.Filters)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": out})
	}
}
