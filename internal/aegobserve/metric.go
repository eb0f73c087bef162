// Package aegobserve 暴露 Prometheus 指标
package aegobserve

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 汇总数据库操作与运维 HTTP 的指标
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时使用默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queryaegis_operations_total",
			Help: "按后端、操作和结果统计的数据库操作次数",
		}, []string{"backend", "operation", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queryaegis_operation_duration_seconds",
			Help:    "数据库操作耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queryaegis_http_request_duration_seconds",
			Help:    "运维 HTTP 请求耗时",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "code"}),
	}
	reg.MustRegister(m.Operations, m.OperationDuration, m.HTTPDuration)
	return m
}

// ObserveOperation 记录一次数据库操作
func (m *Metrics) ObserveOperation(backend, operation, outcome string, elapsed time.Duration) {
	m.Operations.WithLabelValues(backend, operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(backend, operation).Observe(elapsed.Seconds())
}

// GinMiddleware 记录每个 HTTP 请求的耗时，path 使用路由模板避免标签爆炸。
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPDuration.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 gatherer 的 HTTP 处理器；gatherer 为 nil 时使用默认注册表。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
