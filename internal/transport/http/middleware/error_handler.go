// Package middleware file: internal/transport/http/middleware/error_handler.go
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"QueryAegis/internal/core/dberr"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// StatusFor 把错误分类映射为 HTTP 状态码
func StatusFor(err error) int {
	de, ok := dberr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch de.Kind {
	case dberr.KindQuery:
		return http.StatusBadRequest
	case dberr.KindPermission:
		return http.StatusForbidden
	case dberr.KindIntegrity:
		return http.StatusConflict
	case dberr.KindTimeout:
		return http.StatusGatewayTimeout
	case dberr.KindConnection:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorHandlingMiddleware 是一个Gin中间件，用于集中处理错误。
// 处理器通过 c.Error(err) 附加错误，这里只处理最后一个。
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求参数验证失败", "details": ve.Error()})
			return
		}

		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(c.Request.Context(), "[HTTP] 请求处理失败", "path", c.FullPath(), "error", err)
			c.JSON(status, gin.H{"error": "服务器内部错误", "kind": dberr.KindOf(err).String()})
			return
		}
		msg := err.Error()
		if de, ok := dberr.As(err); ok {
			msg = de.Message
		}
		c.JSON(status, gin.H{"error": msg, "kind": dberr.KindOf(err).String()})
	}
}
