package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"portfolio/internal/pkg/response"
)

// ErrorLogger recovers from panics and logs handler errors and 5xx responses.
func ErrorLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				logRequestError(log, c, start, "panic", fmt.Sprintf("%v", recovered), "stack", string(debug.Stack()))
				response.Abort(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
				return
			}

			for _, err := range c.Errors {
				logRequestError(log, c, start, fmt.Sprintf("%v", err.Type), err.Error())
			}
			if len(c.Errors) == 0 && c.Writer.Status() >= http.StatusInternalServerError {
				logRequestError(log, c, start, "http_error", fmt.Sprintf("status=%d", c.Writer.Status()))
			}
		}()

		c.Next()
	}
}

// RequestLogger writes one line per request.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"bytes_out", c.Writer.Size(),
			"request_id", requestID(c),
		)
	}
}

func logRequestError(log *slog.Logger, c *gin.Context, start time.Time, errType, message string, extra ...any) {
	args := []any{
		"type", errType,
		"status", c.Writer.Status(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"query", c.Request.URL.RawQuery,
		"client_ip", c.ClientIP(),
		"request_id", requestID(c),
		"latency", time.Since(start),
		"error", message,
	}
	log.Error("request_error", append(args, extra...)...)
}

func requestID(c *gin.Context) string {
	return c.GetHeader("X-Request-ID")
}
