package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/paysettle/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	RequestIDHeader     = "X-Request-Id"
	ContextRequestIDKey = "request_id"

	accessLogMessage = "http_request"
)

var defaultQuietRoutes = []string{"/health", "/metrics"}

// MiddlewareConfig controls the access log.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to an error type and code.
	ErrorClassifier func(err error) (string, string)
	// QuietRoutes are logged at debug level. Defaults to health and metrics.
	QuietRoutes []string
}

// GinMiddleware assigns a request id and writes one access log line per
// request. The line is built from the request context after the handlers ran,
// so an order code tagged by a handler shows up in it.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	quiet := make(map[string]struct{})
	routes := cfg.QuietRoutes
	if routes == nil {
		routes = defaultQuietRoutes
	}
	for _, route := range routes {
		quiet[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
			zap.String("client_ip", c.ClientIP()),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, errorFields(cfg, lastErr.Err)...)
		}

		level := accessLevel(status)
		if _, ok := quiet[route]; ok {
			level = zapcore.DebugLevel
		}
		if ce := FromContext(c.Request.Context()).Check(level, accessLogMessage); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestIDFor keeps an inbound request id so gateway retries can be matched
// to their first attempt.
func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(ContextRequestIDKey, requestID)
	c.Header(RequestIDHeader, requestID)
	return requestID
}

func errorFields(cfg MiddlewareConfig, err error) []zap.Field {
	var errorType, errorCode string
	if cfg.ErrorClassifier != nil {
		errorType, errorCode = cfg.ErrorClassifier(err)
	}
	fields := []zap.Field{
		zap.String("error_type", errorType),
		zap.String("error_code", errorCode),
	}
	if cfg.Debug {
		fields = append(fields, zap.Stack("stack"))
	}
	return fields
}

func accessLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
