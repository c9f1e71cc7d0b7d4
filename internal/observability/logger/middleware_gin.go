package logger

import (
	"net/http"
	"strings"
	"time"

	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-Id"

type MiddlewareConfig struct {
	// Logger defaults to the zap global.
	Logger          *zap.Logger
	Debug           bool
	UserHeader      string
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware tags the request context with a request id and the calling
// user, then writes one http_request line when the handler chain returns.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	userHeader := strings.TrimSpace(cfg.UserHeader)
	if userHeader == "" {
		userHeader = "X-User-Id"
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		if userID := strings.TrimSpace(c.GetHeader(userHeader)); userID != "" {
			ctx = obscontext.WithActor(ctx, "user", userID)
		}
		c.Request = c.Request.WithContext(ctx)

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
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(last.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		base := cfg.Logger
		if base == nil {
			base = zap.L()
		}
		log := WithContext(c.Request.Context(), base)
		switch {
		case route == "/health" || route == "/metrics":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		case status == http.StatusTooManyRequests || status == http.StatusConflict:
			log.Warn("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}
