package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// RequestID gives every request an id, keeping the caller's X-Request-ID when
// present, and stores a logger tagged with it for later middleware and handlers.
func RequestID(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Set(loggerKey, logger.With(zap.String("request_id", id)))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger returns the logger RequestID stored on c
func requestLogger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// AccessLog writes one entry per finished request. Server errors log at
// error level with the errors handlers attached, client errors at warn and
// the rest at debug. Event streams are logged when the client leaves.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		entry := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		if id := c.Param("id"); id != "" {
			entry = append(entry, zap.String("session", id))
		}
		if id := c.Param("fieldId"); id != "" {
			entry = append(entry, zap.String("field", id))
		}

		level := zapcore.DebugLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
			if len(c.Errors) > 0 {
				entry = append(entry, zap.String("errors", c.Errors.String()))
			}
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := requestLogger(c).Check(level, "request"); ce != nil {
			ce.Write(entry...)
		}
	}
}
