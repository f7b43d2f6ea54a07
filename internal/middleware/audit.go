package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AuditLogger records which staff user performed each state-changing request
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(slog.String("component", "audit")),
	}
}

// Middleware logs mutating requests after they complete. Reads are not audited.
func (a *AuditLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		outcome := "success"
		if c.Writer.Status() >= http.StatusBadRequest {
			level = slog.LevelWarn
			outcome = "rejected"
		}

		a.logger.LogAttrs(c.Request.Context(), level, "Staff action",
			slog.Int("user_id", GetUserID(c)),
			slog.String("username", GetUsername(c)),
			slog.String("role", string(GetUserRole(c))),
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("outcome", outcome),
			slog.String("client_ip", c.ClientIP()),
			slog.String("request_id", GetRequestID(c)),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
