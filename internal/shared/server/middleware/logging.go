package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"annotation-backend/internal/shared/telemetry"
)

// Context keys handlers set for the request log line.
const (
	RunIDKey            = "runId"
	StatusTransitionKey = "statusTransition"
	EngineReusedKey     = "engineReused"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"bytes":       c.Writer.Size(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if runID := c.GetString(RunIDKey); runID != "" {
			fields["run_id"] = runID
		}
		if transition := c.GetString(StatusTransitionKey); transition != "" {
			fields["status_transition"] = transition
		}
		if reused, ok := c.Get(EngineReusedKey); ok {
			fields["engine_reused"] = reused
		}
		telemetry.Info("request.complete", fields)
	}
}
