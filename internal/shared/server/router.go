package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"annotation-backend/internal/annotations"
	"annotation-backend/internal/services/health"
	"annotation-backend/internal/shared/config"
	"annotation-backend/internal/shared/metrics"
	"annotation-backend/internal/shared/server/middleware"
	"annotation-backend/internal/shared/server/respond"
)

const annotateRateGroup = "ANNOTATE"

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config      config.Config
	Annotations *annotations.Handler
	Health      *health.Service
	// Now drives the rate limiter; nil means time.Now.
	Now func() time.Time
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	})

	if deps.Annotations != nil {
		var limit gin.HandlerFunc
		if deps.Config.AnnotateRate > 0 {
			limit = middleware.RateLimit(middleware.RateLimitConfig{
				DefaultGroup: annotateRateGroup,
				Limiter:      middleware.NewRateLimiter(deps.Now),
				Rules: map[string]middleware.RateLimitRule{
					annotateRateGroup: {Rate: deps.Config.AnnotateRate, Burst: deps.Config.AnnotateBurst},
				},
			})
		}
		deps.Annotations.RegisterRoutes(api, limit)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
