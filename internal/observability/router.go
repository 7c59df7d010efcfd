package observability

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const unmatchedRoute = "unmatched"

// Source feeds console state into the ops routes. Nil funcs are skipped.
type Source struct {
	Services       func() any
	ActiveSessions func() int64
}

// NewRouter builds the ops HTTP surface: /health, /metrics and /services.
// Browser dashboards on allowOrigins may issue GET requests.
func NewRouter(node string, src Source, allowOrigins ...string) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(opsAccess(node, src))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if len(allowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: allowOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	started := time.Now()
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status": "ok",
			"uptime": time.Since(started).String(),
			"node":   node,
		}
		if src.ActiveSessions != nil {
			body["active_sessions"] = src.ActiveSessions()
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/services", func(c *gin.Context) {
		if src.Services == nil {
			c.JSON(http.StatusOK, gin.H{"services": []any{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"services": src.Services()})
	})
	return r
}

// opsAccess logs and counts each ops request under the console node.
// Unrouted paths share one label so scanners cannot grow the series set.
func opsAccess(node string, src Source) gin.HandlerFunc {
	logger := log.Logger.With().Str("component", "ops").Str("node", node).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)

		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if src.ActiveSessions != nil {
			event = event.Int64("active_sessions", src.ActiveSessions())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("console.ops request")
	}
}
