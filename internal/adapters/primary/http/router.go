package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meeting-copilot/internal/buildinfo"
	"meeting-copilot/internal/logging"
)

// RouterConfig configures the control API engine.
type RouterConfig struct {
	AllowedOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine serving the control API.
func NewRouter(h *Handler, cfg RouterConfig, logger logging.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestLogger(logger))
	_ = engine.SetTrustedProxies(nil)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"OPTIONS", "GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	engine.GET("/version", gin.WrapF(buildinfo.Handler()))

	h.RegisterRoutes(engine)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return engine
}

// RequestLogger logs one line per request, skipping probes.
func RequestLogger(logger logging.Logger) gin.HandlerFunc {
	log := logger.With(logging.F("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/metrics") {
			return
		}
		fields := []logging.Field{
			logging.F("method", c.Request.Method),
			logging.F("path", path),
			logging.F("status", c.Writer.Status()),
			logging.F("duration", time.Since(start)),
			logging.F("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("Request", fields...)
			return
		}
		log.Info("Request", fields...)
	}
}
