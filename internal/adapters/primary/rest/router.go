package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// HTTPObserver reçoit la durée de chaque requête (Prometheus en prod)
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, elapsed time.Duration)
}

// ReadinessCheck vérifie une dépendance (Postgres, Neo4j, Redis...)
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	Service     ports.SocialService
	Verifier    *TokenVerifier
	Observer    HTTPObserver
	Gatherer    prometheus.Gatherer
	ServiceName string
	Checks      map[string]ReadinessCheck
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	if cfg.Observer != nil {
		r.Use(observe(cfg.Observer))
	}

	r.GET("/health", func(c *gin.Context) {
		respondOK(c, gin.H{"status": "healthy", "service": cfg.ServiceName, "timestamp": time.Now().UTC()})
	})
	r.GET("/ready", readiness(cfg.ServiceName, cfg.Checks))
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	NewHandler(cfg.Service).Register(r, AuthMiddleware(cfg.Verifier))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, failure("NOT_FOUND", "Route "+c.Request.Method+" "+c.Request.URL.Path+" not found"))
	})
	return r
}

func readiness(service string, checks map[string]ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.WarnContext(ctx, "Readiness check failed", "dependency", name, "error", err)
				results[name] = "unavailable"
				ready = false
				continue
			}
			results[name] = "connected"
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, envelope{
				Data:  gin.H{"status": "not ready", "service": service, "checks": results},
				Error: &apiError{Code: "NOT_READY", Message: "Service not ready"},
				Meta:  meta{Timestamp: time.Now().UTC(), Version: apiVersion},
			})
			return
		}
		respondOK(c, gin.H{"status": "ready", "service": service, "checks": results})
	}
}

// observe mesure par route (gabarit gin, pas l'URL brute: cardinalité bornée)
func observe(o HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		o.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		slog.DebugContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
