// Package httpapi wires the HTTP transport (Gin) of both services to their
// engines, middleware, and route handlers. It centralizes cross-cutting
// concerns such as tracing, correlation IDs, logging/redaction, panic
// recovery, metrics, authentication, idempotency, rate limiting, CORS and
// security headers.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID + RequestLogger: correlation id and request-scoped logger
//  3. RedactingLogger: access log with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (outside idempotency, so the ledger stores plain JSON)
//  8. Authenticate: caller identity for everything below
//  9. Idempotency (before the rate limiter, so replays are free)
//  10. Rate limiter (per user/IP)
//  11. CORS and security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-promo-reco/internal/config"
	"github.com/tbourn/go-promo-reco/internal/http/handlers"
	"github.com/tbourn/go-promo-reco/internal/http/middleware"
)

// Human-readable service titles served on "/".
const (
	promoTitle = "Promocode Service"
	recoTitle  = "Recommendation Service"
)

// RegisterPromoRoutes mounts the promocode service on r. db backs the
// idempotency ledger.
func RegisterPromoRoutes(r *gin.Engine, db *gorm.DB, svc handlers.PromoService, cfg config.Config) {
	applyCommon(r, db, cfg, promoTitle)

	h := handlers.NewPromoHandlers(svc)
	g := groupWithPrefix(r, cfg.APIBasePath).Group("/promocodes")
	{
		g.POST("/validate", h.ValidatePromocode)
		g.POST("/apply", h.ApplyPromocode)
		g.POST("", h.CreatePromocode)
		g.GET("/user/:user_id", h.GetUserPromocodes)
		g.GET("/active", h.GetActivePromocodes)
		g.GET("/:promo_code", h.GetPromocode)
	}
}

// RegisterRecommendationRoutes mounts the recommendation service on r. db
// backs the idempotency ledger. Curated-entry writes require the manager
// role.
func RegisterRecommendationRoutes(r *gin.Engine, db *gorm.DB, svc handlers.RecommendationService, cfg config.Config) {
	applyCommon(r, db, cfg, recoTitle)

	h := handlers.NewRecommendationHandlers(svc)
	g := groupWithPrefix(r, cfg.APIBasePath).Group("/recommendations")
	{
		g.GET("", h.GetPopular)
		g.GET("/curated", h.ListCurated)
		g.GET("/:user_id", h.GetPersonal)
		g.POST("/:user_id/update-from-order", h.UpdateFromOrder)

		m := g.Group("", middleware.RequireRole(middleware.RoleManager))
		m.POST("", h.CreateRecommendation)
		m.PUT("/:id", h.UpdateRecommendation)
		m.DELETE("/:id", h.DeleteRecommendation)
	}
}

// applyCommon installs the shared middleware chain plus the health, root,
// metrics and fallback handlers.
func applyCommon(r *gin.Engine, db *gorm.DB, cfg config.Config, title string) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID(), middleware.RequestLogger())

	// 3) Structured access log with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics(cfg.Service))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Identity
	r.Use(middleware.Authenticate(middleware.AuthOptions{Secret: cfg.JWTSecret}))

	// 9) Idempotency replay/record (before rate limiting)
	r.Use(middleware.Idempotency(
		middleware.IdempotencyOptions{MaxLen: 200},
		&idempotencyLedger{db: db, ttl: cfg.IdempotencyTTL},
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:    cfg.RateRPS,
		Burst:  cfg.RateBurst,
		Key:    middleware.KeyByUserOrIP(),
		Exempt: []string{"/health", "/metrics"},
	})
	r.Use(rl.Handler())

	// 11) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": cfg.Service})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": title + " is running"})
	})
}

// corsMiddleware allows every origin when none are configured; otherwise it
// echoes allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization",
		middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Content-Language", middleware.HeaderIdempotencyReplayed}
	methods := []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail JSON binding.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
