package handler

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/config"
	"github.com/daedalus410/RFID-attendance-system/internal/httpmiddleware"
	"github.com/daedalus410/RFID-attendance-system/internal/metrics"
)

// Deps bundles everything the router wires together.
type Deps struct {
	Cfg       config.App
	Log       *slog.Logger
	Handler   *Handler
	Tokens    *auth.Tokens
	Limiter   httpmiddleware.Limiter
	Collector *metrics.Collector
	Gatherer  prometheus.Gatherer
}

// NewRouter assembles the middleware chain and the routes. Order matters:
// recovery first, then request tagging and logging, then the policy
// middlewares, auth last so rejected requests are still logged and counted.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(d.Cfg.AllowedOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Log))
	}
	if d.Collector != nil {
		r.Use(httpmiddleware.Metrics(d.Collector))
	}
	r.Use(httpmiddleware.Timeout(d.Cfg.RequestTimeout))

	r.GET("/health", d.Handler.Health)
	r.GET("/health/db", d.Handler.HealthDB)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	ag := r.Group("/auth")
	{
		ag.POST("/login", d.Handler.Login)
		ag.POST("/validate", auth.TokenAuth(d.Tokens), d.Handler.Validate)
	}

	// The scan endpoint authenticates with exactly one mode, chosen at
	// startup: reader devices either hold a service token or present the
	// shared device key.
	scanAuth := auth.TokenAuth(d.Tokens)
	if d.Cfg.ScanAuthMode == "apikey" {
		scanAuth = auth.APIKeyAuth(d.Cfg.DeviceAPIKey)
	}
	r.POST("/attendance", scanAuth, d.Handler.RecordScan)
	r.GET("/attendance", auth.TokenAuth(d.Tokens), d.Handler.ListAttendance)

	return r
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept",
			"Authorization", "X-API-Key", httpmiddleware.RequestIDHeader,
		},
		ExposeHeaders: []string{httpmiddleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
}
