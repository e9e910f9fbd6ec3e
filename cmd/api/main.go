package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/daedalus410/RFID-attendance-system/internal/attendance"
	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/config"
	"github.com/daedalus410/RFID-attendance-system/internal/handler"
	"github.com/daedalus410/RFID-attendance-system/internal/httpmiddleware"
	"github.com/daedalus410/RFID-attendance-system/internal/logger"
	"github.com/daedalus410/RFID-attendance-system/internal/metrics"
	"github.com/daedalus410/RFID-attendance-system/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logg := logger.SetDefault(os.Stdout, cfg.IsProduction())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func run(cfg config.App, logg *slog.Logger) error {
	st, err := store.Open(cfg, logg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// An unreachable database is not fatal at boot: the service comes up,
	// /health/db reports not-ready, and requests answer 503 until the
	// database returns.
	if cfg.AutoMigrate {
		if err := st.Migrate(); err != nil {
			logg.Warn("migrations not applied", "error", err)
		}
	}

	repo := attendance.NewRepository(st.Pool)
	tokens := auth.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	authSvc := auth.NewService(repo, tokens, logg)
	attSvc := attendance.NewService(repo, cfg.ListLimit, logg)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.TrackPoolLeases(st.Pool.Leased)

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		rdb := store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if !rdb.Healthy(pingCtx) {
			logg.Warn("redis not reachable, rate limiting will fail open", "addr", cfg.RedisAddr)
		}
		cancel()
		limiter = httpmiddleware.NewRedisLimiter(rdb.Client, cfg.RateLimitPerMin)
		logg.Info("rate limiting via redis", "addr", cfg.RedisAddr)
	} else {
		mem := httpmiddleware.NewMemoryLimiter(cfg.RateLimitPerMin)
		defer mem.Stop()
		limiter = mem
	}

	h := handler.New(authSvc, attSvc, st, collector, logg)
	router := handler.NewRouter(handler.Deps{
		Cfg:       cfg,
		Log:       logg,
		Handler:   h,
		Tokens:    tokens,
		Limiter:   limiter,
		Collector: collector,
		Gatherer:  reg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("server listening",
			"port", cfg.HTTPPort,
			"driver", cfg.DBDriver,
			"scan_auth", cfg.ScanAuthMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("shutting down")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("forced shutdown", "error", err)
	}

	logg.Info("server exited")
	return nil
}
