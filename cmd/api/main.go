package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendx/internal/attendance"
	"attendx/internal/config"
	"attendx/internal/handler"
	"attendx/internal/httpmiddleware"
	"attendx/internal/insights"
	"attendx/internal/queue"
	"attendx/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	redisClient := store.NewRedis(cfg.RedisAddr)

	st, dbClose, err := buildStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer dbClose()

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "attendx:submissions")
	} else {
		q = queue.NewInMemory(64)
	}

	notifier := attendance.NewNotifier()
	validator := attendance.NewValidator(st, notifier, nil, cfg.KeyExpiry)
	lifecycle := attendance.NewLifecycle(st.Sessions, notifier, nil, cfg.SessionRadius)
	aggregator := attendance.NewAggregator(st.Sessions, st.Records)
	summarizer := insights.New(cfg.InsightsURL, cfg.InsightsAPIKey)
	if cfg.InsightsAPIKey == "" {
		log.Println("insights not configured (INSIGHTS_API_KEY not set), summaries will degrade")
	}

	h := handler.New(cfg, st, validator, lifecycle, aggregator, notifier, summarizer, q)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := cfg.QueueBackend != "redis" || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "store": cfg.StoreBackend})
	})

	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}

// buildStore assembles the collaborator stores from config: in-memory by
// default, Postgres when configured, with device locks optionally in Redis.
func buildStore(cfg config.App, redisClient *store.Redis) (store.Store, func(), error) {
	var st store.Store
	closeFn := func() {}

	if cfg.StoreBackend == "postgres" {
		db, err := store.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return store.Store{}, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return store.Store{}, nil, err
		}
		st = pg.Bundle()
		closeFn = func() { _ = db.Close() }
	} else {
		st = store.NewMemory().Bundle()
	}

	if cfg.LockBackend == "redis" {
		st.Locks = store.NewRedisLocks(redisClient.Client, "attendx:lock")
	}
	return st, closeFn, nil
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
