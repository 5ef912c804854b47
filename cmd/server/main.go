package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"

	"github.com/marketlens/resolver-api/internal/auth"
	"github.com/marketlens/resolver-api/internal/breaker"
	"github.com/marketlens/resolver-api/internal/cache"
	"github.com/marketlens/resolver-api/internal/config"
	"github.com/marketlens/resolver-api/internal/database"
	"github.com/marketlens/resolver-api/internal/providers"
	"github.com/marketlens/resolver-api/internal/ratelimit"
	"github.com/marketlens/resolver-api/internal/resolution"
	"github.com/marketlens/resolver-api/internal/streaming"
	"github.com/marketlens/resolver-api/pkg/middleware"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the resolution API server with graceful
// shutdown support
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Redis backs the L1 cache and the distributed limiters; without it the
	// service runs on the relational tier and in-process limiters alone.
	var rdb redis.UniversalClient
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			zlog.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, continuing without L1 cache")
			rdb = nil
		}
		pingCancel()
	}

	// Cache tiers
	ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
	nameTTL := time.Duration(cfg.Cache.NameTTLSec) * time.Second
	l2 := cache.NewGormStore(db, zlog.Logger)
	var l1 cache.Store = l2
	if rdb != nil {
		l1 = cache.NewRedisStore(rdb, zlog.Logger)
	}
	repo := cache.NewTiered(l1, l2, ttl, nameTTL, zlog.Logger)

	sweeper := cache.NewSweeper(repo, cfg.Cache.SweepSchedule, zlog.Logger)
	if err := sweeper.Start(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start cache sweeper")
	}
	defer sweeper.Stop()

	// Provider chain: Alpha Vantage first, Finnhub as fallback, each behind
	// its own rate limiter and circuit breaker.
	breakerSettings := breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Breaker.RecoveryTimeoutSec) * time.Second,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}

	var chained []providers.InstrumentedProvider
	if cfg.AlphaVantage.Enabled {
		av := providers.NewAlphaVantage(
			cfg.AlphaVantage.Endpoint,
			cfg.AlphaVantage.APIKey,
			time.Duration(cfg.AlphaVantage.TimeoutSec)*time.Second,
			zlog.Logger,
		)
		chained = append(chained, providers.NewInstrumented(
			av,
			providerLimiter(rdb, "alphavantage", cfg.AlphaVantage.MaxRequestsPerMinute),
			breaker.New("alphavantage", breakerSettings, zlog.Logger),
			zlog.Logger,
		))
	}
	if cfg.Finnhub.Enabled {
		fh := providers.NewFinnhub(
			cfg.Finnhub.Endpoint,
			cfg.Finnhub.APIKey,
			time.Duration(cfg.Finnhub.TimeoutSec)*time.Second,
			zlog.Logger,
		)
		chained = append(chained, providers.NewInstrumented(
			fh,
			providerLimiter(rdb, "finnhub", cfg.Finnhub.MaxRequestsPerMinute),
			breaker.New("finnhub", breakerSettings, zlog.Logger),
			zlog.Logger,
		))
	}
	if len(chained) == 0 {
		zlog.Fatal().Msg("No providers enabled, refusing to start")
	}
	chain := providers.NewChain(zlog.Logger, chained...)

	reverse := providers.NewReverseLookup(
		cfg.OpenFIGI.Endpoint,
		cfg.OpenFIGI.APIKey,
		time.Duration(cfg.OpenFIGI.TimeoutSec)*time.Second,
		zlog.Logger,
	)

	history := resolution.NewHistoryRecorder(db, zlog.Logger)
	service := resolution.NewService(repo, chain, reverse, history, cfg.RequestTimeout(), zlog.Logger)

	// Per-tier admission limiters
	tierLimiters := make(map[string]ratelimit.Limiter, len(cfg.Tiers))
	for tier, limit := range cfg.Tiers {
		tierLimiters[tier] = tierLimiter(rdb, tier, limit)
	}
	handlers := resolution.NewGinHandlers(service, tierLimiters)

	authService := auth.NewService(cfg.Server.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, "free")

	// Initialize router
	router := gin.Default()
	router.Use(middleware.RequestID())
	router.Use(middleware.RateLimit())
	router.Use(middleware.TierAuth(cfg.Server.JWTSecret))

	setupRoutes(router, handlers, authHandlers)

	// Streaming gateway shares one upstream socket across all clients
	if cfg.Streaming.Enabled {
		hub := streaming.NewHub(zlog.Logger)
		feed := streaming.NewFeed(cfg.Streaming.FeedURL, cfg.Streaming.APIKey, hub, zlog.Logger)
		if err := feed.Start(); err != nil {
			zlog.Warn().Err(err).Msg("Price feed not connected yet, reconnecting in background")
		}
		defer feed.Stop()
	}

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// providerLimiter builds the per-provider outbound budget: distributed over
// Redis when available, in-process otherwise.
func providerLimiter(rdb redis.UniversalClient, name string, maxPerMinute int) ratelimit.Limiter {
	cfg := ratelimit.Config{MaxRequests: maxPerMinute, Window: time.Minute}
	if rdb != nil {
		return ratelimit.NewRedisSlidingWindow("provider:"+name, cfg, rdb, zlog.Logger)
	}
	return ratelimit.NewSlidingWindow("provider:"+name, cfg)
}

func tierLimiter(rdb redis.UniversalClient, tier string, limit config.TierLimit) ratelimit.Limiter {
	cfg := ratelimit.Config{
		MaxRequests: limit.MaxRequests,
		Window:      time.Duration(limit.WindowSec) * time.Second,
	}
	if rdb != nil {
		return ratelimit.NewRedisSlidingWindow("tier:"+tier, cfg, rdb, zlog.Logger)
	}
	return ratelimit.NewSlidingWindow("tier:"+tier, cfg)
}

// setupRoutes configures all API endpoints and their handlers
func setupRoutes(router *gin.Engine, handlers *resolution.GinHandlers, authHandlers *auth.GinHandlers) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		search := v1.Group("/search")
		{
			search.GET("", handlers.SearchHandler())
			search.GET("/name", handlers.SearchByNameHandler())
		}

		v1.GET("/stats", handlers.StatsHandler())
	}
}
