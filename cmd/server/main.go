package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/aircast/backend/config"
	"github.com/aircast/backend/internal/audio"
	"github.com/aircast/backend/internal/auth"
	"github.com/aircast/backend/internal/cache"
	"github.com/aircast/backend/internal/database"
	"github.com/aircast/backend/internal/handlers"
	"github.com/aircast/backend/internal/middleware"
	"github.com/aircast/backend/internal/models"
	"github.com/aircast/backend/internal/repository"
	"github.com/aircast/backend/internal/signaling"
	"github.com/aircast/backend/internal/station"
	"github.com/aircast/backend/internal/telemetry"
	"github.com/aircast/backend/internal/websocket"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if lvl, err := zerolog.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database (optional: history recording)
	var history *repository.HistoryRepository
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(cfg.GetDSN())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		logger.Info().Msg("running database migrations")
		if err := database.RunMigrations(db.DB); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		history = repository.NewHistoryRepository(db)
	}

	// Connect to Redis (optional: stats mirroring and live directory cache)
	var redis *cache.RedisClient
	if cfg.Redis.Enabled {
		redis, err = cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to Redis, running without it")
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	// Audio engine
	devices := audio.NewSilentDeviceManager(cfg.Audio.MaxMicInputs)
	engine := audio.NewEngine(audio.Config{
		SampleRate:       cfg.Audio.SampleRate,
		FrameDuration:    cfg.Audio.FrameDuration,
		MasterVolume:     cfg.Audio.MasterVolume,
		LimiterThreshold: cfg.Audio.LimiterThreshold,
	}, devices, logger)
	go engine.Run(ctx)

	// Hub and station
	hub := websocket.NewHub(logger)
	st := station.New(hub, engine, cfg.Station.MaxActiveCalls, cfg.Station.CallExpiry, logger)
	if history != nil {
		st.SetHistory(history)
	}
	if redis != nil {
		st.SetCountPublisher(redis)
	}
	go st.RunExpiry(ctx, cfg.Station.ExpirySweepEvery)

	// Signaling coordinator
	coordinator := signaling.New(st, hub, models.MediaConfig{
		Codec:      cfg.Audio.DefaultCodec,
		SampleRate: cfg.Audio.SampleRate,
		Bitrate:    cfg.Audio.DefaultBitrate,
		Channels:   cfg.Audio.DefaultChannels,
	}, logger)

	// Telemetry monitor
	var publisher telemetry.StatsPublisher
	if redis != nil {
		publisher = redis
	}
	monitor := telemetry.New(st, hub, hub, publisher, cfg.Telemetry.AlertCooldown, logger)
	go monitor.Run(ctx, cfg.Telemetry.StatsInterval)

	hub.OnDisconnect(st)
	hub.OnDisconnect(monitor)
	go hub.Run()

	if redis != nil {
		go mirrorDirectory(ctx, st, redis, cfg.Telemetry.StatsInterval, logger)
	}

	// WebSocket handler
	tokens := auth.NewTokenService(cfg.Station.TokenSecret, 24)
	wsHandler := websocket.NewHandler(hub, st, coordinator, monitor, tokens, cfg.CORS.AllowedOrigins, logger)

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.Telemetry.RateLimitRPS)
	rateLimiter.Cleanup()

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// WebSocket endpoint
	router.GET("/ws", wsHandler.HandleWebSocket)

	// REST surface
	var directory handlers.Directory
	if redis != nil {
		directory = redis
	}
	broadcastHandler := handlers.NewBroadcastHandler(st, monitor, engine, history, directory)
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rateLimiter))
	{
		api.GET("/broadcasts", broadcastHandler.ListBroadcasts)
		api.GET("/broadcasts/:id", broadcastHandler.GetBroadcast)
		api.GET("/stats", broadcastHandler.GetServerStats)
		api.GET("/levels", broadcastHandler.GetLevels)
		api.GET("/history/sessions", broadcastHandler.ListSessions)
		api.GET("/history/broadcasts/:id/calls", broadcastHandler.ListCalls)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}

// mirrorDirectory keeps the Redis live-broadcast directory in sync with
// the local registry so other nodes and dashboards can list broadcasts.
func mirrorDirectory(ctx context.Context, st *station.Station, redis *cache.RedisClient, every time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	previous := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := make(map[string]bool)
			for _, summary := range st.ListBroadcasts() {
				current[summary.ID] = true
				if err := redis.SetBroadcastLive(summary); err != nil {
					logger.Warn().Err(err).Msg("failed to cache broadcast directory entry")
				}
			}
			for id := range previous {
				if !current[id] {
					if err := redis.SetBroadcastOffline(id); err != nil {
						logger.Warn().Err(err).Msg("failed to evict broadcast directory entry")
					}
				}
			}
			previous = current
		}
	}
}
