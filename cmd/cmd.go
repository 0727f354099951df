package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/directory"
	"piccsync-backend/internal/handlers"
	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/repository"
	"piccsync-backend/internal/services"
	"piccsync-backend/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	// Connect to object storage
	objects, err := storage.NewS3(ctx, storage.Config{
		Endpoint:       cfg.Storage.Endpoint,
		Region:         cfg.Storage.Region,
		Bucket:         cfg.Storage.Bucket,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}

	// The account directory is optional when tokens are verified locally
	var dir services.Directory
	if cfg.Auth.URL != "" {
		dir = directory.NewClient(cfg.Auth.URL, cfg.Auth.ServiceKey)
	} else {
		log.Warn().Msg("Auth URL not set, email invites and admin user listing are disabled")
	}

	// Initialize repositories
	photoRepo := repository.NewPhotoRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	profileRepo := repository.NewProfileRepository(db)

	// Initialize services
	admins := cfg.AdminSet()
	wsHub := services.NewWSHub()
	userService := services.NewUserService(cfg.Auth.JWTSecret, dir, profileRepo)
	photoService := services.NewPhotoService(photoRepo, memberRepo, objects, admins, wsHub)
	groupService := services.NewGroupService(groupRepo, memberRepo, objects, dir, wsHub)

	limiter, closeLimiter := newLimiter(cfg.RateLimit)
	defer closeLimiter()

	router := handlers.NewRouter(handlers.Deps{
		Config:       cfg,
		Admins:       admins,
		UserService:  userService,
		PhotoService: photoService,
		GroupService: groupService,
		Hub:          wsHub,
		Limiter:      limiter,
		Checks: map[string]handlers.Checker{
			"database": db.Ping,
			"storage":  objects.Health,
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("bucket", objects.Bucket()).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// newLimiter picks the shared Redis limiter when an address is configured
func newLimiter(cfg config.RateLimitConfig) (middleware.Limiter, func()) {
	if cfg.Max <= 0 {
		return nil, func() {}
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rate limiter")
		return middleware.NewRedisLimiter(client, "piccsync:ratelimit", cfg.Max, cfg.Window), func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}
	}
	l := middleware.NewMemoryLimiter(cfg.Max, cfg.Window)
	return l, l.Close
}

// setupLogger configures zerolog logger
func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if strings.ToLower(format) != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
