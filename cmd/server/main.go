package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/taruvi/internal/api"
	"github.com/hugh/taruvi/internal/audit"
	"github.com/hugh/taruvi/internal/auth"
	"github.com/hugh/taruvi/internal/database"
	"github.com/hugh/taruvi/internal/invitations"
	"github.com/hugh/taruvi/internal/orgs"
	"github.com/hugh/taruvi/internal/permissions"
	"github.com/hugh/taruvi/internal/tenants"
	"github.com/hugh/taruvi/pkg/config"
	"github.com/hugh/taruvi/pkg/queue"
	"github.com/hugh/taruvi/pkg/util"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	logger.Info("starting taruvi server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("failed to connect to Redis", "error", err)
		redisClient = nil
	}

	// Asynq client and inspector for background job enqueuing and status
	var (
		asynqClient *asynq.Client
		inspector   *asynq.Inspector
	)
	if redisClient != nil {
		asynqClient = queue.NewClient(&cfg.Redis)
		inspector = queue.NewInspector(&cfg.Redis)
	}

	// Initialize services
	permStore := permissions.NewStore(db)
	recorder := audit.NewRecorder(db)
	orgService := orgs.NewService(db, permStore, recorder, logger)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	authService := auth.NewService(db, jwtService, orgService)
	// A nil *asynq.Client must not leak into the Enqueuer interfaces as a
	// typed nil.
	var (
		tenantQueue tenants.Enqueuer
		invQueue    invitations.Enqueuer
	)
	if asynqClient != nil {
		tenantQueue = asynqClient
		invQueue = asynqClient
	}
	tenantService := tenants.NewService(db, recorder, tenantQueue, logger)
	invitationService := invitations.NewService(db, permStore, recorder, invQueue, cfg.Invitations.TTL(), logger)

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:                db,
		Redis:             redisClient,
		Logger:            logger,
		JWTService:        jwtService,
		AuthService:       authService,
		OrgService:        orgService,
		InvitationService: invitationService,
		TenantService:     tenantService,
		Inspector:         inspector,
		RateLimitReqs:     cfg.RateLimit.Requests,
		RateLimitSecs:     cfg.RateLimit.WindowSeconds,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Close Asynq client
	if asynqClient != nil {
		asynqClient.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	// Close database connection
	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("server stopped")
}
