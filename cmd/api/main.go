package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/vistream/panel/internal/config"
	"github.com/vistream/panel/internal/repository/postgres"
	"github.com/vistream/panel/internal/repository/redis"
	"github.com/vistream/panel/internal/service/cleanup"
	"github.com/vistream/panel/internal/service/quota"
	"github.com/vistream/panel/internal/service/session"
	"github.com/vistream/panel/internal/service/stream"
	transportHttp "github.com/vistream/panel/internal/transport/http"
	"github.com/vistream/panel/internal/transport/http/middleware"
	"github.com/vistream/panel/internal/transport/websocket"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found")
		}
	}

	cfg := config.LoadConfig()
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	// Apply Pool Settings
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMin) * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("Database unreachable:", err)
	}

	log.Println("Running database migrations...")
	if err := postgres.RunMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Repositories (Persistence Layer)
	accountRepo := postgres.NewAccountRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	channelRepo := postgres.NewChannelRepo(db)
	licenseRepo := postgres.NewLicenseRepo(db)
	streamRepo := postgres.NewStreamRepo(db)

	if err := redis.InitRedis(cfg.RedisURL, cfg.RedisPassword); err != nil {
		log.Printf("Failed to initialize Redis: %v", err)
	}
	defer redis.CloseRedis()

	// Setup Redis Cache wrapper if Redis is enabled
	var cache session.CacheRepository
	if redis.IsRedisEnabled() && redis.RedisClient != nil {
		cache = redis.NewRedisCache(redis.RedisClient)
	}

	// Services (Business Logic Layer)
	authService := session.NewAuthService(sessionRepo, accountRepo, cache, []byte(cfg.JWTSecret), cfg.SessionTTL)
	guard := quota.NewGuard(streamRepo, licenseRepo)
	hub := websocket.NewHub()
	streamManager := stream.NewManager(channelRepo, streamRepo, guard, hub, cfg.UpstreamConnectTimeout, cfg.UpstreamReadTimeout)

	// Background worker: expired session sweep and dangling stream recovery
	cleanupWorker := cleanup.NewWorker(sessionRepo, streamRepo, streamManager, cfg.CleanupInterval, cfg.StreamGracePeriod)
	cleanupWorker.Start()

	// HTTP Handlers (API Layer)
	authHandler := transportHttp.NewAuthHandler(authService)
	oauthHandler := transportHttp.NewOAuthHandler(accountRepo, authService, &cfg.OAuthConfig, cfg.FrontendURL)
	channelHandler := transportHttp.NewChannelHandler(channelRepo)
	streamHandler := transportHttp.NewStreamHandler(streamManager)
	usageHandler := transportHttp.NewUsageHandler(streamRepo)
	wsHandler := websocket.NewHandler(hub)

	// Gin Router
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware())

	authMW := middleware.AuthMiddleware(authService)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public Auth Routes
	router.POST("/api/auth/login", authHandler.Login)
	router.GET("/api/auth/google/login", oauthHandler.GoogleLogin)
	router.GET("/api/auth/google/callback", oauthHandler.GoogleCallback)

	// Protected Routes
	protected := router.Group("/")
	protected.Use(authMW)
	{
		protected.POST("/api/auth/logout", authHandler.Logout)
		protected.GET("/api/auth/me", authHandler.Me)
		protected.GET("/api/sessions", authHandler.Sessions)

		protected.GET("/api/channels", channelHandler.List)

		protected.GET("/api/streams/:id/play", streamHandler.Play)
		protected.GET("/api/streams/:id/proxy", streamHandler.Proxy)
		protected.POST("/api/streams/:id/stop", streamHandler.Stop)

		protected.GET("/api/usage", usageHandler.Summary)
		protected.GET("/api/usage/active", usageHandler.Active)
		protected.GET("/api/usage/history", usageHandler.History)

		// Live activity feed (upgrade happens after auth)
		protected.GET("/ws/activity", wsHandler.HandleActivity)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
