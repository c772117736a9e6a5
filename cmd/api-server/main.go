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
	"golang.org/x/time/rate"

	"mobius/database"
	"mobius/internal/config"
	"mobius/internal/microservices/http-api/handler"
	"mobius/internal/microservices/http-api/middleware"
	"mobius/internal/microservices/http-api/repository"
	"mobius/internal/microservices/http-api/service"
	"mobius/internal/microservices/websocket"
	"mobius/internal/progress"
	"mobius/internal/providers"
)

func main() {
	// 1️⃣ Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// 2️⃣ Connect to the database
	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	// 3️⃣ Progress bus (Redis pub/sub), shared redis client for caching
	bus, err := progress.NewRedisBus(cfg.RedisAddr, cfg.RedisPassword, logger)
	if err != nil {
		log.Fatalf("could not connect to redis: %v", err)
	}
	defer bus.Close()

	// 4️⃣ Repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	modelRepo := repository.NewModelRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)

	// 5️⃣ Provider worker pool + dispatcher
	pool := providers.NewWorkerPool(cfg.ProviderWorkers, logger)
	pool.Start()
	defer pool.Shutdown()

	dispatcher := providers.NewDispatcher(
		pool,
		modelRepo,
		bus.Client(),
		cfg.QuoteCacheTTL,
		logger,
		providers.NewIMaterialise(cfg.IMaterialiseAPIURL, cfg.IMaterialiseToolID),
		providers.NewSculpteo(cfg.SculpteoAPIURL),
	)

	// 6️⃣ Services
	authService := service.NewAuthService(userRepo, refreshTokenRepo, cfg)
	uploadService := service.NewUploadService(modelRepo, cfg.MaxFilenameLen, cfg.MaxUploadBytes, logger)
	quoteService := service.NewQuoteService(dispatcher, quoteRepo, bus.Client(), cfg.QuoteCacheTTL, bus, logger)

	// 7️⃣ Handlers
	authHandler := handler.NewAuthHandler(authService)
	uploadHandler := handler.NewUploadHandler(uploadService, bus, cfg.UploadTmpDir, cfg.MaxUploadBytes, logger)
	quoteHandler := handler.NewQuoteHandler(quoteService, uploadService, logger)

	// 8️⃣ Setup Gin
	r := gin.Default()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.RateLimitMiddleware(rate.Limit(20), 40))

	r.GET("/check-conn", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"message": "API is alive and database connected ✅",
		})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/create", authHandler.Register) // legacy path used by the upload form
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.POST("/revoke", authHandler.RevokeToken)
		auth.POST("/logout", authHandler.RevokeToken)
	}

	authorized := r.Group("/")
	authorized.Use(middleware.AuthMiddleware(authService))
	{
		authorized.POST("/upload", uploadHandler.Upload)
		authorized.GET("/quote", quoteHandler.GetQuotes)
		authorized.GET("/provider_upload", quoteHandler.PushToProviders)
		authorized.GET("/quote_history", quoteHandler.QuoteHistory)
		authorized.GET("/models", quoteHandler.ListModels)
		authorized.DELETE("/models/:id", quoteHandler.DeleteModel)
		authorized.GET("/ws/providers", websocket.ProvidersHandler(dispatcher, logger))
		authorized.GET("/ws/upload_progress", websocket.UploadProgressHandler(bus, logger))
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		fmt.Println("🚀 Server running at", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT/SIGTERM, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
