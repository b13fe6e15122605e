package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foundry/internal/config"
	"foundry/internal/handler"
	"foundry/internal/llm"
	"foundry/internal/mailer"
	"foundry/internal/messaging"
	"foundry/internal/platform"
	"foundry/internal/service"
	"foundry/internal/storage"
	"foundry/shared/authutils"
	"foundry/shared/database"
	"foundry/shared/interfaces"
	sharedLogger "foundry/shared/logger"
	sharedMiddleware "foundry/shared/middleware"

	rateli "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

const tokenIssuer = "foundry"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "foundry-api"
	}
	logger, err := sharedLogger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	logger.Info("Configuration loaded", zap.String("env", cfg.AppEnv), zap.String("port", cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- External Connections ---
	pool, err := platform.ConnectPostgres(ctx, platform.PostgresOptions{
		URL:             cfg.DB.URL,
		MaxConns:        cfg.DB.MaxConns,
		MaxConnIdleTime: cfg.DB.MaxConnIdleTime,
		ConnectTimeout:  cfg.DB.ConnectTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	var (
		redisClient *redis.Client
		cache       interfaces.Cache
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = platform.ConnectRedis(ctx, platform.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache = database.NewRedisCache(redisClient, cfg.Redis.KeyPrefix, logger)
	} else {
		logger.Info("REDIS_ADDR not set, read cache disabled")
	}

	var publisher interfaces.CampaignPublisher
	if cfg.Rabbit.URL != "" {
		mqConn, err := platform.ConnectRabbitMQ(ctx, cfg.Rabbit.URL, 0, 0, logger)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		campaignPublisher, err := messaging.NewCampaignPublisher(mqConn, cfg.Rabbit.CampaignQueue, logger)
		if err != nil {
			logger.Fatal("Failed to create campaign publisher", zap.Error(err))
		}
		defer campaignPublisher.Close()
		publisher = campaignPublisher
	} else {
		logger.Info("RABBITMQ_URL not set, automatic news notifications disabled")
	}

	// --- Dependency Injection ---
	store := database.NewPgDocumentStore(pool, logger)

	var sender interfaces.EmailSender
	if cfg.Email.ResendAPIKey != "" {
		sender, err = mailer.NewResendSender(cfg.Email.ResendAPIKey, "", logger)
		if err != nil {
			logger.Fatal("Failed to create email sender", zap.Error(err))
		}
	}
	subscriberSync := mailer.NewMailerLiteClient(cfg.Email.MailerLiteBaseURL, 15*time.Second, logger)

	blobs, err := storage.NewLocalBlobStore(storage.Config{
		Dir:           cfg.Storage.Dir,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		UploadBaseURL: cfg.Storage.UploadBaseURL,
		SigningSecret: cfg.Storage.SigningSecret,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize media storage", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Config{
		BaseURL:   cfg.OpenAI.BaseURL,
		MaxTokens: cfg.OpenAI.MaxTokens,
		Timeout:   cfg.OpenAI.Timeout(),
	}, logger)

	configSvc, err := service.NewConfigService(store, cache, cfg.Redis.CacheTTL, logger)
	if err != nil {
		logger.Fatal("Failed to create config service", zap.Error(err))
	}
	usageSvc := service.NewUsageService(store, configSvc, logger)
	contentSvc := service.NewContentService(store, cache, cfg.Redis.CacheTTL, configSvc, publisher, logger)
	subscriptionSvc := service.NewSubscriptionService(store, configSvc, subscriberSync, cfg.Email.MailerLiteAPIKey, logger)
	contactSvc := service.NewContactService(store, configSvc, sender, cfg.Email.SenderEmail, logger)
	campaignSvc := service.NewCampaignService(store, configSvc, subscriptionSvc, sender, subscriberSync, service.CampaignEnv{
		FromEmail:        cfg.Email.SenderEmail,
		MailerLiteAPIKey: cfg.Email.MailerLiteAPIKey,
		SiteURL:          cfg.Email.SiteURL(),
	}, logger)
	mediaSvc := service.NewMediaService(blobs, llmClient, configSvc, usageSvc, logger)
	chatSvc := service.NewChatService(configSvc, llmClient, usageSvc, logger)

	var (
		tokenSigner service.TokenSigner
		verifyToken sharedMiddleware.TokenVerifier
	)
	if cfg.Auth.JWTSecret != "" {
		verifier, err := authutils.NewJWTVerifier(cfg.Auth.JWTSecret, tokenIssuer, logger)
		if err != nil {
			logger.Fatal("Failed to create JWT verifier", zap.Error(err))
		}
		tokenSigner = verifier
		verifyToken = verifier.VerifyToken
	} else {
		logger.Warn("JWT_SECRET not set, only x-ms-client-principal admin auth is accepted")
	}
	authSvc := service.NewAuthService(cfg.Auth.AdminUsername, cfg.Auth.AdminPasswordHash, cfg.Auth.TokenTTL, tokenSigner, logger)

	apiHandler := handler.New(handler.Services{
		Config:        configSvc,
		Content:       contentSvc,
		Subscriptions: subscriptionSvc,
		Contact:       contactSvc,
		Campaigns:     campaignSvc,
		Media:         mediaSvc,
		Chat:          chatSvc,
		Usage:         usageSvc,
		Auth:          authSvc,
	}, blobs, logger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if cfg.AppEnv == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(sharedMiddleware.RequestID())
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", sharedMiddleware.ClientPrincipalHeader}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	apiHandler.RegisterRoutes(
		router.Group("/api"),
		sharedMiddleware.AdminAuth(verifyToken, logger),
		newRateLimiter(redisClient, cfg.Auth.RateLimit, logger),
	)

	p.Use(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		// Потоковый чат держит соединение до конца ответа модели.
		WriteTimeout: cfg.OpenAI.Timeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exiting")
}

// newRateLimiter ограничивает публичные POST по IP. Без Redis счетчики
// хранятся в памяти процесса.
func newRateLimiter(client *redis.Client, perMinute int, logger *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 10
	}
	var store rateli.Store
	if client != nil {
		store = rateli.RedisStore(&rateli.RedisOptions{
			RedisClient: client,
			Rate:        time.Minute,
			Limit:       uint(perMinute),
		})
	} else {
		store = rateli.InMemoryStore(&rateli.InMemoryOptions{
			Rate:  time.Minute,
			Limit: uint(perMinute),
		})
	}
	return rateli.RateLimiter(store, &rateli.Options{
		ErrorHandler: func(c *gin.Context, info rateli.Info) {
			logger.Warn("Rate limit exceeded",
				zap.String("clientIP", c.ClientIP()),
				zap.Time("resetTime", info.ResetTime),
				zap.String("path", c.Request.URL.Path),
			)
			c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
		},
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	})
}
