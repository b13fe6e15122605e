package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foundry/internal/config"
	"foundry/internal/mailer"
	"foundry/internal/messaging"
	"foundry/internal/platform"
	"foundry/internal/service"
	"foundry/shared/database"
	"foundry/shared/interfaces"
	sharedLogger "foundry/shared/logger"

	"go.uber.org/zap"
)

// notifier читает очередь campaign_requests и выполняет рассылки,
// поставленные при публикации новостей.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.Logger.Service == "" {
		cfg.Logger.Service = "foundry-notifier"
	}
	logger, err := sharedLogger.New(cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if cfg.Rabbit.URL == "" {
		logger.Fatal("RABBITMQ_URL is required for the notifier")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	mqConn, err := platform.ConnectRabbitMQ(ctx, cfg.Rabbit.URL, 0, 0, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()

	store := database.NewPgDocumentStore(pool, logger)
	var sender interfaces.EmailSender
	if cfg.Email.ResendAPIKey != "" {
		sender, err = mailer.NewResendSender(cfg.Email.ResendAPIKey, "", logger)
		if err != nil {
			logger.Fatal("Failed to create email sender", zap.Error(err))
		}
	} else {
		logger.Warn("RESEND_API_KEY not set, campaigns will fail until it is configured")
	}
	subscriberSync := mailer.NewMailerLiteClient(cfg.Email.MailerLiteBaseURL, 15*time.Second, logger)

	configSvc, err := service.NewConfigService(store, nil, 0, logger)
	if err != nil {
		logger.Fatal("Failed to create config service", zap.Error(err))
	}
	subscriptionSvc := service.NewSubscriptionService(store, configSvc, subscriberSync, cfg.Email.MailerLiteAPIKey, logger)
	campaignSvc := service.NewCampaignService(store, configSvc, subscriptionSvc, sender, subscriberSync, service.CampaignEnv{
		FromEmail:        cfg.Email.SenderEmail,
		MailerLiteAPIKey: cfg.Email.MailerLiteAPIKey,
		SiteURL:          cfg.Email.SiteURL(),
	}, logger)

	processor := messaging.NewProcessor(campaignSvc, 10*time.Minute, logger)
	consumer := messaging.NewConsumer(mqConn, cfg.Rabbit.CampaignQueue, cfg.Rabbit.Concurrency, processor, logger)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down notifier...")
		consumer.Stop()
		<-done
	case err := <-done:
		if err != nil {
			logger.Fatal("Campaign consumer stopped with error", zap.Error(err))
		}
	}
	logger.Info("Notifier exiting")
}
