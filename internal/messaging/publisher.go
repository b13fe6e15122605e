package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"foundry/shared/interfaces"
	"foundry/shared/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultCampaignQueue - очередь запросов на рассылку.
const DefaultCampaignQueue = "campaign_requests"

// CampaignPublisher публикует запросы на рассылку в очередь через default exchange.
type CampaignPublisher struct {
	ch        *amqp.Channel
	queueName string
	mu        sync.Mutex
	logger    *zap.Logger
}

var _ interfaces.CampaignPublisher = (*CampaignPublisher)(nil)

// NewCampaignPublisher открывает канал и объявляет durable очередь.
// Соединение conn управляется вызывающим кодом.
func NewCampaignPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*CampaignPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	if queueName == "" {
		queueName = DefaultCampaignQueue
	}
	log := logger.Named("CampaignPublisher")

	ch, err := conn.Channel()
	if err != nil {
		log.Error("Failed to open a channel", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareQueue(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}
	log.Info("Campaign queue declared", zap.String("queue", queueName))

	return &CampaignPublisher{ch: ch, queueName: queueName, logger: log}, nil
}

// PublishCampaign публикует запрос на рассылку.
func (p *CampaignPublisher) PublishCampaign(ctx context.Context, req models.CampaignRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign request: %w", err)
	}
	messageID := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx,
		"",          // default exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish campaign request", zap.String("newsId", req.NewsID), zap.Error(err))
		return fmt.Errorf("failed to publish campaign request: %w", err)
	}
	p.logger.Info("Campaign request queued",
		zap.String("messageId", messageID),
		zap.String("newsId", req.NewsID),
		zap.String("reason", req.Reason),
	)
	return nil
}

// Close закрывает канал.
func (p *CampaignPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", name, err)
	}
	return nil
}
