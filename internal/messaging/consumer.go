package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"foundry/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// CampaignRunner выполняет рассылку. Реализуется сервисом кампаний.
type CampaignRunner interface {
	Send(ctx context.Context, req models.CampaignRequest) (*models.CampaignResult, error)
}

// Consumer читает очередь рассылок пулом воркеров. QoS равен числу воркеров.
type Consumer struct {
	conn        *amqp.Connection
	logger      *zap.Logger
	queueName   string
	concurrency int
	processor   *Processor
	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, queueName string, concurrency int, processor *Processor, logger *zap.Logger) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueName == "" {
		queueName = DefaultCampaignQueue
	}
	return &Consumer{
		conn:        conn,
		logger:      logger.Named("CampaignConsumer"),
		queueName:   queueName,
		concurrency: concurrency,
		processor:   processor,
		stopChannel: make(chan struct{}),
	}
}

// Start блокируется до вызова Stop, отмены ctx или закрытия канала брокером.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, c.queueName); err != nil {
		return err
	}
	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := ch.Consume(
		c.queueName,
		"campaign-notifier", // consumer tag
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	c.logger.Info("Consumer started", zap.String("queue", c.queueName), zap.Int("concurrency", c.concurrency))

	c.wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer c.wg.Done()
			log := c.logger.With(zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stopChannel:
					return
				case d, ok := <-msgs:
					if !ok {
						log.Info("Delivery channel closed, worker exiting")
						cancel()
						return
					}
					c.processor.ProcessMessage(ctx, d)
				}
			}
		}(i)
	}

	select {
	case <-c.stopChannel:
	case <-ctx.Done():
	}
	cancel()
	c.wg.Wait()
	c.logger.Info("All consumer workers stopped")
	return nil
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopChannel) })
}

// Processor обрабатывает одно сообщение очереди.
type Processor struct {
	runner  CampaignRunner
	timeout time.Duration
	logger  *zap.Logger
}

func NewProcessor(runner CampaignRunner, timeout time.Duration, logger *zap.Logger) *Processor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Processor{runner: runner, timeout: timeout, logger: logger.Named("CampaignProcessor")}
}

// ProcessMessage отправляет рассылку. Битые сообщения и ошибки конфигурации
// отбрасываются, ошибки провайдера возвращаются в очередь один раз.
func (p *Processor) ProcessMessage(ctx context.Context, d amqp.Delivery) {
	log := p.logger.With(zap.Uint64("delivery_tag", d.DeliveryTag), zap.String("message_id", d.MessageId))

	var req models.CampaignRequest
	if err := json.Unmarshal(d.Body, &req); err != nil {
		log.Error("Failed to decode campaign request", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Nack failed", zap.Error(nackErr))
		}
		return
	}

	processCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.runner.Send(processCtx, req)
	if err != nil {
		requeue := !d.Redelivered && errors.Is(err, models.ErrUpstream)
		log.Error("Campaign send failed", zap.String("newsId", req.NewsID), zap.Bool("requeue", requeue), zap.Error(err))
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error("Nack failed", zap.Error(nackErr))
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("Ack failed", zap.Error(ackErr))
	}
	log.Info("Campaign request processed",
		zap.String("newsId", req.NewsID),
		zap.Int("total", result.Total),
		zap.Strings("campaigns", result.Campaigns),
	)
}
