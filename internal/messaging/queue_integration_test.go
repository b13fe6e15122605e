//go:build integration

package messaging

import (
	"context"
	"testing"
	"time"

	"foundry/shared/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func TestCampaignQueue_PublishAndConsume(t *testing.T) {
	ctx := context.Background()

	rmqContainer, err := rabbitmq.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Server startup complete")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rmqContainer.Terminate(ctx) })

	amqpURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)
	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := zap.NewNop()
	publisher, err := NewCampaignPublisher(conn, "campaign_requests_test", logger)
	require.NoError(t, err)
	defer publisher.Close()

	done := make(chan models.CampaignRequest, 1)
	runner := new(mockRunner)
	runner.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { done <- args.Get(1).(models.CampaignRequest) }).
		Return(&models.CampaignResult{OK: true, Total: 1}, nil)

	consumer := NewConsumer(conn, "campaign_requests_test", 2, NewProcessor(runner, time.Minute, logger), logger)
	go func() { _ = consumer.Start(ctx) }()
	defer consumer.Stop()

	require.NoError(t, publisher.PublishCampaign(ctx, models.CampaignRequest{NewsID: "launch-day", Reason: "news-published"}))

	select {
	case got := <-done:
		require.Equal(t, "launch-day", got.NewsID)
		require.Equal(t, "news-published", got.Reason)
	case <-time.After(30 * time.Second):
		t.Fatal("campaign request was not consumed")
	}
}
