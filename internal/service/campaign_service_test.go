package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"foundry/internal/mocks"
	"foundry/shared/interfaces"
	"foundry/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCampaigns(t *testing.T, store *mocks.MemoryDocumentStore, cfg map[string]any, sender *mocks.EmailSender, sync *mocks.SubscriberSync) *CampaignService {
	t.Helper()
	config := newTestConfig(t, store, cfg)
	subs := NewSubscriptionService(store, config, nil, "", zap.NewNop())
	svc := NewCampaignService(store, config, subs, nil, nil, CampaignEnv{SiteURL: "https://foundry.dev/"}, zap.NewNop())
	if sender != nil {
		svc.sender = sender
	}
	if sync != nil {
		svc.sync = sync
	}
	svc.now = fixedClock
	return svc
}

func seedSubscribers(store *mocks.MemoryDocumentStore) {
	store.Seed(models.ContainerSubscribers, "a@example.com", map[string]any{"id": "a@example.com", "email": "a@example.com", "status": "active", "subscribeAll": true})
	store.Seed(models.ContainerSubscribers, "b@example.com", map[string]any{"id": "b@example.com", "email": "b@example.com", "status": "active", "subscribeAll": true})
	store.Seed(models.ContainerSubscribers, "c@example.com", map[string]any{"id": "c@example.com", "email": "c@example.com", "status": "active", "subscribeAll": true})
	store.Seed(models.ContainerSubscribers, "d@example.com", map[string]any{"id": "d@example.com", "email": "d@example.com", "status": "unsubscribed", "subscribeAll": true})
	store.Seed(models.ContainerSubscribers, "e@example.com", map[string]any{
		"id": "e@example.com", "email": "e@example.com", "status": "active", "subscribeAll": false, "platformIds": []any{"edge"},
	})
}

func TestHydrateTemplate(t *testing.T) {
	out := HydrateTemplate("Hi {{name}}, {{name}}! {{missing}}", map[string]string{"name": "Ada"})
	assert.Equal(t, "Hi Ada, Ada! {{missing}}", out)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, Chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, Chunk([]string{"a", "b"}, 0))
	assert.Empty(t, Chunk(nil, 3))
}

func TestBatchSize(t *testing.T) {
	size := func(n int) *int { return &n }
	assert.Equal(t, 490, BatchSize(models.EmailSettings{}))
	assert.Equal(t, 25, BatchSize(models.EmailSettings{BatchSize: size(25)}))
	assert.Equal(t, 490, BatchSize(models.EmailSettings{BatchSize: size(1000)}))
	assert.Equal(t, 490, BatchSize(models.EmailSettings{BatchSize: size(0)}))
}

func TestMatchSubscribers(t *testing.T) {
	subs := []models.Subscriber{
		{Email: "all@example.com", SubscribeAll: boolPtr(true)},
		{Email: "edge@example.com", SubscribeAll: boolPtr(false), PlatformIDs: []string{"edge"}},
		{Email: "core@example.com", PlatformIDs: []string{"core"}},
		{Email: "gone@example.com", SubscribeAll: boolPtr(true), Status: models.SubscriberUnsubscribed},
	}
	emails := func(list []models.Subscriber) []string {
		out := []string{}
		for _, s := range list {
			out = append(out, s.Email)
		}
		return out
	}

	assert.Equal(t, []string{"all@example.com", "edge@example.com", "core@example.com"}, emails(MatchSubscribers(subs, true, nil)))
	assert.Equal(t, []string{"all@example.com", "edge@example.com"}, emails(MatchSubscribers(subs, false, []string{"edge"})))
	assert.Equal(t, []string{"all@example.com"}, emails(MatchSubscribers(subs, false, nil)))
}

func TestSend_NoSubscribers(t *testing.T) {
	sender := &mocks.EmailSender{}
	svc := newTestCampaigns(t, mocks.NewMemoryDocumentStore(), map[string]any{
		"emailSettings": map[string]any{"fromEmail": "news@foundry.dev"},
	}, sender, nil)

	res, err := svc.Send(context.Background(), models.CampaignRequest{})
	require.NoError(t, err)
	assert.Equal(t, &models.CampaignResult{OK: true, Message: "No subscribers matched filter", Campaigns: []string{}, Total: 0}, res)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSend_BatchesWithNewsSection(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	seedSubscribers(store)
	store.Seed(models.ContainerPlatforms, "edge", map[string]any{"id": "edge", "name": "Edge"})
	store.Seed(models.ContainerNews, "launch", map[string]any{
		"id":          "launch",
		"title":       "Launch day",
		"type":        "Announcement",
		"status":      "Published",
		"summary":     "Line one\nLine two\n\nSecond paragraph",
		"content":     "Ship it **today**.",
		"links":       map[string]any{"Docs": "https://docs.foundry.dev"},
		"platformIds": []any{"edge"},
	})
	sender := &mocks.EmailSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return("re_1", nil).Once()
	sender.On("Send", mock.Anything, mock.Anything).Return("", nil).Once()
	svc := newTestCampaigns(t, store, map[string]any{
		"emailSettings": map[string]any{"fromEmail": "news@foundry.dev", "fromName": "Foundry", "batchSize": 2},
	}, sender, nil)

	res, err := svc.Send(context.Background(), models.CampaignRequest{NewsID: "launch"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 4, res.Total)
	require.Len(t, res.Campaigns, 2)
	assert.Equal(t, "re_1", res.Campaigns[0])
	assert.True(t, strings.HasPrefix(res.Campaigns[1], "send-"))
	assert.Equal(t, "Queued 2 campaign(s) across 4 subscribers (batch size 2).", res.Message)

	require.Len(t, sender.Calls, 2)
	first := sender.Calls[0].Arguments.Get(1).(interfaces.Email)
	second := sender.Calls[1].Arguments.Get(1).(interfaces.Email)

	assert.Equal(t, "Foundry <news@foundry.dev>", first.From)
	assert.Equal(t, []string{"news@foundry.dev"}, first.To)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, first.Bcc)
	assert.Equal(t, []string{"c@example.com", "e@example.com"}, second.Bcc)
	assert.Equal(t, "batch-1", first.Headers["X-Foundry-Send"])
	assert.Equal(t, "batch-2", second.Headers["X-Foundry-Send"])
	assert.Equal(t, "Foundry update: Launch day", first.Subject)

	assert.Contains(t, first.HTML, "New update: Launch day")
	assert.Contains(t, first.HTML, "<strong>today</strong>")
	assert.Contains(t, first.HTML, "Line one<br />Line two")
	assert.Contains(t, first.HTML, "Related platform: Edge")
	assert.Contains(t, first.HTML, "Announcement")
	assert.Contains(t, first.HTML, `href="https://foundry.dev/news/launch"`)
	assert.Contains(t, first.HTML, `href="https://foundry.dev/subscribe"`)
	assert.Contains(t, first.HTML, `href="https://docs.foundry.dev"`)

	stats := store.Doc(models.ContainerConfig, models.EmailStatsID)
	require.NotNil(t, stats)
	assert.EqualValues(t, 4, stats["totalSent"])
	assert.EqualValues(t, 1, stats["totalCampaigns"])
	assert.Equal(t, "2026-03-14T09:26:53.589Z", stats["lastSentAt"])
}

func TestSend_PlatformFilterAndSync(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	seedSubscribers(store)
	sender := &mocks.EmailSender{}
	sync := &mocks.SubscriberSync{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(e interfaces.Email) bool {
		return e.Subject == "Edge news" && e.HTML == "<p>Edge</p>"
	})).Return("re_9", nil).Once()
	sync.On("UpsertSubscriber", mock.Anything, "ml-key", mock.Anything, mock.Anything).Return("ml", nil)
	svc := newTestCampaigns(t, store, map[string]any{
		"emailSettings": map[string]any{"fromEmail": "news@foundry.dev", "mailerLiteApiKey": "ml-key"},
	}, sender, sync)

	res, err := svc.Send(context.Background(), models.CampaignRequest{
		PlatformIDs: []string{"edge"},
		Subject:     "Edge news",
		HTML:        "<p>Edge</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total, "subscribeAll readers plus the edge reader")
	sender.AssertExpectations(t)
	sync.AssertNumberOfCalls(t, "UpsertSubscriber", 4)
}

func TestSend_FailureIsRecorded(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	seedSubscribers(store)
	svc := newTestCampaigns(t, store, nil, &mocks.EmailSender{}, nil)

	_, err := svc.Send(context.Background(), models.CampaignRequest{})
	require.Error(t, err)
	assert.Equal(t, "Missing fromEmail (set Admin > Email settings or EMAIL_SENDER env var)", err.Error())

	stats := store.Doc(models.ContainerConfig, models.EmailStatsID)
	require.NotNil(t, stats)
	assert.EqualValues(t, 1, stats["totalFailed"])
	assert.Equal(t, err.Error(), stats["lastError"])
}

func TestSend_BatchError(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	seedSubscribers(store)
	sender := &mocks.EmailSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return("", errors.New("rate limited")).Once()
	svc := newTestCampaigns(t, store, map[string]any{
		"emailSettings": map[string]any{"fromEmail": "news@foundry.dev"},
	}, sender, nil)

	_, err := svc.Send(context.Background(), models.CampaignRequest{})
	require.Error(t, err)
	assert.Equal(t, "send batch 1: rate limited", err.Error())
}

func TestStats(t *testing.T) {
	store := mocks.NewMemoryDocumentStore()
	seedSubscribers(store)
	store.Seed(models.ContainerConfig, models.EmailStatsID, map[string]any{
		"id": models.EmailStatsID, "totalSent": 12, "totalFailed": 1, "totalCampaigns": 3, "lastSentAt": "2026-03-01T00:00:00.000Z",
	})
	svc := newTestCampaigns(t, store, nil, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &EmailDashboard{
		Active:         4,
		Unsubscribed:   1,
		Total:          5,
		TotalSent:      12,
		TotalFailed:    1,
		TotalCampaigns: 3,
		LastSentAt:     "2026-03-01T00:00:00.000Z",
	}, stats)
}

// slowSync считает одновременные вызовы MailerLite.
type slowSync struct {
	mu      sync.Mutex
	active  int
	peak    int
	calls   []string
	failFor string
}

func (s *slowSync) UpsertSubscriber(_ context.Context, _, email string, _ []string) (string, error) {
	s.mu.Lock()
	s.active++
	if s.active > s.peak {
		s.peak = s.active
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.calls = append(s.calls, email)
	s.mu.Unlock()
	if email == s.failFor {
		return "", errors.New("mailerlite down")
	}
	return "ml-" + email, nil
}

func (s *slowSync) UpdateSubscriberStatus(context.Context, string, string, string) error {
	return nil
}

func TestSyncBatch_BoundedAndFailuresDoNotStopOthers(t *testing.T) {
	fake := &slowSync{failFor: "user-3@example.com"}
	svc := newTestCampaigns(t, mocks.NewMemoryDocumentStore(), nil, nil, nil)
	svc.sync = fake

	batch := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		batch = append(batch, fmt.Sprintf("user-%d@example.com", i))
	}
	svc.syncBatch(context.Background(), "ml-key", models.EmailSettings{}, batch, map[string]models.Subscriber{})

	assert.ElementsMatch(t, batch, fake.calls)
	assert.LessOrEqual(t, fake.peak, syncConcurrency)
	assert.Greater(t, fake.peak, 1)
}

func TestSyncBatch_SkippedWithoutKey(t *testing.T) {
	fake := &slowSync{}
	svc := newTestCampaigns(t, mocks.NewMemoryDocumentStore(), nil, nil, nil)
	svc.sync = fake

	svc.syncBatch(context.Background(), "", models.EmailSettings{}, []string{"a@example.com"}, nil)
	assert.Empty(t, fake.calls)
}
