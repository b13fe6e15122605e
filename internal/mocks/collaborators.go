package mocks

import (
	"context"
	"time"

	"foundry/internal/llm"
	"foundry/shared/interfaces"
	"foundry/shared/models"

	"github.com/stretchr/testify/mock"
)

// EmailSender - мок interfaces.EmailSender.
type EmailSender struct {
	mock.Mock
}

func (m *EmailSender) Send(ctx context.Context, email interfaces.Email) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

// SubscriberSync - мок MailerLite клиента.
type SubscriberSync struct {
	mock.Mock
}

func (m *SubscriberSync) UpsertSubscriber(ctx context.Context, apiKey, email string, groups []string) (string, error) {
	args := m.Called(ctx, apiKey, email, groups)
	return args.String(0), args.Error(1)
}

func (m *SubscriberSync) UpdateSubscriberStatus(ctx context.Context, apiKey, idOrEmail, status string) error {
	args := m.Called(ctx, apiKey, idOrEmail, status)
	return args.Error(0)
}

// CampaignPublisher - мок очереди рассылок.
type CampaignPublisher struct {
	mock.Mock
}

func (m *CampaignPublisher) PublishCampaign(ctx context.Context, req models.CampaignRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// BlobStore - мок хранилища медиа.
type BlobStore struct {
	mock.Mock
}

func (m *BlobStore) SignUpload(filename, contentType string) (*interfaces.UploadTicket, error) {
	args := m.Called(filename, contentType)
	ticket, _ := args.Get(0).(*interfaces.UploadTicket)
	return ticket, args.Error(1)
}

func (m *BlobStore) VerifyUpload(token, name, contentType string) error {
	args := m.Called(token, name, contentType)
	return args.Error(0)
}

func (m *BlobStore) Put(ctx context.Context, name, contentType string, data []byte) (*interfaces.StoredBlob, error) {
	args := m.Called(ctx, name, contentType, data)
	blob, _ := args.Get(0).(*interfaces.StoredBlob)
	return blob, args.Error(1)
}

func (m *BlobStore) List(ctx context.Context, prefix, continuationToken string, limit int) (*interfaces.BlobPage, error) {
	args := m.Called(ctx, prefix, continuationToken, limit)
	page, _ := args.Get(0).(*interfaces.BlobPage)
	return page, args.Error(1)
}

// Cache - мок кэша. Без настроенных ожиданий использовать нельзя.
type Cache struct {
	mock.Mock
}

func (m *Cache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *Cache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	args := m.Called(ctx, prefix)
	return args.Error(0)
}

// LLMClient - мок llm.Client.
type LLMClient struct {
	mock.Mock
}

func (m *LLMClient) Complete(ctx context.Context, req llm.ChatRequest) (*llm.ChatCompletion, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*llm.ChatCompletion)
	return res, args.Error(1)
}

func (m *LLMClient) OpenStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	args := m.Called(ctx, req)
	stream, _ := args.Get(0).(llm.ChatStream)
	return stream, args.Error(1)
}

func (m *LLMClient) GenerateImage(ctx context.Context, p llm.ImageParams) (*llm.GeneratedImage, error) {
	args := m.Called(ctx, p)
	img, _ := args.Get(0).(*llm.GeneratedImage)
	return img, args.Error(1)
}

var (
	_ interfaces.EmailSender       = (*EmailSender)(nil)
	_ interfaces.SubscriberSync    = (*SubscriberSync)(nil)
	_ interfaces.CampaignPublisher = (*CampaignPublisher)(nil)
	_ interfaces.BlobStore         = (*BlobStore)(nil)
	_ interfaces.Cache             = (*Cache)(nil)
	_ llm.Client                   = (*LLMClient)(nil)
)
