package handler_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"foundry/internal/handler"
	"foundry/internal/llm"
	"foundry/internal/mocks"
	"foundry/internal/service"
	"foundry/internal/storage"
	"foundry/shared/authutils"
	"foundry/shared/interfaces"
	"foundry/shared/middleware"
	"foundry/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	store    *mocks.MemoryDocumentStore
	llm      *mocks.LLMClient
	sender   *mocks.EmailSender
	verifier *authutils.JWTVerifier
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()
	store := mocks.NewMemoryDocumentStore()

	config, err := service.NewConfigService(store, nil, time.Minute, log)
	require.NoError(t, err)
	usage := service.NewUsageService(store, config, log)
	content := service.NewContentService(store, nil, time.Minute, config, nil, log)
	subs := service.NewSubscriptionService(store, config, nil, "", log)
	sender := &mocks.EmailSender{}
	contact := service.NewContactService(store, config, sender, "noreply@foundry.dev", log)
	campaigns := service.NewCampaignService(store, config, subs, sender, nil, service.CampaignEnv{SiteURL: "https://foundry.dev"}, log)

	blobs, err := storage.NewLocalBlobStore(storage.Config{
		Dir:           t.TempDir(),
		PublicBaseURL: "http://foundry.test/api/media/files",
		UploadBaseURL: "http://foundry.test/api/media/upload",
		SigningSecret: "upload-secret",
	}, log)
	require.NoError(t, err)

	client := &mocks.LLMClient{}
	media := service.NewMediaService(blobs, client, config, usage, log)
	chat := service.NewChatService(config, client, usage, log)

	verifier, err := authutils.NewJWTVerifier("test-secret", "foundry", log)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := service.NewAuthService("admin", string(hash), time.Hour, verifier, log)

	h := handler.New(handler.Services{
		Config:        config,
		Content:       content,
		Subscriptions: subs,
		Contact:       contact,
		Campaigns:     campaigns,
		Media:         media,
		Chat:          chat,
		Usage:         usage,
		Auth:          auth,
	}, blobs, log)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api"), middleware.AdminAuth(verifier.VerifyToken, log), nil)

	token, _, err := verifier.Sign("admin", []string{models.RoleAdministrator, models.RoleAuthenticated}, time.Hour)
	require.NoError(t, err)

	return &testServer{router: router, store: store, llm: client, sender: sender, verifier: verifier, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAdminRoutes_RequireAdministrator(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/subscriptions", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	raw, err := json.Marshal(models.Principal{IdentityProvider: "aad", UserID: "u1", UserDetails: "viewer", UserRoles: []string{models.RoleAuthenticated}})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.Header.Set(middleware.ClientPrincipalHeader, base64.StdEncoding.EncodeToString(raw))
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscriptions", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "nope"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "s3cret"}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[service.LoginResult](t, w)

	req := httptest.NewRequest(http.MethodGet, "/api/email/stats", nil)
	req.Header.Set("Authorization", "Bearer "+res.Token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConfig_SecretsAreNeverReturned(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/config", map[string]any{
		"siteName":      "Foundry",
		"emailSettings": map[string]any{"fromEmail": "news@foundry.dev", "mailerLiteApiKey": "ml-secret"},
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "ml-secret")
	saved := decode[map[string]any](t, w)
	assert.Equal(t, true, saved["emailSettings"].(map[string]any)["hasMailerLiteApiKey"])

	w = s.do(t, http.MethodGet, "/api/config", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "ml-secret")
	public := decode[map[string]any](t, w)
	assert.Equal(t, "Foundry", public["siteName"])

	stored := s.store.Doc(models.ContainerConfig, models.GlobalConfigID)
	assert.Equal(t, "ml-secret", stored["emailSettings"].(map[string]any)["mailerLiteApiKey"])

	w = s.do(t, http.MethodPut, "/api/config", "[1,2]", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContent_PlatformDeleteGuard(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/api/platforms/edge", map[string]any{"name": "Edge"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "edge", decode[map[string]any](t, w)["id"])

	w = s.do(t, http.MethodPost, "/api/news", map[string]any{
		"id":          "launch",
		"title":       "Launch",
		"platformIds": []string{"edge"},
	}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/news", map[string]any{"id": "Bad Id"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	verr := decode[models.ErrorResponse](t, w)
	assert.NotEmpty(t, verr.Fields)

	w = s.do(t, http.MethodGet, "/api/news?platformId=edge", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.NewsPost](t, w), 1)

	w = s.do(t, http.MethodDelete, "/api/platforms/edge", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Cannot delete platform with existing news references")

	w = s.do(t, http.MethodDelete, "/api/news/launch", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, "/api/platforms/edge", nil, true)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/platforms", nil, false)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSubscriptions_StatusCodesAndUnsubscribe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/subscriptions", map[string]any{"email": "Ada@Example.com"}, false)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/subscriptions", map[string]any{"email": "ada@example.com", "platformIds": []string{"edge"}}, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/subscriptions", map[string]any{"email": "not-an-email"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/subscriptions/unsubscribe?email=ADA@example.com", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.UnsubscribedMessage, w.Body.String())
	assert.Equal(t, "unsubscribed", s.store.Doc(models.ContainerSubscribers, "ada@example.com")["status"])

	w = s.do(t, http.MethodPost, "/api/subscriptions/unsubscribe", map[string]any{"email": "ghost@example.com"}, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/subscriptions/unsubscribe", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContact_DisabledAndListing(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/contact", map[string]any{"name": "Ada", "email": "ada@example.com", "message": "Hi"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Contact form is disabled.", decode[models.ErrorResponse](t, w).Error)
	s.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	s.store.Seed(models.ContainerContactSubmissions, "contact-1", map[string]any{"id": "contact-1", "createdAt": "2026-01-01T00:00:00.000Z"})
	s.store.Seed(models.ContainerContactSubmissions, "contact-2", map[string]any{"id": "contact-2", "createdAt": "2026-02-01T00:00:00.000Z"})

	w = s.do(t, http.MethodGet, "/api/contact/submissions?limit=1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode[[]map[string]any](t, w)
	require.Len(t, items, 1)
	assert.Equal(t, "contact-2", items[0]["id"])
}

func TestApplyActions_StopsAtFirstFailure(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/actions/apply", map[string]any{"actions": []any{
		map[string]any{"type": "topic.upsert", "id": "", "value": `{"id":"ai","name":"AI"}`},
		map[string]any{"type": "page.publish", "id": "", "value": "{}"},
		map[string]any{"type": "topic.delete", "id": "ai", "value": ""},
	}}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"applied":1,"total":3,"failedIndex":1,"error":"unsupported action type: page.publish"}`, w.Body.String())
	assert.Equal(t, "AI", s.store.Doc(models.ContainerTopics, "ai")["name"])

	w = s.do(t, http.MethodPost, "/api/ai/actions/apply", map[string]any{"actions": []any{
		map[string]any{"type": "config.merge", "id": "", "value": `{"siteName":"Forge"}`},
	}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"applied":1,"total":1}`, w.Body.String())
	assert.Equal(t, "Forge", s.store.Doc(models.ContainerConfig, models.GlobalConfigID)["siteName"])

	w = s.do(t, http.MethodPost, "/api/ai/actions/apply", map[string]any{"actions": []any{
		map[string]any{"type": "news.delete", "id": "never-existed", "value": ""},
		map[string]any{"type": "topic.delete", "id": "ai", "value": ""},
	}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"applied":2,"total":2}`, w.Body.String())
	assert.Nil(t, s.store.Doc(models.ContainerTopics, "ai"))
}

func TestPricing_GetAndRefresh(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/ai/pricing", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/ai/pricing", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"source":"manual","models":{}}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/ai/pricing/refresh", map[string]any{"pricingText": "no prices"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/ai/pricing/refresh", map[string]any{"models": map[string]any{
		"GPT-4o": map[string]any{"inputUsdPerMillion": 2.5, "outputUsdPerMillion": 10},
	}}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[map[string]any](t, w)
	assert.Equal(t, "manual:json", saved["source"])

	w = s.do(t, http.MethodGet, "/api/ai/pricing", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, saved, got)
	assert.Equal(t, map[string]any{"inputUsdPerMillion": 2.5, "outputUsdPerMillion": 10.0}, got["models"].(map[string]any)["gpt-4o"])
}

func TestChat_MissingKeyAndValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/ai/chat", map[string]any{"messages": []any{}}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/ai/chat", map[string]any{
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	}, true)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[map[string]any](t, w)
	assert.Equal(t, service.MissingOpenAIKeyMessage, env["assistantMessage"])
	assert.Equal(t, []any{}, env["actions"])
}

func TestChat_StreamWritesServerSentEvents(t *testing.T) {
	s := newTestServer(t)
	s.llm.On("OpenStream", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
		return req.APIKey == "sk-test"
	})).Return(&mocks.ChatStream{Chunks: []string{`{"assistantMessage":"Do`, `ne","actions":[]}`}}, nil).Once()

	w := s.do(t, http.MethodPost, "/api/ai/chat?stream=1", map[string]any{
		"apiKey":   "sk-test",
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	}, true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Equal(t, 3, strings.Count(body, "data: "))
	assert.Contains(t, body, `data: {"type":"delta","text":"ne\",\"actions\":[]}"}`)
	assert.True(t, strings.HasSuffix(body, "data: {\"type\":\"done\",\"assistantMessage\":\"Done\",\"actions\":[]}\n\n"), body)
	s.llm.AssertExpectations(t)
}

func TestChat_StreamTimeoutIsGatewayTimeout(t *testing.T) {
	s := newTestServer(t)
	s.llm.On("OpenStream", mock.Anything, mock.Anything).
		Return(nil, &llm.UpstreamError{Timeout: true, Message: "deadline exceeded"}).Once()

	w := s.do(t, http.MethodPost, "/api/ai/chat?stream=1", map[string]any{
		"apiKey":   "sk-test",
		"messages": []any{map[string]any{"role": "user", "content": "hi"}},
	}, true)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestMedia_SignedUploadAndServe(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/media/sas", map[string]string{"filename": "hero shot.png", "contentType": "image/png"}, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ticket := decode[interfaces.UploadTicket](t, w)
	uploadURL, err := url.Parse(ticket.UploadURL)
	require.NoError(t, err)

	payload := []byte("\x89PNG fake image")
	req := httptest.NewRequest(http.MethodPut, uploadURL.Path+"?token=bogus", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPut, uploadURL.RequestURI(), bytes.NewReader(payload))
	req.Header.Set("Content-Type", "image/png")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	w = s.do(t, http.MethodGet, "/api/media/files/"+ticket.Name, nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, payload, w.Body.Bytes())

	w = s.do(t, http.MethodGet, "/api/media/files/missing.png", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/media/list?limit=5", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[interfaces.BlobPage](t, w)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ticket.Name, page.Items[0].Name)
}

func TestMedia_UploadTooLarge(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/media/sas", map[string]string{"filename": "big.bin", "contentType": "application/octet-stream"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	ticket := decode[interfaces.UploadTicket](t, w)
	uploadURL, err := url.Parse(ticket.UploadURL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, uploadURL.RequestURI(), bytes.NewReader(make([]byte, handler.DefaultMaxUploadBytes+1)))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEmailSend_FailureIsServerError(t *testing.T) {
	s := newTestServer(t)
	s.store.Seed(models.ContainerSubscribers, "ada@example.com", map[string]any{
		"id": "ada@example.com", "email": "ada@example.com", "subscribeAll": true, "status": "active",
	})

	w := s.do(t, http.MethodPost, "/api/email/send", map[string]any{"subject": "Hello", "html": "<p>Hi</p>"}, true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = s.do(t, http.MethodGet, "/api/email/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.EqualValues(t, 1, stats["active"])
	assert.EqualValues(t, 1, stats["totalFailed"])
}
