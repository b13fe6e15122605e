package models

// Имена контейнеров документного хранилища. Все контейнеры партиционированы по /id.
const (
	ContainerPlatforms          = "platforms"
	ContainerNews               = "news"
	ContainerTopics             = "topics"
	ContainerConfig             = "config"
	ContainerSubscribers        = "subscribers"
	ContainerContactSubmissions = "contact-submissions"

	DefaultPartitionKey = "/id"
)

// Фиксированные идентификаторы документов в контейнере config.
const (
	GlobalConfigID = "global"
	EmailStatsID   = "email-stats"
	UsageStatsID   = "stats-ai"
)

// Topic - тема, к которой привязываются платформы и новости.
type Topic struct {
	ID          string         `json:"id" validate:"required,slug"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	ColorHint   string         `json:"colorHint,omitempty"`
	Icon        string         `json:"icon,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
	CreatedAt   string         `json:"createdAt,omitempty"`
	UpdatedAt   string         `json:"updatedAt,omitempty"`
}

// BackgroundStyle оформления карточки платформы.
type BackgroundStyle struct {
	Color          string   `json:"color,omitempty"`
	Gradient       string   `json:"gradient,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
	OverlayOpacity *float64 `json:"overlayOpacity,omitempty" validate:"omitempty,min=0,max=1"`
}

type PlatformTheme struct {
	AccentColor     string           `json:"accentColor,omitempty"`
	BackgroundStyle *BackgroundStyle `json:"backgroundStyle,omitempty"`
}

// Platform - продукт/площадка, представленная на сайте.
type Platform struct {
	ID            string            `json:"id" validate:"required,slug"`
	Name          string            `json:"name" validate:"required,max=100"`
	Tagline       string            `json:"tagline,omitempty"`
	Summary       string            `json:"summary,omitempty"`
	Description   string            `json:"description,omitempty"`
	HeroImageURL  string            `json:"heroImageUrl,omitempty" validate:"omitempty,url"`
	GalleryImages []string          `json:"galleryImages,omitempty" validate:"omitempty,dive,url"`
	Links         map[string]string `json:"links,omitempty" validate:"omitempty,dive,url"`
	Topics        []string          `json:"topics,omitempty" validate:"omitempty,dive,slug"`
	IsFeatured    *bool             `json:"isFeatured,omitempty"`
	SortOrder     *float64          `json:"sortOrder,omitempty"`
	Custom        map[string]any    `json:"custom,omitempty"`
	Theme         *PlatformTheme    `json:"theme,omitempty"`
	CreatedAt     string            `json:"createdAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
}

// Типы и статусы новостей.
const (
	NewsStatusDraft     = "Draft"
	NewsStatusPublished = "Published"
)

// NewsPost - новость/анонс. Content хранится в markdown.
type NewsPost struct {
	ID          string            `json:"id" validate:"required,slug"`
	Title       string            `json:"title" validate:"required,max=200"`
	Type        string            `json:"type,omitempty" validate:"omitempty,oneof=Announcement Update Insight"`
	Status      string            `json:"status,omitempty" validate:"omitempty,oneof=Draft Published"`
	PublishDate string            `json:"publishDate,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Content     string            `json:"content,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty" validate:"omitempty,url"`
	ImageAlt    string            `json:"imageAlt,omitempty"`
	Links       map[string]string `json:"links,omitempty" validate:"omitempty,dive,url"`
	PlatformIDs []string          `json:"platformIds,omitempty" validate:"omitempty,dive,slug"`
	Topics      []string          `json:"topics,omitempty" validate:"omitempty,dive,slug"`
	IsFeatured  *bool             `json:"isFeatured,omitempty"`
	Custom      map[string]any    `json:"custom,omitempty"`
	CreatedAt   string            `json:"createdAt,omitempty"`
	UpdatedAt   string            `json:"updatedAt,omitempty"`
}

// Статусы подписчика.
const (
	SubscriberActive       = "active"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber - подписчик рассылки. ID равен нормализованному email.
type Subscriber struct {
	ID               string   `json:"id,omitempty"`
	Email            string   `json:"email" validate:"required,email"`
	SubscribeAll     *bool    `json:"subscribeAll,omitempty"`
	PlatformIDs      []string `json:"platformIds,omitempty" validate:"omitempty,dive,slug"`
	Status           string   `json:"status,omitempty" validate:"omitempty,oneof=active unsubscribed"`
	MailerLiteID     string   `json:"mailerLiteId,omitempty"`
	UnsubscribeToken string   `json:"unsubscribeToken,omitempty"`
	CreatedAt        string   `json:"createdAt,omitempty"`
	UpdatedAt        string   `json:"updatedAt,omitempty"`
}

// Статусы обращения через контактную форму.
const (
	ContactStatusNew    = "new"
	ContactStatusSent   = "sent"
	ContactStatusFailed = "failed"
)

// ContactSubmission - обращение через контактную форму.
type ContactSubmission struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"required,email"`
	Subject   string `json:"subject,omitempty" validate:"omitempty,max=200"`
	Message   string `json:"message" validate:"required,max=5000"`
	Company   string `json:"company,omitempty" validate:"omitempty,max=200"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=100"`
	PageURL   string `json:"pageUrl,omitempty" validate:"omitempty,url"`
	CreatedAt string `json:"createdAt"`
	Status    string `json:"status"`
}

// EmailStats - накопительная статистика рассылок (документ email-stats).
type EmailStats struct {
	ID             string `json:"id"`
	TotalSent      int    `json:"totalSent"`
	TotalFailed    int    `json:"totalFailed"`
	TotalCampaigns int    `json:"totalCampaigns"`
	LastSentAt     string `json:"lastSentAt,omitempty"`
	LastError      string `json:"lastError,omitempty"`
}

// UsageBucket - счетчики токенов и запросов для одной модели.
type UsageBucket struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
	Requests         int `json:"requests"`
}

// Add прибавляет usage одного запроса.
func (b *UsageBucket) Add(u TokenUsage) {
	b.PromptTokens += u.PromptTokens
	b.CompletionTokens += u.CompletionTokens
	b.TotalTokens += u.TotalTokens
	b.Requests++
}

// Merge суммирует два бакета.
func (b *UsageBucket) Merge(other UsageBucket) {
	b.PromptTokens += other.PromptTokens
	b.CompletionTokens += other.CompletionTokens
	b.TotalTokens += other.TotalTokens
	b.Requests += other.Requests
}

// TokenUsage - usage одного обращения к LLM.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// UsageBuckets группирует бакеты чата и генерации изображений по модели.
type UsageBuckets struct {
	Models map[string]*UsageBucket `json:"models"`
	Images map[string]*UsageBucket `json:"images"`
}

// NewUsageBuckets создает пустые бакеты.
func NewUsageBuckets() UsageBuckets {
	return UsageBuckets{Models: map[string]*UsageBucket{}, Images: map[string]*UsageBucket{}}
}

// UsageDoc - документ stats-ai.
type UsageDoc struct {
	ID        string                  `json:"id"`
	Type      string                  `json:"type"`
	UpdatedAt string                  `json:"updatedAt"`
	Days      map[string]UsageBuckets `json:"days"`
	Totals    UsageBuckets            `json:"totals"`
}
