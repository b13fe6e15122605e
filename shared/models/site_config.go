package models

import "strings"

// SiteConfig - типизированное представление глобальной конфигурации сайта.
// В хранилище конфигурация лежит как произвольный JSON-объект (map), чтобы
// глубокое слияние патчей не теряло незнакомые ключи; эта структура
// используется для валидации и для чтения известных полей.
type SiteConfig struct {
	ID                  string            `json:"id"`
	SiteName            string            `json:"siteName,omitempty"`
	Palette             *Palette          `json:"palette,omitempty"`
	Theme               *ThemeSettings    `json:"theme,omitempty"`
	Fonts               *Fonts            `json:"fonts,omitempty"`
	LogoURL             string            `json:"logoUrl,omitempty" validate:"omitempty,url"`
	Nav                 *Nav              `json:"nav,omitempty"`
	HomeTagline         string            `json:"homeTagline,omitempty"`
	FooterTagline       string            `json:"footerTagline,omitempty"`
	FeaturedPlatformIDs []string          `json:"featuredPlatformIds,omitempty" validate:"omitempty,dive,slug"`
	FeaturedNewsIDs     []string          `json:"featuredNewsIds,omitempty" validate:"omitempty,dive,slug"`
	FeaturedTopicIDs    []string          `json:"featuredTopicIds,omitempty" validate:"omitempty,dive,slug"`
	HeroTitle           string            `json:"heroTitle,omitempty"`
	HeroSubtitle        string            `json:"heroSubtitle,omitempty"`
	HeroBadges          []string          `json:"heroBadges,omitempty"`
	HeroCtaText         string            `json:"heroCtaText,omitempty"`
	HeroCtaURL          string            `json:"heroCtaUrl,omitempty" validate:"omitempty,url"`
	SocialLinks         map[string]string `json:"socialLinks,omitempty" validate:"omitempty,dive,url"`
	Analytics           *Analytics        `json:"analytics,omitempty"`
	Home                *HomeSettings     `json:"home,omitempty"`
	EmailSettings       *EmailSettings    `json:"emailSettings,omitempty"`
	Contact             *ContactSettings  `json:"contact,omitempty"`
	Pages               []CustomPage      `json:"pages,omitempty" validate:"omitempty,dive"`
	AI                  *AISettings       `json:"ai,omitempty"`
	Content             *ContentSettings  `json:"content,omitempty"`
}

type Palette struct {
	Primary    string `json:"primary" validate:"required"`
	Secondary  string `json:"secondary,omitempty"`
	Background string `json:"background,omitempty"`
	Text       string `json:"text,omitempty"`
}

type Theme struct {
	ID   string            `json:"id" validate:"required"`
	Name string            `json:"name" validate:"required"`
	Vars map[string]string `json:"vars" validate:"required"`
}

type ThemeSettings struct {
	Active    string                       `json:"active,omitempty"`
	Themes    []Theme                      `json:"themes,omitempty" validate:"omitempty,dive"`
	Overrides map[string]map[string]string `json:"overrides,omitempty"`
}

type Fonts struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body,omitempty"`
}

type NavLink struct {
	ID      string `json:"id" validate:"required"`
	Label   string `json:"label" validate:"required"`
	Href    string `json:"href" validate:"required"`
	Enabled *bool  `json:"enabled,omitempty"`
	NewTab  *bool  `json:"newTab,omitempty"`
}

type Nav struct {
	Links []NavLink `json:"links,omitempty" validate:"omitempty,dive"`
}

type Analytics struct {
	GoogleAnalyticsID string `json:"googleAnalyticsId,omitempty"`
}

type SectionCTA struct {
	PrimaryText   string `json:"primaryText,omitempty"`
	PrimaryHref   string `json:"primaryHref,omitempty"`
	SecondaryText string `json:"secondaryText,omitempty"`
	SecondaryHref string `json:"secondaryHref,omitempty"`
}

type SectionEmbed struct {
	Mode   string `json:"mode,omitempty" validate:"omitempty,oneof=html threejs"`
	HTML   string `json:"html,omitempty"`
	Script string `json:"script,omitempty"`
	Height *int   `json:"height,omitempty" validate:"omitempty,gt=0,max=2000"`
}

// HomeSection - секция главной страницы. Незнакомые поля секции допустимы
// и сохраняются, так как конфигурация хранится целиком как map.
type HomeSection struct {
	ID       string        `json:"id" validate:"required"`
	Type     string        `json:"type" validate:"required"`
	Enabled  *bool         `json:"enabled,omitempty"`
	Title    string        `json:"title,omitempty"`
	Subtitle string        `json:"subtitle,omitempty"`
	MaxItems *int          `json:"maxItems,omitempty" validate:"omitempty,gt=0,max=24"`
	Markdown string        `json:"markdown,omitempty"`
	CTA      *SectionCTA   `json:"cta,omitempty"`
	Embed    *SectionEmbed `json:"embed,omitempty"`
}

type TrustCard struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Body      string `json:"body" validate:"required"`
	Icon      string `json:"icon,omitempty"`
	IconColor string `json:"iconColor,omitempty"`
}

type TrustSection struct {
	Title string      `json:"title,omitempty"`
	Cards []TrustCard `json:"cards,omitempty" validate:"omitempty,dive"`
}

type AIProvider struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label" validate:"required"`
	Icon  string `json:"icon,omitempty"`
}

type AISection struct {
	Title     string       `json:"title,omitempty"`
	Subtitle  string       `json:"subtitle,omitempty"`
	Footnote  string       `json:"footnote,omitempty"`
	Providers []AIProvider `json:"providers,omitempty" validate:"omitempty,dive"`
}

type HomeSettings struct {
	Sections     []HomeSection `json:"sections,omitempty" validate:"omitempty,dive"`
	TrustSection *TrustSection `json:"trustSection,omitempty"`
	AISection    *AISection    `json:"aiSection,omitempty"`
}

// MaxEmailBatchSize - верхняя граница размера пачки получателей.
const MaxEmailBatchSize = 490

type EmailSettings struct {
	FromName                   string            `json:"fromName,omitempty"`
	FromEmail                  string            `json:"fromEmail,omitempty" validate:"omitempty,email"`
	TemplateSubject            string            `json:"templateSubject,omitempty"`
	TemplateHTML               string            `json:"templateHtml,omitempty"`
	ManageURL                  string            `json:"manageUrl,omitempty" validate:"omitempty,url"`
	BatchSize                  *int              `json:"batchSize,omitempty" validate:"omitempty,gt=0,max=490"`
	MailerLiteAllGroupID       string            `json:"mailerLiteAllGroupId,omitempty"`
	MailerLitePlatformGroupIDs map[string]string `json:"mailerLitePlatformGroupIds,omitempty"`
	AutoNotifyOnNews           *bool             `json:"autoNotifyOnNews,omitempty"`
	MailerLiteAPIKey           string            `json:"mailerLiteApiKey,omitempty"`
	HasMailerLiteAPIKey        *bool             `json:"hasMailerLiteApiKey,omitempty"`
}

type ContactSettings struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	RecipientEmail  string `json:"recipientEmail,omitempty" validate:"omitempty,email"`
	SubjectTemplate string `json:"subjectTemplate,omitempty"`
	SuccessMessage  string `json:"successMessage,omitempty"`
}

type CustomPage struct {
	ID              string   `json:"id" validate:"required,slug"`
	Title           string   `json:"title" validate:"required"`
	Enabled         *bool    `json:"enabled,omitempty"`
	Description     string   `json:"description,omitempty"`
	HTML            string   `json:"html,omitempty"`
	CSS             string   `json:"css,omitempty"`
	Script          string   `json:"script,omitempty"`
	ExternalScripts []string `json:"externalScripts,omitempty" validate:"omitempty,dive,url"`
	Height          *int     `json:"height,omitempty" validate:"omitempty,gt=0,max=2000"`
}

type OpenAISettings struct {
	Model             string `json:"model,omitempty"`
	ImageModel        string `json:"imageModel,omitempty"`
	ImageSize         string `json:"imageSize,omitempty"`
	ImageQuality      string `json:"imageQuality,omitempty"`
	ImageBackground   string `json:"imageBackground,omitempty"`
	ImageOutputFormat string `json:"imageOutputFormat,omitempty"`
	APIKey            string `json:"apiKey,omitempty"`
	HasAPIKey         *bool  `json:"hasApiKey,omitempty"`
	ClearAPIKey       *bool  `json:"clearApiKey,omitempty"`
}

type Personality struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Prompt string `json:"prompt,omitempty"`
}

type AdminAssistantSettings struct {
	OpenAI              *OpenAISettings `json:"openai,omitempty"`
	ActivePersonalityID string          `json:"activePersonalityId,omitempty"`
	Personalities       []Personality   `json:"personalities,omitempty" validate:"omitempty,dive"`
}

// PricingModel - цена модели в долларах за миллион токенов.
type PricingModel struct {
	InputUSDPerMillion  float64 `json:"inputUsdPerMillion" validate:"gte=0"`
	OutputUSDPerMillion float64 `json:"outputUsdPerMillion" validate:"gte=0"`
}

type PricingSettings struct {
	Source    string                  `json:"source,omitempty"`
	UpdatedAt string                  `json:"updatedAt,omitempty"`
	Models    map[string]PricingModel `json:"models,omitempty" validate:"omitempty,dive"`
}

type AISettings struct {
	AdminAssistant *AdminAssistantSettings `json:"adminAssistant,omitempty"`
	Pricing        *PricingSettings        `json:"pricing,omitempty"`
}

type FieldDefinition struct {
	ID          string `json:"id" validate:"required"`
	Label       string `json:"label" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Required    *bool  `json:"required,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Help        string `json:"help,omitempty"`
}

type ContentSchemas struct {
	Platforms []FieldDefinition `json:"platforms,omitempty" validate:"omitempty,dive"`
	News      []FieldDefinition `json:"news,omitempty" validate:"omitempty,dive"`
	Topics    []FieldDefinition `json:"topics,omitempty" validate:"omitempty,dive"`
}

type ContentSettings struct {
	Schemas *ContentSchemas `json:"schemas,omitempty"`
}

// OpenAI возвращает настройки OpenAI ассистента или пустую структуру.
func (c *SiteConfig) OpenAI() OpenAISettings {
	if c == nil || c.AI == nil || c.AI.AdminAssistant == nil || c.AI.AdminAssistant.OpenAI == nil {
		return OpenAISettings{}
	}
	return *c.AI.AdminAssistant.OpenAI
}

// ActivePersonalityPrompt возвращает промпт выбранной личности (или первой в списке).
func (c *SiteConfig) ActivePersonalityPrompt() string {
	if c == nil || c.AI == nil || c.AI.AdminAssistant == nil {
		return ""
	}
	assistant := c.AI.AdminAssistant
	if len(assistant.Personalities) == 0 {
		return ""
	}
	activeID := strings.TrimSpace(assistant.ActivePersonalityID)
	for _, p := range assistant.Personalities {
		if p.ID == activeID {
			return p.Prompt
		}
	}
	return assistant.Personalities[0].Prompt
}

// Email возвращает настройки рассылки или пустую структуру.
func (c *SiteConfig) Email() EmailSettings {
	if c == nil || c.EmailSettings == nil {
		return EmailSettings{}
	}
	return *c.EmailSettings
}

// ContactSettingsOrEmpty возвращает настройки контактной формы или пустую структуру.
func (c *SiteConfig) ContactSettingsOrEmpty() ContactSettings {
	if c == nil || c.Contact == nil {
		return ContactSettings{}
	}
	return *c.Contact
}

// Pricing возвращает прайс-лист моделей.
func (c *SiteConfig) Pricing() PricingSettings {
	if c == nil || c.AI == nil || c.AI.Pricing == nil {
		return PricingSettings{}
	}
	return *c.AI.Pricing
}
