package config

import (
	"fmt"
	"strings"
	"time"

	"foundry/shared/logger"
	"foundry/shared/utils"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config структура для хранения всей конфигурации API-сервера.
type Config struct {
	AppEnv  string `env:"APP_ENV" env-default:"development"`
	Port    string `env:"SERVER_PORT" env-default:"8080"`
	Logger  logger.Config
	DB      DBConfig
	Redis   RedisConfig
	Rabbit  RabbitMQConfig
	CORS    CORSConfig
	Auth    AuthConfig
	OpenAI  OpenAIConfig
	Email   EmailConfig
	Storage StorageConfig
}

// DBConfig настройки подключения к Postgres.
type DBConfig struct {
	URL             string        `env:"DATABASE_URL" env-required:"true"`
	MaxConns        int32         `env:"DB_MAX_CONNS" env-default:"10"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" env-default:"5m"`
	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" env-default:"10s"`
}

// RedisConfig настройки Redis. Пустой Addr отключает кэш и переводит
// rate limiter на in-memory хранилище.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"`
	Password  string        `env:"REDIS_PASSWORD"`
	DB        int           `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string        `env:"REDIS_KEY_PREFIX" env-default:"foundry:"`
	CacheTTL  time.Duration `env:"CACHE_TTL" env-default:"60s"`
}

// RabbitMQConfig конфигурация очереди рассылок. Пустой URL отключает авто-уведомления.
type RabbitMQConfig struct {
	URL           string `env:"RABBITMQ_URL"`
	CampaignQueue string `env:"CAMPAIGN_QUEUE_NAME" env-default:"campaign_requests"`
	Concurrency   int    `env:"NOTIFIER_CONCURRENCY" env-default:"2"`
}

// CORSConfig разрешенные источники.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
}

// AuthConfig локальный логин администратора и подпись токенов.
type AuthConfig struct {
	JWTSecret         string        `env:"JWT_SECRET"`
	TokenTTL          time.Duration `env:"JWT_TOKEN_TTL" env-default:"12h"`
	AdminUsername     string        `env:"ADMIN_USERNAME" env-default:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	RateLimit         int           `env:"RATE_LIMIT_PER_MINUTE" env-default:"10"`
}

// OpenAIConfig параметры обращения к OpenAI. Ключ хранится в конфигурации сайта.
type OpenAIConfig struct {
	BaseURL   string `env:"OPENAI_BASE_URL"`
	MaxTokens int    `env:"OPENAI_MAX_TOKENS" env-default:"128000"`
	TimeoutMS int    `env:"OPENAI_TIMEOUT_MS" env-default:"120000"`
}

// EmailConfig отправка писем и MailerLite.
type EmailConfig struct {
	ResendAPIKey      string `env:"RESEND_API_KEY"`
	SenderEmail       string `env:"EMAIL_SENDER"`
	MailerLiteAPIKey  string `env:"MAILERLITE_API_KEY"`
	MailerLiteBaseURL string `env:"MAILERLITE_BASE_URL" env-default:"https://connect.mailerlite.com/api"`
	PublicSiteURL     string `env:"PUBLIC_SITE_URL"`
	SiteBaseURL       string `env:"SITE_BASE_URL"`
}

// StorageConfig локальное хранилище медиафайлов.
type StorageConfig struct {
	Dir           string `env:"MEDIA_DIR" env-default:"./data/media"`
	PublicBaseURL string `env:"MEDIA_PUBLIC_BASE_URL" env-default:"http://localhost:8080/api/media/files"`
	UploadBaseURL string `env:"MEDIA_UPLOAD_BASE_URL" env-default:"http://localhost:8080/api/media/upload"`
	// SigningSecret подписывает токены загрузки; по умолчанию JWT_SECRET.
	SigningSecret string `env:"MEDIA_SIGNING_SECRET"`
}

// Timeout возвращает таймаут запроса к OpenAI.
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SiteURL возвращает публичный адрес сайта без завершающего слэша.
func (c EmailConfig) SiteURL() string {
	base := c.PublicSiteURL
	if base == "" {
		base = c.SiteBaseURL
	}
	return strings.TrimSuffix(base, "/")
}

// Load загружает конфигурацию из переменных окружения и .env файла.
// Секреты читаются из /run/secrets с fallback на переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	cfg.Auth.JWTSecret = utils.SecretOrDefault("jwt_secret", cfg.Auth.JWTSecret)
	cfg.Auth.AdminPasswordHash = utils.SecretOrDefault("admin_password_hash", cfg.Auth.AdminPasswordHash)
	cfg.Email.ResendAPIKey = utils.SecretOrDefault("resend_api_key", cfg.Email.ResendAPIKey)
	cfg.Email.MailerLiteAPIKey = utils.SecretOrDefault("mailerlite_api_key", cfg.Email.MailerLiteAPIKey)
	cfg.Storage.SigningSecret = utils.SecretOrDefault("media_signing_secret", cfg.Storage.SigningSecret)
	if cfg.Storage.SigningSecret == "" {
		cfg.Storage.SigningSecret = cfg.Auth.JWTSecret
	}

	if cfg.OpenAI.MaxTokens <= 0 {
		cfg.OpenAI.MaxTokens = 128000
	}
	if cfg.OpenAI.TimeoutMS <= 0 {
		cfg.OpenAI.TimeoutMS = 120000
	}
	return &cfg, nil
}
