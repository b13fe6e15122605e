package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/foundry")
	t.Setenv("PUBLIC_SITE_URL", "https://foundry.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 128000, cfg.OpenAI.MaxTokens)
	assert.Equal(t, 2*time.Minute, cfg.OpenAI.Timeout())
	assert.Equal(t, "campaign_requests", cfg.Rabbit.CampaignQueue)
	assert.Equal(t, "https://foundry.example.com", cfg.Email.SiteURL())
	assert.Equal(t, "https://connect.mailerlite.com/api", cfg.Email.MailerLiteBaseURL)
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	_, err := Load()
	assert.Error(t, err)
}

func TestSiteURL_FallsBackToSiteBaseURL(t *testing.T) {
	c := EmailConfig{SiteBaseURL: "https://base.example.com/"}
	assert.Equal(t, "https://base.example.com", c.SiteURL())
}
