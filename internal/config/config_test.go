package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("REFERRAL_ISSUER_BONUS", "")
	cfg := LoadConfig()

	assert.Equal(t, 100, cfg.ReferralIssuerBonus, "empty value falls back")
	assert.Equal(t, 50, cfg.ReferralRedeemerBonus)
	assert.Equal(t, 8*time.Second, cfg.ScrapeTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("REFERRAL_REDEEMER_BONUS", "75")
	t.Setenv("SCRAPE_CACHE_TTL", "30m")
	t.Setenv("BOT_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DISPATCH_WORKERS", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, 75, cfg.ReferralRedeemerBonus)
	assert.Equal(t, 30*time.Minute, cfg.ScrapeCacheTTL)
	assert.False(t, cfg.BotEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.DispatchWorkers)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "n", DBPort: "5433"}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5433 sslmode=disable TimeZone=UTC", cfg.PostgresDSN())

	cfg.DatabaseURL = "file:test.db"
	assert.Equal(t, "file:test.db", cfg.PostgresDSN())
}

func TestReferralLinkAndValidate(t *testing.T) {
	cfg := &Config{BotUsername: "wishbucket_bot", AppName: "app"}
	assert.Equal(t, "https://t.me/wishbucket_bot/app?startapp=ref_ABC12345", cfg.ReferralLink("ABC12345"))

	require.Error(t, cfg.Validate())
	cfg.BotToken = "123:abc"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "123:abc", cfg.SessionSecret())

	cfg.ReferralIssuerBonus = -1
	require.Error(t, cfg.Validate())
}
