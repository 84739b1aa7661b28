package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "LANGUAGES", "DEFAULT_LANGUAGE", "SITEMAP_TTL", "SITE_BASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "pagecraft.db", cfg.DatabasePath)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.Equal(t, []string{"en"}, cfg.Languages)
	assert.Equal(t, time.Hour, cfg.SitemapTTL)
	assert.Equal(t, "http://localhost:8080", cfg.SiteBaseURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("DEFAULT_LANGUAGE", "DE")
	t.Setenv("LANGUAGES", "en, fr ,en")
	t.Setenv("SITEMAP_TTL", "15m")
	t.Setenv("TRANSLATION_BACKFILL_INTERVAL", "nonsense")
	t.Setenv("SITE_BASE_URL", "https://example.com/")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "de", cfg.DefaultLanguage)
	assert.Equal(t, []string{"de", "en", "fr"}, cfg.Languages)
	assert.Equal(t, 15*time.Minute, cfg.SitemapTTL)
	assert.Equal(t, time.Hour, cfg.BackfillInterval)
	assert.Equal(t, "https://example.com", cfg.SiteBaseURL)
}
