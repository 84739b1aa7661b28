package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr       string
	Port             string
	DatabasePath     string
	SessionSecret    string
	GinMode          string
	StorageRoot      string
	PublicDisk       string
	PrivateDisk      string
	SiteBaseURL      string
	Theme            string
	ThemeDir         string
	DefaultLanguage  string
	Languages        []string
	APIToken         string
	AdminUserName    string
	AdminPassword    string
	LogLevel         string
	SitemapTTL       time.Duration
	BackfillInterval time.Duration
	SMTPAddr         string
	SMTPFrom         string
	SMTPUser         string
	SMTPPassword     string
	OpenAIModel      string
	DeepSeekModel    string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 工作目录下存在 .env 时会先加载，已存在的环境变量不会被覆盖。
func Load() AppConfig {
	_ = godotenv.Load()

	port := env("PORT", "8080")

	listenAddr := env("LISTEN_ADDR", "")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	defaultLanguage := strings.ToLower(env("DEFAULT_LANGUAGE", "en"))
	languages := splitList(env("LANGUAGES", defaultLanguage))
	if !contains(languages, defaultLanguage) {
		languages = append([]string{defaultLanguage}, languages...)
	}

	return AppConfig{
		ListenAddr:       listenAddr,
		Port:             port,
		DatabasePath:     env("DATABASE_PATH", "pagecraft.db"),
		SessionSecret:    env("SESSION_SECRET", "pagecraft-dev-secret"),
		GinMode:          env("GIN_MODE", "release"),
		StorageRoot:      env("STORAGE_ROOT", "storage"),
		PublicDisk:       env("PUBLIC_DISK", "public"),
		PrivateDisk:      env("PRIVATE_DISK", "private"),
		SiteBaseURL:      strings.TrimRight(env("SITE_BASE_URL", "http://localhost:"+port), "/"),
		Theme:            env("THEME", "default"),
		ThemeDir:         env("THEME_DIR", ""),
		DefaultLanguage:  defaultLanguage,
		Languages:        languages,
		APIToken:         env("API_TOKEN", ""),
		AdminUserName:    env("ADMIN_USER_NAME", ""),
		AdminPassword:    env("ADMIN_PASSWORD", ""),
		LogLevel:         env("LOG_LEVEL", "info"),
		SitemapTTL:       duration("SITEMAP_TTL", time.Hour),
		BackfillInterval: duration("TRANSLATION_BACKFILL_INTERVAL", time.Hour),
		SMTPAddr:         env("SMTP_ADDR", ""),
		SMTPFrom:         env("SMTP_FROM", "no-reply@localhost"),
		SMTPUser:         env("SMTP_USER", ""),
		SMTPPassword:     env("SMTP_PASSWORD", ""),
		OpenAIModel:      env("OPENAI_MODEL", ""),
		DeepSeekModel:    env("DEEPSEEK_MODEL", ""),
	}
}

func env(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func duration(key string, fallback time.Duration) time.Duration {
	raw := env(key, "")
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed == "" || contains(out, trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
