package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

// HealthCheck 检查数据库连通性。
func (a *API) HealthCheck(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "database handle unavailable",
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "error",
			"message": "database unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "up",
	})
}

type systemSettingsRequest struct {
	SiteName            string `json:"siteName"`
	Theme               string `json:"theme"`
	TranslationProvider string `json:"translationProvider"`
	OpenAIAPIKey        string `json:"openaiApiKey"`
	DeepSeekAPIKey      string `json:"deepseekApiKey"`
}

type aiTestRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// GetSystemSettings 返回当前系统设置。
func (a *API) GetSystemSettings(c *gin.Context) {
	settings, err := a.system.GetSettings()
	if err != nil {
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", systemSettingsPayload(settings))
}

// UpdateSystemSettings 保存系统设置，主题必须是已加载的主题。
func (a *API) UpdateSystemSettings(c *gin.Context) {
	var payload systemSettingsRequest
	if !bindJSON(c, &payload, "invalid settings payload") {
		return
	}
	if payload.Theme != "" && !a.themes.Has(payload.Theme) {
		failValidation(c, map[string]string{"theme": "theme is not installed"})
		return
	}

	settings, err := a.system.UpdateSettings(payload.toInput())
	if err != nil {
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "settings saved", systemSettingsPayload(settings))
}

func (r systemSettingsRequest) toInput() service.SystemSettingsInput {
	return service.SystemSettingsInput{
		SiteName:            r.SiteName,
		Theme:               r.Theme,
		TranslationProvider: r.TranslationProvider,
		OpenAIAPIKey:        r.OpenAIAPIKey,
		DeepSeekAPIKey:      r.DeepSeekAPIKey,
	}
}

func systemSettingsPayload(settings service.SystemSettings) gin.H {
	return gin.H{
		"siteName":            settings.SiteName,
		"theme":               settings.Theme,
		"translationProvider": settings.TranslationProvider,
		"openaiApiKey":        settings.OpenAIAPIKey,
		"deepseekApiKey":      settings.DeepSeekAPIKey,
	}
}

// TestAIConnection 测试不同 AI 平台 API Key 的连通性。
func (a *API) TestAIConnection(c *gin.Context) {
	var payload aiTestRequest
	if !bindJSON(c, &payload, "invalid provider payload") {
		return
	}

	if err := a.system.TestAIConnection(c.Request.Context(), payload.Provider, payload.APIKey); err != nil {
		if errors.Is(err, service.ErrAIAPIKeyMissing) {
			failValidation(c, map[string]string{"apiKey": err.Error()})
			return
		}
		respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, "provider reachable", nil)
}
