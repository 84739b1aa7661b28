package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

type translationRequest struct {
	Group    string `json:"group"`
	Key      string `json:"key"`
	Language string `json:"language"`
	Value    string `json:"value"`
}

type backfillRequest struct {
	Language string `json:"language"`
}

// ListTranslations 分页返回翻译条目。
func (a *API) ListTranslations(c *gin.Context) {
	result, err := a.translations.List(service.TranslationFilter{
		Group:    c.Query("group"),
		Language: c.Query("language"),
		Search:   c.Query("search"),
		Page:     parsePositiveInt(c.Query("page"), 1),
		PerPage:  parsePositiveInt(c.Query("perPage"), 50),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", gin.H{
		"translations": result.Translations,
		"total":        result.Total,
		"page":         result.Page,
		"perPage":      result.PerPage,
		"totalPages":   result.TotalPages,
	})
}

// SaveTranslation 保存人工译文，自动回填不会覆盖它。
func (a *API) SaveTranslation(c *gin.Context) {
	var req translationRequest
	if !bindJSON(c, &req, "invalid translation payload") {
		return
	}
	record, err := a.translations.Set(req.Group, req.Key, req.Language, req.Value)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "translation saved", record)
}

// DeleteTranslation 删除一条翻译。
func (a *API) DeleteTranslation(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.translations.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "translation deleted", nil)
}

// ListMissingTranslations 返回目标语言缺失的默认语言条目。
func (a *API) ListMissingTranslations(c *gin.Context) {
	rows, err := a.translations.Missing(c.Query("language"), parsePositiveInt(c.Query("limit"), 200))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", rows)
}

// BackfillTranslations 立即执行一次回填，
// 可指定单个语言，否则处理所有非默认语言。
func (a *API) BackfillTranslations(c *gin.Context) {
	var req backfillRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid backfill payload") {
		return
	}

	languages := []string{strings.TrimSpace(req.Language)}
	if languages[0] == "" {
		languages = languages[:0]
		for _, lang := range a.locale.Supported() {
			if lang != a.translations.DefaultLanguage() {
				languages = append(languages, lang)
			}
		}
	}

	results := make([]service.BackfillResult, 0, len(languages))
	var errs []error
	for _, lang := range languages {
		result, err := a.translations.Backfill(c.Request.Context(), lang)
		results = append(results, result)
		if err != nil {
			if errors.Is(err, service.ErrInvalidLanguage) || errors.Is(err, service.ErrAIAPIKeyMissing) {
				respondServiceError(c, err)
				return
			}
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		c.JSON(http.StatusBadGateway, envelope{
			Success: false,
			Message: errors.Join(errs...).Error(),
			Data:    results,
		})
		return
	}
	respondSuccess(c, http.StatusOK, "backfill finished", results)
}
