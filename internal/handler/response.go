package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/service"
)

// envelope 是所有 JSON 接口统一的返回结构。
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func respondSuccess(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

func failValidation(c *gin.Context, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, envelope{
		Success: false,
		Message: "validation failed",
		Errors:  fields,
	})
}

func failAuth(c *gin.Context) {
	respondError(c, http.StatusUnauthorized, "unauthenticated")
}

func failNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, message)
}

// failServer 记录错误日志，不把细节暴露给客户端。
func failServer(c *gin.Context, err error) {
	_ = c.Error(err)
	logging.L().Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("request failed")
	respondError(c, http.StatusInternalServerError, "internal server error")
}

var notFoundErrors = []error{
	service.ErrPageNotFound,
	service.ErrBlockNotFound,
	service.ErrArticleNotFound,
	service.ErrCategoryNotFound,
	service.ErrProductNotFound,
	service.ErrReleaseNotFound,
	service.ErrFormNotFound,
	service.ErrFormEntryMissing,
	service.ErrFileNotFound,
	service.ErrTranslationNotFound,
}

// validationFields 把服务层校验错误映射到对应的请求字段。
var validationFields = []struct {
	err   error
	field string
}{
	{service.ErrSlugRequired, "slug"},
	{service.ErrSlugTaken, "slug"},
	{service.ErrTitleRequired, "title"},
	{service.ErrInvalidStatus, "status"},
	{service.ErrInvalidWindow, "expiredAt"},
	{service.ErrUnknownComponent, "blocks"},
	{service.ErrBlockOrder, "ids"},
	{service.ErrCategoryCycle, "parentId"},
	{service.ErrNameRequired, "name"},
	{service.ErrSKURequired, "sku"},
	{service.ErrSKUTaken, "sku"},
	{service.ErrInvalidPrice, "priceCents"},
	{service.ErrVersionRequired, "version"},
	{service.ErrVersionDuplicate, "version"},
	{service.ErrHandleRequired, "handle"},
	{service.ErrHandleTaken, "handle"},
	{service.ErrInvalidFormField, "fields"},
	{service.ErrTranslationKey, "key"},
	{service.ErrInvalidLanguage, "language"},
	{service.ErrUnknownDisk, "disk"},
	{service.ErrFileTooLarge, "file"},
	{service.ErrEmptyFile, "file"},
	{service.ErrInvalidPath, "path"},
	{service.ErrNotAnImage, "file"},
	{service.ErrImageTooLarge, "file"},
	{service.ErrInvalidWidth, "w"},
	{service.ErrAIAPIKeyMissing, "apiKey"},
}

// respondServiceError 把服务层错误转换为统一响应。
func respondServiceError(c *gin.Context, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		failValidation(c, validation.Fields)
		return
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			failNotFound(c, target.Error())
			return
		}
	}
	for _, v := range validationFields {
		if errors.Is(err, v.err) {
			failValidation(c, map[string]string{v.field: err.Error()})
			return
		}
	}
	failServer(c, err)
}
