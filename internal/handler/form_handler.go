package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
)

type formRequest struct {
	Handle         string         `json:"handle"`
	Name           string         `json:"name"`
	Fields         []db.FormField `json:"fields"`
	NotifyEmails   string         `json:"notifyEmails"`
	WebhookURL     string         `json:"webhookUrl"`
	SuccessMessage string         `json:"successMessage"`
	Enabled        *bool          `json:"enabled"`
}

func (r formRequest) toInput() service.FormInput {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return service.FormInput{
		Handle:         r.Handle,
		Name:           r.Name,
		Fields:         r.Fields,
		NotifyEmails:   r.NotifyEmails,
		WebhookURL:     r.WebhookURL,
		SuccessMessage: r.SuccessMessage,
		Enabled:        enabled,
	}
}

// SubmitForm 接收 JSON 或表单编码的提交内容。
func (a *API) SubmitForm(c *gin.Context) {
	values, ok := submissionValues(c)
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid submission body")
		return
	}

	entry, err := a.forms.Submit(c.Param("handle"), values, service.SubmissionMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		// 未知或已停用的表单统一返回 404
		respondServiceError(c, err)
		return
	}

	message := strings.TrimSpace(entry.Form.SuccessMessage)
	if message == "" {
		message = "thank you, your submission has been received"
	}
	respondSuccess(c, http.StatusCreated, message, gin.H{"id": entry.ID})
}

func submissionValues(c *gin.Context) (map[string]any, bool) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		values := map[string]any{}
		if err := c.ShouldBindJSON(&values); err != nil {
			return nil, false
		}
		return values, true
	}

	if err := c.Request.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, false
	}
	values := make(map[string]any, len(c.Request.PostForm))
	for key, list := range c.Request.PostForm {
		values[key] = list
	}
	return values, true
}

// ListForms 返回全部表单。
func (a *API) ListForms(c *gin.Context) {
	forms, err := a.forms.List()
	if err != nil {
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", forms)
}

// GetForm 返回单个表单。
func (a *API) GetForm(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	form, err := a.forms.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", form)
}

// CreateForm 创建表单。
func (a *API) CreateForm(c *gin.Context) {
	var req formRequest
	if !bindJSON(c, &req, "invalid form payload") {
		return
	}
	form, err := a.forms.Create(req.toInput())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "form created", form)
}

// UpdateForm 更新表单。
func (a *API) UpdateForm(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req formRequest
	if !bindJSON(c, &req, "invalid form payload") {
		return
	}
	form, err := a.forms.Update(id, req.toInput())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "form updated", form)
}

// DeleteForm 删除表单及其全部提交。
func (a *API) DeleteForm(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.forms.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "form deleted", nil)
}

// ListFormEntries 分页返回表单提交，最新的在前。
func (a *API) ListFormEntries(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if _, err := a.forms.Get(id); err != nil {
		respondServiceError(c, err)
		return
	}
	result, err := a.forms.ListEntries(id, parsePositiveInt(c.Query("page"), 1), parsePositiveInt(c.Query("perPage"), 20))
	if err != nil {
		failServer(c, err)
		return
	}
	items := make([]gin.H, 0, len(result.Entries))
	for _, entry := range result.Entries {
		items = append(items, entryPayload(entry))
	}
	respondSuccess(c, http.StatusOK, "", gin.H{
		"entries":    items,
		"total":      result.Total,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalPages": result.TotalPages,
	})
}

// DeleteFormEntry 删除一条提交。
func (a *API) DeleteFormEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.forms.DeleteEntry(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "entry deleted", nil)
}
