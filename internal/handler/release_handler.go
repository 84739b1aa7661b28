package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

type releaseRequest struct {
	Version     string `json:"version"`
	Title       string `json:"title"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
	PublishedAt string `json:"publishedAt"`
}

func (r releaseRequest) toInput() (service.ReleaseInput, map[string]string) {
	publishedAt, err := parseTime(r.PublishedAt)
	if err != nil {
		return service.ReleaseInput{}, map[string]string{"publishedAt": err.Error()}
	}
	return service.ReleaseInput{
		Version:     r.Version,
		Title:       r.Title,
		Notes:       r.Notes,
		Status:      r.Status,
		PublishedAt: publishedAt,
	}, nil
}

// ListReleases 返回全部版本，包括草稿。
func (a *API) ListReleases(c *gin.Context) {
	releases, err := a.releases.List()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", releases)
}

// CreateRelease 创建版本记录。
func (a *API) CreateRelease(c *gin.Context) {
	var req releaseRequest
	if !bindJSON(c, &req, "invalid release payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	release, err := a.releases.Create(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "release created", release)
}

// UpdateRelease 更新版本记录。
func (a *API) UpdateRelease(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req releaseRequest
	if !bindJSON(c, &req, "invalid release payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	release, err := a.releases.Update(id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "release updated", release)
}

// DeleteRelease 删除版本记录。
func (a *API) DeleteRelease(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.releases.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "release deleted", nil)
}
