package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/service"
	"github.com/pagecraft/internal/theme"
)

type pageRequest struct {
	Slug            string `json:"slug"`
	Language        string `json:"language"`
	Title           string `json:"title"`
	Summary         string `json:"summary"`
	Theme           string `json:"theme"`
	Layout          string `json:"layout"`
	Status          string `json:"status"`
	PublishedAt     string `json:"publishedAt"`
	ExpiredAt       string `json:"expiredAt"`
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
}

func (r pageRequest) toInput() (service.PageInput, map[string]string) {
	input := service.PageInput{
		Slug:            r.Slug,
		Language:        r.Language,
		Title:           r.Title,
		Summary:         r.Summary,
		Theme:           r.Theme,
		Layout:          r.Layout,
		Status:          r.Status,
		MetaTitle:       r.MetaTitle,
		MetaDescription: r.MetaDescription,
	}
	var errs map[string]string
	input.PublishedAt, input.ExpiredAt, errs = parseWindow(r.PublishedAt, r.ExpiredAt)
	return input, errs
}

type blockRequest struct {
	Component string         `json:"component"`
	Name      string         `json:"name"`
	Settings  map[string]any `json:"settings"`
	Enabled   *bool          `json:"enabled"`
}

type saveBlocksRequest struct {
	Blocks []blockRequest `json:"blocks"`
}

type reorderRequest struct {
	IDs []uint `json:"ids"`
}

// ListPages 分页返回页面列表。
func (a *API) ListPages(c *gin.Context) {
	result, err := a.pages.List(service.PageFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Status:   strings.TrimSpace(c.Query("status")),
		Language: strings.TrimSpace(c.Query("language")),
		Page:     parsePositiveInt(c.Query("page"), 1),
		PerPage:  parsePositiveInt(c.Query("perPage"), 20),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", gin.H{
		"pages":      result.Pages,
		"total":      result.Total,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalPages": result.TotalPages,
	})
}

// GetPage 返回页面及按位置排序的区块。
func (a *API) GetPage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	page, err := a.pages.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", page)
}

// CreatePage 创建页面。
func (a *API) CreatePage(c *gin.Context) {
	var req pageRequest
	if !bindJSON(c, &req, "invalid page payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	page, err := a.pages.Create(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "page created", page)
}

// UpdatePage 更新页面元数据，不影响区块。
func (a *API) UpdatePage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req pageRequest
	if !bindJSON(c, &req, "invalid page payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	page, err := a.pages.Update(id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "page updated", page)
}

// DeletePage 删除页面及其区块。
func (a *API) DeletePage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.pages.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "page deleted", nil)
}

// SaveBlocks 整体替换页面区块，数组顺序即区块顺序。
func (a *API) SaveBlocks(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req saveBlocksRequest
	if !bindJSON(c, &req, "invalid blocks payload") {
		return
	}

	inputs := make([]service.BlockInput, 0, len(req.Blocks))
	for _, b := range req.Blocks {
		enabled := true
		if b.Enabled != nil {
			enabled = *b.Enabled
		}
		inputs = append(inputs, service.BlockInput{
			Component: b.Component,
			Name:      b.Name,
			Settings:  b.Settings,
			Enabled:   enabled,
		})
	}

	blocks, err := a.pages.SaveBlocks(id, inputs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "blocks saved", blocks)
}

// ReorderBlocks 按 ids 的顺序设置区块位置。
func (a *API) ReorderBlocks(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req reorderRequest
	if !bindJSON(c, &req, "invalid order payload") {
		return
	}
	if err := a.pages.ReorderBlocks(id, req.IDs); err != nil {
		respondServiceError(c, err)
		return
	}
	page, err := a.pages.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "blocks reordered", page.Blocks)
}

// PreviewPage 按前台效果渲染页面，忽略发布状态与时间窗口。
func (a *API) PreviewPage(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	page, err := a.pages.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	themeName := a.themeFor(c, page.Theme)
	content := a.renderer.RenderPage(render.RenderContext{
		Context:  c.Request.Context(),
		Language: page.Language,
		Theme:    themeName,
		Now:      a.now(),
	}, page)
	layout := a.pageLayout(themeName, page.Layout)
	a.renderView(c, http.StatusOK, themeName, layout, theme.ViewData{
		Title:    page.Title,
		Language: page.Language,
		Content:  content,
		Page:     page,
	})
}

// ListComponents 返回页面可用的区块组件名称。
func (a *API) ListComponents(c *gin.Context) {
	respondSuccess(c, http.StatusOK, "", a.components)
}

// ListThemes 返回已加载的主题名称。
func (a *API) ListThemes(c *gin.Context) {
	respondSuccess(c, http.StatusOK, "", a.themes.Names())
}
