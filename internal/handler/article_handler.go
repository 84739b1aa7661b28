package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/service"
)

type articleRequest struct {
	Slug        string `json:"slug"`
	Language    string `json:"language"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Content     string `json:"content"`
	CoverFileID *uint  `json:"coverFileId"`
	Status      string `json:"status"`
	PublishedAt string `json:"publishedAt"`
	ExpiredAt   string `json:"expiredAt"`
	CategoryIDs []uint `json:"categoryIds"`
}

func (r articleRequest) toInput() (service.ArticleInput, map[string]string) {
	input := service.ArticleInput{
		Slug:        r.Slug,
		Language:    r.Language,
		Title:       r.Title,
		Summary:     r.Summary,
		Content:     r.Content,
		CoverFileID: r.CoverFileID,
		Status:      r.Status,
		CategoryIDs: r.CategoryIDs,
	}
	var errs map[string]string
	input.PublishedAt, input.ExpiredAt, errs = parseWindow(r.PublishedAt, r.ExpiredAt)
	return input, errs
}

// ListArticlesAdmin 按条件分页返回文章，包括草稿。
func (a *API) ListArticlesAdmin(c *gin.Context) {
	filter := service.ArticleFilter{
		Search:   strings.TrimSpace(c.Query("search")),
		Status:   strings.TrimSpace(c.Query("status")),
		Language: strings.TrimSpace(c.Query("language")),
		Page:     parsePositiveInt(c.Query("page"), 1),
		PerPage:  parsePositiveInt(c.Query("perPage"), 20),
	}
	if ids := parseUintQuerySlice(c.QueryArray("category")); len(ids) > 0 {
		filter.CategoryID = ids[0]
	}

	result, err := a.articles.List(filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", gin.H{
		"articles":   result.Articles,
		"total":      result.Total,
		"page":       result.Page,
		"perPage":    result.PerPage,
		"totalPages": result.TotalPages,
	})
}

// GetArticle 返回文章详情。
func (a *API) GetArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	article, err := a.articles.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", article)
}

// CreateArticle 创建文章。
func (a *API) CreateArticle(c *gin.Context) {
	var req articleRequest
	if !bindJSON(c, &req, "invalid article payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	article, err := a.articles.Create(input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "article created", article)
}

// UpdateArticle 更新文章及其分类。
func (a *API) UpdateArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req articleRequest
	if !bindJSON(c, &req, "invalid article payload") {
		return
	}
	input, errs := req.toInput()
	if len(errs) > 0 {
		failValidation(c, errs)
		return
	}
	article, err := a.articles.Update(id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "article updated", article)
}

// DeleteArticle 删除文章。
func (a *API) DeleteArticle(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.articles.Delete(id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "article deleted", nil)
}
