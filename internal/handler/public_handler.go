package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/service"
	"github.com/pagecraft/internal/theme"
)

const (
	homeSlug        = "home"
	articlesPerPage = 10
)

// ShowHome 渲染 slug 为 home 的页面。
func (a *API) ShowHome(c *gin.Context) {
	a.showPage(c, homeSlug)
}

// ShowPage 按 slug 渲染页面。
func (a *API) ShowPage(c *gin.Context) {
	a.showPage(c, c.Param("slug"))
}

func (a *API) showPage(c *gin.Context, slug string) {
	pref := a.requestLocale(c)
	now := a.now()

	page, err := a.pages.Resolve(slug, pref.Language, now)
	if err != nil {
		if errors.Is(err, service.ErrPageNotFound) {
			a.renderErrorPage(c, http.StatusNotFound, "page not found")
			return
		}
		_ = c.Error(err)
		a.renderErrorPage(c, http.StatusInternalServerError, "page could not be loaded")
		return
	}

	themeName := a.themeFor(c, page.Theme)
	content := a.renderer.RenderPage(render.RenderContext{
		Context:  c.Request.Context(),
		Language: pref.Language,
		Theme:    themeName,
		Now:      now,
	}, page)

	layout := a.pageLayout(themeName, page.Layout)

	title := page.Title
	if strings.TrimSpace(page.MetaTitle) != "" {
		title = page.MetaTitle
	}
	description := page.MetaDescription
	if description == "" {
		description = page.Summary
	}

	a.renderView(c, http.StatusOK, themeName, layout, theme.ViewData{
		Title:       title,
		Description: description,
		Language:    page.Language,
		Content:     content,
		Page:        page,
	})
}

// ListArticles 渲染可见文章，可按分类子树过滤。
func (a *API) ListArticles(c *gin.Context) {
	now := a.now()
	filter := service.ArticleFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		VisibleAt: &now,
		Page:      parsePositiveInt(c.Query("page"), 1),
		PerPage:   articlesPerPage,
	}

	title := "Articles"
	if ref := strings.TrimSpace(c.Query("category")); ref != "" {
		category, err := a.categories.Get(ref)
		if err != nil {
			if errors.Is(err, service.ErrCategoryNotFound) {
				a.renderErrorPage(c, http.StatusNotFound, "category not found")
				return
			}
			_ = c.Error(err)
			a.renderErrorPage(c, http.StatusInternalServerError, "articles could not be loaded")
			return
		}
		filter.CategoryID = category.ID
		title = category.Name
	}

	result, err := a.articles.List(filter)
	if err != nil {
		_ = c.Error(err)
		a.renderErrorPage(c, http.StatusInternalServerError, "articles could not be loaded")
		return
	}
	categories, err := a.categories.List()
	if err != nil {
		_ = c.Error(err)
	}

	a.renderView(c, http.StatusOK, a.themeFor(c, ""), "articles", theme.ViewData{
		Title:      title,
		Articles:   result.Articles,
		Categories: categories,
		Pagination: &theme.Pagination{Page: result.Page, TotalPages: result.TotalPages, Total: result.Total},
	})
}

// ShowArticle 渲染一篇可见文章。
func (a *API) ShowArticle(c *gin.Context) {
	article, err := a.articles.GetVisibleBySlug(c.Param("slug"), a.now())
	if err != nil {
		if errors.Is(err, service.ErrArticleNotFound) {
			a.renderErrorPage(c, http.StatusNotFound, "article not found")
			return
		}
		_ = c.Error(err)
		a.renderErrorPage(c, http.StatusInternalServerError, "article could not be loaded")
		return
	}

	content, err := render.RenderMarkdown(article.Content)
	if err != nil {
		_ = c.Error(err)
		a.renderErrorPage(c, http.StatusInternalServerError, "article could not be rendered")
		return
	}

	data := theme.ViewData{
		Title:       article.Title,
		Description: article.Summary,
		Language:    article.Language,
		Content:     content,
		Article:     article,
	}
	if article.CoverFileID != nil {
		data.Image = a.fileURLByID(*article.CoverFileID, 1280)
	}
	a.renderView(c, http.StatusOK, a.themeFor(c, ""), "article", data)
}

// ShowProduct 渲染一个可见商品。
func (a *API) ShowProduct(c *gin.Context) {
	pref := a.requestLocale(c)
	product, err := a.products.GetVisibleBySlug(c.Param("slug"), a.now())
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			a.renderErrorPage(c, http.StatusNotFound, "product not found")
			return
		}
		_ = c.Error(err)
		a.renderErrorPage(c, http.StatusInternalServerError, "product could not be loaded")
		return
	}

	description, err := render.RenderMarkdown(product.Description)
	if err != nil {
		_ = c.Error(err)
	}
	data := theme.ViewData{
		Title:   product.Name,
		Content: description,
		Product: product,
		Price:   render.FormatPrice(product.PriceCents, product.Currency, pref.Language),
	}
	if product.ImageFileID != nil {
		data.Image = a.fileURLByID(*product.ImageFileID, 960)
	}
	a.renderView(c, http.StatusOK, a.themeFor(c, ""), "product", data)
}

// pageLayout 在主题缺少所需布局时退回 page 布局。
func (a *API) pageLayout(themeName, layout string) string {
	layout = strings.TrimSpace(layout)
	if layout == "" || !a.themes.HasLayout(themeName, layout) {
		return "page"
	}
	return layout
}

func (a *API) fileURLByID(id uint, width int) string {
	if a.storage == nil {
		return ""
	}
	file, err := a.storage.GetByID(id)
	if err != nil || file.Disk != a.publicDisk {
		return ""
	}
	if !strings.HasPrefix(file.MimeType, "image/") {
		width = 0
	}
	return render.FileURL(file.UUID, width)
}

// Sitemap 使用缓存的 URL 集合输出 sitemap.xml。
func (a *API) Sitemap(c *gin.Context) {
	var buf bytes.Buffer
	if err := a.sitemap.Render(&buf); err != nil {
		_ = c.Error(err)
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("sitemap unavailable"))
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", buf.Bytes())
}

// NotFound 为未知路由渲染主题错误页。
func (a *API) NotFound(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") || strings.HasPrefix(c.Request.URL.Path, "/admin/") {
		failNotFound(c, "route not found")
		return
	}
	a.renderErrorPage(c, http.StatusNotFound, "page not found")
}
