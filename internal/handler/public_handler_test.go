package handler

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPage(t *testing.T, env *testEnv, input service.PageInput, blocks ...service.BlockInput) *db.Page {
	t.Helper()
	page, err := env.pages.Create(input)
	require.NoError(t, err)
	if len(blocks) > 0 {
		_, err = env.pages.SaveBlocks(page.ID, blocks)
		require.NoError(t, err)
	}
	return page
}

func heading(text string) service.BlockInput {
	return service.BlockInput{Component: "heading", Settings: map[string]any{"text": text}, Enabled: true}
}

func TestShowHomeRendersBlocksInOrder(t *testing.T) {
	env := newTestEnv(t)
	createPage(t, env, service.PageInput{Slug: "home", Title: "Home", Status: db.StatusPublished},
		heading("Welcome"),
		service.BlockInput{Component: "markdown", Settings: map[string]any{"content": "Some **bold** words"}, Enabled: true},
		service.BlockInput{Component: "heading", Settings: map[string]any{"text": "Hidden"}, Enabled: false},
	)

	rec := env.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<h2>Welcome</h2>")
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.NotContains(t, body, "Hidden")
	assert.Less(t, strings.Index(body, "Welcome"), strings.Index(body, "bold"))
	assert.Equal(t, "en", rec.Header().Get("Content-Language"))
	assert.Contains(t, rec.Header().Get("Vary"), "Accept-Language")
}

func TestShowPageHidesUnpublished(t *testing.T) {
	env := newTestEnv(t)
	createPage(t, env, service.PageInput{Slug: "draft", Title: "Draft", Status: db.StatusDraft}, heading("Secret"))

	past := time.Now().UTC().Add(-48 * time.Hour)
	expired := time.Now().UTC().Add(-time.Hour)
	createPage(t, env, service.PageInput{Slug: "old", Title: "Old", Status: db.StatusPublished, PublishedAt: &past, ExpiredAt: &expired})

	for _, path := range []string{"/p/draft", "/p/old", "/p/missing"} {
		rec := env.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "layout-error", path)
		assert.NotContains(t, rec.Body.String(), "Secret", path)
	}
}

func TestShowPageLanguageFallback(t *testing.T) {
	env := newTestEnv(t)
	createPage(t, env, service.PageInput{Slug: "about", Title: "About", Status: db.StatusPublished}, heading("About us"))
	createPage(t, env, service.PageInput{Slug: "team", Title: "Team", Language: "en", Status: db.StatusPublished}, heading("Our team"))
	createPage(t, env, service.PageInput{Slug: "team", Title: "Team", Language: "de", Status: db.StatusPublished}, heading("Unser Team"))

	rec := env.do(http.MethodGet, "/p/about?lang=de", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "About us")
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "pc_lang=de")

	rec = env.do(http.MethodGet, "/p/team", nil, map[string]string{"Cookie": "pc_lang=de"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unser Team")
	assert.Empty(t, rec.Header().Get("Set-Cookie"))

	rec = env.do(http.MethodGet, "/p/team", nil, map[string]string{"Accept-Language": "de-DE,de;q=0.9"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unser Team")
}

func TestNotFoundRespondsByArea(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, decodeEnvelope(t, rec).Success)

	rec = env.do(http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestSitemapListsVisiblePages(t *testing.T) {
	env := newTestEnv(t)
	createPage(t, env, service.PageInput{Slug: "home", Title: "Home", Status: db.StatusPublished})
	createPage(t, env, service.PageInput{Slug: "pricing", Title: "Pricing", Status: db.StatusPublished})
	createPage(t, env, service.PageInput{Slug: "secret", Title: "Secret", Status: db.StatusDraft})

	rec := env.do(http.MethodGet, "/sitemap.xml", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://example.com/</loc>")
	assert.Contains(t, body, "<loc>https://example.com/p/pricing</loc>")
	assert.NotContains(t, body, "secret")
}

func TestAdminPageBuilderFlow(t *testing.T) {
	env := newTestEnv(t)
	cookie := map[string]string{"Cookie": loginCookie(t, env)}

	rec := env.do(http.MethodPost, "/admin/api/pages", map[string]any{"slug": "landing"}, cookie)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Errors, "title")

	rec = env.do(http.MethodPost, "/admin/api/pages", map[string]any{"title": "Landing", "publishedAt": "soon"}, cookie)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Errors, "publishedAt")

	rec = env.do(http.MethodPost, "/admin/api/pages", map[string]any{"title": "Landing", "status": "draft"}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var page db.Page
	require.NoError(t, env.db.Where("slug = ?", "landing").First(&page).Error)
	id := strconv.FormatUint(uint64(page.ID), 10)

	rec = env.do(http.MethodPut, "/admin/api/pages/"+id+"/blocks", map[string]any{
		"blocks": []map[string]any{{"component": "carousel"}},
	}, cookie)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodPut, "/admin/api/pages/"+id+"/blocks", map[string]any{
		"blocks": []map[string]any{
			{"component": "heading", "settings": map[string]any{"text": "Draft preview"}},
		},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 草稿对外不可见，预览可见
	rec = env.do(http.MethodGet, "/p/landing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(http.MethodGet, "/admin/api/pages/"+id+"/preview", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Draft preview")

	rec = env.do(http.MethodPut, "/admin/api/pages/abc/blocks", map[string]any{"blocks": []any{}}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
