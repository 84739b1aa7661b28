package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/db/dbtest"
	"github.com/pagecraft/internal/locale"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/service"
	"github.com/pagecraft/internal/theme"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAPIToken = "test-token"

type testEnv struct {
	db       *gorm.DB
	api      *API
	router   *gin.Engine
	pages    *service.PageService
	forms    *service.FormService
	releases *service.ReleaseService
	storage  *service.StorageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb := dbtest.Open(t)
	settings := service.NewSystemSettingService(gdb, theme.DefaultTheme)
	articles := service.NewArticleService(gdb)
	categories := service.NewCategoryService(gdb)
	products := service.NewProductService(gdb)
	forms := service.NewFormService(gdb)
	storage := service.NewStorageService(gdb, t.TempDir(), "public", "private")
	translations := service.NewTranslationService(gdb, settings, "en")

	themes, err := theme.NewManager(theme.Options{
		Translate: func(language, group, key string) string {
			return translations.Get(group, key, language)
		},
	})
	require.NoError(t, err)

	registry := render.DefaultRegistry(render.Deps{
		Articles: articles,
		Products: products,
		Forms:    forms,
		Files:    storage,
		Partials: themes,
	})
	pages := service.NewPageService(gdb, registry, "en")
	releases := service.NewReleaseService(gdb)

	api := NewAPI(Deps{
		DB:           gdb,
		Pages:        pages,
		Articles:     articles,
		Categories:   categories,
		Products:     products,
		Releases:     releases,
		Forms:        forms,
		Storage:      storage,
		Sitemap:      service.NewSitemapService(pages, articles, products, categories, "https://example.com", "en", 0),
		Translations: translations,
		Settings:     settings,
		Renderer:     render.NewRenderer(registry),
		Themes:       themes,
		Locale:       locale.NewResolver("en", []string{"en", "de"}),
		Components:   registry.Names(),
		APIToken:     testAPIToken,
	})

	return &testEnv{
		db:       gdb,
		api:      api,
		router:   testRouter(api),
		pages:    pages,
		forms:    forms,
		releases: releases,
		storage:  storage,
	}
}

func testRouter(api *API) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))

	r.GET("/files/:uuid", api.ServeFile)
	r.GET("/sitemap.xml", api.Sitemap)
	site := r.Group("")
	site.Use(api.LocaleMiddleware())
	site.GET("/", api.ShowHome)
	site.GET("/p/:slug", api.ShowPage)
	site.GET("/articles", api.ListArticles)
	site.POST("/forms/:handle", api.SubmitForm)

	tokenAPI := r.Group("/api")
	tokenAPI.Use(api.TokenRequired())
	tokenAPI.GET("/releases", api.APIListReleases)
	tokenAPI.GET("/releases/latest", api.APILatestRelease)
	tokenAPI.GET("/forms/:handle/entries", api.APIPullEntries)

	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)
	auth := r.Group("/admin/api")
	auth.Use(AuthRequired())
	auth.GET("/me", api.CurrentUser)
	auth.POST("/pages", api.CreatePage)
	auth.PUT("/pages/:id/blocks", api.SaveBlocks)
	auth.GET("/pages/:id/preview", api.PreviewPage)
	auth.POST("/files", api.UploadFile)
	auth.GET("/files", api.ListFiles)
	auth.DELETE("/files/:uuid", api.DeleteFile)

	r.NoRoute(api.NotFound)
	return r
}

// do 发送请求，body 为字符串时按表单编码，其余值编码为 JSON。
func (e *testEnv) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	contentType := ""
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type testEnvelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}
