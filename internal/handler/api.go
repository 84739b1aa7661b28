package handler

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/locale"
	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/service"
	"github.com/pagecraft/internal/theme"
	"gorm.io/gorm"
)

// Deps 列出处理器需要的全部依赖，服务由调用方构建。
type Deps struct {
	DB            *gorm.DB
	Pages         *service.PageService
	Articles      *service.ArticleService
	Categories    *service.CategoryService
	Products      *service.ProductService
	Releases      *service.ReleaseService
	Forms         *service.FormService
	Storage       *service.StorageService
	Sitemap       *service.SitemapService
	Translations  *service.TranslationService
	Settings      *service.SystemSettingService
	Renderer      *render.Renderer
	Themes        *theme.Manager
	Locale        *locale.Resolver
	Components    []string
	PublicDisk    string
	APIToken      string
	SecureCookies bool
	Limiter       *LoginLimiter
}

// API 汇总 HTTP 处理器共享的依赖。
type API struct {
	db            *gorm.DB
	pages         *service.PageService
	articles      *service.ArticleService
	categories    *service.CategoryService
	products      *service.ProductService
	releases      *service.ReleaseService
	forms         *service.FormService
	storage       *service.StorageService
	sitemap       *service.SitemapService
	translations  *service.TranslationService
	system        *service.SystemSettingService
	renderer      *render.Renderer
	themes        *theme.Manager
	locale        *locale.Resolver
	components    []string
	publicDisk    string
	apiToken      string
	secureCookies bool
	limiter       *LoginLimiter
	now           func() time.Time
}

const siteSettingsContextKey = "__site_settings"

// NewAPI 使用共享服务构建处理器集合。
func NewAPI(deps Deps) *API {
	resolver := deps.Locale
	if resolver == nil {
		resolver = locale.NewResolver("en", nil)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewLoginLimiter(5, 15*time.Minute)
	}
	publicDisk := strings.TrimSpace(deps.PublicDisk)
	if publicDisk == "" {
		publicDisk = "public"
	}
	return &API{
		db:            deps.DB,
		pages:         deps.Pages,
		articles:      deps.Articles,
		categories:    deps.Categories,
		products:      deps.Products,
		releases:      deps.Releases,
		forms:         deps.Forms,
		storage:       deps.Storage,
		sitemap:       deps.Sitemap,
		translations:  deps.Translations,
		system:        deps.Settings,
		renderer:      deps.Renderer,
		themes:        deps.Themes,
		locale:        resolver,
		components:    deps.Components,
		publicDisk:    publicDisk,
		apiToken:      strings.TrimSpace(deps.APIToken),
		secureCookies: deps.SecureCookies,
		limiter:       limiter,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DB 返回底层的 gorm 实例。
func (a *API) DB() *gorm.DB {
	return a.db
}

func (a *API) siteSettings(c *gin.Context) service.SystemSettings {
	if cached, exists := c.Get(siteSettingsContextKey); exists {
		if settings, ok := cached.(service.SystemSettings); ok {
			return settings
		}
	}

	var settings service.SystemSettings
	if a.system != nil {
		loaded, err := a.system.GetSettings()
		if err != nil {
			_ = c.Error(err)
		}
		settings = loaded
	}
	if strings.TrimSpace(settings.SiteName) == "" {
		settings.SiteName = "Pagecraft"
	}
	if strings.TrimSpace(settings.Theme) == "" {
		settings.Theme = theme.DefaultTheme
	}

	c.Set(siteSettingsContextKey, settings)
	return settings
}

// themeFor 优先使用页面自己的主题，未加载时退回站点主题。
func (a *API) themeFor(c *gin.Context, preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" && a.themes != nil && a.themes.Has(preferred) {
		return preferred
	}
	return a.siteSettings(c).Theme
}

// renderView 填好站点公共字段后渲染主题布局。
func (a *API) renderView(c *gin.Context, status int, themeName, layout string, data theme.ViewData) {
	pref := a.requestLocale(c)
	if data.SiteName == "" {
		data.SiteName = a.siteSettings(c).SiteName
	}
	if data.Language == "" {
		data.Language = pref.Language
	}
	if data.Languages == nil {
		data.Languages = a.locale.Supported()
	}
	if data.Year == 0 {
		data.Year = a.now().Year()
	}
	if data.Status == 0 {
		data.Status = status
	}

	var buf bytes.Buffer
	if err := a.themes.Render(&buf, themeName, layout, data); err != nil {
		_ = c.Error(err)
		logging.L().Error().Err(err).
			Str("theme", themeName).
			Str("layout", layout).
			Msg("theme render failed")
		c.Data(http.StatusInternalServerError, "text/plain; charset=utf-8", []byte("internal server error"))
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (a *API) renderErrorPage(c *gin.Context, status int, message string) {
	a.renderView(c, status, a.themeFor(c, ""), "error", theme.ViewData{
		Title:   http.StatusText(status),
		Message: message,
	})
}
