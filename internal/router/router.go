package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/handler"
	"github.com/pagecraft/internal/logging"
)

const sessionName = "pagecraft_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, secure bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware())

	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", api.HealthCheck)
	r.GET("/sitemap.xml", api.Sitemap)
	r.GET("/files/:uuid", api.ServeFile)

	// 前台页面
	site := r.Group("")
	site.Use(api.LocaleMiddleware())
	{
		site.GET("/", api.ShowHome)
		site.GET("/p/:slug", api.ShowPage)
		site.GET("/articles", api.ListArticles)
		site.GET("/articles/:slug", api.ShowArticle)
		site.GET("/products/:slug", api.ShowProduct)
		site.POST("/forms/:handle", api.SubmitForm)
	}

	// 令牌接口
	tokenAPI := r.Group("/api")
	tokenAPI.Use(api.TokenRequired())
	{
		tokenAPI.GET("/releases", api.APIListReleases)
		tokenAPI.GET("/releases/latest", api.APILatestRelease)
		tokenAPI.GET("/forms/:handle/entries", api.APIPullEntries)
	}

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		auth := admin.Group("/api")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/me", api.CurrentUser)
			auth.GET("/components", api.ListComponents)
			auth.GET("/themes", api.ListThemes)

			auth.GET("/pages", api.ListPages)
			auth.POST("/pages", api.CreatePage)
			auth.GET("/pages/:id", api.GetPage)
			auth.PUT("/pages/:id", api.UpdatePage)
			auth.DELETE("/pages/:id", api.DeletePage)
			auth.GET("/pages/:id/preview", api.PreviewPage)
			auth.PUT("/pages/:id/blocks", api.SaveBlocks)
			auth.PUT("/pages/:id/blocks/order", api.ReorderBlocks)

			auth.GET("/articles", api.ListArticlesAdmin)
			auth.POST("/articles", api.CreateArticle)
			auth.GET("/articles/:id", api.GetArticle)
			auth.PUT("/articles/:id", api.UpdateArticle)
			auth.DELETE("/articles/:id", api.DeleteArticle)

			auth.GET("/categories", api.GetCategoryTree)
			auth.POST("/categories", api.CreateCategory)
			auth.POST("/categories/rebuild", api.RebuildCategories)
			auth.GET("/categories/:id", api.GetCategory)
			auth.PUT("/categories/:id", api.UpdateCategory)
			auth.PUT("/categories/:id/move", api.MoveCategory)
			auth.DELETE("/categories/:id", api.DeleteCategory)

			auth.GET("/products", api.ListProducts)
			auth.POST("/products", api.CreateProduct)
			auth.GET("/products/:id", api.GetProduct)
			auth.PUT("/products/:id", api.UpdateProduct)
			auth.DELETE("/products/:id", api.DeleteProduct)

			auth.GET("/releases", api.ListReleases)
			auth.POST("/releases", api.CreateRelease)
			auth.PUT("/releases/:id", api.UpdateRelease)
			auth.DELETE("/releases/:id", api.DeleteRelease)

			auth.GET("/forms", api.ListForms)
			auth.POST("/forms", api.CreateForm)
			auth.GET("/forms/:id", api.GetForm)
			auth.PUT("/forms/:id", api.UpdateForm)
			auth.DELETE("/forms/:id", api.DeleteForm)
			auth.GET("/forms/:id/entries", api.ListFormEntries)
			auth.DELETE("/entries/:id", api.DeleteFormEntry)

			auth.GET("/files", api.ListFiles)
			auth.POST("/files", api.UploadFile)
			auth.GET("/files/:uuid", api.DownloadFile)
			auth.DELETE("/files/:uuid", api.DeleteFile)

			auth.GET("/translations", api.ListTranslations)
			auth.PUT("/translations", api.SaveTranslation)
			auth.DELETE("/translations/:id", api.DeleteTranslation)
			auth.GET("/translations/missing", api.ListMissingTranslations)
			auth.POST("/translations/backfill", api.BackfillTranslations)

			auth.GET("/settings", api.GetSystemSettings)
			auth.PUT("/settings", api.UpdateSystemSettings)
			auth.POST("/settings/test-ai", api.TestAIConnection)
		}
	}

	r.NoRoute(api.NotFound)
	return r
}
