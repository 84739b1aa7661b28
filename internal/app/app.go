// Package app assembles services, themes and handlers from an AppConfig.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pagecraft/internal/config"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/event"
	"github.com/pagecraft/internal/handler"
	"github.com/pagecraft/internal/listener"
	"github.com/pagecraft/internal/locale"
	"github.com/pagecraft/internal/logging"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/scheduler"
	"github.com/pagecraft/internal/service"
	"github.com/pagecraft/internal/theme"
	"gorm.io/gorm"
)

const (
	notificationRetryInterval = 5 * time.Minute
	notificationRetryLimit    = 50
	loginMaxFailures          = 5
	loginWindow               = 15 * time.Minute
)

// App holds the wired application.
type App struct {
	Config        config.AppConfig
	DB            *gorm.DB
	Bus           *event.Bus
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
	Notifications *service.NotificationService
	Themes        *theme.Manager
	Registry      *render.Registry
	Locale        *locale.Resolver
	Scheduler     *scheduler.Scheduler
	Limiter       *handler.LoginLimiter
	API           *handler.API
}

// New opens the database and builds every component. Callers own Close.
func New(cfg config.AppConfig) (*App, error) {
	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a, err := Build(cfg, gdb)
	if err != nil {
		closeDB(gdb)
		return nil, err
	}
	return a, nil
}

// Build wires components on top of an already migrated database.
func Build(cfg config.AppConfig, gdb *gorm.DB) (*App, error) {
	bus := event.NewBus()
	if err := db.RegisterCallbacks(gdb, bus); err != nil {
		return nil, fmt.Errorf("register callbacks: %w", err)
	}

	a := &App{Config: cfg, DB: gdb, Bus: bus}
	a.Settings = service.NewSystemSettingService(gdb, cfg.Theme)
	a.Articles = service.NewArticleService(gdb)
	a.Categories = service.NewCategoryService(gdb)
	a.Products = service.NewProductService(gdb)
	a.Releases = service.NewReleaseService(gdb)
	a.Forms = service.NewFormService(gdb)
	a.Storage = service.NewStorageService(gdb, cfg.StorageRoot, cfg.PublicDisk, cfg.PrivateDisk)
	a.Translations = service.NewTranslationService(gdb, a.Settings, cfg.DefaultLanguage)
	a.Translations.SetModels(cfg.OpenAIModel, cfg.DeepSeekModel)
	a.Locale = locale.NewResolver(cfg.DefaultLanguage, cfg.Languages)

	themes, err := theme.NewManager(theme.Options{
		Dir: cfg.ThemeDir,
		Translate: func(language, group, key string) string {
			return a.Translations.Get(group, key, language)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load themes: %w", err)
	}
	a.Themes = themes

	a.Registry = render.DefaultRegistry(render.Deps{
		Articles: a.Articles,
		Products: a.Products,
		Forms:    a.Forms,
		Files:    a.Storage,
		Partials: themes,
	})
	a.Pages = service.NewPageService(gdb, a.Registry, cfg.DefaultLanguage)
	a.Sitemap = service.NewSitemapService(a.Pages, a.Articles, a.Products, a.Categories, cfg.SiteBaseURL, cfg.DefaultLanguage, cfg.SitemapTTL)

	var mailer service.MailSender
	if cfg.SMTPAddr != "" {
		mailer = service.SMTPSender{Addr: cfg.SMTPAddr, Username: cfg.SMTPUser, Password: cfg.SMTPPassword}
	}
	a.Notifications = service.NewNotificationService(gdb, mailer, cfg.SMTPFrom)
	listener.Register(bus, a.Sitemap, a.Notifications)

	a.Limiter = handler.NewLoginLimiter(loginMaxFailures, loginWindow)
	a.Scheduler = scheduler.New()
	if err := a.Scheduler.Add("translation-backfill", cfg.BackfillInterval,
		scheduler.TranslationBackfill(a.Translations, cfg.Languages)); err != nil {
		return nil, err
	}
	if err := a.Scheduler.Add("notification-retry", notificationRetryInterval,
		scheduler.NotificationRetry(a.Notifications, notificationRetryLimit)); err != nil {
		return nil, err
	}
	if err := a.Scheduler.Add("login-limiter-sweep", a.Limiter.Window(), scheduler.LimiterSweep(a.Limiter)); err != nil {
		return nil, err
	}

	a.API = handler.NewAPI(handler.Deps{
		DB:            gdb,
		Pages:         a.Pages,
		Articles:      a.Articles,
		Categories:    a.Categories,
		Products:      a.Products,
		Releases:      a.Releases,
		Forms:         a.Forms,
		Storage:       a.Storage,
		Sitemap:       a.Sitemap,
		Translations:  a.Translations,
		Settings:      a.Settings,
		Renderer:      render.NewRenderer(a.Registry),
		Themes:        themes,
		Locale:        a.Locale,
		Components:    a.Registry.Names(),
		PublicDisk:    cfg.PublicDisk,
		APIToken:      cfg.APIToken,
		SecureCookies: isHTTPS(cfg.SiteBaseURL),
		Limiter:       a.Limiter,
	})
	return a, nil
}

// EnsureAdmin creates the configured admin account when it is missing.
func (a *App) EnsureAdmin() error {
	created, err := db.EnsureUser(a.DB, a.Config.AdminUserName, a.Config.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		logging.L().Info().Str("username", a.Config.AdminUserName).Msg("admin user created")
	}
	return nil
}

// StartBackground runs the notification worker and the scheduled jobs until
// ctx is cancelled. Wait blocks until they have stopped.
func (a *App) StartBackground(ctx context.Context) error {
	go a.Notifications.Run(ctx)
	return a.Scheduler.Start(ctx)
}

// Wait blocks until scheduled jobs have returned.
func (a *App) Wait() {
	a.Scheduler.Wait()
}

// Close releases the database.
func (a *App) Close() {
	closeDB(a.DB)
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (a *App) SecureCookies() bool {
	return isHTTPS(a.Config.SiteBaseURL)
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(strings.ToLower(baseURL), "https://")
}

func closeDB(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
