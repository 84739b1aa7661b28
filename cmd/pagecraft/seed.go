package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/pagecraft/internal/app"
	"github.com/pagecraft/internal/config"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
	"github.com/spf13/cobra"
)

// demo content generator
func newSeedCmd(load func() config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo content on an empty site",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(load)
			if err != nil {
				return err
			}
			defer a.Close()
			return seedDemo(a, cmd.OutOrStdout())
		},
	}
}

func seedDemo(a *app.App, out io.Writer) error {
	if _, err := a.Pages.GetBySlug("home", a.Config.DefaultLanguage); err == nil {
		fmt.Fprintln(out, "home page exists, skipping demo content")
		return nil
	} else if !errors.Is(err, service.ErrPageNotFound) {
		return err
	}

	news, err := a.Categories.Create(service.CategoryInput{Name: "News"})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	guides, err := a.Categories.Create(service.CategoryInput{Name: "Guides", ParentID: &news.ID})
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	articles := []service.ArticleInput{
		{Title: "Welcome to Pagecraft", Content: "Pages are built from **blocks**. Edit this site from the admin API.", CategoryIDs: []uint{news.ID}},
		{Title: "Building your first page", Content: "1. Create a page\n2. Add blocks\n3. Publish", CategoryIDs: []uint{guides.ID}},
	}
	for _, input := range articles {
		input.Status = db.StatusPublished
		if _, err := a.Articles.Create(input); err != nil {
			return fmt.Errorf("create article: %w", err)
		}
	}

	if _, err := a.Products.Create(service.ProductInput{
		Name:        "Starter Plan",
		SKU:         "PLAN-STARTER",
		Description: "Everything a small site needs.",
		PriceCents:  900,
		Currency:    "USD",
		Status:      db.StatusPublished,
	}); err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	if _, err := a.Forms.Create(service.FormInput{
		Handle: "contact",
		Name:   "Contact",
		Fields: []db.FormField{
			{Name: "name", Label: "Name", Type: db.FieldText, Required: true, MaxLength: 120},
			{Name: "email", Label: "Email", Type: db.FieldEmail, Required: true},
			{Name: "message", Label: "Message", Type: db.FieldTextarea, MaxLength: 2000},
		},
		SuccessMessage: "Thanks, we will get back to you soon.",
		Enabled:        true,
	}); err != nil {
		return fmt.Errorf("create form: %w", err)
	}

	if _, err := a.Releases.Create(service.ReleaseInput{
		Version: "1.0.0",
		Title:   "First release",
		Notes:   "Initial public version.",
		Status:  db.StatusPublished,
	}); err != nil {
		return fmt.Errorf("create release: %w", err)
	}

	home, err := a.Pages.Create(service.PageInput{
		Slug:     "home",
		Language: a.Config.DefaultLanguage,
		Title:    "Home",
		Status:   db.StatusPublished,
	})
	if err != nil {
		return fmt.Errorf("create home page: %w", err)
	}
	if _, err := a.Pages.SaveBlocks(home.ID, []service.BlockInput{
		{Component: "heading", Settings: map[string]any{"text": "Welcome", "level": 1}, Enabled: true},
		{Component: "markdown", Settings: map[string]any{"content": "This site was created by `pagecraft seed`."}, Enabled: true},
		{Component: "article-list", Settings: map[string]any{"title": "Latest articles", "limit": 5}, Enabled: true},
		{Component: "product-grid", Settings: map[string]any{"title": "Plans", "columns": 3}, Enabled: true},
		{Component: "form", Settings: map[string]any{"handle": "contact", "title": "Get in touch"}, Enabled: true},
	}); err != nil {
		return fmt.Errorf("save home blocks: %w", err)
	}

	fmt.Fprintln(out, "demo content created")
	fmt.Fprintln(out, "categories: 2, articles: 2, products: 1, forms: 1, releases: 1, pages: 1")
	return nil
}
