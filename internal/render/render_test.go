package render

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/db/dbtest"
	"github.com/pagecraft/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(id uint, position int, component string, settings map[string]any) db.Block {
	b := db.Block{Position: position, Component: component, Settings: settings, Enabled: true}
	b.ID = id
	return b
}

func TestRegistryIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(" Markdown ", ComponentFunc(renderMarkdownBlock))

	assert.True(t, r.Has("markdown"))
	assert.True(t, r.Has("MARKDOWN"))
	assert.False(t, r.Has("video"))
	assert.Equal(t, []string{"markdown"}, r.Names())
}

func TestDefaultRegistryNames(t *testing.T) {
	r := DefaultRegistry(Deps{})
	assert.Equal(t, []string{
		"article-list", "form", "heading", "html", "image", "markdown", "partial", "product-grid", "video",
	}, r.Names())
}

func TestRenderPageOrdersAndDegrades(t *testing.T) {
	r := NewRegistry()
	r.Register("text", ComponentFunc(func(ctx RenderContext, b db.Block) (template.HTML, error) {
		return template.HTML("<p>" + b.Setting("text") + "</p>"), nil
	}))
	r.Register("broken", ComponentFunc(func(ctx RenderContext, b db.Block) (template.HTML, error) {
		return "", errors.New("boom")
	}))
	r.Register("panics", ComponentFunc(func(ctx RenderContext, b db.Block) (template.HTML, error) {
		panic("bad block")
	}))

	disabled := block(5, 0, "text", map[string]any{"text": "hidden"})
	disabled.Enabled = false
	page := &db.Page{Blocks: []db.Block{
		block(1, 3, "text", map[string]any{"text": "third"}),
		block(2, 1, "text", map[string]any{"text": "first"}),
		block(3, 2, "missing--x", nil),
		block(4, 4, "broken", nil),
		block(6, 5, "panics", nil),
		disabled,
	}}

	out := string(NewRenderer(r).RenderPage(RenderContext{}, page))

	assert.NotContains(t, out, "hidden")
	first := strings.Index(out, "<p>first</p>")
	unknown := strings.Index(out, "<!-- block 3 (missingx): unknown component -->")
	third := strings.Index(out, "<p>third</p>")
	require.True(t, first >= 0 && unknown >= 0 && third >= 0, out)
	assert.Less(t, first, unknown)
	assert.Less(t, unknown, third)
	assert.Contains(t, out, "<!-- block 4 (broken): render failed -->")
	assert.Contains(t, out, "<!-- block 6 (panics): render failed -->")
}

func TestMarkdownComponent(t *testing.T) {
	r := DefaultRegistry(Deps{})
	out := string(NewRenderer(r).RenderBlock(RenderContext{}, block(1, 0, "markdown", map[string]any{
		"content": "# Title\n\nhttps://youtu.be/dQw4w9WgXcQ?t=1m5s\n\n<script>alert(1)</script>",
	})))

	assert.Contains(t, out, `<div class="block-markdown">`)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "https://www.youtube-nocookie.com/embed/dQw4w9WgXcQ?")
	assert.Contains(t, out, "start=65")
	assert.NotContains(t, out, "<script>")
}

func TestSimpleComponents(t *testing.T) {
	renderer := NewRenderer(DefaultRegistry(Deps{}))
	ctx := RenderContext{}

	heading := string(renderer.RenderBlock(ctx, block(1, 0, "heading", map[string]any{
		"text": "Hello <World>", "level": float64(3), "anchor": "Intro Section",
	})))
	assert.Equal(t, `<h3 id="intro-section">Hello &lt;World&gt;</h3>`, heading)

	image := string(renderer.RenderBlock(ctx, block(2, 0, "image", map[string]any{
		"file": "abc-123", "width": float64(640), "alt": "A \"quoted\" alt", "caption": "Caption",
	})))
	assert.Contains(t, image, `src="/files/abc-123?w=640"`)
	assert.Contains(t, image, `alt="A &#34;quoted&#34; alt"`)
	assert.Contains(t, image, "<figcaption>Caption</figcaption>")

	badImage := string(renderer.RenderBlock(ctx, block(3, 0, "image", map[string]any{"url": "javascript:alert(1)"})))
	assert.Contains(t, badImage, "render failed")

	raw := string(renderer.RenderBlock(ctx, block(4, 0, "html", map[string]any{
		"html": `<p onclick="x()">ok</p><script>bad()</script>`,
	})))
	assert.Equal(t, "<p>ok</p>", raw)

	video := string(renderer.RenderBlock(ctx, block(5, 0, "video", map[string]any{"url": "https://vimeo.com/76979871"})))
	assert.Contains(t, video, `src="https://player.vimeo.com/video/76979871?dnt=1"`)
	assert.Contains(t, video, `data-video-platform="vimeo"`)
}

func TestArticleListComponent(t *testing.T) {
	articles := service.NewArticleService(dbtest.Open(t))
	past := time.Now().UTC().Add(-time.Hour)
	_, err := articles.Create(service.ArticleInput{
		Title: "Launch <notes>", Content: "Body", Status: db.StatusPublished, PublishedAt: &past,
	})
	require.NoError(t, err)
	_, err = articles.Create(service.ArticleInput{Title: "Draft", Content: "Body", Status: db.StatusDraft})
	require.NoError(t, err)

	renderer := NewRenderer(DefaultRegistry(Deps{Articles: articles}))
	out := string(renderer.RenderBlock(RenderContext{Now: time.Now().UTC()}, block(1, 0, "article-list", map[string]any{
		"title": "Latest",
	})))

	assert.Contains(t, out, "<h2>Latest</h2>")
	assert.Contains(t, out, `<a href="/articles/launch-notes">Launch &lt;notes&gt;</a>`)
	assert.NotContains(t, out, "Draft")
}

type stubProducts []db.Product

func (s stubProducts) ListVisible(now time.Time, limit int) ([]db.Product, error) {
	return s, nil
}

type stubFiles map[uint]*db.File

func (s stubFiles) GetByID(id uint) (*db.File, error) {
	if f, ok := s[id]; ok {
		return f, nil
	}
	return nil, service.ErrFileNotFound
}

func TestProductGridComponent(t *testing.T) {
	imageID := uint(7)
	products := stubProducts{
		{Name: "Mug", Slug: "mug", PriceCents: 1250, Currency: "USD", ImageFileID: &imageID},
		{Name: "Tee", Slug: "tee", PriceCents: 2000, Currency: "EUR"},
	}
	files := stubFiles{7: {UUID: "img-uuid"}}
	renderer := NewRenderer(DefaultRegistry(Deps{Products: products, Files: files}))

	out := string(renderer.RenderBlock(RenderContext{Language: "en"}, block(1, 0, "product-grid", map[string]any{"columns": "4"})))
	assert.Contains(t, out, `data-columns="4"`)
	assert.Contains(t, out, `<a href="/products/mug">Mug</a>`)
	assert.Contains(t, out, "12.50")
	assert.Contains(t, out, `src="/files/img-uuid?w=480"`)
	assert.Contains(t, out, "20.00")

	missing := string(NewRenderer(DefaultRegistry(Deps{})).RenderBlock(RenderContext{}, block(2, 0, "product-grid", nil)))
	assert.Contains(t, missing, "render failed")
}

func TestFormatPrice(t *testing.T) {
	assert.Contains(t, FormatPrice(1250, "USD", "en"), "12.50")
	assert.Contains(t, FormatPrice(500, "JPY", "ja"), "5")
	assert.Equal(t, "3.00 XX", FormatPrice(300, "XX", "en"))
}

type stubForms map[string]*db.Form

func (s stubForms) GetByHandle(handle string, includeDisabled bool) (*db.Form, error) {
	if f, ok := s[handle]; ok {
		return f, nil
	}
	return nil, service.ErrFormNotFound
}

func TestFormComponent(t *testing.T) {
	form := &db.Form{Handle: "contact", Name: "Contact", Fields: []db.FormField{
		{Name: "email", Label: "Email", Type: db.FieldEmail, Required: true},
		{Name: "topic", Label: "Topic", Type: db.FieldSelect, Options: []string{"Sales", "Support"}},
		{Name: "message", Label: "Message", Type: db.FieldTextarea, MaxLength: 500},
		{Name: "agree", Label: "I agree", Type: db.FieldCheckbox},
	}}
	renderer := NewRenderer(DefaultRegistry(Deps{Forms: stubForms{"contact": form}}))

	out := string(renderer.RenderBlock(RenderContext{}, block(9, 0, "form", map[string]any{"handle": "contact", "submit": "Go"})))
	assert.Contains(t, out, `action="/forms/contact"`)
	assert.Contains(t, out, `<input id="form-9-email" type="email" name="email" required>`)
	assert.Contains(t, out, `<option value="Support">Support</option>`)
	assert.Contains(t, out, `maxlength="500"`)
	assert.Contains(t, out, `type="checkbox" name="agree"`)
	assert.Contains(t, out, `<button type="submit">Go</button>`)

	unknown := string(renderer.RenderBlock(RenderContext{}, block(10, 0, "form", map[string]any{"handle": "nope"})))
	assert.Contains(t, unknown, "render failed")
}

type stubPartials struct{}

func (stubPartials) RenderPartial(w io.Writer, theme, name string, data any) error {
	if name != "cta" {
		return fmt.Errorf("partial %q not found", name)
	}
	settings := data.(map[string]any)["Settings"].(map[string]any)
	_, err := fmt.Fprintf(w, "<aside data-theme=%q>%v</aside>", theme, settings["label"])
	return err
}

func TestPartialComponent(t *testing.T) {
	renderer := NewRenderer(DefaultRegistry(Deps{Partials: stubPartials{}}))
	out := string(renderer.RenderBlock(RenderContext{Theme: "aurora"}, block(1, 0, "partial", map[string]any{
		"name": "cta", "label": "Buy now",
	})))
	assert.Equal(t, `<aside data-theme="aurora">Buy now</aside>`, out)
}
