package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmlstd "html"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	ErrMissingSetting = errors.New("missing block setting")
	ErrNoSource       = errors.New("component data source not configured")

	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML(), html.WithUnsafe()),
	)
	// goldmark keeps raw HTML; output always goes through the sanitizer
	contentPolicy = buildContentPolicy()

	componentTemplates = template.Must(template.New("components").Funcs(template.FuncMap{
		"isoDate":   func(t *time.Time) string { return t.UTC().Format("2006-01-02") },
		"shortDate": func(t *time.Time) string { return t.UTC().Format("Jan 2, 2006") },
	}).ParseFS(templateFS, "templates/*.html"))
)

func buildContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("iframe")
	policy.AllowAttrs("class", "data-video-embed", "data-video-platform", "data-video-aspect", "data-video-source").OnElements("div")
	policy.AllowAttrs("src").Matching(videoSrcPattern).OnElements("iframe")
	policy.AllowAttrs("title", "allow", "allowfullscreen", "frameborder", "loading", "referrerpolicy", "sandbox").OnElements("iframe")
	policy.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return policy
}

// RenderMarkdown converts Markdown to sanitised HTML. Lines holding a bare
// video link become embedded players.
func RenderMarkdown(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(applyVideoEmbeds(content)), &buf); err != nil {
		return "", err
	}
	return template.HTML(contentPolicy.SanitizeBytes(buf.Bytes())), nil
}

// SanitizeHTML strips unsafe markup from author-supplied HTML.
func SanitizeHTML(raw string) template.HTML {
	return template.HTML(contentPolicy.Sanitize(raw))
}

// ArticleLister lists articles for the article-list component.
type ArticleLister interface {
	List(filter service.ArticleFilter) (*service.ArticleListResult, error)
}

// ProductLister lists products for the product-grid component.
type ProductLister interface {
	ListVisible(now time.Time, limit int) ([]db.Product, error)
}

// FormFinder loads forms for the form component.
type FormFinder interface {
	GetByHandle(handle string, includeDisabled bool) (*db.Form, error)
}

// FileLookup resolves stored files referenced by id.
type FileLookup interface {
	GetByID(id uint) (*db.File, error)
}

// Partials renders a named template of a theme.
type Partials interface {
	RenderPartial(w io.Writer, theme, name string, data any) error
}

// Deps are the data sources of the built-in components. Nil sources make
// the corresponding component fail, which the renderer turns into a comment.
type Deps struct {
	Articles ArticleLister
	Products ProductLister
	Forms    FormFinder
	Files    FileLookup
	Partials Partials
	// FileURL builds the public URL of a stored file; width 0 means original size.
	FileURL func(uuid string, width int) string
}

// DefaultRegistry returns a registry with every built-in component.
func DefaultRegistry(deps Deps) *Registry {
	if deps.FileURL == nil {
		deps.FileURL = FileURL
	}
	r := NewRegistry()
	r.Register("markdown", ComponentFunc(renderMarkdownBlock))
	r.Register("html", ComponentFunc(renderHTMLBlock))
	r.Register("heading", ComponentFunc(renderHeading))
	r.Register("image", imageComponent{fileURL: deps.FileURL})
	r.Register("video", ComponentFunc(renderVideo))
	r.Register("article-list", articleListComponent{articles: deps.Articles})
	r.Register("product-grid", productGridComponent{products: deps.Products, files: deps.Files, fileURL: deps.FileURL})
	r.Register("form", formComponent{forms: deps.Forms})
	r.Register("partial", partialComponent{partials: deps.Partials})
	return r
}

// FileURL is the default public URL of a stored file.
func FileURL(uuid string, width int) string {
	u := "/files/" + url.PathEscape(uuid)
	if width > 0 {
		u += "?w=" + strconv.Itoa(width)
	}
	return u
}

func renderMarkdownBlock(ctx RenderContext, block db.Block) (template.HTML, error) {
	content := block.Setting("content")
	out, err := RenderMarkdown(content)
	if err != nil {
		return "", err
	}
	return template.HTML(`<div class="block-markdown">`) + out + template.HTML(`</div>`), nil
}

func renderHTMLBlock(ctx RenderContext, block db.Block) (template.HTML, error) {
	return SanitizeHTML(block.Setting("html")), nil
}

func renderHeading(ctx RenderContext, block db.Block) (template.HTML, error) {
	text := strings.TrimSpace(block.Setting("text"))
	if text == "" {
		return "", fmt.Errorf("%w: text", ErrMissingSetting)
	}
	level := settingInt(block, "level", 2)
	if level < 1 || level > 6 {
		level = 2
	}
	id := ""
	if anchor := service.Slugify(block.Setting("anchor")); anchor != "" {
		id = ` id="` + htmlstd.EscapeString(anchor) + `"`
	}
	return template.HTML(fmt.Sprintf("<h%d%s>%s</h%d>", level, id, htmlstd.EscapeString(text), level)), nil
}

type imageComponent struct {
	fileURL func(uuid string, width int) string
}

func (c imageComponent) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	src := strings.TrimSpace(block.Setting("url"))
	if file := strings.TrimSpace(block.Setting("file")); file != "" {
		src = c.fileURL(file, settingInt(block, "width", 0))
	}
	if src == "" {
		return "", fmt.Errorf("%w: file", ErrMissingSetting)
	}
	if !strings.HasPrefix(src, "/") && !strings.HasPrefix(src, "https://") && !strings.HasPrefix(src, "http://") {
		return "", fmt.Errorf("unsupported image url %q", src)
	}

	var b strings.Builder
	b.WriteString(`<figure class="block-image"><img src="`)
	b.WriteString(htmlstd.EscapeString(src))
	b.WriteString(`" alt="`)
	b.WriteString(htmlstd.EscapeString(block.Setting("alt")))
	b.WriteString(`" loading="lazy">`)
	if caption := strings.TrimSpace(block.Setting("caption")); caption != "" {
		b.WriteString("<figcaption>")
		b.WriteString(htmlstd.EscapeString(caption))
		b.WriteString("</figcaption>")
	}
	b.WriteString("</figure>")
	return template.HTML(b.String()), nil
}

func renderVideo(ctx RenderContext, block db.Block) (template.HTML, error) {
	raw := strings.TrimSpace(block.Setting("url"))
	if raw == "" {
		return "", fmt.Errorf("%w: url", ErrMissingSetting)
	}
	video, ok := ParseVideoURL(raw)
	if !ok {
		return "", fmt.Errorf("unsupported video url %q", raw)
	}
	return template.HTML(videoHTML(video, strings.TrimSpace(block.Setting("title")))), nil
}

type articleListComponent struct {
	articles ArticleLister
}

func (c articleListComponent) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	if c.articles == nil {
		return "", ErrNoSource
	}
	now := ctx.Now
	filter := service.ArticleFilter{
		VisibleAt:  &now,
		Language:   block.Setting("language"),
		CategoryID: uint(settingInt(block, "category", 0)),
		PerPage:    settingInt(block, "limit", 5),
	}
	result, err := c.articles.List(filter)
	if err != nil {
		return "", err
	}
	return execute("article-list", map[string]any{
		"Title":    block.Setting("title"),
		"Articles": result.Articles,
		"Empty":    firstNonEmpty(block.Setting("empty"), "No articles yet."),
	})
}

type productCard struct {
	Name  string
	Slug  string
	Price string
	Image string
}

type productGridComponent struct {
	products ProductLister
	files    FileLookup
	fileURL  func(uuid string, width int) string
}

func (c productGridComponent) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	if c.products == nil {
		return "", ErrNoSource
	}
	products, err := c.products.ListVisible(ctx.Now, settingInt(block, "limit", 8))
	if err != nil {
		return "", err
	}
	cards := make([]productCard, 0, len(products))
	for _, p := range products {
		card := productCard{Name: p.Name, Slug: p.Slug, Price: FormatPrice(p.PriceCents, p.Currency, ctx.Language)}
		if p.ImageFileID != nil && c.files != nil {
			if file, err := c.files.GetByID(*p.ImageFileID); err == nil {
				card.Image = c.fileURL(file.UUID, 480)
			}
		}
		cards = append(cards, card)
	}
	columns := settingInt(block, "columns", 3)
	if columns < 1 || columns > 6 {
		columns = 3
	}
	return execute("product-grid", map[string]any{
		"Title":    block.Setting("title"),
		"Products": cards,
		"Columns":  columns,
	})
}

type formComponent struct {
	forms FormFinder
}

func (c formComponent) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	if c.forms == nil {
		return "", ErrNoSource
	}
	handle := strings.TrimSpace(block.Setting("handle"))
	if handle == "" {
		return "", fmt.Errorf("%w: handle", ErrMissingSetting)
	}
	form, err := c.forms.GetByHandle(handle, false)
	if err != nil {
		return "", err
	}
	return execute("form", map[string]any{
		"ID":     fmt.Sprintf("form-%d", block.ID),
		"Form":   form,
		"Title":  block.Setting("title"),
		"Submit": firstNonEmpty(block.Setting("submit"), "Send"),
	})
}

type partialComponent struct {
	partials Partials
}

func (c partialComponent) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	if c.partials == nil {
		return "", ErrNoSource
	}
	name := strings.TrimSpace(block.Setting("name"))
	if name == "" {
		return "", fmt.Errorf("%w: name", ErrMissingSetting)
	}
	var buf bytes.Buffer
	if err := c.partials.RenderPartial(&buf, ctx.Theme, name, map[string]any{
		"Block":    block,
		"Settings": map[string]any(block.Settings),
		"Page":     ctx.Page,
		"Language": ctx.Language,
	}); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// FormatPrice formats minor units as a localized currency amount.
func FormatPrice(cents int64, code, lang string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", float64(cents)/100, code)
	}
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(float64(cents) / 100)))
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := componentTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func settingInt(block db.Block, key string, fallback int) int {
	raw := strings.TrimSpace(block.Setting(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// JSON numbers may be stored as 12.0
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			return fallback
		}
		n = int(f)
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
