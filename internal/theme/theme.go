// Package theme loads html/template themes and renders layouts with
// parent and default-theme fallback.
package theme

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/logging"
	"gopkg.in/yaml.v3"
)

//go:embed themes
var embedded embed.FS

// DefaultTheme is the embedded theme every other theme falls back to.
const DefaultTheme = "default"

var (
	ErrThemeNotFound  = errors.New("theme not found")
	ErrLayoutNotFound = errors.New("layout not found")
	ErrThemeCycle     = errors.New("theme parent chain loops")
)

// Meta is the content of a theme's theme.yaml.
type Meta struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Parent      string   `yaml:"parent"`
	Layouts     []string `yaml:"layouts"`
}

// Pagination describes the current page of a listing.
type Pagination struct {
	Page       int
	TotalPages int
	Total      int64
}

// ViewData is passed to every layout.
type ViewData struct {
	SiteName    string
	Title       string
	Description string
	Canonical   string
	Language    string
	Languages   []string
	Year        int
	Content     template.HTML
	Page        *db.Page
	Article     *db.Article
	Articles    []db.Article
	Categories  []db.ArticleCategory
	Product     *db.Product
	Image       string
	Price       string
	Pagination  *Pagination
	Status      int
	Message     string
}

// Translator resolves a UI string for a language.
type Translator func(language, group, key string) string

// Options configure a Manager.
type Options struct {
	// Dir holds one sub-directory per extra theme; empty means embedded themes only.
	Dir       string
	Translate Translator
}

type source struct {
	meta  Meta
	files map[string]string // template name -> source, e.g. layouts/page
}

type compiled struct {
	meta Meta
	tmpl *template.Template
}

// Manager holds compiled themes.
type Manager struct {
	mu     sync.RWMutex
	themes map[string]*compiled
}

// NewManager loads the embedded themes and every theme found under opts.Dir.
// A directory theme with the same name as an embedded one replaces it.
func NewManager(opts Options) (*Manager, error) {
	sources := make(map[string]*source)

	builtin, err := fs.Sub(embedded, "themes")
	if err != nil {
		return nil, err
	}
	if err := loadThemes(builtin, sources); err != nil {
		return nil, err
	}
	if dir := strings.TrimSpace(opts.Dir); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := loadThemes(os.DirFS(dir), sources); err != nil {
				return nil, err
			}
		} else {
			logging.L().Warn().Str("dir", dir).Msg("theme directory not found, using embedded themes")
		}
	}
	if _, ok := sources[DefaultTheme]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrThemeNotFound, DefaultTheme)
	}

	funcs := templateFuncs(opts.Translate)
	m := &Manager{themes: make(map[string]*compiled, len(sources))}
	for name := range sources {
		tmpl, err := compile(name, sources, funcs)
		if err != nil {
			return nil, fmt.Errorf("theme %s: %w", name, err)
		}
		m.themes[name] = &compiled{meta: sources[name].meta, tmpl: tmpl}
	}
	return m, nil
}

// Names returns the loaded theme names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.themes))
	for name := range m.themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a theme is loaded.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.themes[name]
	return ok
}

// Meta returns the metadata of a theme.
func (m *Manager) Meta(name string) (Meta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.themes[name]
	if !ok {
		return Meta{}, false
	}
	return t.meta, true
}

// HasLayout reports whether theme, or a theme it inherits from, defines layout.
func (m *Manager) HasLayout(theme, layout string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.themes[theme]
	if !ok {
		t = m.themes[DefaultTheme]
	}
	return t.tmpl.Lookup("layouts/"+strings.TrimSpace(layout)) != nil
}

// Render executes layouts/<layout> of theme. An unknown theme renders with
// the default theme; templates missing from a theme come from its parents.
func (m *Manager) Render(w io.Writer, theme, layout string, data any) error {
	return m.execute(w, theme, "layouts/"+strings.TrimSpace(layout), data)
}

// RenderPartial executes partials/<name> of theme.
func (m *Manager) RenderPartial(w io.Writer, theme, name string, data any) error {
	return m.execute(w, theme, "partials/"+strings.TrimSpace(name), data)
}

func (m *Manager) execute(w io.Writer, theme, name string, data any) error {
	m.mu.RLock()
	t, ok := m.themes[theme]
	if !ok {
		t = m.themes[DefaultTheme]
	}
	m.mu.RUnlock()

	if t.tmpl.Lookup(name) == nil {
		return fmt.Errorf("%w: %s", ErrLayoutNotFound, name)
	}
	return t.tmpl.ExecuteTemplate(w, name, data)
}

func loadThemes(fsys fs.FS, into map[string]*source) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		src, err := loadTheme(fsys, entry.Name())
		if err != nil {
			return fmt.Errorf("load theme %s: %w", entry.Name(), err)
		}
		into[src.meta.Name] = src
	}
	return nil
}

func loadTheme(fsys fs.FS, dir string) (*source, error) {
	src := &source{meta: Meta{Name: dir}, files: make(map[string]string)}

	raw, err := fs.ReadFile(fsys, path.Join(dir, "theme.yaml"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &src.meta); err != nil {
			return nil, fmt.Errorf("parse theme.yaml: %w", err)
		}
		if strings.TrimSpace(src.meta.Name) == "" {
			src.meta.Name = dir
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	for _, kind := range []string{"layouts", "partials"} {
		matches, err := fs.Glob(fsys, path.Join(dir, kind, "*.html"))
		if err != nil {
			return nil, err
		}
		for _, match := range matches {
			body, err := fs.ReadFile(fsys, match)
			if err != nil {
				return nil, err
			}
			name := kind + "/" + strings.TrimSuffix(path.Base(match), ".html")
			src.files[name] = string(body)
		}
	}
	return src, nil
}

// chain returns theme names from the most generic (default) to name itself.
func chain(name string, sources map[string]*source) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for current := name; current != ""; {
		if seen[current] {
			return nil, fmt.Errorf("%w at %s", ErrThemeCycle, current)
		}
		seen[current] = true
		src, ok := sources[current]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrThemeNotFound, current)
		}
		out = append([]string{current}, out...)
		current = strings.TrimSpace(src.meta.Parent)
	}
	if !seen[DefaultTheme] {
		out = append([]string{DefaultTheme}, out...)
	}
	return out, nil
}

// compile parses the chain in order so later themes override earlier templates.
func compile(name string, sources map[string]*source, funcs template.FuncMap) (*template.Template, error) {
	names, err := chain(name, sources)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string)
	for _, themeName := range names {
		for file, body := range sources[themeName].files {
			merged[file] = body
		}
	}

	root := template.New(name).Funcs(funcs)
	files := make([]string, 0, len(merged))
	for file := range merged {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		if _, err := root.New(file).Parse(merged[file]); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func templateFuncs(translate Translator) template.FuncMap {
	if translate == nil {
		translate = func(language, group, key string) string { return key }
	}
	return template.FuncMap{
		"t":         translate,
		"isoDate":   func(t *time.Time) string { return t.UTC().Format("2006-01-02") },
		"shortDate": func(t *time.Time) string { return t.UTC().Format("Jan 2, 2006") },
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
	}
}
