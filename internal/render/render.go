// Package render turns page blocks into HTML through named components.
package render

import (
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/logging"
)

// RenderContext carries request-scoped data into components.
type RenderContext struct {
	Context  context.Context
	Language string
	Theme    string
	Now      time.Time
	Page     *db.Page
}

// Component renders a single block.
type Component interface {
	Render(ctx RenderContext, block db.Block) (template.HTML, error)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx RenderContext, block db.Block) (template.HTML, error)

// Render implements Component.
func (f ComponentFunc) Render(ctx RenderContext, block db.Block) (template.HTML, error) {
	return f(ctx, block)
}

// Registry maps component names, as stored in Block.Component, to renderers.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds or replaces a component. Names are case-insensitive.
func (r *Registry) Register(name string, c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[normalizeName(name)] = c
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[normalizeName(name)]
	return c, ok
}

// Names lists registered component names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Renderer renders whole pages from a registry.
type Renderer struct {
	registry *Registry
}

// NewRenderer creates a Renderer.
func NewRenderer(registry *Registry) *Renderer {
	return &Renderer{registry: registry}
}

// RenderPage concatenates the output of the page's enabled blocks in position
// order. A block that cannot be rendered is replaced by an HTML comment.
func (r *Renderer) RenderPage(ctx RenderContext, page *db.Page) template.HTML {
	if page == nil {
		return ""
	}
	if ctx.Context == nil {
		ctx.Context = context.Background()
	}
	if ctx.Now.IsZero() {
		ctx.Now = time.Now().UTC()
	}
	ctx.Page = page

	blocks := make([]db.Block, 0, len(page.Blocks))
	for _, block := range page.Blocks {
		if block.Enabled {
			blocks = append(blocks, block)
		}
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Position < blocks[j].Position })

	var b strings.Builder
	for _, block := range blocks {
		b.WriteString(string(r.RenderBlock(ctx, block)))
		b.WriteByte('\n')
	}
	return template.HTML(b.String())
}

// RenderBlock renders one block, degrading to a comment on failure.
func (r *Renderer) RenderBlock(ctx RenderContext, block db.Block) template.HTML {
	component, ok := r.registry.Get(block.Component)
	if !ok {
		logging.L().Warn().
			Uint("block_id", block.ID).
			Str("component", block.Component).
			Msg("unknown block component")
		return blockComment(block, "unknown component")
	}

	out, err := safeRender(component, ctx, block)
	if err != nil {
		logging.L().Warn().Err(err).
			Uint("block_id", block.ID).
			Str("component", block.Component).
			Msg("block render failed")
		return blockComment(block, "render failed")
	}
	return out
}

func safeRender(c Component, ctx RenderContext, block db.Block) (out template.HTML, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("component panicked: %v", r)
		}
	}()
	return c.Render(ctx, block)
}

func blockComment(block db.Block, reason string) template.HTML {
	// comment text must not contain "--"
	name := strings.ReplaceAll(block.Component, "--", "")
	name = strings.ReplaceAll(name, ">", "")
	return template.HTML(fmt.Sprintf("<!-- block %d (%s): %s -->", block.ID, name, reason))
}
