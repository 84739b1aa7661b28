package service

import (
	"bytes"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSitemapServiceRenderAndCache(t *testing.T) {
	gdb := dbtest.Open(t)
	pages := NewPageService(gdb, testComponents, "en")
	articles := NewArticleService(gdb)
	products := NewProductService(gdb)
	categories := NewCategoryService(gdb)

	past := time.Now().UTC().Add(-time.Hour)
	_, err := pages.Create(PageInput{Title: "Home", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)
	_, err = pages.Create(PageInput{Title: "About", Language: "fr", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)
	_, err = pages.Create(PageInput{Title: "Secret"})
	require.NoError(t, err)
	_, err = articles.Create(ArticleInput{Title: "First post", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)
	_, err = categories.Create(CategoryInput{Name: "News"})
	require.NoError(t, err)
	_, err = products.Create(ProductInput{Name: "Mug", SKU: "M1", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)

	svc := NewSitemapService(pages, articles, products, categories, "https://example.com/", "en", time.Hour)

	var buf bytes.Buffer
	require.NoError(t, svc.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	assert.Contains(t, out, "<loc>https://example.com/</loc>")
	assert.Contains(t, out, "<loc>https://example.com/p/about?lang=fr</loc>")
	assert.Contains(t, out, "<loc>https://example.com/articles/first-post</loc>")
	assert.Contains(t, out, "<loc>https://example.com/articles?category=news</loc>")
	assert.Contains(t, out, "<loc>https://example.com/products/mug</loc>")
	assert.NotContains(t, out, "secret")

	// 缓存命中时不会看到新内容，失效后重建
	_, err = pages.Create(PageInput{Title: "Contact", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)
	urls, err := svc.URLs()
	require.NoError(t, err)
	assert.Len(t, urls, 6)

	svc.Invalidate()
	urls, err = svc.URLs()
	require.NoError(t, err)
	assert.Len(t, urls, 7)
}

func TestSitemapServiceExpiresAfterTTL(t *testing.T) {
	gdb := dbtest.Open(t)
	pages := NewPageService(gdb, testComponents, "en")
	svc := NewSitemapService(pages, nil, nil, nil, "http://localhost", "en", time.Minute)

	clock := time.Now().UTC()
	svc.now = func() time.Time { return clock }

	urls, err := svc.URLs()
	require.NoError(t, err)
	assert.Empty(t, urls)

	past := clock.Add(-time.Hour)
	_, err = pages.Create(PageInput{Title: "Docs", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)

	urls, _ = svc.URLs()
	assert.Empty(t, urls)

	clock = clock.Add(2 * time.Minute)
	urls, err = svc.URLs()
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Equal(t, "http://localhost/p/docs", urls[0].Loc)
}
