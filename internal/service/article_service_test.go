package service

import (
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleServiceCreateDerivesFields(t *testing.T) {
	gdb := dbtest.Open(t)
	categories := NewCategoryService(gdb)
	svc := NewArticleService(gdb)

	news, err := categories.Create(CategoryInput{Name: "News"})
	require.NoError(t, err)

	content := "# Release\n\n" + strings.Repeat("word ", 450)
	article, err := svc.Create(ArticleInput{
		Title:       "Hello World",
		Content:     content,
		Status:      db.StatusPublished,
		CategoryIDs: []uint{news.ID, news.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello-world", article.Slug)
	assert.Equal(t, 3, article.ReadingTime)
	assert.True(t, strings.HasSuffix(article.Summary, "…"))
	assert.NotNil(t, article.PublishedAt)
	require.Len(t, article.Categories, 1)
	assert.Equal(t, "news", article.Categories[0].Slug)

	_, err = svc.Create(ArticleInput{Title: "Hello world!"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	_, err = svc.Create(ArticleInput{Title: "Other", CategoryIDs: []uint{999}})
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestArticleServiceUpdateReplacesCategories(t *testing.T) {
	gdb := dbtest.Open(t)
	categories := NewCategoryService(gdb)
	svc := NewArticleService(gdb)
	a, _ := categories.Create(CategoryInput{Name: "A"})
	b, _ := categories.Create(CategoryInput{Name: "B"})

	article, err := svc.Create(ArticleInput{Title: "Post", CategoryIDs: []uint{a.ID}})
	require.NoError(t, err)

	updated, err := svc.Update(article.ID, ArticleInput{Title: "Post", Summary: "custom", CategoryIDs: []uint{b.ID}})
	require.NoError(t, err)
	assert.Equal(t, "custom", updated.Summary)
	require.Len(t, updated.Categories, 1)
	assert.Equal(t, b.ID, updated.Categories[0].ID)

	_, err = svc.Update(9999, ArticleInput{Title: "x"})
	assert.ErrorIs(t, err, ErrArticleNotFound)
}

func TestArticleServiceListByCategoryIncludesDescendants(t *testing.T) {
	gdb := dbtest.Open(t)
	categories := NewCategoryService(gdb)
	svc := NewArticleService(gdb)
	parent, _ := categories.Create(CategoryInput{Name: "Parent"})
	child, _ := categories.Create(CategoryInput{Name: "Child", ParentID: uintPtr(parent.ID)})
	other, _ := categories.Create(CategoryInput{Name: "Other"})

	_, err := svc.Create(ArticleInput{Title: "In parent", CategoryIDs: []uint{parent.ID}})
	require.NoError(t, err)
	_, err = svc.Create(ArticleInput{Title: "In child", CategoryIDs: []uint{child.ID}})
	require.NoError(t, err)
	_, err = svc.Create(ArticleInput{Title: "Elsewhere", CategoryIDs: []uint{other.ID}})
	require.NoError(t, err)

	result, err := svc.List(ArticleFilter{CategoryID: parent.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)

	result, err = svc.List(ArticleFilter{CategoryID: child.ID})
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, "in-child", result.Articles[0].Slug)

	_, err = svc.List(ArticleFilter{CategoryID: 999})
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}

func TestArticleServiceVisibility(t *testing.T) {
	svc := NewArticleService(dbtest.Open(t))
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	_, err := svc.Create(ArticleInput{Title: "Live", Status: db.StatusPublished, PublishedAt: &past})
	require.NoError(t, err)
	_, err = svc.Create(ArticleInput{Title: "Later", Status: db.StatusPublished, PublishedAt: &future})
	require.NoError(t, err)
	_, err = svc.Create(ArticleInput{Title: "Draft"})
	require.NoError(t, err)

	live, err := svc.GetVisibleBySlug("live", now)
	require.NoError(t, err)
	assert.Equal(t, "Live", live.Title)

	_, err = svc.GetVisibleBySlug("later", now)
	assert.ErrorIs(t, err, ErrArticleNotFound)

	result, err := svc.List(ArticleFilter{VisibleAt: &now})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Total)

	visible, err := svc.ListVisible(future.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestArticleServiceDelete(t *testing.T) {
	gdb := dbtest.Open(t)
	categories := NewCategoryService(gdb)
	svc := NewArticleService(gdb)
	cat, _ := categories.Create(CategoryInput{Name: "Cat"})
	article, err := svc.Create(ArticleInput{Title: "Gone", CategoryIDs: []uint{cat.ID}})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(article.ID))
	assert.ErrorIs(t, svc.Delete(article.ID), ErrArticleNotFound)

	var links int64
	require.NoError(t, gdb.Table("article_category_links").Count(&links).Error)
	assert.Zero(t, links)
}
