package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "cms.db"))
	t.Setenv("STORAGE_ROOT", filepath.Join(dir, "storage"))
	t.Setenv("SITE_BASE_URL", "https://example.com")
	t.Setenv("LANGUAGES", "en")
	t.Setenv("GIN_MODE", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ADMIN_USER_NAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAdmin(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "create-admin", "--username", "root", "--password", "s3cret")
	require.NoError(t, err)
	assert.Contains(t, out, `admin user "root" created`)

	out, err = run(t, "create-admin", "-u", "root", "-p", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	gdb, err := db.Open(filepath.Join(dir, "cms.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	var user db.User
	require.NoError(t, gdb.Where("username = ?", "root").First(&user).Error)
	assert.True(t, user.CheckPassword("s3cret"))
}

func TestCreateAdminRequiresCredentials(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "create-admin", "--username", "root")
	assert.Error(t, err)
}

func TestSitemapGenerateWritesFile(t *testing.T) {
	dir := setupEnv(t)
	out := filepath.Join(dir, "public", "sitemap.xml")

	_, err := run(t, "sitemap:generate", "--out", out)
	require.NoError(t, err)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<urlset")
	assert.Contains(t, string(body), "https://example.com/articles")
}

func TestFixTreeRebuildsBounds(t *testing.T) {
	dir := setupEnv(t)

	gdb, err := db.Open(filepath.Join(dir, "cms.db"))
	require.NoError(t, err)
	categories := service.NewCategoryService(gdb)
	parent, err := categories.Create(service.CategoryInput{Name: "News"})
	require.NoError(t, err)
	_, err = categories.Create(service.CategoryInput{Name: "Tech", ParentID: &parent.ID})
	require.NoError(t, err)
	// corrupt the bounds by hand
	require.NoError(t, gdb.Model(&db.ArticleCategory{}).Where("1 = 1").Updates(map[string]any{"lft": 0, "rgt": 0}).Error)
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.Close()
	}

	out, err := run(t, "categories:fix-tree")
	require.NoError(t, err)
	assert.Contains(t, out, "2 nodes")

	gdb, err = db.Open(filepath.Join(dir, "cms.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	var root db.ArticleCategory
	require.NoError(t, gdb.Where("slug = ?", "news").First(&root).Error)
	assert.Equal(t, 1, root.Lft)
	assert.Equal(t, 4, root.Rgt)
}

func TestBackfillWithoutTargetLanguages(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "translations:backfill")
	require.NoError(t, err)
	assert.Contains(t, out, "no target languages")
}

func TestSeedIsIdempotent(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "demo content created")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "skipping")

	gdb, err := db.Open(filepath.Join(dir, "cms.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	var pages, blocks, articles int64
	require.NoError(t, gdb.Model(&db.Page{}).Count(&pages).Error)
	require.NoError(t, gdb.Model(&db.Block{}).Count(&blocks).Error)
	require.NoError(t, gdb.Model(&db.Article{}).Count(&articles).Error)
	assert.Equal(t, int64(1), pages)
	assert.Equal(t, int64(5), blocks)
	assert.Equal(t, int64(2), articles)
}
