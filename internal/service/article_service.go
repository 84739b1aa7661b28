package service

import (
	"errors"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	"gorm.io/gorm"
)

var ErrArticleNotFound = errors.New("article not found")

// ArticleService 提供文章的增删改查与列表查询。
type ArticleService struct {
	db  *gorm.DB
	now func() time.Time
}

// ArticleFilter 描述文章列表的筛选条件。
// VisibleAt 非空时只返回该时刻处于发布窗口内的文章。
type ArticleFilter struct {
	Search     string
	Status     string
	Language   string
	CategoryID uint
	VisibleAt  *time.Time
	Page       int
	PerPage    int
}

// ArticleListResult 汇总分页后的文章列表。
type ArticleListResult struct {
	Articles   []db.Article
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// ArticleInput 是创建或更新文章时接受的字段。
type ArticleInput struct {
	Slug        string
	Language    string
	Title       string
	Summary     string
	Content     string
	CoverFileID *uint
	Status      string
	PublishedAt *time.Time
	ExpiredAt   *time.Time
	CategoryIDs []uint
}

// NewArticleService 创建 ArticleService 实例。
func NewArticleService(gdb *gorm.DB) *ArticleService {
	return &ArticleService{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// Get 按 ID 获取文章及其分类。
func (s *ArticleService) Get(id uint) (*db.Article, error) {
	var article db.Article
	if err := s.db.Preload("Categories").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return &article, nil
}

// GetVisibleBySlug 获取 now 时刻可见的文章。
func (s *ArticleService) GetVisibleBySlug(slug string, now time.Time) (*db.Article, error) {
	var article db.Article
	err := s.db.Preload("Categories", func(q *gorm.DB) *gorm.DB { return q.Order("lft asc") }).
		Scopes(repository.Visible("articles", now)).
		Where("articles.slug = ?", strings.TrimSpace(slug)).
		First(&article).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return &article, nil
}

// List 返回符合条件的文章，按分类筛选时包含其全部子分类。
func (s *ArticleService) List(filter ArticleFilter) (*ArticleListResult, error) {
	result := &ArticleListResult{
		Page:    repository.NormalizePage(filter.Page),
		PerPage: repository.NormalizePerPage(filter.PerPage, 10, 100),
	}

	var subtree []uint
	if filter.CategoryID > 0 {
		var category db.ArticleCategory
		if err := s.db.First(&category, filter.CategoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCategoryNotFound
			}
			return nil, err
		}
		ids, err := repository.SubtreeIDs(s.db, category)
		if err != nil {
			return nil, err
		}
		subtree = ids
	}

	if err := s.applyFilters(s.db.Model(&db.Article{}), filter, subtree).Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := s.applyFilters(s.db.Model(&db.Article{}), filter, subtree).
		Preload("Categories").
		Order("articles.published_at desc").Order("articles.id desc").
		Scopes(repository.Paginate(result.Page, result.PerPage)).
		Find(&result.Articles).Error; err != nil {
		return nil, err
	}
	result.TotalPages = repository.TotalPages(result.Total, result.PerPage)
	return result, nil
}

// ListVisible 返回 now 时刻可见的全部文章，最新的在前。
func (s *ArticleService) ListVisible(now time.Time) ([]db.Article, error) {
	var articles []db.Article
	if err := s.db.Scopes(repository.Visible("articles", now)).
		Order("published_at desc").Order("id desc").
		Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

// Create 保存新文章及其分类关联。
func (s *ArticleService) Create(input ArticleInput) (*db.Article, error) {
	article := db.Article{}
	if err := s.apply(&article, input); err != nil {
		return nil, err
	}
	return s.saveWithCategories(&article, input.CategoryIDs)
}

// Update 更新已有文章，并整体替换其分类。
func (s *ArticleService) Update(id uint, input ArticleInput) (*db.Article, error) {
	var article db.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	if err := s.apply(&article, input); err != nil {
		return nil, err
	}
	return s.saveWithCategories(&article, input.CategoryIDs)
}

// Delete 删除文章及其分类关联。
func (s *ArticleService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM article_category_links WHERE article_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&db.Article{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrArticleNotFound
		}
		return nil
	})
}

func (s *ArticleService) applyFilters(query *gorm.DB, filter ArticleFilter, categoryIDs []uint) *gorm.DB {
	query = query.Scopes(repository.WithStatus("articles", filter.Status))
	if filter.VisibleAt != nil {
		query = query.Scopes(repository.Visible("articles", *filter.VisibleAt))
	}
	if language := strings.TrimSpace(filter.Language); language != "" {
		query = query.Where("articles.language = ?", strings.ToLower(language))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("(articles.title LIKE ? OR articles.content LIKE ? OR articles.summary LIKE ?)", like, like, like)
	}
	if len(categoryIDs) > 0 {
		subQuery := s.db.Table("article_category_links").
			Select("article_id").
			Where("article_category_id IN ?", categoryIDs)
		query = query.Where("articles.id IN (?)", subQuery)
	}
	return query
}

func (s *ArticleService) saveWithCategories(article *db.Article, categoryIDs []uint) (*db.Article, error) {
	return article, s.db.Transaction(func(tx *gorm.DB) error {
		var categories []db.ArticleCategory
		if ids := uniqueIDs(categoryIDs); len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&categories).Error; err != nil {
				return err
			}
			if len(categories) != len(ids) {
				return ErrCategoryNotFound
			}
		}

		article.Categories = nil
		if err := tx.Omit("Categories").Save(article).Error; err != nil {
			return err
		}
		if err := tx.Model(article).Association("Categories").Replace(categories); err != nil {
			return err
		}
		return tx.Preload("Categories").First(article, article.ID).Error
	})
}

func (s *ArticleService) apply(article *db.Article, input ArticleInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ErrTitleRequired
	}
	slug, err := resolveSlug(input.Slug, title)
	if err != nil {
		return err
	}
	if err := ensureUnique(s.db, &db.Article{}, "slug", slug, article.ID, nil); err != nil {
		return err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return err
	}
	published, expired, err := normalizeWindow(input.PublishedAt, input.ExpiredAt)
	if err != nil {
		return err
	}
	if status == db.StatusPublished && published == nil {
		now := s.now()
		published = &now
	}

	language := strings.ToLower(strings.TrimSpace(input.Language))
	if language == "" {
		language = "en"
	}
	summary := strings.TrimSpace(input.Summary)
	if summary == "" {
		summary = summarizeContent(input.Content)
	}

	article.Slug = slug
	article.Language = language
	article.Title = title
	article.Summary = summary
	article.Content = input.Content
	article.ReadingTime = calculateReadingTime(input.Content)
	article.CoverFileID = input.CoverFileID
	article.Status = status
	article.PublishedAt = published
	article.ExpiredAt = expired
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
