package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrPageNotFound     = errors.New("page not found")
	ErrBlockNotFound    = errors.New("block not found")
	ErrUnknownComponent = errors.New("unknown block component")
	ErrBlockOrder       = errors.New("invalid block order")
)

// ComponentChecker 判断区块组件名能否渲染。
type ComponentChecker interface {
	Has(name string) bool
}

// PageService 提供页面及其区块的访问。
type PageService struct {
	db              *gorm.DB
	components      ComponentChecker
	defaultLanguage string
	now             func() time.Time
}

// PageFilter 描述页面列表的筛选条件。
type PageFilter struct {
	Search   string
	Status   string
	Language string
	Page     int
	PerPage  int
}

// PageListResult 汇总分页后的页面列表。
type PageListResult struct {
	Pages      []db.Page
	Total      int64
	TotalPages int
	Page       int
	PerPage    int
}

// PageInput 是创建或更新页面时接受的字段。
type PageInput struct {
	Slug            string
	Language        string
	Title           string
	Summary         string
	Theme           string
	Layout          string
	Status          string
	PublishedAt     *time.Time
	ExpiredAt       *time.Time
	MetaTitle       string
	MetaDescription string
}

// BlockInput 描述替换区块列表时的单个区块。
type BlockInput struct {
	Component string
	Name      string
	Settings  map[string]any
	Enabled   bool
}

// NewPageService 创建 PageService 实例。
func NewPageService(gdb *gorm.DB, components ComponentChecker, defaultLanguage string) *PageService {
	if strings.TrimSpace(defaultLanguage) == "" {
		defaultLanguage = "en"
	}
	return &PageService{
		db:              gdb,
		components:      components,
		defaultLanguage: defaultLanguage,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Get 按 ID 获取页面及按顺序排列的全部区块。
func (s *PageService) Get(id uint) (*db.Page, error) {
	var page db.Page
	if err := s.db.Scopes(repository.OrderedBlocks(false)).First(&page, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &page, nil
}

// GetBySlug 按 slug 与语言获取页面，不检查发布状态。
func (s *PageService) GetBySlug(slug, language string) (*db.Page, error) {
	var page db.Page
	err := s.db.Scopes(repository.OrderedBlocks(false)).
		Where("slug = ? AND language = ?", slug, s.language(language)).
		First(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	return &page, nil
}

// Resolve 返回 now 时刻可见的页面及其启用的区块，
// 请求语言没有可见页面时退回默认语言。
func (s *PageService) Resolve(slug, language string, now time.Time) (*db.Page, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrPageNotFound
	}

	candidates := []string{s.language(language)}
	if candidates[0] != s.defaultLanguage {
		candidates = append(candidates, s.defaultLanguage)
	}

	for _, lang := range candidates {
		var page db.Page
		err := s.db.Scopes(repository.Visible("pages", now), repository.OrderedBlocks(true)).
			Where("pages.slug = ? AND pages.language = ?", slug, lang).
			First(&page).Error
		if err == nil {
			return &page, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrPageNotFound
}

// ListVisible 按 slug 返回 now 时刻可见的全部页面。
func (s *PageService) ListVisible(now time.Time) ([]db.Page, error) {
	var pages []db.Page
	if err := s.db.Scopes(repository.Visible("pages", now)).
		Order("slug asc").Order("language asc").
		Find(&pages).Error; err != nil {
		return nil, err
	}
	return pages, nil
}

// List 返回符合条件的页面。
func (s *PageService) List(filter PageFilter) (*PageListResult, error) {
	result := &PageListResult{
		Page:    repository.NormalizePage(filter.Page),
		PerPage: repository.NormalizePerPage(filter.PerPage, 20, 100),
	}

	if err := s.db.Model(&db.Page{}).Scopes(pageFilters(filter)).Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.Page{}).Scopes(pageFilters(filter)).
		Order("updated_at desc").Order("id desc").
		Scopes(repository.Paginate(result.Page, result.PerPage)).
		Find(&result.Pages).Error; err != nil {
		return nil, err
	}
	result.TotalPages = repository.TotalPages(result.Total, result.PerPage)
	return result, nil
}

// Create 保存新页面。
func (s *PageService) Create(input PageInput) (*db.Page, error) {
	page := db.Page{}
	if err := s.apply(&page, input); err != nil {
		return nil, err
	}
	if err := s.db.Create(&page).Error; err != nil {
		return nil, err
	}
	return &page, nil
}

// Update 更新已有页面。
func (s *PageService) Update(id uint, input PageInput) (*db.Page, error) {
	var page db.Page
	if err := s.db.First(&page, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPageNotFound
		}
		return nil, err
	}
	if err := s.apply(&page, input); err != nil {
		return nil, err
	}
	if err := s.db.Save(&page).Error; err != nil {
		return nil, err
	}
	return s.Get(page.ID)
}

// Delete 物理删除页面及其区块，slug 可以再次使用。
func (s *PageService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("page_id = ?", id).Delete(&db.Block{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&db.Page{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrPageNotFound
		}
		return nil
	})
}

// SaveBlocks 在一个事务中替换页面的区块列表，
// 区块位置与切片顺序一致。
func (s *PageService) SaveBlocks(pageID uint, inputs []BlockInput) ([]db.Block, error) {
	blocks := make([]db.Block, 0, len(inputs))
	for idx, input := range inputs {
		component := strings.ToLower(strings.TrimSpace(input.Component))
		if component == "" || (s.components != nil && !s.components.Has(component)) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, input.Component)
		}
		blocks = append(blocks, db.Block{
			PageID:    pageID,
			Position:  idx,
			Component: component,
			Name:      strings.TrimSpace(input.Name),
			Settings:  input.Settings,
			Enabled:   input.Enabled,
		})
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.Page{}).Where("id = ?", pageID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPageNotFound
		}
		if err := tx.Unscoped().Where("page_id = ?", pageID).Delete(&db.Block{}).Error; err != nil {
			return err
		}
		if len(blocks) == 0 {
			return nil
		}
		if err := tx.Create(&blocks).Error; err != nil {
			return err
		}
		return tx.Model(&db.Page{}).Where("id = ?", pageID).Update("updated_at", s.now()).Error
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// ReorderBlocks 按 ids 设置区块位置，ids 必须恰好包含页面的每个区块一次。
func (s *PageService) ReorderBlocks(pageID uint, ids []uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&db.Block{}).Where("page_id = ?", pageID).Pluck("id", &existing).Error; err != nil {
			return err
		}
		if len(existing) != len(ids) {
			return ErrBlockOrder
		}
		owned := make(map[uint]struct{}, len(existing))
		for _, id := range existing {
			owned[id] = struct{}{}
		}
		seen := make(map[uint]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := owned[id]; !ok {
				return ErrBlockNotFound
			}
			if _, dup := seen[id]; dup {
				return ErrBlockOrder
			}
			seen[id] = struct{}{}
		}

		for idx, id := range ids {
			if err := tx.Model(&db.Block{}).Where("id = ?", id).Update("position", idx).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func pageFilters(filter PageFilter) func(*gorm.DB) *gorm.DB {
	return func(query *gorm.DB) *gorm.DB {
		query = query.Scopes(repository.WithStatus("pages", filter.Status))
		if language := strings.TrimSpace(filter.Language); language != "" {
			query = query.Where("language = ?", strings.ToLower(language))
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			like := "%" + search + "%"
			query = query.Where("(title LIKE ? OR slug LIKE ? OR summary LIKE ?)", like, like, like)
		}
		return query
	}
}

func (s *PageService) apply(page *db.Page, input PageInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ErrTitleRequired
	}
	slug, err := resolveSlug(input.Slug, title)
	if err != nil {
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
	language := s.language(input.Language)

	if err := ensureUnique(s.db, &db.Page{}, "slug", slug, page.ID, func(q *gorm.DB) *gorm.DB {
		return q.Where("language = ?", language)
	}); err != nil {
		return err
	}

	page.Slug = slug
	page.Language = language
	page.Title = title
	page.Summary = strings.TrimSpace(input.Summary)
	page.Theme = strings.TrimSpace(input.Theme)
	page.Layout = strings.TrimSpace(input.Layout)
	page.Status = status
	page.PublishedAt = published
	page.ExpiredAt = expired
	page.MetaTitle = strings.TrimSpace(input.MetaTitle)
	page.MetaDescription = strings.TrimSpace(input.MetaDescription)
	return nil
}

func (s *PageService) language(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return s.defaultLanguage
	}
	return language
}
