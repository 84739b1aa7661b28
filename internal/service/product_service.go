package service

import (
	"errors"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrSKURequired     = errors.New("sku is required")
	ErrSKUTaken        = errors.New("sku is already in use")
	ErrInvalidPrice    = errors.New("price must not be negative")
)

// ProductService 提供商品的增删改查。
type ProductService struct {
	db  *gorm.DB
	now func() time.Time
}

// ProductInput 是创建或更新商品时接受的字段。
type ProductInput struct {
	Name        string
	Slug        string
	SKU         string
	Description string
	PriceCents  int64
	Currency    string
	Status      string
	PublishedAt *time.Time
	ExpiredAt   *time.Time
	ImageFileID *uint
}

// NewProductService 创建 ProductService 实例。
func NewProductService(gdb *gorm.DB) *ProductService {
	return &ProductService{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// List 返回全部商品，最新的在前，可按状态过滤。
func (s *ProductService) List(status string) ([]db.Product, error) {
	var products []db.Product
	if err := s.db.Scopes(repository.WithStatus("products", status)).
		Order("id desc").
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// ListVisible 按名称返回 now 时刻可见的商品，limit <= 0 表示不限数量。
func (s *ProductService) ListVisible(now time.Time, limit int) ([]db.Product, error) {
	query := s.db.Scopes(repository.Visible("products", now)).Order("name asc").Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var products []db.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// Get 按 ID 或 slug 获取商品。
func (s *ProductService) Get(ref string) (*db.Product, error) {
	var product db.Product
	if err := s.db.Scopes(repository.ByReference("products", ref)).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// GetVisibleBySlug 获取 now 时刻可见的商品。
func (s *ProductService) GetVisibleBySlug(slug string, now time.Time) (*db.Product, error) {
	var product db.Product
	err := s.db.Scopes(repository.Visible("products", now)).
		Where("products.slug = ?", strings.TrimSpace(slug)).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// Create 保存新商品。
func (s *ProductService) Create(input ProductInput) (*db.Product, error) {
	product := db.Product{}
	if err := s.apply(&product, input); err != nil {
		return nil, err
	}
	if err := s.db.Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Update 更新已有商品。
func (s *ProductService) Update(id uint, input ProductInput) (*db.Product, error) {
	var product db.Product
	if err := s.db.First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	if err := s.apply(&product, input); err != nil {
		return nil, err
	}
	if err := s.db.Save(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Delete 删除商品。
func (s *ProductService) Delete(id uint) error {
	result := s.db.Unscoped().Delete(&db.Product{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *ProductService) apply(product *db.Product, input ProductInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ErrNameRequired
	}
	sku := strings.ToUpper(strings.TrimSpace(input.SKU))
	if sku == "" {
		return ErrSKURequired
	}
	if input.PriceCents < 0 {
		return ErrInvalidPrice
	}
	slug, err := resolveSlug(input.Slug, name)
	if err != nil {
		return err
	}
	if err := ensureUnique(s.db, &db.Product{}, "slug", slug, product.ID, nil); err != nil {
		return err
	}
	if err := ensureUnique(s.db, &db.Product{}, "sku", sku, product.ID, nil); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return ErrSKUTaken
		}
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
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "USD"
	}

	product.Name = name
	product.Slug = slug
	product.SKU = sku
	product.Description = input.Description
	product.PriceCents = input.PriceCents
	product.Currency = currency
	product.Status = status
	product.PublishedAt = published
	product.ExpiredAt = expired
	product.ImageFileID = input.ImageFileID
	return nil
}
