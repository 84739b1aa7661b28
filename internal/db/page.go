package db

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 页面、文章、商品与版本共用的内容状态。
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Page 是页面构建器中的页面：元数据加上有序的区块列表。
type Page struct {
	gorm.Model
	Slug            string `gorm:"size:191;not null;uniqueIndex:idx_pages_slug_language"`
	Language        string `gorm:"size:16;not null;default:en;uniqueIndex:idx_pages_slug_language"`
	Title           string `gorm:"not null"`
	Summary         string
	Theme           string `gorm:"size:64"`
	Layout          string `gorm:"size:64"`
	Status          string `gorm:"size:16;not null;default:draft;index"`
	PublishedAt     *time.Time
	ExpiredAt       *time.Time
	MetaTitle       string
	MetaDescription string
	Blocks          []Block `gorm:"constraint:OnDelete:CASCADE"`
}

// Block 是页面上的一个内容单元，由 Component 指定的渲染组件输出。
type Block struct {
	gorm.Model
	PageID    uint              `gorm:"index;not null"`
	Position  int               `gorm:"not null;default:0"`
	Component string            `gorm:"size:64;not null"`
	Name      string            `gorm:"size:120"`
	Settings  datatypes.JSONMap `gorm:"type:json"`
	Enabled   bool              `gorm:"not null"`
}

// Setting 返回字符串类型的区块设置，不存在时返回空串。
func (b Block) Setting(key string) string {
	if b.Settings == nil {
		return ""
	}
	switch v := b.Settings[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return toString(v)
	}
}

// IsVisible 判断当前时间是否处于发布窗口内。
func IsVisible(status string, publishedAt, expiredAt *time.Time, now time.Time) bool {
	if status != StatusPublished {
		return false
	}
	if publishedAt != nil && publishedAt.After(now) {
		return false
	}
	if expiredAt != nil && !expiredAt.After(now) {
		return false
	}
	return true
}
