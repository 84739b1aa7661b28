package db

import (
	"time"

	"gorm.io/gorm"
)

// Product 是商品目录中的一项。
type Product struct {
	gorm.Model
	Name        string `gorm:"not null"`
	Slug        string `gorm:"size:191;uniqueIndex;not null"`
	SKU         string `gorm:"size:64;uniqueIndex;not null"`
	Description string `gorm:"type:text"`
	PriceCents  int64
	Currency    string `gorm:"size:3;not null;default:USD"`
	Status      string `gorm:"size:16;not null;default:draft;index"`
	PublishedAt *time.Time
	ExpiredAt   *time.Time
	ImageFileID *uint
}

// Release 是通过令牌 API 对外公开的软件版本。
type Release struct {
	gorm.Model
	Version     string `gorm:"size:64;uniqueIndex;not null"`
	Title       string
	Notes       string `gorm:"type:text"`
	Status      string `gorm:"size:16;not null;default:draft;index"`
	PublishedAt *time.Time
}
