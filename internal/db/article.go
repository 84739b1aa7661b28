package db

import (
	"time"

	"gorm.io/gorm"
)

// Article 定义了文章模型
type Article struct {
	gorm.Model
	Slug        string `gorm:"size:191;uniqueIndex;not null"`
	Language    string `gorm:"size:16;not null;default:en"`
	Title       string `gorm:"not null"`
	Summary     string
	Content     string `gorm:"type:text"`
	ReadingTime int
	CoverFileID *uint
	Status      string `gorm:"size:16;not null;default:draft;index"`
	PublishedAt *time.Time
	ExpiredAt   *time.Time
	Categories  []ArticleCategory `gorm:"many2many:article_category_links;"`
}

// ArticleCategory 是嵌套集合树中的一个节点。
// Lft/Rgt 圈定子树范围，根节点的 Depth 为 0。
type ArticleCategory struct {
	gorm.Model
	Name     string    `gorm:"size:120;not null"`
	Slug     string    `gorm:"size:191;uniqueIndex;not null"`
	ParentID *uint     `gorm:"index"`
	Lft      int       `gorm:"index;not null;default:0"`
	Rgt      int       `gorm:"index;not null;default:0"`
	Depth    int       `gorm:"not null;default:0"`
	Articles []Article `gorm:"many2many:article_category_links;"`
}

// TableName 保持表名与模型名一致。
func (ArticleCategory) TableName() string {
	return "article_categories"
}
