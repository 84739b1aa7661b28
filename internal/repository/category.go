package repository

import (
	"github.com/pagecraft/internal/db"
	"gorm.io/gorm"
)

// CategoryTree lists every category in tree (lft) order.
func CategoryTree(tx *gorm.DB) ([]db.ArticleCategory, error) {
	var nodes []db.ArticleCategory
	if err := tx.Order("lft asc").Order("id asc").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// Descendants returns the nodes strictly inside node's bounds.
func Descendants(tx *gorm.DB, node db.ArticleCategory) ([]db.ArticleCategory, error) {
	var nodes []db.ArticleCategory
	if err := tx.Where("lft > ? AND rgt < ?", node.Lft, node.Rgt).
		Order("lft asc").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// Ancestors returns the chain of nodes enclosing node, root first.
func Ancestors(tx *gorm.DB, node db.ArticleCategory) ([]db.ArticleCategory, error) {
	var nodes []db.ArticleCategory
	if err := tx.Where("lft < ? AND rgt > ?", node.Lft, node.Rgt).
		Order("lft asc").
		Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

// SubtreeIDs returns node's id followed by the ids of its descendants.
func SubtreeIDs(tx *gorm.DB, node db.ArticleCategory) ([]uint, error) {
	var ids []uint
	if err := tx.Model(&db.ArticleCategory{}).
		Where("lft >= ? AND rgt <= ?", node.Lft, node.Rgt).
		Order("lft asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
