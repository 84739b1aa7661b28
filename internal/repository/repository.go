// Package repository holds reusable gorm scopes and lookups shared by services.
package repository

import (
	"strconv"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"gorm.io/gorm"
)

// Visible limits a query on a table with status/published_at/expired_at
// columns to rows that are live at now.
func Visible(table string, now time.Time) func(*gorm.DB) *gorm.DB {
	prefix := ""
	if table != "" {
		prefix = table + "."
	}
	// sqlite compares times as text, so always store UTC
	now = now.UTC()
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where(prefix+"status = ?", db.StatusPublished).
			Where("("+prefix+"published_at IS NULL OR "+prefix+"published_at <= ?)", now).
			Where("("+prefix+"expired_at IS NULL OR "+prefix+"expired_at > ?)", now)
	}
}

// WithStatus filters by status when status is not empty.
func WithStatus(table, status string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		status = strings.TrimSpace(status)
		if status == "" {
			return tx
		}
		column := "status"
		if table != "" {
			column = table + ".status"
		}
		return tx.Where(column+" = ?", status)
	}
}

// ByReference matches a numeric id or a slug.
func ByReference(table, ref string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		ref = strings.TrimSpace(ref)
		prefix := ""
		if table != "" {
			prefix = table + "."
		}
		if id, err := strconv.ParseUint(ref, 10, 64); err == nil && id > 0 {
			return tx.Where(prefix+"id = ?", id)
		}
		return tx.Where(prefix+"slug = ?", ref)
	}
}

// OrderedBlocks preloads a page's blocks sorted by position. When onlyEnabled
// is set disabled blocks are skipped.
func OrderedBlocks(onlyEnabled bool) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return tx.Preload("Blocks", func(q *gorm.DB) *gorm.DB {
			if onlyEnabled {
				q = q.Where("enabled = ?", true)
			}
			return q.Order("position asc").Order("id asc")
		})
	}
}

// Paginate applies limit/offset for a 1-based page.
func Paginate(page, perPage int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		page = NormalizePage(page)
		if perPage <= 0 {
			perPage = 10
		}
		return tx.Limit(perPage).Offset((page - 1) * perPage)
	}
}

// NormalizePage clamps page to at least 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NormalizePerPage returns fallback for non-positive values and caps at max.
func NormalizePerPage(perPage, fallback, max int) int {
	if perPage <= 0 {
		perPage = fallback
	}
	if max > 0 && perPage > max {
		return max
	}
	return perPage
}

// TotalPages returns the page count, 1 for an empty result.
func TotalPages(total int64, perPage int) int {
	if perPage <= 0 || total == 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
