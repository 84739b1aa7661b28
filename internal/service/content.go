package service

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pagecraft/internal/db"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

var (
	ErrInvalidStatus = errors.New("status is invalid")
	ErrInvalidWindow = errors.New("expiry must be after publish time")
	ErrSlugRequired  = errors.New("slug is required")
	ErrSlugTaken     = errors.New("slug is already in use")
	ErrTitleRequired = errors.New("title is required")
)

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify 转为小写、去掉重音符号，并用连字符连接单词。
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	slug := slugSeparators.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

func normalizeStatus(status string) (string, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "":
		return db.StatusDraft, nil
	case db.StatusDraft, db.StatusPublished, db.StatusArchived:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

func normalizeWindow(publishedAt, expiredAt *time.Time) (*time.Time, *time.Time, error) {
	var published, expired *time.Time
	if publishedAt != nil && !publishedAt.IsZero() {
		utc := publishedAt.UTC()
		published = &utc
	}
	if expiredAt != nil && !expiredAt.IsZero() {
		utc := expiredAt.UTC()
		expired = &utc
	}
	if published != nil && expired != nil && !expired.After(*published) {
		return nil, nil, ErrInvalidWindow
	}
	return published, expired, nil
}

// resolveSlug 优先使用显式 slug，否则由 fallback 生成。
func resolveSlug(explicit, fallback string) (string, error) {
	slug := Slugify(explicit)
	if slug == "" {
		slug = Slugify(fallback)
	}
	if slug == "" {
		return "", ErrSlugRequired
	}
	return slug, nil
}

// ensureUnique 在 column 的值已被其他记录占用时返回 ErrSlugTaken，
// scope 用于缩小检查范围，例如按语言。
func ensureUnique(tx *gorm.DB, model any, column, value string, excludeID uint, scope func(*gorm.DB) *gorm.DB) error {
	var count int64
	query := tx.Model(model).Where(column+" = ?", value)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if scope != nil {
		query = scope(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrSlugTaken
	}
	return nil
}

func calculateReadingTime(content string) int {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}

	words := len(strings.Fields(trimmed))
	minutes := words / 200
	if words%200 != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func summarizeContent(markdown string) string {
	replacer := strings.NewReplacer(
		"#", " ",
		"*", " ",
		"`", " ",
		"_", " ",
		">", " ",
		"[", " ",
		"]", " ",
		"(", " ",
		")", " ",
	)
	plain := strings.Join(strings.Fields(replacer.Replace(markdown)), " ")
	if plain == "" {
		return ""
	}

	const limit = 160
	if utf8.RuneCountInString(plain) <= limit {
		return plain
	}

	runes := []rune(plain)
	return string(runes[:limit]) + "…"
}

func truncateRunes(input string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(input)
	if len(runes) <= limit {
		return input
	}
	return string(runes[:limit])
}
