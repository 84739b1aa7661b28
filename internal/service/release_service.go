package service

import (
	"errors"
	"strings"
	"time"

	"github.com/pagecraft/internal/db"
	"gorm.io/gorm"
)

var (
	ErrReleaseNotFound  = errors.New("release not found")
	ErrVersionRequired  = errors.New("version is required")
	ErrVersionDuplicate = errors.New("version already exists")
)

// ReleaseService 管理通过令牌 API 提供的软件版本。
type ReleaseService struct {
	db  *gorm.DB
	now func() time.Time
}

// ReleaseInput 是创建或更新版本时接受的字段。
type ReleaseInput struct {
	Version     string
	Title       string
	Notes       string
	Status      string
	PublishedAt *time.Time
}

// NewReleaseService 创建 ReleaseService 实例。
func NewReleaseService(gdb *gorm.DB) *ReleaseService {
	return &ReleaseService{db: gdb, now: func() time.Time { return time.Now().UTC() }}
}

// List 返回全部版本，最新的在前。
func (s *ReleaseService) List() ([]db.Release, error) {
	var releases []db.Release
	if err := s.db.Order("id desc").Find(&releases).Error; err != nil {
		return nil, err
	}
	return releases, nil
}

// ListPublished 返回已发布的版本，最新的在前，limit <= 0 表示不限数量。
func (s *ReleaseService) ListPublished(limit int) ([]db.Release, error) {
	query := s.published().Order("published_at desc").Order("id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var releases []db.Release
	if err := query.Find(&releases).Error; err != nil {
		return nil, err
	}
	return releases, nil
}

// Latest 返回最近发布的版本。
func (s *ReleaseService) Latest() (*db.Release, error) {
	var release db.Release
	if err := s.published().Order("published_at desc").Order("id desc").First(&release).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReleaseNotFound
		}
		return nil, err
	}
	return &release, nil
}

// Get 按 ID 获取版本。
func (s *ReleaseService) Get(id uint) (*db.Release, error) {
	var release db.Release
	if err := s.db.First(&release, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReleaseNotFound
		}
		return nil, err
	}
	return &release, nil
}

// Create 保存新版本。
func (s *ReleaseService) Create(input ReleaseInput) (*db.Release, error) {
	release := db.Release{}
	if err := s.apply(&release, input); err != nil {
		return nil, err
	}
	if err := s.db.Create(&release).Error; err != nil {
		return nil, err
	}
	return &release, nil
}

// Update 更新已有版本。
func (s *ReleaseService) Update(id uint, input ReleaseInput) (*db.Release, error) {
	release, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(release, input); err != nil {
		return nil, err
	}
	if err := s.db.Save(release).Error; err != nil {
		return nil, err
	}
	return release, nil
}

// Delete 删除版本。
func (s *ReleaseService) Delete(id uint) error {
	result := s.db.Unscoped().Delete(&db.Release{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReleaseNotFound
	}
	return nil
}

func (s *ReleaseService) published() *gorm.DB {
	return s.db.Model(&db.Release{}).
		Where("status = ?", db.StatusPublished).
		Where("published_at IS NOT NULL AND published_at <= ?", s.now().UTC())
}

func (s *ReleaseService) apply(release *db.Release, input ReleaseInput) error {
	version := strings.TrimSpace(input.Version)
	if version == "" {
		return ErrVersionRequired
	}
	if err := ensureUnique(s.db, &db.Release{}, "version", version, release.ID, nil); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return ErrVersionDuplicate
		}
		return err
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return err
	}
	published, _, err := normalizeWindow(input.PublishedAt, nil)
	if err != nil {
		return err
	}
	if status == db.StatusPublished && published == nil {
		now := s.now()
		published = &now
	}

	release.Version = version
	release.Title = strings.TrimSpace(input.Title)
	if release.Title == "" {
		release.Title = version
	}
	release.Notes = input.Notes
	release.Status = status
	release.PublishedAt = published
	return nil
}
