package service

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/repository"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"
)

var (
	ErrUnknownDisk   = errors.New("unknown storage disk")
	ErrInvalidPath   = errors.New("invalid storage path")
	ErrFileNotFound  = errors.New("file not found")
	ErrFileTooLarge  = errors.New("file is too large")
	ErrEmptyFile     = errors.New("file is empty")
	ErrNotAnImage    = errors.New("file is not an image")
	ErrInvalidWidth  = errors.New("invalid thumbnail width")
	ErrImageTooLarge = errors.New("image dimensions are too large to resize")
	extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)
)

const (
	// MaxUploadSize 限制单个文件大小。
	MaxUploadSize    = 20 << 20
	minThumbWidth    = 16
	maxThumbWidth    = 2048
	thumbJPEGQuality = 82
	thumbsDir        = ".thumbs"
)

// maxThumbSourcePixels 超过该像素数的原图不解码，避免小文件大尺寸图片耗尽内存。
const maxThumbSourcePixels = 40_000_000

// StorageService 把上传文件保存在根目录下的具名磁盘中，
// 元数据保存在 files 表。
type StorageService struct {
	db        *gorm.DB
	root      string
	disks     map[string]string
	maxPixels int
	now       func() time.Time
}

// NewStorageService 创建 StorageService，每个磁盘对应 root 下的同名目录。
func NewStorageService(gdb *gorm.DB, root string, disks ...string) *StorageService {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "storage"
	}
	svc := &StorageService{
		db:        gdb,
		root:      root,
		disks:     make(map[string]string, len(disks)),
		maxPixels: maxThumbSourcePixels,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, disk := range disks {
		disk = strings.TrimSpace(disk)
		if disk == "" || disk == thumbsDir {
			continue
		}
		svc.disks[disk] = filepath.Join(root, disk)
	}
	return svc
}

// HasDisk 判断磁盘是否已配置。
func (s *StorageService) HasDisk(disk string) bool {
	_, ok := s.disks[disk]
	return ok
}

// Store 把 r 写入磁盘并记录元数据，存储路径为 yyyy/mm/<uuid><ext>。
func (s *StorageService) Store(disk, filename string, r io.Reader) (*db.File, error) {
	dir, ok := s.disks[disk]
	if !ok {
		return nil, ErrUnknownDisk
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxUploadSize {
		return nil, ErrFileTooLarge
	}

	mimeType := http.DetectContentType(data)
	if idx := strings.Index(mimeType, ";"); idx >= 0 && !strings.HasPrefix(mimeType, "text/") {
		mimeType = mimeType[:idx]
	}

	id := uuid.NewString()
	now := s.now()
	rel := filepath.ToSlash(filepath.Join(
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		id+fileExtension(filename, mimeType),
	))

	record := db.File{
		UUID:     id,
		Disk:     disk,
		Path:     rel,
		Filename: cleanFilename(filename),
		MimeType: mimeType,
		Size:     int64(len(data)),
	}
	if strings.HasPrefix(mimeType, "image/") {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			record.Width = cfg.Width
			record.Height = cfg.Height
		}
	}

	full, err := s.resolve(dir, rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	if err := s.db.Create(&record).Error; err != nil {
		_ = os.Remove(full)
		return nil, err
	}
	return &record, nil
}

// Get 返回已存储文件的元数据。
func (s *StorageService) Get(id string) (*db.File, error) {
	var record db.File
	if err := s.db.Where("uuid = ?", strings.TrimSpace(id)).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByID 按主键返回已存储文件的元数据。
func (s *StorageService) GetByID(id uint) (*db.File, error) {
	var record db.File
	if err := s.db.First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &record, nil
}

// List 返回指定磁盘的文件，disk 为空时返回全部，最新的在前。
func (s *StorageService) List(disk string, page, perPage int) ([]db.File, int64, error) {
	query := func() *gorm.DB {
		q := s.db.Model(&db.File{})
		if disk != "" {
			q = q.Where("disk = ?", disk)
		}
		return q
	}
	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var files []db.File
	if err := query().Order("id desc").
		Scopes(repository.Paginate(page, repository.NormalizePerPage(perPage, 30, 200))).
		Find(&files).Error; err != nil {
		return nil, 0, err
	}
	return files, total, nil
}

// Path 返回文件在磁盘上的位置。
func (s *StorageService) Path(record *db.File) (string, error) {
	dir, ok := s.disks[record.Disk]
	if !ok {
		return "", ErrUnknownDisk
	}
	return s.resolve(dir, record.Path)
}

// Open 返回文件元数据与已打开的句柄，由调用方关闭。
func (s *StorageService) Open(id string) (*db.File, *os.File, error) {
	record, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	full, err := s.Path(record)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}
	return record, f, nil
}

// Delete 删除记录、文件以及缓存的缩略图。
func (s *StorageService) Delete(id string) error {
	record, err := s.Get(id)
	if err != nil {
		return err
	}
	full, err := s.Path(record)
	if err != nil {
		return err
	}
	if err := s.db.Unscoped().Delete(&db.File{}, record.ID).Error; err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(filepath.Join(s.root, thumbsDir, record.UUID))
}

// Thumbnail 返回缩放到 width 的图片副本路径，首次访问时生成并缓存。
// 原图宽度不超过 width 时直接返回原图。
func (s *StorageService) Thumbnail(id string, width int) (string, *db.File, error) {
	if width < minThumbWidth || width > maxThumbWidth {
		return "", nil, ErrInvalidWidth
	}
	record, err := s.Get(id)
	if err != nil {
		return "", nil, err
	}
	if !strings.HasPrefix(record.MimeType, "image/") {
		return "", nil, ErrNotAnImage
	}
	original, err := s.Path(record)
	if err != nil {
		return "", nil, err
	}
	if record.Width > 0 && width >= record.Width {
		return original, record, nil
	}

	ext := ".jpg"
	if record.MimeType == "image/png" || record.MimeType == "image/gif" {
		ext = ".png"
	}
	cached := filepath.Join(s.root, thumbsDir, record.UUID, strconv.Itoa(width)+ext)
	if _, err := os.Stat(cached); err == nil {
		return cached, record, nil
	}

	src, err := os.Open(original)
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	// 以文件头中的尺寸为准，记录里的宽高可能缺失
	header, _, err := image.DecodeConfig(src)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	if int64(header.Width)*int64(header.Height) > int64(s.maxPixels) {
		return "", nil, ErrImageTooLarge
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", nil, err
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= width {
		return original, record, nil
	}
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if ext == ".png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbJPEGQuality})
	}
	if err != nil {
		return "", nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		return "", nil, err
	}
	if err := os.WriteFile(cached, buf.Bytes(), 0o644); err != nil {
		return "", nil, err
	}
	return cached, record, nil
}

// resolve 把 rel 拼接到 dir 下，拒绝任何越出 dir 的路径。
func (s *StorageService) resolve(dir, rel string) (string, error) {
	rel = filepath.FromSlash(strings.TrimSpace(rel))
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	cleaned := filepath.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	full := filepath.Join(dir, cleaned)
	within, err := filepath.Rel(dir, full)
	if err != nil || strings.HasPrefix(within, "..") {
		return "", ErrInvalidPath
	}
	return full, nil
}

var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

func fileExtension(filename, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if extensionPattern.MatchString(ext) {
		return ext
	}
	if preferred, ok := preferredExtensions[mimeType]; ok {
		return preferred
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func cleanFilename(filename string) string {
	name := filepath.Base(filepath.FromSlash(strings.TrimSpace(filename)))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}
	return truncateRunes(name, 200)
}
