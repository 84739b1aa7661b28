package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagecraft/internal/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStorage(t *testing.T) *StorageService {
	t.Helper()
	svc := NewStorageService(dbtest.Open(t), t.TempDir(), "public", "private")
	svc.now = func() time.Time { return time.Date(2024, 7, 9, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestStorageServiceStoreImage(t *testing.T) {
	svc := newTestStorage(t)

	record, err := svc.Store("public", "../../Photo.PNG", bytes.NewReader(pngBytes(t, 120, 60)))
	require.NoError(t, err)
	assert.Equal(t, "image/png", record.MimeType)
	assert.Equal(t, 120, record.Width)
	assert.Equal(t, 60, record.Height)
	assert.Equal(t, "Photo.PNG", record.Filename)
	assert.True(t, strings.HasPrefix(record.Path, "2024/07/"+record.UUID))
	assert.True(t, strings.HasSuffix(record.Path, ".png"))

	meta, f, err := svc.Open(record.UUID)
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.EqualValues(t, meta.Size, len(raw))
}

func TestStorageServiceStoreErrors(t *testing.T) {
	svc := newTestStorage(t)

	_, err := svc.Store("s3", "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnknownDisk)

	_, err = svc.Store("public", "a.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.Store("public", "big.bin", io.LimitReader(zeroReader{}, MaxUploadSize+10))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, _, err = svc.Open("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestStorageServiceResolveRejectsTraversal(t *testing.T) {
	svc := newTestStorage(t)
	dir := svc.disks["public"]

	for _, rel := range []string{"", "../secret", "a/../../b", "/etc/passwd", ".."} {
		_, err := svc.resolve(dir, rel)
		assert.ErrorIs(t, err, ErrInvalidPath, rel)
	}

	full, err := svc.resolve(dir, "2024/01/x.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024", "01", "x.txt"), full)
}

func TestStorageServiceThumbnail(t *testing.T) {
	svc := newTestStorage(t)
	record, err := svc.Store("public", "wide.png", bytes.NewReader(pngBytes(t, 200, 100)))
	require.NoError(t, err)

	_, _, err = svc.Thumbnail(record.UUID, 4)
	assert.ErrorIs(t, err, ErrInvalidWidth)

	path, _, err := svc.Thumbnail(record.UUID, 50)
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join(".thumbs", record.UUID))

	f, err := os.Open(path)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)

	// 宽度超过原图时直接返回原图
	original, _, err := svc.Thumbnail(record.UUID, 400)
	require.NoError(t, err)
	assert.NotContains(t, original, ".thumbs")

	text, err := svc.Store("public", "notes.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	_, _, err = svc.Thumbnail(text.UUID, 50)
	assert.ErrorIs(t, err, ErrNotAnImage)

	require.NoError(t, svc.Delete(record.UUID))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = svc.Get(record.UUID)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestStorageServiceThumbnailRejectsOversizedSource(t *testing.T) {
	svc := newTestStorage(t)
	svc.maxPixels = 10_000
	record, err := svc.Store("public", "huge.png", bytes.NewReader(pngBytes(t, 200, 100)))
	require.NoError(t, err)

	_, _, err = svc.Thumbnail(record.UUID, 50)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	_, err = os.Stat(filepath.Join(svc.root, ".thumbs", record.UUID))
	assert.True(t, os.IsNotExist(err))

	// 未超过上限的图片照常缩放
	svc.maxPixels = maxThumbSourcePixels
	_, _, err = svc.Thumbnail(record.UUID, 50)
	assert.NoError(t, err)
}
