package handler

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/render"
	"github.com/pagecraft/internal/service"
)

const publicFileCacheControl = "public, max-age=86400"

// ServeFile 输出公开磁盘上的文件，带 ?w= 时返回缩略图。
func (a *API) ServeFile(c *gin.Context) {
	record, err := a.storage.Get(c.Param("uuid"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	// 私有磁盘上的文件对外表现为不存在
	if record.Disk != a.publicDisk {
		failNotFound(c, service.ErrFileNotFound.Error())
		return
	}

	if raw := strings.TrimSpace(c.Query("w")); raw != "" {
		width, err := strconv.Atoi(raw)
		if err != nil {
			failValidation(c, map[string]string{"w": service.ErrInvalidWidth.Error()})
			return
		}
		path, file, err := a.storage.Thumbnail(record.UUID, width)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.Header("Cache-Control", publicFileCacheControl)
		// 缩略图按扩展名重新编码，类型以文件名为准
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = file.MimeType
		}
		c.Header("Content-Type", contentType)
		c.File(path)
		return
	}

	a.streamFile(c, record.UUID, false)
}

func filePayload(record *db.File, public bool) gin.H {
	payload := gin.H{
		"id":        record.ID,
		"uuid":      record.UUID,
		"disk":      record.Disk,
		"filename":  record.Filename,
		"mimeType":  record.MimeType,
		"size":      record.Size,
		"width":     record.Width,
		"height":    record.Height,
		"createdAt": record.CreatedAt.UTC().Format(time.RFC3339),
	}
	if public {
		payload["url"] = render.FileURL(record.UUID, 0)
	}
	return payload
}

func (a *API) streamFile(c *gin.Context, id string, attachment bool) {
	record, f, err := a.storage.Open(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		failServer(c, err)
		return
	}
	if record.MimeType != "" {
		c.Header("Content-Type", record.MimeType)
	}
	if attachment {
		c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(record.Filename, `"`, "")+`"`)
	} else {
		c.Header("Cache-Control", publicFileCacheControl)
	}
	http.ServeContent(c.Writer, c.Request, record.Filename, info.ModTime(), f)
}

// UploadFile 处理后台文件上传，disk 缺省为公开磁盘。
func (a *API) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		failValidation(c, map[string]string{"file": "file is required"})
		return
	}
	if header.Size > service.MaxUploadSize {
		failValidation(c, map[string]string{"file": service.ErrFileTooLarge.Error()})
		return
	}
	disk := strings.TrimSpace(c.PostForm("disk"))
	if disk == "" {
		disk = a.publicDisk
	}

	src, err := header.Open()
	if err != nil {
		failServer(c, err)
		return
	}
	defer src.Close()

	record, err := a.storage.Store(disk, header.Filename, src)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "file uploaded", filePayload(record, record.Disk == a.publicDisk))
}

// ListFiles 分页返回文件元数据。
func (a *API) ListFiles(c *gin.Context) {
	disk := strings.TrimSpace(c.Query("disk"))
	if disk != "" && !a.storage.HasDisk(disk) {
		failValidation(c, map[string]string{"disk": service.ErrUnknownDisk.Error()})
		return
	}
	page := parsePositiveInt(c.Query("page"), 1)
	files, total, err := a.storage.List(disk, page, parsePositiveInt(c.Query("perPage"), 30))
	if err != nil {
		failServer(c, err)
		return
	}
	items := make([]gin.H, 0, len(files))
	for i := range files {
		items = append(items, filePayload(&files[i], files[i].Disk == a.publicDisk))
	}
	respondSuccess(c, http.StatusOK, "", gin.H{"files": items, "total": total, "page": page})
}

// DownloadFile 下载任意磁盘上的文件，仅限后台。
func (a *API) DownloadFile(c *gin.Context) {
	a.streamFile(c, c.Param("uuid"), true)
}

// DeleteFile 删除文件及其缩略图。
func (a *API) DeleteFile(c *gin.Context) {
	if err := a.storage.Delete(c.Param("uuid")); err != nil {
		if errors.Is(err, service.ErrFileNotFound) {
			failNotFound(c, err.Error())
			return
		}
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "file deleted", nil)
}
