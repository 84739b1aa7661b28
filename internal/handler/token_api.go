package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/service"
)

// TokenRequired 接受 Authorization: Bearer <token> 或 ?api_token= 参数。
// 未配置令牌时整个 API 不可用。
func (a *API) TokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.apiToken == "" {
			failAuth(c)
			return
		}
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = strings.TrimSpace(c.Query("api_token"))
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.apiToken)) != 1 {
			failAuth(c)
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func releasePayload(r db.Release) gin.H {
	return gin.H{
		"id":          r.ID,
		"version":     r.Version,
		"title":       r.Title,
		"notes":       r.Notes,
		"publishedAt": formatTime(r.PublishedAt),
	}
}

// APIListReleases 返回已发布的版本，最新的在前。
func (a *API) APIListReleases(c *gin.Context) {
	limit := parsePositiveInt(c.Query("limit"), 20)
	releases, err := a.releases.ListPublished(limit)
	if err != nil {
		failServer(c, err)
		return
	}
	items := make([]gin.H, 0, len(releases))
	for _, r := range releases {
		items = append(items, releasePayload(r))
	}
	respondSuccess(c, http.StatusOK, "", items)
}

// APILatestRelease 返回最新发布的版本。
func (a *API) APILatestRelease(c *gin.Context) {
	release, err := a.releases.Latest()
	if err != nil {
		if errors.Is(err, service.ErrReleaseNotFound) {
			failNotFound(c, "no release published")
			return
		}
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "", releasePayload(*release))
}

// APIPullEntries 按 ID 升序返回 ID 大于 ?after 的表单提交，
// next 是下一次调用使用的游标。
func (a *API) APIPullEntries(c *gin.Context) {
	var after uint64
	if raw := strings.TrimSpace(c.Query("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			failValidation(c, map[string]string{"after": "must be a non-negative integer"})
			return
		}
		after = parsed
	}
	limit := parsePositiveInt(c.Query("limit"), 0)

	entries, err := a.forms.PullEntries(c.Param("handle"), uint(after), limit)
	if err != nil {
		if errors.Is(err, service.ErrFormNotFound) {
			failNotFound(c, "form not found")
			return
		}
		failServer(c, err)
		return
	}

	items := make([]gin.H, 0, len(entries))
	next := uint(after)
	for _, entry := range entries {
		items = append(items, entryPayload(entry))
		next = entry.ID
	}
	respondSuccess(c, http.StatusOK, "", gin.H{"entries": items, "next": next})
}

func entryPayload(entry db.FormEntry) gin.H {
	return gin.H{
		"id":         entry.ID,
		"formId":     entry.FormID,
		"payload":    entry.Payload,
		"ipAddress":  entry.IPAddress,
		"userAgent":  entry.UserAgent,
		"notified":   entry.Notified,
		"notifiedAt": formatTime(entry.NotifiedAt),
		"createdAt":  entry.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}
