package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pagecraft/internal/db"
	"github.com/pagecraft/internal/logging"
	"gorm.io/gorm"
)

const (
	sessionUserIDKey   = "user_id"
	sessionUsernameKey = "username"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login 校验管理员账号并写入会话，同一 IP 连续失败会被限流。
func (a *API) Login(c *gin.Context) {
	ip := c.ClientIP()
	if !a.limiter.Check(ip) {
		respondError(c, http.StatusTooManyRequests, "too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username and password are required")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		failValidation(c, map[string]string{"username": "username and password are required"})
		return
	}

	var user db.User
	err := a.db.Where("username = ?", req.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		failServer(c, err)
		return
	}
	if err != nil || !user.CheckPassword(req.Password) {
		a.limiter.Record(ip)
		logging.L().Warn().Str("username", req.Username).Str("ip", ip).Msg("admin login failed")
		respondError(c, http.StatusUnauthorized, "invalid username or password")
		return
	}
	a.limiter.Reset(ip)

	now := a.now()
	if err := a.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		_ = c.Error(err)
	}

	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID)
	session.Set(sessionUsernameKey, user.Username)
	if err := session.Save(); err != nil {
		failServer(c, err)
		return
	}

	respondSuccess(c, http.StatusOK, "logged in", gin.H{"id": user.ID, "username": user.Username})
}

// Logout 清除会话。
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		failServer(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "logged out", nil)
}

// CurrentUser 返回当前登录的管理员。
func (a *API) CurrentUser(c *gin.Context) {
	session := sessions.Default(c)
	respondSuccess(c, http.StatusOK, "", gin.H{
		"id":       session.Get(sessionUserIDKey),
		"username": session.Get(sessionUsernameKey),
	})
}

// AuthRequired 拒绝没有管理员会话的请求。
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if session.Get(sessionUserIDKey) == nil {
			failAuth(c)
			return
		}
		c.Next()
	}
}
