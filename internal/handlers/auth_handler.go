// Package handlers contains the gin HTTP handlers of the appraisal service.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/audit"
	"github.com/zhangwb/kaohe/internal/auth"
	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/repository"
	"github.com/zhangwb/kaohe/pkg/utils"
)

// AuthHandler serves login, registration and password management.
type AuthHandler struct {
	users    *repository.UserRepository
	tokens   *auth.TokenManager
	hasher   *auth.Hasher
	captchas *auth.CaptchaStore
	auditor  *audit.Recorder
	logger   *zap.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(
	users *repository.UserRepository,
	tokens *auth.TokenManager,
	hasher *auth.Hasher,
	captchas *auth.CaptchaStore,
	auditor *audit.Recorder,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		captchas: captchas,
		auditor:  auditor,
		logger:   logger,
	}
}

// Captcha issues a fresh login captcha.
func (h *AuthHandler) Captcha(c *gin.Context) {
	id, code := h.captchas.Create()
	c.JSON(http.StatusOK, gin.H{"id": id, "code": code})
}

type loginRequest struct {
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
	CaptchaID   string `json:"captchaId" binding:"required"`
	CaptchaCode string `json:"captchaCode" binding:"required"`
}

// Login verifies the captcha and credentials and issues a token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "用户名、密码和验证码不能为空"})
		return
	}

	if !h.captchas.Verify(req.CaptchaID, req.CaptchaCode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "验证码错误或已过期，请刷新后重试"})
		return
	}

	user, err := h.users.GetByUsername(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "数据库错误"})
		return
	}
	if user == nil || !h.hasher.Compare(user.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户名或密码错误"})
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		h.logger.Error("Failed to generate token", zap.Int64("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "登录失败"})
		return
	}

	h.auditor.Record(models.AuditLog{
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "login",
		Resource:  "user",
		IPAddress: c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userView(user),
	})
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role"`
}

// Register creates a scorer account. Admin accounts are created only
// through the admin user management endpoints.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "用户名、密码和姓名不能为空"})
		return
	}

	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)
	password := strings.TrimSpace(req.Password)
	role := models.Role(strings.TrimSpace(req.Role))
	if role == "" {
		role = models.RoleManager
	}
	if !role.CanScore() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的角色类型"})
		return
	}

	if err := utils.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateDisplayName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidatePassword(password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.hasher.Hash(password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注册失败"})
		return
	}

	user := &models.User{
		Username:           username,
		Password:           hash,
		Name:               name,
		Role:               role,
		MustChangePassword: false,
	}
	if err := h.users.Create(user); err != nil {
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "用户名已存在，请选择其他用户名"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注册失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "注册成功，请登录", "userId": user.ID})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	user, err := h.users.GetByID(claims.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取用户信息失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userView(user)})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// ChangePassword rotates the password after verifying the old one.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "旧密码和新密码不能为空"})
		return
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := middleware.CurrentUser(c)
	user, err := h.users.GetByID(claims.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "数据库错误"})
		return
	}
	if !h.hasher.Compare(user.Password, req.OldPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "旧密码错误"})
		return
	}

	h.setPassword(c, user, req.NewPassword)
}

type firstChangePasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

// FirstChangePassword rotates the password of an account still flagged for
// forced rotation, without requiring the old password.
func (h *AuthHandler) FirstChangePassword(c *gin.Context) {
	var req firstChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "新密码不能为空"})
		return
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := middleware.CurrentUser(c)
	user, err := h.users.GetByID(claims.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "数据库错误"})
		return
	}
	if !user.MustChangePassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "您的账户不需要强制修改密码"})
		return
	}

	h.setPassword(c, user, req.NewPassword)
}

func (h *AuthHandler) setPassword(c *gin.Context, user *models.User, newPassword string) {
	hash, err := h.hasher.Hash(newPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "修改密码失败"})
		return
	}
	if err := h.users.UpdatePassword(user.ID, hash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "修改密码失败"})
		return
	}

	h.auditor.Record(models.AuditLog{
		UserID:    user.ID,
		Username:  user.Username,
		Action:    "change_password",
		Resource:  "user",
		IPAddress: c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"message": "密码修改成功"})
}

func userView(user *models.User) gin.H {
	return gin.H{
		"id":                 user.ID,
		"username":           user.Username,
		"name":               user.Name,
		"role":               user.Role,
		"unit":               user.Unit,
		"mustChangePassword": user.MustChangePassword,
	}
}
