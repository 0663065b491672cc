package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/audit"
	"github.com/zhangwb/kaohe/internal/auth"
	"github.com/zhangwb/kaohe/internal/export"
	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/repository"
	"github.com/zhangwb/kaohe/internal/scoring"
	"github.com/zhangwb/kaohe/internal/statistics"
	"github.com/zhangwb/kaohe/pkg/utils"
)

// AdminHandler serves user management, progress monitoring, statistics and
// exports. Every route behind it requires the admin role.
type AdminHandler struct {
	users   *repository.UserRepository
	tasks   *repository.TaskRepository
	targets *repository.TargetRepository
	scores  *repository.ScoreRepository
	hasher  *auth.Hasher
	excel   *export.ExcelBuilder
	auditor *audit.Recorder
	logger  *zap.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(
	users *repository.UserRepository,
	tasks *repository.TaskRepository,
	targets *repository.TargetRepository,
	scores *repository.ScoreRepository,
	hasher *auth.Hasher,
	excel *export.ExcelBuilder,
	auditor *audit.Recorder,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:   users,
		tasks:   tasks,
		targets: targets,
		scores:  scores,
		hasher:  hasher,
		excel:   excel,
		auditor: auditor,
		logger:  logger,
	}
}

// ListUsers returns every account without password hashes.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户失败"})
		return
	}
	if users == nil {
		users = []models.User{}
	}
	c.JSON(http.StatusOK, users)
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Unit     string `json:"unit"`
}

// CreateUser creates an account of any role. Accounts created here start
// with the forced password rotation flag set.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "用户名、密码、姓名和角色不能为空"})
		return
	}

	role := models.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的角色类型"})
		return
	}

	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)
	if err := utils.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateDisplayName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建用户失败"})
		return
	}

	user := &models.User{
		Username:           username,
		Password:           hash,
		Name:               name,
		Role:               role,
		Unit:               strings.TrimSpace(req.Unit),
		MustChangePassword: true,
	}
	if err := h.users.Create(user); err != nil {
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "用户名已存在，请选择其他用户名"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建用户失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "create_user",
		Resource:   "user",
		ResourceID: user.ID,
		Details:    username,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "用户创建成功", "userId": user.ID})
}

type updateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// UpdateUser changes an account's username, display name and role.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "用户名、姓名和角色不能为空"})
		return
	}

	role := models.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的角色类型"})
		return
	}

	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)
	if err := utils.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateDisplayName(name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.Update(id, username, name, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用户不存在"})
			return
		}
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "用户名已存在，请选择其他用户名"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新用户失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "update_user",
		Resource:   "user",
		ResourceID: id,
		Details:    username,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "用户信息更新成功"})
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required"`
}

// ResetPassword sets a fresh password for an account and flags it for
// forced rotation on next login.
func (h *AdminHandler) ResetPassword(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "新密码不能为空"})
		return
	}
	if err := utils.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重置密码失败"})
		return
	}
	if err := h.users.ResetPassword(id, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用户不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重置密码失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "reset_password",
		Resource:   "user",
		ResourceID: id,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "密码重置成功，该用户下次登录需修改密码"})
}

// DeleteUser removes an account and its scores, signatures and drafts.
// Admins cannot delete themselves.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	claims := middleware.CurrentUser(c)
	if id == claims.UserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不能删除自己的账户"})
		return
	}

	deletedScores, err := h.users.Delete(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用户不存在"})
			return
		}
		h.logger.Error("Failed to delete user", zap.Int64("user_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除用户失败"})
		return
	}

	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "delete_user",
		Resource:   "user",
		ResourceID: id,
		IPAddress:  c.ClientIP(),
	})

	message := "用户删除成功"
	if deletedScores > 0 {
		message += fmt.Sprintf("，同时删除了 %d 条评分记录", deletedScores)
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "deletedScores": deletedScores})
}

// DeleteAllUsers removes every non-admin account with their dependent rows.
func (h *AdminHandler) DeleteAllUsers(c *gin.Context) {
	deletedUsers, deletedScores, err := h.users.DeleteAllNonAdmin()
	if err != nil {
		h.logger.Error("Failed to delete all users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除用户失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Action:    "delete_all_users",
		Resource:  "user",
		Details:   fmt.Sprintf("%d users, %d scores", deletedUsers, deletedScores),
		IPAddress: c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{
		"message":       fmt.Sprintf("已删除 %d 个用户和 %d 条评分记录", deletedUsers, deletedScores),
		"deletedUsers":  deletedUsers,
		"deletedScores": deletedScores,
	})
}

// Progress reports each scorer's completion state for a task.
func (h *AdminHandler) Progress(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	progress, err := h.scores.ProgressByScorer(task.ID, task.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询进度失败"})
		return
	}
	if progress == nil {
		progress = []models.ScorerProgress{}
	}

	completed := 0
	for _, p := range progress {
		if p.Submitted {
			completed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"task":      task,
		"scorers":   progress,
		"completed": completed,
		"total":     len(progress),
	})
}

// Statistics returns the ranked report for a task.
func (h *AdminHandler) Statistics(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	aggregates, err := h.scores.AggregateByTarget(task.ID, task.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "统计评分失败"})
		return
	}

	results := statistics.Compute(task.Type, aggregates)
	c.JSON(http.StatusOK, gin.H{"task": task, "results": results})
}

// TargetScores returns every score one target received in a task.
func (h *AdminHandler) TargetScores(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	targetID, ok := paramID(c, "targetId")
	if !ok {
		return
	}

	details, err := h.scores.ListDetailsByTarget(task.ID, targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询评分明细失败"})
		return
	}
	if details == nil {
		details = []models.ScoreDetail{}
	}
	c.JSON(http.StatusOK, gin.H{"task": task, "scores": details})
}

// ExportScores returns the scorer-by-target matrix of a task as JSON.
func (h *AdminHandler) ExportScores(c *gin.Context) {
	task, targets, rows, ok := h.exportMatrix(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task":    task,
		"targets": targets,
		"rows":    rows,
	})
}

// ExportScoresXLSX streams the scorer-by-target matrix as an Excel workbook.
func (h *AdminHandler) ExportScoresXLSX(c *gin.Context) {
	task, targets, rows, ok := h.exportMatrix(c)
	if !ok {
		return
	}

	file, err := h.excel.Build(task, targets, rows)
	if err != nil {
		h.logger.Error("Failed to build export workbook", zap.Int64("task_id", task.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导出失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "export_scores",
		Resource:   "task",
		ResourceID: task.ID,
		IPAddress:  c.ClientIP(),
	})

	filename := fmt.Sprintf("scores-task-%d.xlsx", task.ID)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream export workbook", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}

// AuditLogs returns the audit trail, newest first. Supports userId, action,
// resource, limit and offset query parameters.
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	filter := repository.AuditFilter{
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    100,
	}
	if v := c.Query("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的用户ID"})
			return
		}
		filter.UserID = id
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的limit参数"})
			return
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的offset参数"})
			return
		}
		filter.Offset = offset
	}

	entries, err := h.auditor.List(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询审计日志失败"})
		return
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	c.JSON(http.StatusOK, entries)
}

// exportMatrix assembles the full matrix for a task: canonical targets, one
// row per scorer with their cells and submission signature.
func (h *AdminHandler) exportMatrix(c *gin.Context) (*models.Task, []models.Target, []models.ExportRow, bool) {
	task, ok := h.loadTask(c)
	if !ok {
		return nil, nil, nil, false
	}

	targets, err := h.targets.ListByType(task.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询被评分对象失败"})
		return nil, nil, nil, false
	}
	scoring.SortTargets(targets, task.Type)

	scorers, err := h.users.ListScorers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询评分人失败"})
		return nil, nil, nil, false
	}

	details, err := h.scores.ListByTask(task.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询评分失败"})
		return nil, nil, nil, false
	}

	signatures, err := h.scores.SignaturesByTask(task.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询签名失败"})
		return nil, nil, nil, false
	}

	cellsByScorer := make(map[int64]map[int64]models.ExportCell, len(scorers))
	for _, d := range details {
		cells, ok := cellsByScorer[d.ScorerID]
		if !ok {
			cells = make(map[int64]models.ExportCell, len(targets))
			cellsByScorer[d.ScorerID] = cells
		}
		score := d.Score.Score
		cell := models.ExportCell{Score: &score, Submitted: true}
		if d.Remark != "" {
			remark := d.Remark
			cell.Remark = &remark
		}
		cells[d.TargetID] = cell
	}

	rows := make([]models.ExportRow, 0, len(scorers))
	for _, scorer := range scorers {
		row := models.ExportRow{
			ScorerID:   scorer.ID,
			ScorerName: scorer.Name,
			ScorerRole: scorer.Role,
			Scores:     cellsByScorer[scorer.ID],
		}
		if row.Scores == nil {
			row.Scores = map[int64]models.ExportCell{}
		}
		if sig, ok := signatures[scorer.ID]; ok {
			row.Signature = &sig
		}
		rows = append(rows, row)
	}

	return task, targets, rows, true
}

// loadTask resolves the taskId path parameter, answering 400/404 itself.
func (h *AdminHandler) loadTask(c *gin.Context) (*models.Task, bool) {
	taskID, ok := paramID(c, "taskId")
	if !ok {
		return nil, false
	}
	task, err := h.tasks.GetByID(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return nil, false
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return nil, false
	}
	return task, true
}
