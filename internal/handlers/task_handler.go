package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/audit"
	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/repository"
)

// TaskHandler serves task listing and administration.
type TaskHandler struct {
	tasks   *repository.TaskRepository
	auditor *audit.Recorder
	logger  *zap.Logger
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(tasks *repository.TaskRepository, auditor *audit.Recorder, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, auditor: auditor, logger: logger}
}

// List returns all tasks with completion progress, newest first.
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return
	}
	if tasks == nil {
		tasks = []models.TaskWithProgress{}
	}
	c.JSON(http.StatusOK, tasks)
}

// MyTasks returns the active tasks with the calling scorer's progress.
func (h *TaskHandler) MyTasks(c *gin.Context) {
	claims := middleware.CurrentUser(c)
	tasks, err := h.tasks.ListActiveForScorer(claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return
	}
	if tasks == nil {
		tasks = []models.ScorerTask{}
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Name string          `json:"name" binding:"required"`
	Type models.TaskType `json:"type" binding:"required"`
}

// Create creates a task in draft status.
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务名称和类型不能为空，类型必须是department或squad"})
		return
	}

	task, err := h.tasks.Create(req.Name, req.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建任务失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "create_task",
		Resource:   "task",
		ResourceID: task.ID,
		Details:    task.Name,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, task)
}

type updateStatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

// UpdateStatus moves a task through its lifecycle.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的状态值"})
		return
	}

	if err := h.tasks.UpdateStatus(id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新任务状态失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "update_task_status",
		Resource:   "task",
		ResourceID: id,
		Details:    string(req.Status),
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "任务状态更新成功"})
}

// Delete removes a task and its dependent rows.
func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	deletedScores, err := h.tasks.Delete(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
			return
		}
		h.logger.Error("Failed to delete task", zap.Int64("task_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除任务失败"})
		return
	}

	claims := middleware.CurrentUser(c)
	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "delete_task",
		Resource:   "task",
		ResourceID: id,
		IPAddress:  c.ClientIP(),
	})

	message := "任务删除成功"
	if deletedScores > 0 {
		message += fmt.Sprintf("，同时删除了 %d 条评分记录", deletedScores)
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "deletedScores": deletedScores})
}
