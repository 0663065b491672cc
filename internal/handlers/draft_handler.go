package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/repository"
)

// DraftHandler serves scratch saves of in-progress scoring forms. Drafts
// are opaque blobs: no scoring validation applies until submission.
type DraftHandler struct {
	drafts *repository.DraftRepository
	logger *zap.Logger
}

// NewDraftHandler creates a draft handler.
func NewDraftHandler(drafts *repository.DraftRepository, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{drafts: drafts, logger: logger}
}

type saveDraftRequest struct {
	TaskID    int64           `json:"taskId" binding:"required"`
	DraftData json.RawMessage `json:"draftData" binding:"required"`
}

// Save upserts the caller's draft for a task.
func (h *DraftHandler) Save(c *gin.Context) {
	var req saveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务ID和草稿数据不能为空"})
		return
	}
	if len(req.DraftData) > repository.MaxDraftBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "草稿数据过大"})
		return
	}

	claims := middleware.CurrentUser(c)
	if err := h.drafts.Save(req.TaskID, claims.UserID, string(req.DraftData)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存草稿失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "草稿保存成功"})
}

// Get returns the caller's draft for a task, or a null draft when absent.
func (h *DraftHandler) Get(c *gin.Context) {
	taskID, ok := paramID(c, "taskId")
	if !ok {
		return
	}
	claims := middleware.CurrentUser(c)

	draft, err := h.drafts.Get(taskID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取草稿失败"})
		return
	}
	if draft == nil {
		c.JSON(http.StatusOK, gin.H{"draft": nil})
		return
	}

	var data json.RawMessage
	if err := json.Unmarshal([]byte(draft.Data), &data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "草稿数据解析失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": data, "updatedAt": draft.UpdatedAt})
}

// Delete removes the caller's draft for a task.
func (h *DraftHandler) Delete(c *gin.Context) {
	taskID, ok := paramID(c, "taskId")
	if !ok {
		return
	}
	claims := middleware.CurrentUser(c)

	if err := h.drafts.Delete(taskID, claims.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除草稿失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "草稿删除成功"})
}
