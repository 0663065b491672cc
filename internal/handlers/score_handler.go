package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/audit"
	"github.com/zhangwb/kaohe/internal/middleware"
	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/repository"
	"github.com/zhangwb/kaohe/internal/scoring"
)

// ScoreHandler serves the scoring form and accepts submissions.
type ScoreHandler struct {
	tasks   *repository.TaskRepository
	targets *repository.TargetRepository
	scores  *repository.ScoreRepository
	drafts  *repository.DraftRepository
	auditor *audit.Recorder
	logger  *zap.Logger
}

// NewScoreHandler creates a score handler.
func NewScoreHandler(
	tasks *repository.TaskRepository,
	targets *repository.TargetRepository,
	scores *repository.ScoreRepository,
	drafts *repository.DraftRepository,
	auditor *audit.Recorder,
	logger *zap.Logger,
) *ScoreHandler {
	return &ScoreHandler{
		tasks:   tasks,
		targets: targets,
		scores:  scores,
		drafts:  drafts,
		auditor: auditor,
		logger:  logger,
	}
}

// Form returns the scoring form for one task: targets in canonical order,
// merged with whatever this scorer already submitted.
func (h *ScoreHandler) Form(c *gin.Context) {
	taskID, ok := paramID(c, "taskId")
	if !ok {
		return
	}
	claims := middleware.CurrentUser(c)

	task, err := h.tasks.GetByID(taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}

	targets, err := h.targets.ListByType(task.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询被评分对象失败"})
		return
	}
	scoring.SortTargets(targets, task.Type)

	submitted, err := h.scores.ListByTaskAndScorer(taskID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询评分失败"})
		return
	}
	byTarget := make(map[int64]models.Score, len(submitted))
	for _, s := range submitted {
		byTarget[s.TargetID] = s
	}

	form := make([]models.FormTarget, 0, len(targets))
	for _, t := range targets {
		row := models.FormTarget{ID: t.ID, Name: t.Name, Type: t.Type}
		if s, ok := byTarget[t.ID]; ok {
			score := s.Score
			remark := s.Remark
			row.Score = &score
			row.Remark = &remark
			row.Submitted = true
		}
		form = append(form, row)
	}

	c.JSON(http.StatusOK, gin.H{
		"task":        task,
		"targets":     form,
		"isSubmitted": len(submitted) > 0 && len(submitted) == len(targets),
	})
}

type submitRequest struct {
	TaskID    int64              `json:"taskId" binding:"required"`
	Scores    []models.ScoreItem `json:"scores" binding:"required"`
	Signature string             `json:"signature"`
}

// Submit validates and persists one scorer's full score set for a task.
// Acceptance is all-or-nothing: the one-shot guard and every row commit in
// a single transaction.
func (h *ScoreHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务ID、评分数据和签名不能为空"})
		return
	}
	claims := middleware.CurrentUser(c)

	if strings.TrimSpace(req.Signature) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": scoring.ErrMissingSignature.Error()})
		return
	}

	task, err := h.tasks.GetByID(req.TaskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询任务失败"})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	if task.Status != models.TaskStatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": scoring.ErrTaskNotActive.Error()})
		return
	}

	names, err := h.targets.NamesByID(task.Type)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询被评分对象失败"})
		return
	}

	// The client always sends the full form, but the server no longer
	// trusts that: an incomplete set would otherwise lock the scorer out
	// of the task with a partial submission.
	if len(req.Scores) != len(names) {
		incomplete := &scoring.IncompleteSubmissionError{Got: len(req.Scores), Want: len(names)}
		c.JSON(http.StatusBadRequest, gin.H{"error": incomplete.Error()})
		return
	}
	for _, item := range req.Scores {
		if _, ok := names[item.TargetID]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("无效的评分对象ID: %d", item.TargetID)})
			return
		}
	}

	if err := scoring.Validate(req.Scores, task.Type, names); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.scores.SubmitBatch(req.TaskID, claims.UserID, req.Scores, req.Signature); err != nil {
		if errors.Is(err, scoring.ErrAlreadySubmitted) {
			c.JSON(http.StatusBadRequest, gin.H{"error": scoring.ErrAlreadySubmitted.Error()})
			return
		}
		h.logger.Error("Failed to persist submission",
			zap.Int64("task_id", req.TaskID),
			zap.Int64("scorer_id", claims.UserID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "提交评分失败"})
		return
	}

	// The submitted data supersedes any saved draft.
	if err := h.drafts.Delete(req.TaskID, claims.UserID); err != nil {
		h.logger.Warn("Failed to clear draft after submission",
			zap.Int64("task_id", req.TaskID),
			zap.Int64("scorer_id", claims.UserID),
			zap.Error(err))
	}

	h.auditor.Record(models.AuditLog{
		UserID:     claims.UserID,
		Username:   claims.Username,
		Action:     "submit_scores",
		Resource:   "task",
		ResourceID: req.TaskID,
		Details:    fmt.Sprintf("%d scores", len(req.Scores)),
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "评分提交成功"})
}

// paramID parses a positive integer path parameter, answering 400 itself
// when the value is malformed.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的ID"})
		return 0, false
	}
	return id, true
}
