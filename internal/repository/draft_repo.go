package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/pkg/database"
)

// MaxDraftBytes caps a saved draft blob at roughly 1MB.
const MaxDraftBytes = 1024 * 1024

// DraftRepository stores in-progress scoring data as opaque blobs, one per
// (task, user), overwritten on every save.
type DraftRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDraftRepository creates a new draft repository.
func NewDraftRepository(db *database.DB, logger *zap.Logger) *DraftRepository {
	return &DraftRepository{db: db, logger: logger}
}

// Save upserts a draft blob.
func (r *DraftRepository) Save(taskID, userID int64, data string) error {
	if len(data) > MaxDraftBytes {
		return fmt.Errorf("draft data exceeds %d bytes", MaxDraftBytes)
	}
	_, err := r.db.Exec(
		`INSERT INTO score_drafts (task_id, user_id, draft_data, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (task_id, user_id)
		 DO UPDATE SET draft_data = excluded.draft_data, updated_at = CURRENT_TIMESTAMP`,
		taskID, userID, data)
	if err != nil {
		r.logger.Error("Failed to save draft",
			zap.Int64("task_id", taskID), zap.Int64("user_id", userID), zap.Error(err))
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Get returns the draft for (task, user), or nil when absent.
func (r *DraftRepository) Get(taskID, userID int64) (*models.Draft, error) {
	var d models.Draft
	err := r.db.QueryRow(
		"SELECT task_id, user_id, draft_data, updated_at FROM score_drafts WHERE task_id = ? AND user_id = ?",
		taskID, userID,
	).Scan(&d.TaskID, &d.UserID, &d.Data, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}

// Delete removes the draft for (task, user), if any.
func (r *DraftRepository) Delete(taskID, userID int64) error {
	_, err := r.db.Exec(
		"DELETE FROM score_drafts WHERE task_id = ? AND user_id = ?", taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
