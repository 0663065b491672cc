package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/pkg/database"
)

// TaskRepository handles appraisal task persistence.
type TaskRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *database.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// Create inserts a new task in draft status.
func (r *TaskRepository) Create(name string, taskType models.TaskType) (*models.Task, error) {
	result, err := r.db.Exec(
		"INSERT INTO tasks (name, type, status) VALUES (?, ?, 'draft')", name, taskType)
	if err != nil {
		r.logger.Error("Failed to create task", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return r.GetByID(id)
}

// GetByID retrieves a task, or nil when absent.
func (r *TaskRepository) GetByID(id int64) (*models.Task, error) {
	var t models.Task
	err := r.db.QueryRow(
		"SELECT id, name, type, status, created_at, updated_at FROM tasks WHERE id = ?", id,
	).Scan(&t.ID, &t.Name, &t.Type, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &t, nil
}

// List returns every task newest-first, each with how many scorers have
// completed the full target set versus the scorer population.
func (r *TaskRepository) List() ([]models.TaskWithProgress, error) {
	rows, err := r.db.Query(`
		SELECT t.id, t.name, t.type, t.status, t.created_at, t.updated_at,
			(SELECT COUNT(*)
			 FROM users u
			 WHERE u.role IN ('leader', 'manager')
			   AND (SELECT COUNT(*) FROM scores s WHERE s.task_id = t.id AND s.scorer_id = u.id) =
			       (SELECT COUNT(*) FROM departments d WHERE d.type = t.type)) AS completed_count,
			(SELECT COUNT(*) FROM users WHERE role IN ('leader', 'manager')) AS total_count
		FROM tasks t
		ORDER BY t.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.TaskWithProgress
	for rows.Next() {
		var t models.TaskWithProgress
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Status, &t.CreatedAt, &t.UpdatedAt,
			&t.Progress.Completed, &t.Progress.Total); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ListActiveForScorer returns the active tasks together with the scorer's
// own submission progress and the unit-wide voting progress.
func (r *TaskRepository) ListActiveForScorer(scorerID int64) ([]models.ScorerTask, error) {
	rows, err := r.db.Query(`
		SELECT t.id, t.name, t.type, t.status,
			(SELECT COUNT(*) FROM scores s WHERE s.task_id = t.id AND s.scorer_id = ?) AS submitted_count,
			(SELECT COUNT(*) FROM departments d WHERE d.type = t.type) AS target_count,
			(SELECT COUNT(*)
			 FROM users u
			 WHERE u.role IN ('leader', 'manager')
			   AND (SELECT COUNT(*) FROM scores s WHERE s.task_id = t.id AND s.scorer_id = u.id) =
			       (SELECT COUNT(*) FROM departments d WHERE d.type = t.type)) AS completed_voters,
			(SELECT COUNT(*) FROM users WHERE role IN ('leader', 'manager')) AS total_voters
		FROM tasks t
		WHERE t.status = 'active'
		ORDER BY t.created_at DESC`, scorerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.ScorerTask
	for rows.Next() {
		var t models.ScorerTask
		var submitted, targetCount int
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Status,
			&submitted, &targetCount,
			&t.VotingProgress.Completed, &t.VotingProgress.Total); err != nil {
			return nil, fmt.Errorf("failed to scan active task: %w", err)
		}
		t.Progress.Submitted = submitted
		t.Progress.Total = targetCount
		t.IsCompleted = targetCount > 0 && submitted == targetCount
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateStatus moves a task through its lifecycle. Returns sql.ErrNoRows
// when the task does not exist.
func (r *TaskRepository) UpdateStatus(id int64, status models.TaskStatus) error {
	result, err := r.db.Exec(
		"UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a task with its scores, signatures and drafts,
// all-or-nothing. Returns the number of score rows removed alongside.
func (r *TaskRepository) Delete(id int64) (deletedScores int64, err error) {
	err = r.db.WithTransaction(func(tx *sql.Tx) error {
		result, err := tx.Exec("DELETE FROM scores WHERE task_id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete task scores: %w", err)
		}
		deletedScores, _ = result.RowsAffected()

		if _, err := tx.Exec("DELETE FROM signatures WHERE task_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete task signatures: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM score_drafts WHERE task_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete task drafts: %w", err)
		}

		result, err = tx.Exec("DELETE FROM tasks WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	return deletedScores, err
}
