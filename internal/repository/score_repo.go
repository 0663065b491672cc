package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/scoring"
	"github.com/zhangwb/kaohe/pkg/database"
)

// ScoreRepository handles score and signature persistence. Score rows are
// append-only: they are written once per (task, scorer) as a batch and never
// updated.
type ScoreRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(db *database.DB, logger *zap.Logger) *ScoreRepository {
	return &ScoreRepository{db: db, logger: logger}
}

// SubmitBatch persists one scorer's full submission atomically: the
// already-submitted check, every score row and the signature commit or roll
// back together, so two racing submissions cannot both pass the guard.
// Returns scoring.ErrAlreadySubmitted when any prior row exists.
func (r *ScoreRepository) SubmitBatch(taskID, scorerID int64, items []models.ScoreItem, signature string) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		var existing int
		err := tx.QueryRow(
			"SELECT COUNT(*) FROM scores WHERE task_id = ? AND scorer_id = ?",
			taskID, scorerID,
		).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to check existing scores: %w", err)
		}
		if existing > 0 {
			return scoring.ErrAlreadySubmitted
		}

		stmt, err := tx.Prepare(
			"INSERT INTO scores (task_id, scorer_id, target_id, score, remark) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare score insert: %w", err)
		}
		defer stmt.Close()

		for _, item := range items {
			var remark interface{}
			if item.Remark != "" {
				remark = item.Remark
			}
			if _, err := stmt.Exec(taskID, scorerID, item.TargetID, item.Score, remark); err != nil {
				return fmt.Errorf("failed to insert score for target %d: %w", item.TargetID, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO signatures (task_id, scorer_id, signature) VALUES (?, ?, ?)",
			taskID, scorerID, signature,
		); err != nil {
			return fmt.Errorf("failed to insert signature: %w", err)
		}
		return nil
	})
}

// CountByTaskAndScorer returns how many score rows a scorer has for a task.
func (r *ScoreRepository) CountByTaskAndScorer(taskID, scorerID int64) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM scores WHERE task_id = ? AND scorer_id = ?",
		taskID, scorerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}
	return count, nil
}

// ListByTaskAndScorer returns a scorer's rows for a task.
func (r *ScoreRepository) ListByTaskAndScorer(taskID, scorerID int64) ([]models.Score, error) {
	rows, err := r.db.Query(
		`SELECT id, task_id, scorer_id, target_id, score, COALESCE(remark, ''), submitted_at
		 FROM scores WHERE task_id = ? AND scorer_id = ?`,
		taskID, scorerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	defer rows.Close()

	var scores []models.Score
	for rows.Next() {
		var s models.Score
		if err := rows.Scan(&s.ID, &s.TaskID, &s.ScorerID, &s.TargetID, &s.Score, &s.Remark, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// AggregateByTarget groups a task's scores by target and scorer role in one
// query: every target of the task's type appears, with zero averages where a
// role never scored it. Row order is left to the statistics engine.
func (r *ScoreRepository) AggregateByTarget(taskID int64, taskType models.TaskType) ([]models.TargetAggregate, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.name,
			COALESCE(AVG(CASE WHEN u.role = 'leader' THEN s.score END), 0),
			COUNT(CASE WHEN u.role = 'leader' THEN 1 END),
			COALESCE(AVG(CASE WHEN u.role = 'manager' THEN s.score END), 0),
			COUNT(CASE WHEN u.role = 'manager' THEN 1 END)
		FROM departments d
		LEFT JOIN scores s ON s.target_id = d.id AND s.task_id = ?
		LEFT JOIN users u ON u.id = s.scorer_id
		WHERE d.type = ?
		GROUP BY d.id, d.name
		ORDER BY d.id`, taskID, taskType)
	if err != nil {
		r.logger.Error("Failed to aggregate scores", zap.Int64("task_id", taskID), zap.Error(err))
		return nil, fmt.Errorf("failed to aggregate scores: %w", err)
	}
	defer rows.Close()

	var aggs []models.TargetAggregate
	for rows.Next() {
		var a models.TargetAggregate
		if err := rows.Scan(&a.ID, &a.Name, &a.LeaderAvg, &a.LeaderCount, &a.ManagerAvg, &a.ManagerCount); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ListDetailsByTarget returns all scores one target received in a task,
// joined with scorer identity, ordered by role then scorer.
func (r *ScoreRepository) ListDetailsByTarget(taskID, targetID int64) ([]models.ScoreDetail, error) {
	rows, err := r.db.Query(
		`SELECT s.id, s.task_id, s.scorer_id, s.target_id, s.score, COALESCE(s.remark, ''), s.submitted_at,
			u.name, u.role
		 FROM scores s
		 JOIN users u ON s.scorer_id = u.id
		 WHERE s.task_id = ? AND s.target_id = ?
		 ORDER BY u.role, u.id`,
		taskID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list score details: %w", err)
	}
	defer rows.Close()

	var details []models.ScoreDetail
	for rows.Next() {
		var d models.ScoreDetail
		if err := rows.Scan(&d.ID, &d.TaskID, &d.ScorerID, &d.TargetID, &d.Score.Score, &d.Remark, &d.SubmittedAt,
			&d.ScorerName, &d.ScorerRole); err != nil {
			return nil, fmt.Errorf("failed to scan score detail: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// ListByTask returns every score row of a task, joined with scorer identity.
func (r *ScoreRepository) ListByTask(taskID int64) ([]models.ScoreDetail, error) {
	rows, err := r.db.Query(
		`SELECT s.id, s.task_id, s.scorer_id, s.target_id, s.score, COALESCE(s.remark, ''), s.submitted_at,
			u.name, u.role
		 FROM scores s
		 JOIN users u ON s.scorer_id = u.id
		 WHERE s.task_id = ?
		 ORDER BY s.scorer_id, s.target_id`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task scores: %w", err)
	}
	defer rows.Close()

	var details []models.ScoreDetail
	for rows.Next() {
		var d models.ScoreDetail
		if err := rows.Scan(&d.ID, &d.TaskID, &d.ScorerID, &d.TargetID, &d.Score.Score, &d.Remark, &d.SubmittedAt,
			&d.ScorerName, &d.ScorerRole); err != nil {
			return nil, fmt.Errorf("failed to scan score detail: %w", err)
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

// SignaturesByTask returns the one signature each scorer provided with
// their submission for a task.
func (r *ScoreRepository) SignaturesByTask(taskID int64) (map[int64]string, error) {
	rows, err := r.db.Query(
		"SELECT scorer_id, signature FROM signatures WHERE task_id = ?", taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	defer rows.Close()

	signatures := make(map[int64]string)
	for rows.Next() {
		var scorerID int64
		var signature string
		if err := rows.Scan(&scorerID, &signature); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		signatures[scorerID] = signature
	}
	return signatures, rows.Err()
}

// ProgressByScorer reports each scorer's completion state for a task.
func (r *ScoreRepository) ProgressByScorer(taskID int64, taskType models.TaskType) ([]models.ScorerProgress, error) {
	rows, err := r.db.Query(
		`SELECT u.id, u.name, u.role,
			(SELECT COUNT(*) FROM scores s WHERE s.task_id = ? AND s.scorer_id = u.id) AS submitted_count,
			(SELECT COUNT(*) FROM departments d WHERE d.type = ?) AS total_count
		 FROM users u
		 WHERE u.role IN ('leader', 'manager')
		 ORDER BY u.role, u.id`,
		taskID, taskType)
	if err != nil {
		return nil, fmt.Errorf("failed to query scorer progress: %w", err)
	}
	defer rows.Close()

	var progress []models.ScorerProgress
	for rows.Next() {
		var p models.ScorerProgress
		var submitted, total int
		if err := rows.Scan(&p.ID, &p.Name, &p.Role, &submitted, &total); err != nil {
			return nil, fmt.Errorf("failed to scan scorer progress: %w", err)
		}
		p.Progress.Submitted = submitted
		p.Progress.Total = total
		p.Submitted = total > 0 && submitted == total
		progress = append(progress, p)
	}
	return progress, rows.Err()
}
