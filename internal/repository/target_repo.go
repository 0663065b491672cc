package repository

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/pkg/database"
)

// TargetRepository reads the pre-seeded appraisal targets (departments and
// squads). Targets are configuration data: no write path exists here.
type TargetRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewTargetRepository creates a new target repository.
func NewTargetRepository(db *database.DB, logger *zap.Logger) *TargetRepository {
	return &TargetRepository{db: db, logger: logger}
}

// ListByType returns all targets of the given type, in database order.
// Callers that present targets to people apply scoring.SortTargets.
func (r *TargetRepository) ListByType(taskType models.TaskType) ([]models.Target, error) {
	rows, err := r.db.Query(
		"SELECT id, name, type, created_at FROM departments WHERE type = ?", taskType)
	if err != nil {
		r.logger.Error("Failed to list targets", zap.String("type", string(taskType)), zap.Error(err))
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var targets []models.Target
	for rows.Next() {
		var t models.Target
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// NamesByID returns a targetID -> name map for the given type, used by the
// validator to phrase its error messages.
func (r *TargetRepository) NamesByID(taskType models.TaskType) (map[int64]string, error) {
	targets, err := r.ListByType(taskType)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(targets))
	for _, t := range targets {
		names[t.ID] = t.Name
	}
	return names, nil
}

// CountByType returns how many targets a task of the given type covers.
func (r *TargetRepository) CountByType(taskType models.TaskType) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM departments WHERE type = ?", taskType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count targets: %w", err)
	}
	return count, nil
}
