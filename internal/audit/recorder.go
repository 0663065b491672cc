// Package audit records a best-effort trail of security-relevant actions.
package audit

import (
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/repository"
)

// Recorder writes audit entries. A failed write is logged and swallowed:
// auditing never fails the request that triggered it.
type Recorder struct {
	repo   *repository.AuditRepository
	logger *zap.Logger
}

// NewRecorder creates an audit recorder.
func NewRecorder(repo *repository.AuditRepository, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record persists one audit entry.
func (r *Recorder) Record(entry models.AuditLog) {
	if err := r.repo.Insert(&entry); err != nil {
		r.logger.Error("Failed to record audit entry",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err))
	}
}

// List returns audit entries matching the filter.
func (r *Recorder) List(filter repository.AuditFilter) ([]models.AuditLog, error) {
	return r.repo.List(filter)
}
