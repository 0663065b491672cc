package repository

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/pkg/database"
)

// AuditRepository persists the audit trail.
type AuditRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *database.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Insert writes one audit entry.
func (r *AuditRepository) Insert(entry *models.AuditLog) error {
	var userID, resourceID interface{}
	if entry.UserID != 0 {
		userID = entry.UserID
	}
	if entry.ResourceID != 0 {
		resourceID = entry.ResourceID
	}
	_, err := r.db.Exec(
		`INSERT INTO audit_logs (user_id, username, action, resource, resource_id, details, ip_address)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, entry.Username, entry.Action, entry.Resource, resourceID, entry.Details, entry.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// AuditFilter narrows an audit listing. Zero values mean "no filter".
type AuditFilter struct {
	UserID   int64
	Action   string
	Resource string
	Limit    int
	Offset   int
}

// List returns audit entries newest-first, optionally filtered.
func (r *AuditRepository) List(filter AuditFilter) ([]models.AuditLog, error) {
	query := `SELECT id, COALESCE(user_id, 0), username, action, resource,
		COALESCE(resource_id, 0), COALESCE(details, ''), COALESCE(ip_address, ''), created_at
		FROM audit_logs WHERE 1=1`
	var args []interface{}

	if filter.UserID != 0 {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.Resource != "" {
		query += " AND resource = ?"
		args = append(args, filter.Resource)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.Username, &e.Action, &e.Resource,
			&e.ResourceID, &e.Details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
