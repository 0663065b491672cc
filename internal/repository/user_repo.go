// Package repository implements sqlite persistence for the appraisal
// domain: users, targets, tasks, scores, drafts and audit entries.
package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/pkg/database"
)

// UserRepository handles user persistence.
type UserRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *database.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// IsUniqueViolation reports whether err is a sqlite UNIQUE constraint error.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// Create inserts a new user. The password must already be hashed.
func (r *UserRepository) Create(user *models.User) error {
	result, err := r.db.Exec(
		`INSERT INTO users (username, password, name, role, unit, must_change_password)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.Username, user.Password, user.Name, user.Role, user.Unit, boolToInt(user.MustChangePassword),
	)
	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("Failed to create user", zap.String("username", user.Username), zap.Error(err))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	return nil
}

const userColumns = "id, username, password, name, role, COALESCE(unit, ''), must_change_password, created_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var mustChange int
	err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Name, &u.Role, &u.Unit, &mustChange, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.MustChangePassword = mustChange == 1
	return &u, nil
}

// GetByID retrieves a user by id, or nil when absent.
func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		r.logger.Error("Failed to get user by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByUsername retrieves a user by username, or nil when absent.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		r.logger.Error("Failed to get user by username", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List returns all users ordered by role then id.
func (r *UserRepository) List() ([]models.User, error) {
	rows, err := r.db.Query(
		"SELECT id, username, name, role, COALESCE(unit, ''), created_at FROM users ORDER BY role, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.Unit, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListScorers returns every leader and manager, the population expected to
// submit scores for each task.
func (r *UserRepository) ListScorers() ([]models.User, error) {
	rows, err := r.db.Query(
		`SELECT id, username, name, role, COALESCE(unit, ''), created_at
		 FROM users
		 WHERE role IN ('leader', 'manager')
		 ORDER BY role, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scorers: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.Unit, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan scorer: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update changes a user's username, name and role. Returns sql.ErrNoRows
// when the user does not exist.
func (r *UserRepository) Update(id int64, username, name string, role models.Role) error {
	result, err := r.db.Exec(
		"UPDATE users SET username = ?, name = ?, role = ? WHERE id = ?",
		username, name, role, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
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

// UpdatePassword replaces a user's password hash and clears the forced
// rotation flag.
func (r *UserRepository) UpdatePassword(id int64, passwordHash string) error {
	result, err := r.db.Exec(
		"UPDATE users SET password = ?, must_change_password = 0 WHERE id = ?",
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
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

// ResetPassword replaces a user's password hash and flags the account for
// forced rotation on next login.
func (r *UserRepository) ResetPassword(id int64, passwordHash string) error {
	result, err := r.db.Exec(
		"UPDATE users SET password = ?, must_change_password = 1 WHERE id = ?",
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
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

// Delete removes a user together with their scores, signatures and drafts,
// all-or-nothing. Returns the number of score rows removed alongside.
func (r *UserRepository) Delete(id int64) (deletedScores int64, err error) {
	err = r.db.WithTransaction(func(tx *sql.Tx) error {
		result, err := tx.Exec("DELETE FROM scores WHERE scorer_id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete user scores: %w", err)
		}
		deletedScores, _ = result.RowsAffected()

		if _, err := tx.Exec("DELETE FROM signatures WHERE scorer_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete user signatures: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM score_drafts WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete user drafts: %w", err)
		}

		result, err = tx.Exec("DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		affected, _ := result.RowsAffected()
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	return deletedScores, err
}

// DeleteAllNonAdmin removes every non-admin user and their dependent rows
// in one transaction.
func (r *UserRepository) DeleteAllNonAdmin() (deletedUsers, deletedScores int64, err error) {
	err = r.db.WithTransaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"DELETE FROM scores WHERE scorer_id IN (SELECT id FROM users WHERE role != 'admin')")
		if err != nil {
			return fmt.Errorf("failed to delete scores: %w", err)
		}
		deletedScores, _ = result.RowsAffected()

		if _, err := tx.Exec(
			"DELETE FROM signatures WHERE scorer_id IN (SELECT id FROM users WHERE role != 'admin')"); err != nil {
			return fmt.Errorf("failed to delete signatures: %w", err)
		}
		if _, err := tx.Exec(
			"DELETE FROM score_drafts WHERE user_id IN (SELECT id FROM users WHERE role != 'admin')"); err != nil {
			return fmt.Errorf("failed to delete drafts: %w", err)
		}

		result, err = tx.Exec("DELETE FROM users WHERE role != 'admin'")
		if err != nil {
			return fmt.Errorf("failed to delete users: %w", err)
		}
		deletedUsers, _ = result.RowsAffected()
		return nil
	})
	return deletedUsers, deletedScores, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
