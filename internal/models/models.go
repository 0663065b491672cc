package models

import "time"

// TaskType distinguishes the two appraisal cycles: scoring the unit's
// internal departments or its field squads.
type TaskType string

const (
	TaskTypeDepartment TaskType = "department"
	TaskTypeSquad      TaskType = "squad"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return t == TaskTypeDepartment || t == TaskTypeSquad
}

// TaskStatus is the lifecycle state of an appraisal task.
type TaskStatus string

const (
	TaskStatusDraft  TaskStatus = "draft"
	TaskStatusActive TaskStatus = "active"
	TaskStatusClosed TaskStatus = "closed"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	return s == TaskStatusDraft || s == TaskStatusActive || s == TaskStatusClosed
}

// Role is a user's role. Only leaders and managers score; admins administer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleLeader  Role = "leader"
	RoleManager Role = "manager"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleLeader || r == RoleManager
}

// CanScore reports whether users with this role submit scores.
func (r Role) CanScore() bool {
	return r == RoleLeader || r == RoleManager
}

// User is an account in the appraisal system.
type User struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	Password           string    `json:"-"`
	Name               string    `json:"name"`
	Role               Role      `json:"role"`
	Unit               string    `json:"unit,omitempty"`
	MustChangePassword bool      `json:"mustChangePassword"`
	CreatedAt          time.Time `json:"created_at"`
}

// Target is a department or squad being appraised.
type Target struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      TaskType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is one appraisal cycle.
type Task struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Score is a single scorer's rating of a single target within a task.
// The tuple (TaskID, ScorerID, TargetID) is unique; rows are immutable
// once written.
type Score struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	ScorerID    int64     `json:"scorer_id"`
	TargetID    int64     `json:"target_id"`
	Score       int       `json:"score"`
	Remark      string    `json:"remark,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ScoreItem is one entry of a proposed submission, before persistence.
type ScoreItem struct {
	TargetID int64  `json:"targetId" binding:"required"`
	Score    int    `json:"score"`
	Remark   string `json:"remark"`
}

// TargetAggregate is the per-target, per-role aggregate the statistics
// engine consumes, as produced by one grouped query over the scores table.
type TargetAggregate struct {
	ID           int64
	Name         string
	LeaderAvg    float64
	LeaderCount  int
	ManagerAvg   float64
	ManagerCount int
}

// TargetResult is one row of the ranked statistics report.
type TargetResult struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	LeaderAvg    float64 `json:"leaderAvg"`
	LeaderCount  int     `json:"leaderCount"`
	ManagerAvg   float64 `json:"managerAvg"`
	ManagerCount int     `json:"managerCount"`
	LeaderScore  float64 `json:"leaderScore"`
	ManagerScore float64 `json:"managerScore"`
	TotalScore   float64 `json:"totalScore"`
	Rank         int     `json:"rank"`
}

// Draft is a scorer's scratch save of in-progress scoring data.
type Draft struct {
	TaskID    int64     `json:"task_id"`
	UserID    int64     `json:"user_id"`
	Data      string    `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuditLog is one best-effort audit trail entry.
type AuditLog struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id,omitempty"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID int64     `json:"resource_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
