package models

// Progress is a submitted/total counter pair.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// TaskWithProgress is a task row plus how many scorers have completed it.
type TaskWithProgress struct {
	Task
	Progress Progress `json:"progress"`
}

// ScorerTask is an active task as seen by one scorer: their own submission
// progress plus the unit-wide voting progress.
type ScorerTask struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	IsCompleted bool       `json:"isCompleted"`
	Progress    struct {
		Submitted int `json:"submitted"`
		Total     int `json:"total"`
	} `json:"progress"`
	VotingProgress Progress `json:"votingProgress"`
}

// ScoreDetail is a score row joined with its scorer's identity.
type ScoreDetail struct {
	Score
	ScorerName string `json:"scorer_name"`
	ScorerRole Role   `json:"scorer_role"`
}

// ScorerProgress is one scorer's completion state for a task.
type ScorerProgress struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Role      Role     `json:"role"`
	Submitted bool     `json:"submitted"`
	Progress  struct {
		Submitted int `json:"submitted"`
		Total     int `json:"total"`
	} `json:"progress"`
}

// FormTarget is one row of the scoring form: the target in canonical order
// merged with any score this scorer already submitted for it.
type FormTarget struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Type      TaskType `json:"type"`
	Score     *int     `json:"score"`
	Remark    *string  `json:"remark"`
	Submitted bool     `json:"submitted"`
}

// ExportCell is one cell of the scorer-by-target export matrix.
type ExportCell struct {
	Score     *int    `json:"score"`
	Remark    *string `json:"remark"`
	Submitted bool    `json:"submitted"`
}

// ExportRow is one scorer's row of the export matrix, with the single
// signature captured at submission time.
type ExportRow struct {
	ScorerID   int64                `json:"scorerId"`
	ScorerName string               `json:"scorerName"`
	ScorerRole Role                 `json:"scorerRole"`
	Signature  *string              `json:"signature"`
	Scores     map[int64]ExportCell `json:"scores"`
}
