package scoring

import (
	"errors"
	"fmt"

	"github.com/zhangwb/kaohe/internal/models"
)

// Validation errors carry the user-facing message: they are rendered to the
// scorer verbatim so the correction is unambiguous.
var (
	ErrEmptySubmission  = errors.New("至少需要一个评分")
	ErrScoreOutOfRange  = errors.New("评分必须在0-100之间")
	ErrMissingSignature = errors.New("签名不能为空")
	ErrAlreadySubmitted = errors.New("该任务已提交，无法重复提交")
	ErrTaskNotActive    = errors.New("任务未激活，无法提交评分")
)

// Grade is a rating band subject to a per-submission quota.
type Grade string

const (
	GradeExcellent Grade = "excellent" // score in [90,100]
	GradeGood      Grade = "good"      // score in [80,90)
)

// MissingRemarkError reports an extreme score (100 or below 60) submitted
// without a justification.
type MissingRemarkError struct {
	TargetName string
	Score      int
}

func (e *MissingRemarkError) Error() string {
	return fmt.Sprintf("对%s评分%d分，必须填写说明理由", e.TargetName, e.Score)
}

// QuotaError reports too many targets rated within a quota-limited band.
type QuotaError struct {
	TaskType models.TaskType
	Grade    Grade
	Limit    int
}

func (e *QuotaError) Error() string {
	kind := "科室"
	if e.TaskType == models.TaskTypeSquad {
		kind = "中队"
	}
	grade := "优秀"
	if e.Grade == GradeGood {
		grade = "良好"
	}
	return fmt.Sprintf("%s%s仅限评选%d名，请调整评分", grade, kind, e.Limit)
}

// IncompleteSubmissionError reports a submission that does not cover the
// full target set for the task's type.
type IncompleteSubmissionError struct {
	Got  int
	Want int
}

func (e *IncompleteSubmissionError) Error() string {
	return fmt.Sprintf("评分数量不完整，应对全部%d个对象评分（收到%d个）", e.Want, e.Got)
}
