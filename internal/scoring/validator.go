// Package scoring implements the submission rules of the appraisal system:
// score ranges, justification requirements, per-cycle rating quotas and the
// canonical target ordering.
package scoring

import (
	"strings"

	"github.com/zhangwb/kaohe/internal/models"
)

// QuotaLimits returns the maximum number of excellent ([90,100]) and good
// ([80,90)) ratings one scorer may hand out per submission.
func QuotaLimits(taskType models.TaskType) (excellent, good int) {
	if taskType == models.TaskTypeSquad {
		return 2, 5
	}
	return 1, 2
}

// Validate decides whether a proposed score set is acceptable. It is a pure
// function: persistence, the one-shot guard and the signature check belong
// to the caller. targetNames resolves display names for error messages.
//
// Checks run per item first (range, then justification), short-circuiting on
// the first failure, then the quota counts across all items.
func Validate(items []models.ScoreItem, taskType models.TaskType, targetNames map[int64]string) error {
	if len(items) == 0 {
		return ErrEmptySubmission
	}

	for _, item := range items {
		if item.Score < 0 || item.Score > 100 {
			return ErrScoreOutOfRange
		}
		if (item.Score == 100 || item.Score < 60) && strings.TrimSpace(item.Remark) == "" {
			name := targetNames[item.TargetID]
			if name == "" {
				name = "该对象"
			}
			return &MissingRemarkError{TargetName: name, Score: item.Score}
		}
	}

	var excellent, good int
	for _, item := range items {
		switch {
		case item.Score >= 90:
			excellent++
		case item.Score >= 80:
			good++
		}
	}

	maxExcellent, maxGood := QuotaLimits(taskType)
	if excellent > maxExcellent {
		return &QuotaError{TaskType: taskType, Grade: GradeExcellent, Limit: maxExcellent}
	}
	if good > maxGood {
		return &QuotaError{TaskType: taskType, Grade: GradeGood, Limit: maxGood}
	}

	return nil
}
