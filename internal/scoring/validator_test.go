package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwb/kaohe/internal/models"
)

func names(n int) map[int64]string {
	m := make(map[int64]string, n)
	for i := 1; i <= n; i++ {
		m[int64(i)] = "对象" + string(rune('A'+i-1))
	}
	return m
}

func TestValidateScoreRange(t *testing.T) {
	tests := []struct {
		name  string
		score int
	}{
		{"negative", -1},
		{"above max", 101},
		{"far above max", 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []models.ScoreItem{{TargetID: 1, Score: tt.score, Remark: "说明"}}
			err := Validate(items, models.TaskTypeDepartment, names(1))
			assert.ErrorIs(t, err, ErrScoreOutOfRange)
		})
	}
}

func TestValidateRemarkRequirement(t *testing.T) {
	tests := []struct {
		name       string
		score      int
		remark     string
		wantRemark bool
	}{
		{"score 100 without remark", 100, "", true},
		{"score 100 with blank remark", 100, "   ", true},
		{"score 59 without remark", 59, "", true},
		{"score 0 without remark", 0, "", true},
		{"score 100 with remark", 100, "表现突出", false},
		{"score 40 with remark", 40, "多次违规", false},
		{"score 60 without remark", 60, "", false},
		{"score 99 without remark", 99, "", false},
		{"score 75 without remark", 75, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := []models.ScoreItem{{TargetID: 1, Score: tt.score, Remark: tt.remark}}
			err := Validate(items, models.TaskTypeSquad, names(1))
			if tt.wantRemark {
				var remarkErr *MissingRemarkError
				require.ErrorAs(t, err, &remarkErr)
				assert.Equal(t, tt.score, remarkErr.Score)
				assert.Equal(t, "对象A", remarkErr.TargetName)
				assert.Contains(t, err.Error(), "必须填写说明理由")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateRemarkErrorNamesTarget(t *testing.T) {
	items := []models.ScoreItem{
		{TargetID: 1, Score: 70},
		{TargetID: 2, Score: 55},
	}
	err := Validate(items, models.TaskTypeDepartment, names(2))

	var remarkErr *MissingRemarkError
	require.ErrorAs(t, err, &remarkErr)
	assert.Equal(t, "对象B", remarkErr.TargetName)
	assert.Equal(t, 55, remarkErr.Score)
}

func TestValidateDepartmentQuotas(t *testing.T) {
	tests := []struct {
		name      string
		scores    []int
		wantGrade Grade
		wantLimit int
		wantOK    bool
	}{
		{"one excellent allowed", []int{95, 70, 70, 70, 70, 70}, "", 0, true},
		{"two excellent rejected", []int{95, 92, 70, 70, 70, 70}, GradeExcellent, 1, false},
		{"boundary 90 counts as excellent", []int{90, 90, 70, 70, 70, 70}, GradeExcellent, 1, false},
		{"two good allowed", []int{85, 82, 70, 70, 70, 70}, "", 0, true},
		{"three good rejected", []int{85, 82, 80, 70, 70, 70}, GradeGood, 2, false},
		{"boundary 89 counts as good", []int{89, 89, 89, 70, 70, 70}, GradeGood, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]models.ScoreItem, len(tt.scores))
			for i, s := range tt.scores {
				items[i] = models.ScoreItem{TargetID: int64(i + 1), Score: s}
			}
			err := Validate(items, models.TaskTypeDepartment, names(len(tt.scores)))
			if tt.wantOK {
				require.NoError(t, err)
				return
			}
			var quotaErr *QuotaError
			require.ErrorAs(t, err, &quotaErr)
			assert.Equal(t, tt.wantGrade, quotaErr.Grade)
			assert.Equal(t, tt.wantLimit, quotaErr.Limit)
		})
	}
}

func TestValidateSquadQuotas(t *testing.T) {
	scores := func(vals ...int) []models.ScoreItem {
		items := make([]models.ScoreItem, len(vals))
		for i, s := range vals {
			items[i] = models.ScoreItem{TargetID: int64(i + 1), Score: s}
		}
		return items
	}

	// Two excellent and five good is exactly at the squad limits.
	ok := scores(95, 91, 85, 84, 83, 82, 81, 70, 70, 70, 70, 70, 70, 70, 70)
	require.NoError(t, Validate(ok, models.TaskTypeSquad, names(15)))

	tooManyExcellent := scores(95, 91, 90, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70, 70)
	var quotaErr *QuotaError
	require.ErrorAs(t, Validate(tooManyExcellent, models.TaskTypeSquad, names(15)), &quotaErr)
	assert.Equal(t, GradeExcellent, quotaErr.Grade)
	assert.Equal(t, 2, quotaErr.Limit)
	assert.Equal(t, "优秀中队仅限评选2名，请调整评分", quotaErr.Error())

	tooManyGood := scores(85, 84, 83, 82, 81, 80, 70, 70, 70, 70, 70, 70, 70, 70, 70)
	require.ErrorAs(t, Validate(tooManyGood, models.TaskTypeSquad, names(15)), &quotaErr)
	assert.Equal(t, GradeGood, quotaErr.Grade)
	assert.Equal(t, 5, quotaErr.Limit)
}

func TestValidateQuotaIndependentOfOrder(t *testing.T) {
	forward := []models.ScoreItem{
		{TargetID: 1, Score: 95, Remark: ""},
		{TargetID: 2, Score: 93},
		{TargetID: 3, Score: 70},
	}
	backward := []models.ScoreItem{forward[2], forward[1], forward[0]}

	var errA, errB *QuotaError
	require.ErrorAs(t, Validate(forward, models.TaskTypeDepartment, names(3)), &errA)
	require.ErrorAs(t, Validate(backward, models.TaskTypeDepartment, names(3)), &errB)
	assert.Equal(t, errA.Error(), errB.Error())
}

func TestValidatePerItemChecksPrecedeQuotas(t *testing.T) {
	// The second item is missing a mandatory remark; that fires before the
	// excellent quota even though both rules are violated.
	items := []models.ScoreItem{
		{TargetID: 1, Score: 95, Remark: ""},
		{TargetID: 2, Score: 100, Remark: ""},
		{TargetID: 3, Score: 92, Remark: ""},
	}
	err := Validate(items, models.TaskTypeDepartment, names(3))

	var remarkErr *MissingRemarkError
	require.ErrorAs(t, err, &remarkErr)
}

func TestValidateEmptySubmission(t *testing.T) {
	err := Validate(nil, models.TaskTypeDepartment, nil)
	assert.ErrorIs(t, err, ErrEmptySubmission)
}

// Full six-department submission by one leader: one excellent (95, with
// remark), exactly two good (85, 85), and remarks on the sub-60 scores.
// This is the largest submission the department quotas still accept.
func TestValidateFullDepartmentScenario(t *testing.T) {
	items := []models.ScoreItem{
		{TargetID: 1, Score: 95, Remark: "全年工作成效显著"},
		{TargetID: 2, Score: 85},
		{TargetID: 3, Score: 85},
		{TargetID: 4, Score: 70},
		{TargetID: 5, Score: 50, Remark: "多项任务未完成"},
		{TargetID: 6, Score: 40, Remark: "考核材料弄虚作假"},
	}
	require.NoError(t, Validate(items, models.TaskTypeDepartment, names(6)))
}

func TestQuotaLimits(t *testing.T) {
	excellent, good := QuotaLimits(models.TaskTypeDepartment)
	assert.Equal(t, 1, excellent)
	assert.Equal(t, 2, good)

	excellent, good = QuotaLimits(models.TaskTypeSquad)
	assert.Equal(t, 2, excellent)
	assert.Equal(t, 5, good)
}
