package statistics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwb/kaohe/internal/models"
)

func TestComputeDepartmentWeights(t *testing.T) {
	rows := []models.TargetAggregate{
		{ID: 1, Name: "综合科", LeaderAvg: 90, LeaderCount: 3, ManagerAvg: 80, ManagerCount: 10},
		{ID: 2, Name: "政工科", LeaderAvg: 45, LeaderCount: 3, ManagerAvg: 40, ManagerCount: 10},
	}

	results := Compute(models.TaskTypeDepartment, rows)
	require.Len(t, results, 2)

	// The top scorer per column defines the normalization base, so it takes
	// the full weight: 40 + 30.
	top := results[0]
	assert.Equal(t, "综合科", top.Name)
	assert.InDelta(t, 40.0, top.LeaderScore, 0.001)
	assert.InDelta(t, 30.0, top.ManagerScore, 0.001)
	assert.InDelta(t, 70.0, top.TotalScore, 0.001)
	assert.Equal(t, 1, top.Rank)

	second := results[1]
	assert.InDelta(t, 20.0, second.LeaderScore, 0.001) // 45/90 * 40
	assert.InDelta(t, 15.0, second.ManagerScore, 0.001)
	assert.InDelta(t, 35.0, second.TotalScore, 0.001)
	assert.Equal(t, 2, second.Rank)
}

func TestComputeSquadWeights(t *testing.T) {
	rows := []models.TargetAggregate{
		{ID: 1, Name: "直属中队", LeaderAvg: 100, ManagerAvg: 100},
		{ID: 2, Name: "新城中队", LeaderAvg: 80, ManagerAvg: 50},
	}

	results := Compute(models.TaskTypeSquad, rows)
	require.Len(t, results, 2)

	assert.InDelta(t, 25.0, results[0].LeaderScore, 0.001)
	assert.InDelta(t, 15.0, results[0].ManagerScore, 0.001)
	assert.InDelta(t, 40.0, results[0].TotalScore, 0.001)

	assert.InDelta(t, 20.0, results[1].LeaderScore, 0.001)  // 80/100 * 25
	assert.InDelta(t, 7.5, results[1].ManagerScore, 0.001)  // 50/100 * 15
	assert.InDelta(t, 27.5, results[1].TotalScore, 0.001)
}

func TestComputeNormalizationFloor(t *testing.T) {
	// All leader averages zero: the base is floored at 1 and every leader
	// composite is 0, never NaN.
	rows := []models.TargetAggregate{
		{ID: 1, Name: "综合科", LeaderAvg: 0, ManagerAvg: 70},
		{ID: 2, Name: "政工科", LeaderAvg: 0, ManagerAvg: 35},
	}

	results := Compute(models.TaskTypeDepartment, rows)
	for _, r := range results {
		assert.False(t, math.IsNaN(r.LeaderScore))
		assert.Equal(t, 0.0, r.LeaderScore)
	}
	assert.InDelta(t, 30.0, results[0].ManagerScore, 0.001)
	assert.InDelta(t, 15.0, results[1].ManagerScore, 0.001)
}

func TestComputeFractionalAveragesKeepPrecision(t *testing.T) {
	// 254/3 and 85 differ before rounding; the division runs at full
	// precision and only the outputs are rounded to two decimals.
	rows := []models.TargetAggregate{
		{ID: 1, Name: "综合科", LeaderAvg: 254.0 / 3.0},
		{ID: 2, Name: "政工科", LeaderAvg: 85},
	}

	results := Compute(models.TaskTypeDepartment, rows)
	assert.Equal(t, 84.67, results[0].LeaderAvg)
	assert.InDelta(t, 40.0, results[0].LeaderScore, 0.001)
	assert.InDelta(t, 40.16, results[1].LeaderScore, 0.005) // 85 / (254/3) * 40, rounded
}

func TestRankTieSharing(t *testing.T) {
	results := []models.TargetResult{
		{Name: "甲", TotalScore: 88.00},
		{Name: "乙", TotalScore: 88.0005},
		{Name: "丙", TotalScore: 70.0},
	}

	rank(results)

	// The near-equal pair shares rank 1; the next distinct total resumes at
	// its 1-based position, so rank 2 is skipped (competition ranking).
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 1, results[1].Rank)
	assert.Equal(t, 3, results[2].Rank)
	assert.Equal(t, "丙", results[2].Name)
}

func TestRankDistinctScores(t *testing.T) {
	results := []models.TargetResult{
		{Name: "甲", TotalScore: 61.2},
		{Name: "乙", TotalScore: 70.0},
		{Name: "丙", TotalScore: 55.5},
	}

	rank(results)

	assert.Equal(t, "乙", results[0].Name)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, 3, results[2].Rank)
}

func TestComputeOrdersTiesByCanonicalSequence(t *testing.T) {
	// Identical composites: ranks tie, and row order falls back to the
	// canonical target sequence because the sort is stable.
	rows := []models.TargetAggregate{
		{ID: 4, Name: "财务科", LeaderAvg: 80, ManagerAvg: 80},
		{ID: 1, Name: "综合科", LeaderAvg: 80, ManagerAvg: 80},
	}

	results := Compute(models.TaskTypeDepartment, rows)
	assert.Equal(t, "综合科", results[0].Name)
	assert.Equal(t, "财务科", results[1].Name)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 1, results[1].Rank)
}

func TestComputeEmptyInput(t *testing.T) {
	results := Compute(models.TaskTypeDepartment, nil)
	assert.Empty(t, results)
}
