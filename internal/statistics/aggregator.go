// Package statistics turns raw per-target score aggregates into the ranked
// appraisal report: normalized weighted composites plus competition-style
// ranks.
package statistics

import (
	"math"
	"sort"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/scoring"
)

// Composite weights per task type. Department cycles weigh the leadership
// average at 40 points and the manager peer average at 30; squad cycles use
// 25 and 15.
const (
	departmentLeaderWeight  = 40.0
	departmentManagerWeight = 30.0
	squadLeaderWeight       = 25.0
	squadManagerWeight      = 15.0
)

// rankEpsilon is the tolerance under which two composite scores count as a
// tie and share a rank.
const rankEpsilon = 0.001

// Compute produces the ranked report for one task. rows come from a grouped
// query over the scores table (one row per target, averages zero when a role
// never scored it). The returned slice is sorted by rank ascending.
func Compute(taskType models.TaskType, rows []models.TargetAggregate) []models.TargetResult {
	scoring.SortAggregates(rows, taskType)

	// Normalization bases, floored at 1 so an all-zero column yields zero
	// composites instead of dividing by zero.
	maxLeaderAvg, maxManagerAvg := 1.0, 1.0
	for _, r := range rows {
		maxLeaderAvg = math.Max(maxLeaderAvg, r.LeaderAvg)
		maxManagerAvg = math.Max(maxManagerAvg, r.ManagerAvg)
	}

	leaderWeight, managerWeight := departmentLeaderWeight, departmentManagerWeight
	if taskType == models.TaskTypeSquad {
		leaderWeight, managerWeight = squadLeaderWeight, squadManagerWeight
	}

	results := make([]models.TargetResult, 0, len(rows))
	for _, r := range rows {
		leaderScore := r.LeaderAvg / maxLeaderAvg * leaderWeight
		managerScore := r.ManagerAvg / maxManagerAvg * managerWeight
		results = append(results, models.TargetResult{
			ID:           r.ID,
			Name:         r.Name,
			LeaderAvg:    round2(r.LeaderAvg),
			LeaderCount:  r.LeaderCount,
			ManagerAvg:   round2(r.ManagerAvg),
			ManagerCount: r.ManagerCount,
			LeaderScore:  round2(leaderScore),
			ManagerScore: round2(managerScore),
			TotalScore:   round2(leaderScore + managerScore),
			Rank:         0,
		})
	}

	rank(results)
	return results
}

// rank sorts descending by total score and assigns competition ranks:
// totals within rankEpsilon of the previous row share its rank, and the
// next distinct total resumes at index+1, so ranks may skip numbers after
// a tie block.
func rank(results []models.TargetResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalScore > results[j].TotalScore
	})
	for i := range results {
		if i > 0 && math.Abs(results[i].TotalScore-results[i-1].TotalScore) < rankEpsilon {
			results[i].Rank = results[i-1].Rank
		} else {
			results[i].Rank = i + 1
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
