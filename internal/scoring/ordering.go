package scoring

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/zhangwb/kaohe/internal/models"
)

// DepartmentOrder is the fixed top-to-bottom display order of the unit's
// departments. Scoring forms, statistics listings and exports all follow it.
var DepartmentOrder = []string{
	"综合科",
	"政工科",
	"法制科",
	"财务科",
	"指挥调度科",
	"管理服务科",
}

// SquadOrder is the fixed top-to-bottom display order of the field squads.
var SquadOrder = []string{
	"直属中队",
	"新城中队",
	"高新区中队",
	"老城中队",
	"仪阳中队",
	"潮泉中队",
	"湖屯中队",
	"桃园中队",
	"安临站中队",
	"汶阳中队",
	"石横中队",
	"王庄中队",
	"安驾庄中队",
	"边院中队",
	"孙伯中队",
}

func canonicalOrder(taskType models.TaskType) []string {
	if taskType == models.TaskTypeSquad {
		return SquadOrder
	}
	return DepartmentOrder
}

// canonicalIndex returns the position of name in the canonical sequence,
// or -1 when the name is not listed.
func canonicalIndex(taskType models.TaskType, name string) int {
	for i, n := range canonicalOrder(taskType) {
		if n == name {
			return i
		}
	}
	return -1
}

// orderer compares target names: canonical names first, in sequence order;
// unlisted names after all listed ones, ordered by Chinese collation.
// A collate.Collator is not safe for concurrent use, so each orderer owns one.
type orderer struct {
	taskType models.TaskType
	coll     *collate.Collator
}

func newOrderer(taskType models.TaskType) *orderer {
	return &orderer{
		taskType: taskType,
		coll:     collate.New(language.Chinese),
	}
}

func (o *orderer) less(a, b string) bool {
	ia := canonicalIndex(o.taskType, a)
	ib := canonicalIndex(o.taskType, b)
	switch {
	case ia < 0 && ib < 0:
		return o.coll.CompareString(a, b) < 0
	case ia < 0:
		return false
	case ib < 0:
		return true
	default:
		return ia < ib
	}
}

// SortTargets orders targets by the canonical sequence for the task type.
func SortTargets(targets []models.Target, taskType models.TaskType) {
	o := newOrderer(taskType)
	sort.SliceStable(targets, func(i, j int) bool {
		return o.less(targets[i].Name, targets[j].Name)
	})
}

// SortAggregates orders per-target aggregates the same way SortTargets
// orders targets, so statistics and forms always agree on row order.
func SortAggregates(rows []models.TargetAggregate, taskType models.TaskType) {
	o := newOrderer(taskType)
	sort.SliceStable(rows, func(i, j int) bool {
		return o.less(rows[i].Name, rows[j].Name)
	})
}
