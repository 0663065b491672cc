package scoring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhangwb/kaohe/internal/models"
)

func targetsFromNames(typ models.TaskType, names []string) []models.Target {
	ts := make([]models.Target, len(names))
	for i, n := range names {
		ts[i] = models.Target{ID: int64(i + 1), Name: n, Type: typ}
	}
	return ts
}

func sortedNames(ts []models.Target) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}

func TestSortTargetsCanonicalDepartmentOrder(t *testing.T) {
	shuffled := []string{"财务科", "综合科", "管理服务科", "法制科", "指挥调度科", "政工科"}
	ts := targetsFromNames(models.TaskTypeDepartment, shuffled)

	SortTargets(ts, models.TaskTypeDepartment)

	assert.Equal(t, DepartmentOrder, sortedNames(ts))
}

func TestSortTargetsCanonicalSquadOrder(t *testing.T) {
	shuffled := append([]string(nil), SquadOrder...)
	rand.New(rand.NewSource(7)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	ts := targetsFromNames(models.TaskTypeSquad, shuffled)

	SortTargets(ts, models.TaskTypeSquad)

	assert.Equal(t, SquadOrder, sortedNames(ts))
}

func TestSortTargetsUnknownNamesSortLast(t *testing.T) {
	ts := targetsFromNames(models.TaskTypeDepartment, []string{
		"新设临时科", "财务科", "综合科", "档案室",
	})

	SortTargets(ts, models.TaskTypeDepartment)

	got := sortedNames(ts)
	require.Len(t, got, 4)
	assert.Equal(t, "综合科", got[0])
	assert.Equal(t, "财务科", got[1])
	// Unknown names follow every canonical one, ordered among themselves
	// by Chinese collation, deterministically.
	assert.ElementsMatch(t, []string{"新设临时科", "档案室"}, got[2:])
}

func TestSortTargetsDeterministic(t *testing.T) {
	names := []string{"孙伯中队", "未列中队乙", "直属中队", "未列中队甲", "桃园中队"}

	first := targetsFromNames(models.TaskTypeSquad, names)
	SortTargets(first, models.TaskTypeSquad)

	// A different starting permutation must converge on the same sequence.
	reversed := targetsFromNames(models.TaskTypeSquad, names)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	SortTargets(reversed, models.TaskTypeSquad)

	assert.Equal(t, sortedNames(first), sortedNames(reversed))
	assert.Equal(t, "直属中队", first[0].Name)
	assert.Equal(t, "桃园中队", first[1].Name)
	assert.Equal(t, "孙伯中队", first[2].Name)
}

func TestSortAggregatesMatchesTargetOrder(t *testing.T) {
	rows := []models.TargetAggregate{
		{ID: 3, Name: "法制科"},
		{ID: 1, Name: "综合科"},
		{ID: 6, Name: "管理服务科"},
	}

	SortAggregates(rows, models.TaskTypeDepartment)

	assert.Equal(t, "综合科", rows[0].Name)
	assert.Equal(t, "法制科", rows[1].Name)
	assert.Equal(t, "管理服务科", rows[2].Name)
}
