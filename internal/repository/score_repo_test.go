package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhangwb/kaohe/internal/models"
	"github.com/zhangwb/kaohe/internal/scoring"
	"github.com/zhangwb/kaohe/pkg/database"
)

// testEnv wires every repository against a fresh in-memory database with
// the real migrations applied.
type testEnv struct {
	db      *database.DB
	users   *UserRepository
	targets *TargetRepository
	tasks   *TaskRepository
	scores  *ScoreRepository
	drafts  *DraftRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.NewInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, logger)
	require.NoError(t, migrator.RunMigrations("../../migrations"))

	return &testEnv{
		db:      db,
		users:   NewUserRepository(db, logger),
		targets: NewTargetRepository(db, logger),
		tasks:   NewTaskRepository(db, logger),
		scores:  NewScoreRepository(db, logger),
		drafts:  NewDraftRepository(db, logger),
	}
}

func (e *testEnv) createScorer(t *testing.T, username string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Password: "not-a-real-hash",
		Name:     "测试用户" + username,
		Role:     role,
	}
	require.NoError(t, e.users.Create(user))
	return user
}

func (e *testEnv) createActiveTask(t *testing.T, taskType models.TaskType) *models.Task {
	t.Helper()
	task, err := e.tasks.Create("测试任务", taskType)
	require.NoError(t, err)
	require.NoError(t, e.tasks.UpdateStatus(task.ID, models.TaskStatusActive))
	return task
}

// fullSubmission builds one valid score row per target, quota-safe: the
// first target gets 85, the rest 70.
func fullSubmission(targets []models.Target) []models.ScoreItem {
	items := make([]models.ScoreItem, 0, len(targets))
	for i, target := range targets {
		score := 70
		if i == 0 {
			score = 85
		}
		items = append(items, models.ScoreItem{TargetID: target.ID, Score: score})
	}
	return items
}

func TestSubmitBatchPersistsAllRows(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	require.Len(t, targets, 6)

	items := fullSubmission(targets)
	items[1].Score = 55
	items[1].Remark = "工作进度滞后"

	require.NoError(t, env.scores.SubmitBatch(task.ID, scorer.ID, items, "张三"))

	saved, err := env.scores.ListByTaskAndScorer(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Len(t, saved, len(targets))

	byTarget := make(map[int64]models.Score)
	for _, s := range saved {
		byTarget[s.TargetID] = s
	}
	assert.Equal(t, 85, byTarget[items[0].TargetID].Score)
	assert.Equal(t, 55, byTarget[items[1].TargetID].Score)
	assert.Equal(t, "工作进度滞后", byTarget[items[1].TargetID].Remark)
	assert.Empty(t, byTarget[items[2].TargetID].Remark)

	signatures, err := env.scores.SignaturesByTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "张三", signatures[scorer.ID])
}

func TestSubmitBatchRejectsSecondSubmission(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)

	require.NoError(t, env.scores.SubmitBatch(task.ID, scorer.ID, fullSubmission(targets), "张三"))

	err = env.scores.SubmitBatch(task.ID, scorer.ID, fullSubmission(targets), "张三")
	assert.ErrorIs(t, err, scoring.ErrAlreadySubmitted)

	// The rejected attempt must not have written anything.
	count, err := env.scores.CountByTaskAndScorer(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Equal(t, len(targets), count)
}

func TestSubmitBatchRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)

	// An out-of-range score violates the table CHECK constraint on the
	// last row; the whole batch must roll back.
	items := fullSubmission(targets)
	items[len(items)-1].Score = 150

	err = env.scores.SubmitBatch(task.ID, scorer.ID, items, "张三")
	require.Error(t, err)

	count, err := env.scores.CountByTaskAndScorer(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	signatures, err := env.scores.SignaturesByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, signatures)
}

func TestAggregateByTargetSplitsRoles(t *testing.T) {
	env := newTestEnv(t)
	leader := env.createScorer(t, "leader1", models.RoleLeader)
	manager := env.createScorer(t, "manager1", models.RoleManager)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)

	leaderItems := fullSubmission(targets)
	managerItems := fullSubmission(targets)
	managerItems[0].Score = 65

	require.NoError(t, env.scores.SubmitBatch(task.ID, leader.ID, leaderItems, "张三"))
	require.NoError(t, env.scores.SubmitBatch(task.ID, manager.ID, managerItems, "李四"))

	aggs, err := env.scores.AggregateByTarget(task.ID, models.TaskTypeDepartment)
	require.NoError(t, err)
	require.Len(t, aggs, len(targets))

	byID := make(map[int64]models.TargetAggregate)
	for _, a := range aggs {
		byID[a.ID] = a
	}

	first := byID[targets[0].ID]
	assert.InDelta(t, 85.0, first.LeaderAvg, 1e-9)
	assert.Equal(t, 1, first.LeaderCount)
	assert.InDelta(t, 65.0, first.ManagerAvg, 1e-9)
	assert.Equal(t, 1, first.ManagerCount)

	second := byID[targets[1].ID]
	assert.InDelta(t, 70.0, second.LeaderAvg, 1e-9)
	assert.InDelta(t, 70.0, second.ManagerAvg, 1e-9)
}

func TestAggregateByTargetCoversUnscoredTargets(t *testing.T) {
	env := newTestEnv(t)
	task := env.createActiveTask(t, models.TaskTypeSquad)

	aggs, err := env.scores.AggregateByTarget(task.ID, models.TaskTypeSquad)
	require.NoError(t, err)
	require.Len(t, aggs, 15)

	for _, a := range aggs {
		assert.Zero(t, a.LeaderAvg)
		assert.Zero(t, a.LeaderCount)
		assert.Zero(t, a.ManagerAvg)
		assert.Zero(t, a.ManagerCount)
	}
}

func TestProgressByScorer(t *testing.T) {
	env := newTestEnv(t)
	leader := env.createScorer(t, "leader1", models.RoleLeader)
	env.createScorer(t, "manager1", models.RoleManager)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	require.NoError(t, env.scores.SubmitBatch(task.ID, leader.ID, fullSubmission(targets), "张三"))

	progress, err := env.scores.ProgressByScorer(task.ID, models.TaskTypeDepartment)
	require.NoError(t, err)
	require.Len(t, progress, 2)

	byID := make(map[int64]models.ScorerProgress)
	for _, p := range progress {
		byID[p.ID] = p
	}
	assert.True(t, byID[leader.ID].Submitted)
	assert.Equal(t, len(targets), byID[leader.ID].Progress.Submitted)

	for id, p := range byID {
		if id == leader.ID {
			continue
		}
		assert.False(t, p.Submitted)
		assert.Zero(t, p.Progress.Submitted)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	require.NoError(t, env.scores.SubmitBatch(task.ID, scorer.ID, fullSubmission(targets), "张三"))
	require.NoError(t, env.drafts.Save(task.ID, scorer.ID, `{"scores":[]}`))

	deleted, err := env.users.Delete(scorer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(targets)), deleted)

	count, err := env.scores.CountByTaskAndScorer(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	signatures, err := env.scores.SignaturesByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, signatures)

	draft, err := env.drafts.Get(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)

	user, err := env.users.GetByID(scorer.ID)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestDeleteTaskCascades(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	require.NoError(t, env.scores.SubmitBatch(task.ID, scorer.ID, fullSubmission(targets), "张三"))

	deleted, err := env.tasks.Delete(task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(targets)), deleted)

	got, err := env.tasks.GetByID(task.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	count, err := env.scores.CountByTaskAndScorer(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDeleteMissingUser(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.users.Delete(9999)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestDeleteAllNonAdminKeepsAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.createScorer(t, "leader1", models.RoleLeader)
	env.createScorer(t, "manager1", models.RoleManager)

	deletedUsers, _, err := env.users.DeleteAllNonAdmin()
	require.NoError(t, err)
	assert.Equal(t, int64(2), deletedUsers)

	admin, err := env.users.GetByUsername("admin")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	users, err := env.users.List()
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.createScorer(t, "leader1", models.RoleLeader)

	dup := &models.User{Username: "leader1", Password: "x", Name: "重复用户", Role: models.RoleLeader}
	err := env.users.Create(dup)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestDraftUpsert(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "manager1", models.RoleManager)
	task := env.createActiveTask(t, models.TaskTypeSquad)

	require.NoError(t, env.drafts.Save(task.ID, scorer.ID, `{"v":1}`))
	require.NoError(t, env.drafts.Save(task.ID, scorer.ID, `{"v":2}`))

	draft, err := env.drafts.Get(task.ID, scorer.ID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.JSONEq(t, `{"v":2}`, draft.Data)

	require.NoError(t, env.drafts.Delete(task.ID, scorer.ID))
	draft, err = env.drafts.Get(task.ID, scorer.ID)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestSeedTargets(t *testing.T) {
	env := newTestEnv(t)

	deptCount, err := env.targets.CountByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	assert.Equal(t, 6, deptCount)

	squadCount, err := env.targets.CountByType(models.TaskTypeSquad)
	require.NoError(t, err)
	assert.Equal(t, 15, squadCount)
}

func TestListActiveForScorer(t *testing.T) {
	env := newTestEnv(t)
	scorer := env.createScorer(t, "leader1", models.RoleLeader)
	active := env.createActiveTask(t, models.TaskTypeDepartment)

	// A draft task must not show up for scorers.
	_, err := env.tasks.Create("草稿任务", models.TaskTypeSquad)
	require.NoError(t, err)

	tasks, err := env.tasks.ListActiveForScorer(scorer.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, active.ID, tasks[0].ID)
	assert.False(t, tasks[0].IsCompleted)
	assert.Equal(t, 6, tasks[0].Progress.Total)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)
	require.NoError(t, env.scores.SubmitBatch(active.ID, scorer.ID, fullSubmission(targets), "张三"))

	tasks, err = env.tasks.ListActiveForScorer(scorer.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsCompleted)
	assert.Equal(t, models.Progress{Completed: 1, Total: 1}, tasks[0].VotingProgress)
}

func TestSubmitBatchConcurrentScorers(t *testing.T) {
	env := newTestEnv(t)
	task := env.createActiveTask(t, models.TaskTypeDepartment)

	targets, err := env.targets.ListByType(models.TaskTypeDepartment)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		scorer := env.createScorer(t, fmt.Sprintf("leader%d", i+1), models.RoleLeader)
		require.NoError(t, env.scores.SubmitBatch(task.ID, scorer.ID, fullSubmission(targets), scorer.Name))
	}

	details, err := env.scores.ListByTask(task.ID)
	require.NoError(t, err)
	assert.Len(t, details, 5*len(targets))

	signatures, err := env.scores.SignaturesByTask(task.ID)
	require.NoError(t, err)
	assert.Len(t, signatures, 5)
}
