package crack

import (
	"testing"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T, s storage.Store) *Service {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return NewService(s, broker)
}

// seedSingleListSubmission wires one project/campaign/hashlist/attack/task
// with a single uncracked HashItem, returning the task and hash value.
func seedSingleListSubmission(t *testing.T, s storage.Store) (*types.Task, string) {
	t.Helper()
	require.NoError(t, s.CreateProject(&types.Project{ID: "proj-1"}))
	require.NoError(t, s.CreateHashList(&types.HashList{ID: "hl-1", ProjectID: "proj-1", HashType: types.HashTypeMD5}))
	require.NoError(t, s.CreateCampaign(&types.Campaign{ID: "camp-1", ProjectID: "proj-1", HashListID: "hl-1"}))
	require.NoError(t, s.CreateAttack(&types.Attack{ID: "atk-1", CampaignID: "camp-1", State: types.AttackRunning}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-1", HashListID: "hl-1", HashValue: "deadbeef"}))
	task := &types.Task{ID: "task-1", AttackID: "atk-1", State: types.TaskRunning}
	require.NoError(t, s.CreateTask(task))
	return task, "deadbeef"
}

func TestSubmitCracksHash(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, hashValue := seedSingleListSubmission(t, s)

	result, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.UncrackedCount)

	item, err := s.GetHashItem("item-1")
	require.NoError(t, err)
	assert.True(t, item.Cracked)
	require.NotNil(t, item.PlainText)
	assert.Equal(t, "password1", *item.PlainText)
}

func TestSubmitUnknownHashValueReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, _ := seedSingleListSubmission(t, s)

	result, err := svc.Submit(task, "not-a-real-hash", "guess", time.Now())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.NotFound)
}

func TestSubmitIdempotentOnAlreadyCracked(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, hashValue := seedSingleListSubmission(t, s)

	first, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, first.UncrackedCount, second.UncrackedCount)
}

func TestSubmitPropagatesAcrossSiblingHashLists(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, hashValue := seedSingleListSubmission(t, s)

	// A second HashList in the same project, same hash type, sharing the
	// cracked value, belonging to a different campaign/attack.
	require.NoError(t, s.CreateHashList(&types.HashList{ID: "hl-2", ProjectID: "proj-1", HashType: types.HashTypeMD5}))
	require.NoError(t, s.CreateCampaign(&types.Campaign{ID: "camp-2", ProjectID: "proj-1", HashListID: "hl-2"}))
	require.NoError(t, s.CreateAttack(&types.Attack{ID: "atk-2", CampaignID: "camp-2", State: types.AttackRunning}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-2", HashListID: "hl-2", HashValue: hashValue}))
	sibling := &types.Task{ID: "task-2", AttackID: "atk-2", State: types.TaskRunning}
	require.NoError(t, s.CreateTask(sibling))

	_, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)

	propagated, err := s.GetHashItem("item-2")
	require.NoError(t, err)
	assert.True(t, propagated.Cracked, "crack must propagate to the sibling hash list's matching item")

	// Staleness is only recomputed for tasks bound to the submitting
	// HashList; a sibling list's own tasks aren't touched by this submission.
	siblingTask, err := s.GetTask("task-2")
	require.NoError(t, err)
	assert.False(t, siblingTask.Stale)
}

func TestSubmitMarksOtherTasksOnSameHashListStale(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, hashValue := seedSingleListSubmission(t, s)

	other := &types.Task{ID: "task-other", AttackID: "atk-1", State: types.TaskRunning}
	require.NoError(t, s.CreateTask(other))

	_, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)

	refreshed, err := s.GetTask("task-other")
	require.NoError(t, err)
	assert.True(t, refreshed.Stale)

	submitting, err := s.GetTask("task-1")
	require.NoError(t, err)
	assert.False(t, submitting.Stale, "the submitting task itself is not marked stale")
}

func TestSubmitSkipsTerminalTasksWhenMarkingStale(t *testing.T) {
	s := newTestStore(t)
	svc := newTestService(t, s)
	task, hashValue := seedSingleListSubmission(t, s)

	done := &types.Task{ID: "task-done", AttackID: "atk-1", State: types.TaskCompleted}
	require.NoError(t, s.CreateTask(done))

	_, err := svc.Submit(task, hashValue, "password1", time.Now())
	require.NoError(t, err)

	refreshed, err := s.GetTask("task-done")
	require.NoError(t, err)
	assert.False(t, refreshed.Stale, "terminal tasks are left alone")
}
