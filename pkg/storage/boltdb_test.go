package storage

import (
	"testing"

	"github.com/cipherswarm/cipherswarmd/pkg/errs"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProjectCreateGetList(t *testing.T) {
	s := newTestStore(t)

	p := &types.Project{ID: "proj-1", Name: "red-team"}
	require.NoError(t, s.CreateProject(p))

	got, err := s.GetProject("proj-1")
	require.NoError(t, err)
	assert.Equal(t, "red-team", got.Name)

	all, err := s.ListProjects()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject("missing")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestUpdateTaskOptimisticVersioning(t *testing.T) {
	s := newTestStore(t)

	task := &types.Task{ID: "task-1", AttackID: "attack-1", State: types.TaskPending, Version: 0}
	require.NoError(t, s.CreateTask(task))

	read, err := s.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), read.Version)

	read.State = types.TaskRunning
	require.NoError(t, s.UpdateTask(read))
	assert.Equal(t, int64(1), read.Version, "UpdateTask bumps Version on success")

	stale, err := s.GetTask("task-1")
	require.NoError(t, err)
	stale.Version = 0 // simulate a second writer racing off the original read
	err = s.UpdateTask(stale)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindVersionConflict))
}

func TestListHashItemsByValuePropagation(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateProject(&types.Project{ID: "proj-1"}))
	require.NoError(t, s.CreateHashList(&types.HashList{ID: "hl-1", ProjectID: "proj-1", HashType: types.HashTypeMD5}))
	require.NoError(t, s.CreateHashList(&types.HashList{ID: "hl-2", ProjectID: "proj-1", HashType: types.HashTypeMD5}))
	require.NoError(t, s.CreateHashList(&types.HashList{ID: "hl-other-project", ProjectID: "proj-2", HashType: types.HashTypeMD5}))

	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-1", HashListID: "hl-1", HashValue: "deadbeef"}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-2", HashListID: "hl-2", HashValue: "deadbeef"}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-3", HashListID: "hl-other-project", HashValue: "deadbeef"}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "item-4", HashListID: "hl-1", HashValue: "different"}))

	matches, err := s.ListHashItemsByValue("proj-1", types.HashTypeMD5, "deadbeef")
	require.NoError(t, err)
	assert.Len(t, matches, 2, "only same-project, same-hash-type, same-value items match")
}

func TestCountUncracked(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "i1", HashListID: "hl-1", Cracked: false}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "i2", HashListID: "hl-1", Cracked: true}))
	require.NoError(t, s.CreateHashItem(&types.HashItem{ID: "i3", HashListID: "hl-1", Cracked: false}))

	n, err := s.CountUncracked("hl-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHashcatBenchmarkKeyedByAgentAndHashType(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateHashcatBenchmark(&types.HashcatBenchmark{AgentID: "agent-1", HashType: types.HashTypeMD5, HashSpeed: 5000}))

	b, err := s.GetHashcatBenchmark("agent-1", types.HashTypeMD5)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.HashSpeed)

	_, err = s.GetHashcatBenchmark("agent-1", types.HashType(99))
	require.Error(t, err)
}

func TestHashcatStatusRetainsOnlyLatestFrame(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutHashcatStatus(&types.HashcatStatus{TaskID: "task-1", Progress: [2]int64{10, 100}}))
	require.NoError(t, s.PutHashcatStatus(&types.HashcatStatus{TaskID: "task-1", Progress: [2]int64{40, 100}}))

	latest, err := s.GetLatestHashcatStatus("task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), latest.Progress[0])
}

func TestDeleteTask(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateTask(&types.Task{ID: "task-1"}))
	require.NoError(t, s.DeleteTask("task-1"))

	_, err := s.GetTask("task-1")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}
