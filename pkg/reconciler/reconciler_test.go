package reconciler

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

func newTestReconciler(t *testing.T, s storage.Store, grace time.Duration) *Reconciler {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	return New(s, broker, grace)
}

func TestHeartbeatLostDefaultInterval(t *testing.T) {
	s := newTestStore(t)
	r := newTestReconciler(t, s, 5*time.Second)

	agent := &types.Agent{LastSeenAt: time.Now().Add(-95 * time.Second)}
	assert.True(t, r.heartbeatLost(agent), "30s*3+5s=95s threshold exceeded")

	fresh := &types.Agent{LastSeenAt: time.Now().Add(-10 * time.Second)}
	assert.False(t, r.heartbeatLost(fresh))
}

func TestHeartbeatLostUsesAgentConfiguredInterval(t *testing.T) {
	s := newTestStore(t)
	r := newTestReconciler(t, s, 0)

	agent := &types.Agent{
		LastSeenAt:     time.Now().Add(-4 * time.Second),
		AdvancedConfig: &types.AdvancedConfiguration{UpdateInterval: time.Second},
	}
	assert.True(t, r.heartbeatLost(agent), "interval*3=3s threshold exceeded by a 4s gap")
}

func TestHeartbeatLostIgnoresNonPositiveConfiguredInterval(t *testing.T) {
	s := newTestStore(t)
	r := newTestReconciler(t, s, 0)

	agent := &types.Agent{
		LastSeenAt:     time.Now().Add(-10 * time.Second),
		AdvancedConfig: &types.AdvancedConfiguration{UpdateInterval: 0},
	}
	assert.False(t, r.heartbeatLost(agent), "falls back to the 30s default when UpdateInterval<=0")
}

func TestMarkOfflinePausesRunningTasksWithoutClearingAgent(t *testing.T) {
	s := newTestStore(t)
	agentID := "agent-1"
	require.NoError(t, s.CreateAgent(&types.Agent{ID: agentID, State: types.AgentActive}))
	require.NoError(t, s.CreateTask(&types.Task{ID: "task-1", AgentID: &agentID, State: types.TaskRunning}))
	require.NoError(t, s.CreateTask(&types.Task{ID: "task-2", AgentID: &agentID, State: types.TaskPending}))

	r := newTestReconciler(t, s, 0)
	agent, err := s.GetAgent(agentID)
	require.NoError(t, err)
	require.NoError(t, r.Shutdown(agent))

	refreshedAgent, err := s.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, types.AgentOffline, refreshedAgent.State)

	running, err := s.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskPaused, running.State)
	require.NotNil(t, running.AgentID)
	assert.Equal(t, agentID, *running.AgentID, "agent is not cleared so step 3 can reclaim by owner lookup")

	pending, err := s.GetTask("task-2")
	require.NoError(t, err)
	assert.Equal(t, types.TaskPending, pending.State, "non-running tasks are left untouched")
}

func TestRecoverOnlyTransitionsFromOffline(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAgent(&types.Agent{ID: "agent-1", State: types.AgentOffline}))

	r := newTestReconciler(t, s, 0)
	agent, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	require.NoError(t, r.Recover(agent))

	refreshed, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentActive, refreshed.State)
}

func TestRecoverNoopWhenNotOffline(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAgent(&types.Agent{ID: "agent-1", State: types.AgentActive}))

	r := newTestReconciler(t, s, 0)
	agent, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	require.NoError(t, r.Recover(agent))

	refreshed, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentActive, refreshed.State)
}

func TestActivateOnlyTransitionsFromPending(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAgent(&types.Agent{ID: "agent-1", State: types.AgentPending}))

	r := newTestReconciler(t, s, 0)
	agent, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	require.NoError(t, r.Activate(agent))

	refreshed, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentActive, refreshed.State)
}

func TestMarkErrorTransitionsFromAnyState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateAgent(&types.Agent{ID: "agent-1", State: types.AgentActive}))

	r := newTestReconciler(t, s, 0)
	agent, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	require.NoError(t, r.MarkError(agent, "repeated fatal errors"))

	refreshed, err := s.GetAgent("agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentError, refreshed.State)
}
