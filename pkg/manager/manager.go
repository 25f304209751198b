// Package manager is a slim coordinator over pkg/storage: it wraps the
// Store with event publishing, state-change logging, and the guarded
// Task/Attack/Campaign lifecycle transitions. pkg/statusing drives its
// transitions through it; pkg/crack, pkg/scheduler, pkg/preemption and
// pkg/reconciler use pkg/storage directly. Operator-facing campaign
// actions (PauseCampaign, ResumeCampaign) take an explicit Caller rather
// than relying on ambient request-scoped state.
package manager

import (
	"fmt"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/statelog"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Caller identifies who is requesting a mutation: an Agent acting on its
// own behalf, or an operator/UI action. Components pass this explicitly
// rather than reading it from a package-level or context-stashed global.
type Caller struct {
	AgentID string
	UserID  string
}

// Manager coordinates storage access, event publication, and state-change
// logging for the components that go through it.
type Manager struct {
	store  storage.Store
	broker *events.Broker
	slog   *statelog.Logger
}

func NewManager(store storage.Store, broker *events.Broker) *Manager {
	return &Manager{
		store:  store,
		broker: broker,
		slog:   statelog.NewLogger(broker),
	}
}

func (m *Manager) Store() storage.Store { return m.store }

// PublishEvent publishes an event directly, for callers that only need
// the pub/sub side and not a structured state-change record.
func (m *Manager) PublishEvent(event *events.Event) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(event)
}

// LogTransition records a state-change record through the state-change
// logger (C7).
func (m *Manager) LogTransition(rec statelog.Record) {
	m.slog.Log(rec)
}

// GetEventBroker returns the shared event broker so long-lived
// subscribers (a UI bridge, pkg/reconciler) can attach to it.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.broker
}

// --- Projects ---

func (m *Manager) CreateProject(p *types.Project) error {
	if err := m.store.CreateProject(p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (m *Manager) GetProject(id string) (*types.Project, error) {
	return m.store.GetProject(id)
}

// --- HashLists / HashItems ---

func (m *Manager) CreateHashList(h *types.HashList) error {
	return m.store.CreateHashList(h)
}

func (m *Manager) GetHashList(id string) (*types.HashList, error) {
	return m.store.GetHashList(id)
}

func (m *Manager) CreateHashItem(h *types.HashItem) error {
	return m.store.CreateHashItem(h)
}

// --- Campaigns ---

func (m *Manager) CreateCampaign(c *types.Campaign) error {
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	if err := m.store.CreateCampaign(c); err != nil {
		return err
	}
	log.WithComponent("manager").Info().Str("campaign_id", c.ID).Msg("campaign created")
	m.PublishEvent(&events.Event{Type: events.EventCampaignCreated, Message: c.Name})
	return nil
}

func (m *Manager) GetCampaign(id string) (*types.Campaign, error) {
	return m.store.GetCampaign(id)
}

// PauseCampaign pauses a campaign and cascades the pause to every
// non-terminal Attack of it, and to every running Task of those Attacks,
// so that Invariant 6 (a paused campaign has no running task) holds the
// instant this call returns.
func (m *Manager) PauseCampaign(by Caller, c *types.Campaign) error {
	c.Paused = true
	c.UpdatedAt = time.Now()
	c.Version++
	if err := m.store.UpdateCampaign(c); err != nil {
		return err
	}

	if err := m.cascadeCampaignPause(c.ID); err != nil {
		return err
	}

	m.LogTransition(statelog.Record{
		Event:      events.EventCampaignPaused,
		CampaignID: c.ID,
		From:       "running",
		To:         "paused",
		Context:    map[string]string{"by_user": by.UserID},
	})
	return nil
}

// cascadeCampaignPause pauses every non-terminal Attack of campaignID,
// first pausing each Attack's running Tasks so §4.1's Task.pause
// (running -> paused, agent_id preserved) runs before the Attack itself
// leaves running.
func (m *Manager) cascadeCampaignPause(campaignID string) error {
	attacks, err := m.store.ListAttacksByCampaign(campaignID)
	if err != nil {
		return err
	}
	for _, a := range attacks {
		if a.State != types.AttackPending && a.State != types.AttackRunning {
			continue
		}
		tasks, err := m.store.ListTasksByAttack(a.ID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.State != types.TaskRunning {
				continue
			}
			if err := m.PauseTask(t); err != nil {
				return err
			}
		}
		if err := m.transitionAttack(a, types.AttackPaused, events.EventAttackPaused, nil); err != nil {
			return err
		}
	}
	return nil
}

// ResumeCampaign resumes a campaign and cascades the resume to every
// Attack this campaign's pause paused, and to each of those Attacks'
// paused Tasks. Tasks resume to pending, not running: the owning agent
// must re-pick them up through find_next_task so it re-syncs cracks.
func (m *Manager) ResumeCampaign(by Caller, c *types.Campaign) error {
	c.Paused = false
	c.UpdatedAt = time.Now()
	c.Version++
	if err := m.store.UpdateCampaign(c); err != nil {
		return err
	}

	if err := m.cascadeCampaignResume(c.ID); err != nil {
		return err
	}

	m.LogTransition(statelog.Record{
		Event:      events.EventCampaignResumed,
		CampaignID: c.ID,
		From:       "paused",
		To:         "running",
		Context:    map[string]string{"by_user": by.UserID},
	})
	return nil
}

func (m *Manager) cascadeCampaignResume(campaignID string) error {
	attacks, err := m.store.ListAttacksByCampaign(campaignID)
	if err != nil {
		return err
	}
	for _, a := range attacks {
		if a.State != types.AttackPaused {
			continue
		}
		tasks, err := m.store.ListTasksByAttack(a.ID)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if t.State != types.TaskPaused {
				continue
			}
			if err := m.ResumeTask(t); err != nil {
				return err
			}
		}
		if err := m.transitionAttack(a, types.AttackRunning, events.EventAttackResumed, nil); err != nil {
			return err
		}
	}
	return nil
}

// --- Attacks ---

func (m *Manager) CreateAttack(a *types.Attack) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	if a.State == "" {
		a.State = types.AttackPending
	}
	return m.store.CreateAttack(a)
}

func (m *Manager) GetAttack(id string) (*types.Attack, error) {
	return m.store.GetAttack(id)
}

// CompleteAttack implements Attack.complete (§4.1): running -> completed,
// when its HashList has no uncracked items left. Called by pkg/statusing
// once a Task completion leaves nothing left to crack; an Attack whose
// Tasks are all terminal while hashes remain goes through ExhaustAttack.
func (m *Manager) CompleteAttack(a *types.Attack) error {
	if a.State != types.AttackRunning {
		return nil
	}
	return m.transitionAttack(a, types.AttackCompleted, events.EventAttackCompleted, nil)
}

// ExhaustAttack implements Attack.exhaust: running -> exhausted, when
// keyspace is fully enumerated but hashes remain.
func (m *Manager) ExhaustAttack(a *types.Attack) error {
	if a.State != types.AttackRunning {
		return nil
	}
	return m.transitionAttack(a, types.AttackExhausted, events.EventAttackExhausted, nil)
}

// FailAttack implements Attack.fail: running -> failed, on an
// agent-reported fatal error.
func (m *Manager) FailAttack(a *types.Attack, reason string) error {
	if a.State != types.AttackRunning {
		return nil
	}
	return m.transitionAttack(a, types.AttackFailed, events.EventAttackFailed, map[string]string{"reason": reason})
}

// AbandonAttack implements Attack.abandon: any non-terminal -> abandoned,
// cascading to destroy all of its Tasks.
func (m *Manager) AbandonAttack(a *types.Attack) error {
	switch a.State {
	case types.AttackCompleted, types.AttackExhausted, types.AttackFailed, types.AttackAbandoned:
		return nil
	}

	tasks, err := m.store.ListTasksByAttack(a.ID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := m.store.DeleteTask(t.ID); err != nil {
			return err
		}
	}
	return m.transitionAttack(a, types.AttackAbandoned, events.EventAttackAbandoned,
		map[string]string{"tasks_destroyed": fmt.Sprint(len(tasks))})
}

func (m *Manager) transitionAttack(a *types.Attack, to types.AttackState, event events.EventType, context map[string]string) error {
	from := a.State
	a.State = to
	a.UpdatedAt = time.Now()
	if err := m.store.UpdateAttack(a); err != nil {
		return err
	}
	m.LogTransition(statelog.Record{
		Event:    event,
		AttackID: a.ID,
		From:     string(from),
		To:       string(to),
		Context:  context,
	})
	return nil
}

// --- Tasks ---

func (m *Manager) GetTask(id string) (*types.Task, error) {
	return m.store.GetTask(id)
}

// AcceptTask implements Task.accept (agent-triggered): pending -> running.
// Increments no counters.
func (m *Manager) AcceptTask(t *types.Task) error {
	if t.State != types.TaskPending {
		return nil
	}
	return m.transitionTask(t, types.TaskRunning, events.EventTaskAccepted, nil)
}

// PauseTask implements Task.pause: running -> paused. Preserves AgentID.
func (m *Manager) PauseTask(t *types.Task) error {
	if t.State != types.TaskRunning {
		return nil
	}
	return m.transitionTask(t, types.TaskPaused, events.EventTaskPaused, nil)
}

// ResumeTask implements Task.resume: paused -> pending, not directly to
// running, so the owning agent re-picks it up through find_next_task and
// re-syncs cracks.
func (m *Manager) ResumeTask(t *types.Task) error {
	if t.State != types.TaskPaused {
		return nil
	}
	return m.transitionTask(t, types.TaskPending, events.EventTaskResumed, nil)
}

// CancelTask implements Task.cancel (user-triggered): {pending, running}
// -> failed.
func (m *Manager) CancelTask(t *types.Task, reason string) error {
	if t.State != types.TaskPending && t.State != types.TaskRunning {
		return nil
	}
	t.LastError = reason
	return m.transitionTask(t, types.TaskFailed, events.EventTaskCancelled, map[string]string{"reason": reason})
}

// RetryTask implements Task.retry (user-triggered): failed -> pending.
// Increments RetryCount; clears LastError.
func (m *Manager) RetryTask(t *types.Task) error {
	if t.State != types.TaskFailed {
		return nil
	}
	t.RetryCount++
	t.LastError = ""
	return m.transitionTask(t, types.TaskPending, events.EventTaskRetried, nil)
}

// ReassignTask implements Task.reassign (user- or scheduler-triggered):
// valid from {pending, running, paused, failed}. Rebinds AgentID and
// marks Stale so the new owner re-syncs cracks; a task coming from
// running is conceptually paused then resumed, landing on pending
// either way.
func (m *Manager) ReassignTask(t *types.Task, newAgentID string) error {
	switch t.State {
	case types.TaskPending, types.TaskRunning, types.TaskPaused, types.TaskFailed:
	default:
		return nil
	}

	from := t.State
	t.AgentID = &newAgentID
	t.Stale = true
	t.State = types.TaskPending
	t.UpdatedAt = time.Now()
	if err := m.store.UpdateTask(t); err != nil {
		return err
	}
	m.LogTransition(statelog.Record{
		Event:   events.EventTaskReassigned,
		TaskID:  t.ID,
		AgentID: newAgentID,
		From:    string(from),
		To:      string(t.State),
	})
	return nil
}

// CompleteTask implements Task.complete: running -> completed, when
// hashcat reports success or progress reaches 100%. Called by
// pkg/statusing once it classifies an incoming status frame.
func (m *Manager) CompleteTask(t *types.Task) error {
	if t.State != types.TaskRunning {
		return nil
	}
	return m.transitionTask(t, types.TaskCompleted, events.EventTaskCompleted, nil)
}

// ExhaustTask implements Task.exhaust: running -> exhausted, when the
// agent reports the keyspace fully enumerated without a crack.
func (m *Manager) ExhaustTask(t *types.Task) error {
	if t.State != types.TaskRunning {
		return nil
	}
	return m.transitionTask(t, types.TaskExhausted, events.EventTaskExhausted, nil)
}

func (m *Manager) transitionTask(t *types.Task, to types.TaskState, event events.EventType, context map[string]string) error {
	from := t.State
	t.State = to
	t.UpdatedAt = time.Now()
	if err := m.store.UpdateTask(t); err != nil {
		return err
	}
	m.LogTransition(statelog.Record{
		Event:   event,
		TaskID:  t.ID,
		From:    string(from),
		To:      string(to),
		Context: context,
	})
	return nil
}

// --- Agents ---

func (m *Manager) CreateAgent(a *types.Agent) error {
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	if a.State == "" {
		a.State = types.AgentPending
	}
	return m.store.CreateAgent(a)
}

func (m *Manager) GetAgent(id string) (*types.Agent, error) {
	return m.store.GetAgent(id)
}
