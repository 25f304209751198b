// Package scheduler implements the task assignment service (C4):
// find_next_task, the hot path invoked on every agent pickup.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/config"
	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/preemption"
	"github.com/cipherswarm/cipherswarmd/pkg/statelog"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Scheduler implements find_next_task against a Store, with an optional
// TaskPreemption collaborator for step 5 of the lookup order.
type Scheduler struct {
	store     storage.Store
	preempt   *preemption.Service
	logger    zerolog.Logger
	slog      *statelog.Logger
}

func New(store storage.Store, preempt *preemption.Service, broker *events.Broker) *Scheduler {
	return &Scheduler{
		store:   store,
		preempt: preempt,
		logger:  log.WithComponent("scheduler"),
		slog:    statelog.NewLogger(broker),
	}
}

// FindNextTask implements §4.4's strict lookup order for agent.
func (s *Scheduler) FindNextTask(agent *types.Agent) (*types.Task, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	if len(agent.ProjectIDs) == 0 {
		return nil, nil
	}

	if t, err := s.resumeOwnIncomplete(agent); err != nil || t != nil {
		return t, err
	}
	if t, err := s.ownRetryEligible(agent); err != nil || t != nil {
		return t, err
	}
	if t, err := s.reclaimOrphanedPaused(agent); err != nil || t != nil {
		return t, err
	}
	if t, err := s.createFromAvailableAttack(agent); err != nil || t != nil {
		return t, err
	}

	return s.retryViaPreemption(agent)
}

// resumeOwnIncomplete is step 1.
func (s *Scheduler) resumeOwnIncomplete(agent *types.Agent) (*types.Task, error) {
	tasks, err := s.store.ListTasksByAgent(agent.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if !t.State.Incomplete() {
			continue
		}
		ok, err := s.attackIsLive(t.AttackID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fatal, err := s.hasFatalError(agent.ID, t.ID)
		if err != nil {
			return nil, err
		}
		if fatal {
			continue
		}
		return t, nil
	}
	return nil, nil
}

// ownRetryEligible is step 2.
func (s *Scheduler) ownRetryEligible(agent *types.Agent) (*types.Task, error) {
	tasks, err := s.store.ListTasksByAgent(agent.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.State != types.TaskPending && t.State != types.TaskFailed {
			continue
		}
		fatal, err := s.hasFatalError(agent.ID, t.ID)
		if err != nil {
			return nil, err
		}
		if fatal {
			continue
		}
		return t, nil
	}
	return nil, nil
}

// reclaimOrphanedPaused is step 3: another agent is offline, left a
// paused task on a live attack with uncracked hashes remaining.
func (s *Scheduler) reclaimOrphanedPaused(agent *types.Agent) (*types.Task, error) {
	for _, projectID := range agent.ProjectIDs {
		attacks, err := s.liveAttacksInProject(projectID)
		if err != nil {
			return nil, err
		}
		for _, attack := range attacks {
			tasks, err := s.store.ListTasksByAttack(attack.ID)
			if err != nil {
				return nil, err
			}
			for _, t := range tasks {
				if t.State != types.TaskPaused {
					continue
				}
				if t.AgentID == nil {
					continue
				}
				owner, err := s.store.GetAgent(*t.AgentID)
				if err != nil || owner.State != types.AgentOffline {
					continue
				}
				uncracked, err := s.uncrackedRemaining(attack)
				if err != nil || uncracked == 0 {
					continue
				}

				t.State = types.TaskPending
				t.AgentID = &agent.ID
				t.Stale = true
				if err := s.store.UpdateTask(t); err != nil {
					return nil, err
				}
				s.slog.Log(statelog.Record{
					Event:    events.EventTaskReassigned,
					TaskID:   t.ID,
					AttackID: attack.ID,
					From:     "paused",
					To:       "pending",
					Context:  map[string]string{"reclaimed_from": owner.ID, "new_agent": agent.ID},
				})
				return t, nil
			}
		}
	}
	return nil, nil
}

// createFromAvailableAttack is step 4.
func (s *Scheduler) createFromAvailableAttack(agent *types.Agent) (*types.Task, error) {
	attack, err := s.firstEligibleAttack(agent)
	if err != nil || attack == nil {
		return nil, err
	}

	now := time.Now()
	task := &types.Task{
		ID:                uuid.NewString(),
		AttackID:          attack.ID,
		AgentID:           &agent.ID,
		State:             types.TaskPending,
		ActivityTimestamp: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateTask(task); err != nil {
		return nil, err
	}

	if attack.State == types.AttackPending {
		attack.State = types.AttackRunning
		attack.UpdatedAt = now
		if err := s.store.UpdateAttack(attack); err != nil {
			return nil, err
		}
		s.slog.Log(statelog.Record{
			Event:    events.EventAttackStarted,
			AttackID: attack.ID,
			From:     "pending",
			To:       "running",
		})
	}

	metrics.TasksAssigned.Inc()
	s.slog.Log(statelog.Record{
		Event:    events.EventTaskAssigned,
		TaskID:   task.ID,
		AttackID: attack.ID,
		AgentID:  agent.ID,
		From:     "none",
		To:       "pending",
	})
	return task, nil
}

// retryViaPreemption is step 5.
func (s *Scheduler) retryViaPreemption(agent *types.Agent) (*types.Task, error) {
	if s.preempt == nil {
		return nil, nil
	}

	highPriority, err := s.highPriorityNeedingSlot(agent)
	if err != nil {
		return nil, err
	}
	for _, attack := range highPriority {
		freed, err := s.preempt.PreemptIfNeeded(attack)
		if err != nil {
			s.logger.Error().Err(err).Str("attack_id", attack.ID).Msg("preemption attempt failed")
			continue
		}
		if freed == nil {
			continue
		}
		if t, err := s.createFromAvailableAttack(agent); err != nil || t != nil {
			return t, err
		}
	}
	return nil, nil
}

// firstEligibleAttack implements the eligibility and tie-break rules of
// §4.4: ascending complexity_value, then ascending id.
func (s *Scheduler) firstEligibleAttack(agent *types.Agent) (*types.Attack, error) {
	var candidates []*types.Attack

	for _, projectID := range agent.ProjectIDs {
		attacks, err := s.liveAttacksInProject(projectID)
		if err != nil {
			return nil, err
		}
		for _, attack := range attacks {
			eligible, err := s.isEligible(agent, attack)
			if err != nil {
				return nil, err
			}
			if eligible {
				candidates = append(candidates, attack)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ComplexityValue != candidates[j].ComplexityValue {
			return candidates[i].ComplexityValue < candidates[j].ComplexityValue
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], nil
}

func (s *Scheduler) isEligible(agent *types.Agent, attack *types.Attack) (bool, error) {
	campaign, err := s.store.GetCampaign(attack.CampaignID)
	if err != nil {
		return false, nil
	}
	if campaign.Paused {
		return false, nil
	}
	if attack.State != types.AttackPending && attack.State != types.AttackRunning {
		return false, nil
	}

	hashList, err := s.store.GetHashList(campaign.HashListID)
	if err != nil {
		return false, nil
	}

	bench, err := s.store.GetHashcatBenchmark(agent.ID, hashList.HashType)
	if err != nil {
		return false, nil
	}
	if bench.HashSpeed < config.MinPerformanceBenchmark {
		s.recordPerformanceThreshold(agent.ID, attack.ID)
		return false, nil
	}

	uncracked, err := s.store.CountUncracked(hashList.ID)
	if err != nil {
		return false, err
	}
	return uncracked > 0, nil
}

func (s *Scheduler) recordPerformanceThreshold(agentID, attackID string) {
	_ = s.store.CreateAgentError(&types.AgentError{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		TaskID:    nil,
		Severity:  types.SeverityInfo,
		Message:   fmt.Sprintf("benchmark below performance threshold for attack %s", attackID),
		Code:      "performance_threshold",
		CreatedAt: time.Now(),
	})
}

func (s *Scheduler) liveAttacksInProject(projectID string) ([]*types.Attack, error) {
	campaigns, err := s.store.ListCampaignsByProject(projectID)
	if err != nil {
		return nil, err
	}
	var out []*types.Attack
	for _, c := range campaigns {
		attacks, err := s.store.ListAttacksByCampaign(c.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range attacks {
			if a.State != types.AttackAbandoned {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *Scheduler) highPriorityNeedingSlot(agent *types.Agent) ([]*types.Attack, error) {
	var out []*types.Attack
	for _, projectID := range agent.ProjectIDs {
		attacks, err := s.liveAttacksInProject(projectID)
		if err != nil {
			return nil, err
		}
		for _, attack := range attacks {
			campaign, err := s.store.GetCampaign(attack.CampaignID)
			if err != nil {
				continue
			}
			if campaign.Priority != types.PriorityHigh {
				continue
			}
			if attack.State != types.AttackPending && attack.State != types.AttackRunning {
				continue
			}
			out = append(out, attack)
		}
	}
	return out, nil
}

func (s *Scheduler) attackIsLive(attackID string) (bool, error) {
	attack, err := s.store.GetAttack(attackID)
	if err != nil {
		return false, nil
	}
	return attack.State != types.AttackAbandoned, nil
}

func (s *Scheduler) hasFatalError(agentID, taskID string) (bool, error) {
	errs, err := s.store.ListAgentErrorsByTask(taskID)
	if err != nil {
		return false, err
	}
	for _, e := range errs {
		if e.AgentID == agentID && e.Severity == types.SeverityFatal {
			return true, nil
		}
	}
	return false, nil
}

func (s *Scheduler) uncrackedRemaining(attack *types.Attack) (int, error) {
	campaign, err := s.store.GetCampaign(attack.CampaignID)
	if err != nil {
		return 0, err
	}
	return s.store.CountUncracked(campaign.HashListID)
}
