// Package preemption implements the task preemption service (C5):
// reclaiming one lower-priority task's slot so an incoming high-priority
// attack can be served.
package preemption

import (
	"sort"
	"strconv"

	"github.com/cipherswarm/cipherswarmd/pkg/config"
	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/statelog"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Service implements preempt_if_needed(incoming_attack).
type Service struct {
	store storage.Store
	slog  *statelog.Logger
}

func NewService(store storage.Store, broker *events.Broker) *Service {
	return &Service{store: store, slog: statelog.NewLogger(broker)}
}

type candidate struct {
	task            *types.Task
	priorityOrdinal types.Priority
	progress        float64
}

// PreemptIfNeeded selects and preempts one task to free a slot for
// incomingAttack, per §4.5. Returns nil if no candidate exists or none
// survives revalidation under lock.
func (s *Service) PreemptIfNeeded(incomingAttack *types.Attack) (*types.Task, error) {
	incomingCampaign, err := s.store.GetCampaign(incomingAttack.CampaignID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.gatherCandidates(incomingCampaign)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priorityOrdinal != candidates[j].priorityOrdinal {
			return candidates[i].priorityOrdinal < candidates[j].priorityOrdinal
		}
		if candidates[i].progress != candidates[j].progress {
			return candidates[i].progress < candidates[j].progress
		}
		return candidates[i].task.ActivityTimestamp.Before(candidates[j].task.ActivityTimestamp)
	})

	logger := log.WithComponent("preemption")

	for _, c := range candidates {
		preempted, err := s.tryPreempt(c.task)
		if err != nil {
			logger.Error().Err(err).Str("task_id", c.task.ID).Msg("preemption attempt raised")
			continue
		}
		if preempted != nil {
			return preempted, nil
		}
	}
	return nil, nil
}

// gatherCandidates enumerates running tasks strictly lower priority than
// incomingCampaign, in the same project, excluding pinned and
// near-complete tasks.
func (s *Service) gatherCandidates(incomingCampaign *types.Campaign) ([]candidate, error) {
	campaigns, err := s.store.ListCampaignsByProject(incomingCampaign.ProjectID)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, campaign := range campaigns {
		if campaign.Priority >= incomingCampaign.Priority {
			continue
		}
		attacks, err := s.store.ListAttacksByCampaign(campaign.ID)
		if err != nil {
			return nil, err
		}
		for _, attack := range attacks {
			tasks, err := s.store.ListTasksByAttack(attack.ID)
			if err != nil {
				return nil, err
			}
			for _, t := range tasks {
				if t.State != types.TaskRunning {
					continue
				}
				if t.AgentID == nil {
					continue
				}
				agent, err := s.store.GetAgent(*t.AgentID)
				if err != nil || agent.State != types.AgentActive {
					continue
				}
				if !s.isPreemptable(t) {
					continue
				}
				out = append(out, candidate{
					task:            t,
					priorityOrdinal: campaign.Priority,
					progress:        s.progressOf(t),
				})
			}
		}
	}
	return out, nil
}

func (s *Service) isPreemptable(t *types.Task) bool {
	if t.State != types.TaskRunning {
		return false
	}
	if t.PreemptionCount >= config.MaxPreemptionCount {
		return false
	}
	return s.progressOf(t) < config.PreemptionProgressCeil
}

func (s *Service) progressOf(t *types.Task) float64 {
	status, err := s.store.GetLatestHashcatStatus(t.ID)
	if err != nil || status == nil {
		return 0
	}
	return status.FractionDone()
}

// tryPreempt re-validates t's state under its row lock (enforced by
// storage.Store.UpdateTask's optimistic-version check) and applies the
// preempt transition if it still holds.
func (s *Service) tryPreempt(t *types.Task) (*types.Task, error) {
	fresh, err := s.store.GetTask(t.ID)
	if err != nil {
		return nil, err
	}
	if fresh.State != types.TaskRunning {
		return nil, nil
	}
	if !s.isPreemptable(fresh) {
		return nil, nil
	}

	fromAgent := ""
	if fresh.AgentID != nil {
		fromAgent = *fresh.AgentID
	}

	fresh.State = types.TaskPending
	fresh.PreemptionCount++
	fresh.Stale = true
	fresh.AgentID = nil

	if err := s.store.UpdateTask(fresh); err != nil {
		return nil, err
	}

	metrics.TasksPreempted.Inc()
	s.slog.Log(statelog.Record{
		Event:    events.EventTaskPreempted,
		TaskID:   fresh.ID,
		AttackID: fresh.AttackID,
		From:     "running",
		To:       "pending",
		Context: map[string]string{
			"preemption_count": strconv.Itoa(fresh.PreemptionCount),
			"previous_agent":   fromAgent,
		},
	})

	return fresh, nil
}
