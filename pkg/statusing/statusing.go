// Package statusing implements the status submission service (C3):
// ingesting periodic hashcat telemetry frames, persisting them, advancing
// a task's activity timestamp, and evaluating whether the frame ends the
// task's (and in turn its attack's) lifecycle.
package statusing

import (
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/errs"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/manager"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Outcome is the result discriminant §4.3 specifies.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeStale  Outcome = "stale"
	OutcomePaused Outcome = "paused"
	OutcomeError  Outcome = "error"
)

// Result is the outcome of a status submission.
type Result struct {
	Outcome Outcome
	Err     *errs.DomainError
}

// StatusParams is the inbound status frame before validation, matching
// the agent's wire shape where the device list may arrive under either
// field name.
type StatusParams struct {
	Guess          *types.HashcatGuess
	Progress       [2]int64
	Status         int
	RestorePoint   int64
	RejectedCount  int64
	DeviceStatuses []types.DeviceStatus // preferred field name
	Devices        []types.DeviceStatus // accepted alias
}

func (p *StatusParams) devices() []types.DeviceStatus {
	if len(p.DeviceStatuses) > 0 {
		return p.DeviceStatuses
	}
	return p.Devices
}

// terminalOutcome classifies a status frame's significance for the
// task's lifecycle. completed is true when hashcat reports success or
// this task's keyspace reached 100% without an explicit exhausted
// report; exhausted is true when the agent reports the keyspace fully
// enumerated.
func (p *StatusParams) terminalOutcome() (completed, exhausted bool) {
	switch p.Status {
	case types.HashcatStatusExhausted:
		return false, true
	case types.HashcatStatusCracked:
		return true, false
	}
	if p.Progress[1] > 0 && p.Progress[0] >= p.Progress[1] {
		return true, false
	}
	return false, false
}

// Service implements submit_status(task, status_params).
type Service struct {
	mgr *manager.Manager
}

func NewService(mgr *manager.Manager) *Service {
	return &Service{mgr: mgr}
}

// Submit validates, persists, and advances the task, per §4.3.
func (s *Service) Submit(task *types.Task, params StatusParams) (Result, error) {
	if params.Guess == nil {
		return Result{Outcome: OutcomeError, Err: errs.New(errs.KindGuessNotFound, "hashcat_guess missing")}, nil
	}
	devices := params.devices()
	if len(devices) == 0 {
		return Result{Outcome: OutcomeError, Err: errs.New(errs.KindDeviceStatusesNotFound, "device status list missing")}, nil
	}

	store := s.mgr.Store()

	frame := &types.HashcatStatus{
		ID:             task.ID + ":latest",
		TaskID:         task.ID,
		Time:           time.Now(),
		Progress:       params.Progress,
		Status:         params.Status,
		Guess:          *params.Guess,
		RestorePoint:   params.RestorePoint,
		RejectedCount:  params.RejectedCount,
		DeviceStatuses: devices,
	}
	if err := store.PutHashcatStatus(frame); err != nil {
		return Result{}, err
	}

	now := time.Now()
	if now.After(task.ActivityTimestamp) {
		task.ActivityTimestamp = now
		if err := store.UpdateTask(task); err != nil {
			return Result{}, err
		}
	}

	metrics.StatusFramesIngested.Inc()
	log.WithTaskID(task.ID).Debug().Msg("status frame ingested")

	if task.State == types.TaskRunning {
		if completed, exhausted := params.terminalOutcome(); completed || exhausted {
			if err := s.finishTask(task, completed); err != nil {
				return Result{}, err
			}
		}
	}

	if task.Stale {
		return Result{Outcome: OutcomeStale}, nil
	}
	if task.State == types.TaskPaused {
		return Result{Outcome: OutcomePaused}, nil
	}
	return Result{Outcome: OutcomeOK}, nil
}

// finishTask drives task to completed or exhausted, then re-evaluates
// its attack's lifecycle now that one more of its tasks has stopped
// producing work.
func (s *Service) finishTask(task *types.Task, completed bool) error {
	if completed {
		if err := s.mgr.CompleteTask(task); err != nil {
			return err
		}
	} else {
		if err := s.mgr.ExhaustTask(task); err != nil {
			return err
		}
	}
	return s.evaluateAttack(task.AttackID)
}

// evaluateAttack implements Attack.complete/Attack.exhaust (§4.1):
// complete when its HashList has no uncracked items left, exhaust when
// every Task of the attack has stopped (reached a terminal state) while
// uncracked items remain.
func (s *Service) evaluateAttack(attackID string) error {
	store := s.mgr.Store()

	attack, err := store.GetAttack(attackID)
	if err != nil {
		return err
	}
	if attack.State != types.AttackRunning {
		return nil
	}

	campaign, err := store.GetCampaign(attack.CampaignID)
	if err != nil {
		return err
	}
	uncracked, err := store.CountUncracked(campaign.HashListID)
	if err != nil {
		return err
	}
	if uncracked == 0 {
		return s.mgr.CompleteAttack(attack)
	}

	tasks, err := store.ListTasksByAttack(attack.ID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if !t.State.Terminal() {
			return nil
		}
	}
	return s.mgr.ExhaustAttack(attack)
}
