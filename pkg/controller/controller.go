// Package controller holds the thin ingress controllers (C9): transport-
// agnostic functions that map an external request onto C2-C6 and apply
// the error-kind handling of §7. These are deliberately free of any HTTP
// or RPC framework; a transport layer outside this core's scope adapts
// them to wire requests.
package controller

import (
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/crack"
	"github.com/cipherswarm/cipherswarmd/pkg/errs"
	"github.com/cipherswarm/cipherswarmd/pkg/eta"
	"github.com/cipherswarm/cipherswarmd/pkg/preemption"
	"github.com/cipherswarm/cipherswarmd/pkg/scheduler"
	"github.com/cipherswarm/cipherswarmd/pkg/statusing"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Controllers bundles the C2-C6 services a transport layer dispatches
// into, plus the store it needs for reference lookups (resolving a
// task_ref/agent_ref/attack_ref/campaign_ref into the entity).
type Controllers struct {
	Store      storage.Store
	Crack      *crack.Service
	Status     *statusing.Service
	Assignment *scheduler.Scheduler
	Preemption *preemption.Service
	Eta        *eta.Calculator
	RecentIDs  RecentTaskIDHeuristic
}

// CrackSubmission maps to CrackSubmission.submit. agentID is the
// authenticated caller, used to tell "assigned to a different agent"
// apart from "never existed" and "recently deleted" (§7).
func (c *Controllers) CrackSubmission(agentID, taskID, hashValue, plainText string, ts time.Time) (crack.Result, *errs.DomainError) {
	task, err := c.resolveTask(taskID, agentID)
	if err != nil {
		return crack.Result{}, err
	}
	result, submitErr := c.Crack.Submit(task, hashValue, plainText, ts)
	if submitErr != nil {
		return crack.Result{}, errs.Internal("crack submission failed", submitErr)
	}
	return result, nil
}

// StatusSubmission maps to StatusSubmission.submit. See CrackSubmission
// for agentID.
func (c *Controllers) StatusSubmission(agentID, taskID string, params statusing.StatusParams) (statusing.Result, *errs.DomainError) {
	task, err := c.resolveTask(taskID, agentID)
	if err != nil {
		return statusing.Result{}, err
	}
	result, subErr := c.Status.Submit(task, params)
	if subErr != nil {
		return statusing.Result{}, errs.Internal("status submission failed", subErr)
	}
	return result, nil
}

// FindNextTask maps to TaskAssignment.find_next_task.
func (c *Controllers) FindNextTask(agentID string) (*types.Task, *errs.DomainError) {
	agent, err := c.Store.GetAgent(agentID)
	if err != nil {
		return nil, errs.NotFound("agent")
	}
	task, findErr := c.Assignment.FindNextTask(agent)
	if findErr != nil {
		return nil, errs.Internal("task assignment failed", findErr)
	}
	return task, nil
}

// PreemptIfNeeded maps to TaskPreemption.preempt_if_needed.
func (c *Controllers) PreemptIfNeeded(attackID string) (*types.Task, *errs.DomainError) {
	attack, err := c.Store.GetAttack(attackID)
	if err != nil {
		return nil, errs.New(errs.KindNotFound, "attack not found")
	}
	task, preemptErr := c.Preemption.PreemptIfNeeded(attack)
	if preemptErr != nil {
		return nil, errs.Internal("preemption failed", preemptErr)
	}
	return task, nil
}

// CampaignEtaCurrent maps to CampaignEta.current.
func (c *Controllers) CampaignEtaCurrent(campaignID string) (*time.Time, *errs.DomainError) {
	t, err := c.Eta.Current(campaignID)
	if err != nil {
		return nil, errs.Internal("eta calculation failed", err)
	}
	return t, nil
}

// CampaignEtaTotal maps to CampaignEta.total.
func (c *Controllers) CampaignEtaTotal(campaignID string) (*time.Time, *errs.DomainError) {
	t, err := c.Eta.Total(campaignID)
	if err != nil {
		return nil, errs.Internal("eta calculation failed", err)
	}
	return t, nil
}

// resolveTask fetches a Task and applies the task_not_assigned/
// task_deleted/task_invalid discriminant (§7): "exists, assigned to a
// different agent" (task_not_assigned), "recently deleted"
// (task_deleted), and "never existed" (task_invalid).
func (c *Controllers) resolveTask(taskID, agentID string) (*types.Task, *errs.DomainError) {
	task, err := c.Store.GetTask(taskID)
	if err != nil {
		return nil, c.handleTaskNotFound(taskID)
	}
	if agentID != "" && task.AgentID != nil && *task.AgentID != agentID {
		return nil, errs.New(errs.KindTaskNotAssigned, "task assigned to a different agent: "+taskID)
	}
	return task, nil
}

// handleTaskNotFound distinguishes "recently deleted" (via
// RecentTaskIDHeuristic) from "never existed" for a task lookup miss.
func (c *Controllers) handleTaskNotFound(id string) *errs.DomainError {
	if c.RecentIDs != nil && c.RecentIDs.WasRecentlyDeleted(id) {
		return errs.New(errs.KindTaskDeleted, "task was recently deleted: "+id)
	}
	return errs.New(errs.KindTaskInvalid, "task never existed: "+id)
}
