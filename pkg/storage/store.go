// Package storage defines the persistence interface CipherSwarm's
// scheduling components use, and a BoltDB-backed implementation of it.
package storage

import (
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Store is the persistence interface every scheduling component depends
// on. A single process is assumed to own the database; concurrent callers
// within that process coordinate through RowLocks and the Version field
// optimistic-concurrency check on Task updates.
type Store interface {
	// Projects
	CreateProject(p *types.Project) error
	GetProject(id string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)

	// HashLists
	CreateHashList(h *types.HashList) error
	GetHashList(id string) (*types.HashList, error)
	ListHashListsByProject(projectID string) ([]*types.HashList, error)
	UpdateHashList(h *types.HashList) error

	// HashItems
	CreateHashItem(h *types.HashItem) error
	GetHashItem(id string) (*types.HashItem, error)
	ListHashItemsByHashList(hashListID string) ([]*types.HashItem, error)
	// ListHashItemsByValue finds HashItems across every HashList in a
	// project that share hashType and hashValue, for crack propagation.
	ListHashItemsByValue(projectID string, hashType types.HashType, hashValue string) ([]*types.HashItem, error)
	CountUncracked(hashListID string) (int, error)
	UpdateHashItem(h *types.HashItem) error

	// Campaigns
	CreateCampaign(c *types.Campaign) error
	GetCampaign(id string) (*types.Campaign, error)
	ListCampaignsByProject(projectID string) ([]*types.Campaign, error)
	UpdateCampaign(c *types.Campaign) error

	// Attacks
	CreateAttack(a *types.Attack) error
	GetAttack(id string) (*types.Attack, error)
	ListAttacksByCampaign(campaignID string) ([]*types.Attack, error)
	ListAttacksByState(state types.AttackState) ([]*types.Attack, error)
	UpdateAttack(a *types.Attack) error

	// Tasks
	CreateTask(t *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasksByAttack(attackID string) ([]*types.Task, error)
	ListTasksByAgent(agentID string) ([]*types.Task, error)
	ListTasksByState(state types.TaskState) ([]*types.Task, error)
	// UpdateTask persists t only if the stored row's Version matches
	// t.Version (optimistic CAS against the version t was read at); it
	// bumps the stored Version on success and returns
	// errs.KindVersionConflict otherwise.
	UpdateTask(t *types.Task) error
	DeleteTask(id string) error

	// Agents
	CreateAgent(a *types.Agent) error
	GetAgent(id string) (*types.Agent, error)
	ListAgentsByState(state types.AgentState) ([]*types.Agent, error)
	ListAgentsByProject(projectID string) ([]*types.Agent, error)
	UpdateAgent(a *types.Agent) error

	// HashcatBenchmarks
	CreateHashcatBenchmark(b *types.HashcatBenchmark) error
	GetHashcatBenchmark(agentID string, hashType types.HashType) (*types.HashcatBenchmark, error)
	ListHashcatBenchmarksByAgent(agentID string) ([]*types.HashcatBenchmark, error)

	// HashcatStatus: only the latest frame per task is retained.
	PutHashcatStatus(s *types.HashcatStatus) error
	GetLatestHashcatStatus(taskID string) (*types.HashcatStatus, error)

	// AgentErrors
	CreateAgentError(e *types.AgentError) error
	ListAgentErrorsByAgent(agentID string) ([]*types.AgentError, error)
	ListAgentErrorsByTask(taskID string) ([]*types.AgentError, error)

	Close() error
}
