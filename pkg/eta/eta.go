// Package eta implements the campaign ETA calculator (C6): a "current"
// estimate from tasks already running, and a "total" estimate summed
// from pending/paused attacks and their best available benchmark.
package eta

import (
	"sync"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
)

// Calculator implements CampaignEta.current and CampaignEta.total. It
// optionally caches both results for up to cacheTTL, per the caller's
// option described in §4.8.
type Calculator struct {
	store    storage.Store
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	current      *time.Time
	hasCurrent   bool
	total        *time.Time
	hasTotal     bool
	at           time.Time
}

func NewCalculator(store storage.Store, cacheTTL time.Duration) *Calculator {
	return &Calculator{store: store, cacheTTL: cacheTTL, cache: make(map[string]cacheEntry)}
}

// Current returns the maximum estimated_finish_time over the campaign's
// running tasks, or nil if none are running. estimated_finish_time for a
// task is derived from its latest HashcatStatus frame's progress and the
// agent's benchmark, rather than being a stored column.
func (c *Calculator) Current(campaignID string) (*time.Time, error) {
	if cached, ok := c.fromCache(campaignID); ok && cached.hasCurrent {
		metrics.EtaCacheHits.Inc()
		return cached.current, nil
	}
	metrics.EtaCacheMisses.Inc()

	attacks, err := c.runningAttacks(campaignID)
	if err != nil {
		return nil, err
	}

	var max *time.Time
	for _, attack := range attacks {
		tasks, err := c.store.ListTasksByAttack(attack.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.State != types.TaskRunning {
				continue
			}
			finish, err := c.estimatedFinish(t, attack)
			if err != nil || finish == nil {
				continue
			}
			if max == nil || finish.After(*max) {
				max = finish
			}
		}
	}

	c.putCurrent(campaignID, max)
	return max, nil
}

// Total sums complexity_value/hash_speed across the campaign's pending
// and paused attacks (running work is covered by Current) and adds the
// result to now. Returns nil if any required benchmark is missing.
func (c *Calculator) Total(campaignID string) (*time.Time, error) {
	if cached, ok := c.fromCache(campaignID); ok && cached.hasTotal {
		metrics.EtaCacheHits.Inc()
		return cached.total, nil
	}
	metrics.EtaCacheMisses.Inc()

	campaign, err := c.store.GetCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	attacks, err := c.store.ListAttacksByCampaign(campaign.ID)
	if err != nil {
		return nil, err
	}

	var totalSeconds float64
	for _, attack := range attacks {
		if attack.State != types.AttackPending && attack.State != types.AttackPaused {
			continue
		}
		if attack.ComplexityValue == 0 {
			continue
		}

		speed, ok, err := c.bestBenchmarkSpeed(campaign.ProjectID, attack)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		totalSeconds += float64(attack.ComplexityValue) / float64(speed)
	}

	result := time.Now().Add(time.Duration(totalSeconds * float64(time.Second)))
	c.putTotal(campaignID, &result)
	return &result, nil
}

// estimatedFinish projects a finish time from the task's latest status
// frame progress and the assigned agent's benchmark speed for the
// attack's hash type.
func (c *Calculator) estimatedFinish(t *types.Task, attack *types.Attack) (*time.Time, error) {
	if t.AgentID == nil {
		return nil, nil
	}
	status, err := c.store.GetLatestHashcatStatus(t.ID)
	if err != nil || status == nil {
		return nil, nil
	}
	if status.Progress[1] == 0 {
		return nil, nil
	}
	remaining := status.Progress[1] - status.Progress[0]
	if remaining <= 0 {
		now := time.Now()
		return &now, nil
	}

	hashList, err := c.hashListForAttack(attack)
	if err != nil {
		return nil, nil
	}
	bench, err := c.store.GetHashcatBenchmark(*t.AgentID, hashList.HashType)
	if err != nil || bench.HashSpeed <= 0 {
		return nil, nil
	}

	secs := float64(remaining) / float64(bench.HashSpeed)
	finish := time.Now().Add(time.Duration(secs * float64(time.Second)))
	return &finish, nil
}

func (c *Calculator) bestBenchmarkSpeed(projectID string, attack *types.Attack) (int64, bool, error) {
	hashList, err := c.hashListForAttack(attack)
	if err != nil {
		return 0, false, nil
	}

	agents, err := c.store.ListAgentsByProject(projectID)
	if err != nil {
		return 0, false, err
	}

	var best int64
	found := false
	for _, a := range agents {
		bench, err := c.store.GetHashcatBenchmark(a.ID, hashList.HashType)
		if err != nil {
			continue
		}
		if bench.HashSpeed > best {
			best = bench.HashSpeed
			found = true
		}
	}
	return best, found, nil
}

func (c *Calculator) hashListForAttack(attack *types.Attack) (*types.HashList, error) {
	campaign, err := c.store.GetCampaign(attack.CampaignID)
	if err != nil {
		return nil, err
	}
	return c.store.GetHashList(campaign.HashListID)
}

func (c *Calculator) runningAttacks(campaignID string) ([]*types.Attack, error) {
	return c.store.ListAttacksByCampaign(campaignID)
}

func (c *Calculator) fromCache(campaignID string) (cacheEntry, bool) {
	if c.cacheTTL <= 0 {
		return cacheEntry{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[campaignID]
	if !ok || time.Since(e.at) > c.cacheTTL {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Calculator) putCurrent(campaignID string, current *time.Time) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.cache[campaignID]
	e.current = current
	e.hasCurrent = true
	e.at = time.Now()
	c.cache[campaignID] = e
}

func (c *Calculator) putTotal(campaignID string, total *time.Time) {
	if c.cacheTTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.cache[campaignID]
	e.total = total
	e.hasTotal = true
	e.at = time.Now()
	c.cache[campaignID] = e
}
