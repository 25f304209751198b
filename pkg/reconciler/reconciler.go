// Package reconciler periodically scans active Agents for heartbeat
// loss and drives the rest of the agent lifecycle machine (§4.6):
// activate, heartbeat_lost, shutdown, recover, error.
package reconciler

import (
	"sync"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/statelog"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	"github.com/rs/zerolog"
)

const defaultUpdateInterval = 30 * time.Second

// Reconciler sweeps active agents for heartbeat loss on a fixed tick.
type Reconciler struct {
	store        storage.Store
	slog         *statelog.Logger
	logger       zerolog.Logger
	grace        time.Duration
	mu           sync.RWMutex
	stopCh       chan struct{}
}

func New(store storage.Store, broker *events.Broker, grace time.Duration) *Reconciler {
	return &Reconciler{
		store:  store,
		slog:   statelog.NewLogger(broker),
		logger: log.WithComponent("reconciler"),
		grace:  grace,
		stopCh: make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	go r.run()
}

func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("agent lifecycle reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("agent lifecycle reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() error {
	agents, err := r.store.ListAgentsByState(types.AgentActive)
	if err != nil {
		return err
	}

	for _, agent := range agents {
		if r.heartbeatLost(agent) {
			if err := r.markOffline(agent, "heartbeat_lost"); err != nil {
				r.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("failed to mark agent offline")
			}
		}
	}
	return nil
}

func (r *Reconciler) heartbeatLost(agent *types.Agent) bool {
	interval := defaultUpdateInterval
	if agent.AdvancedConfig != nil && agent.AdvancedConfig.UpdateInterval > 0 {
		interval = agent.AdvancedConfig.UpdateInterval
	}
	threshold := interval*3 + r.grace
	return time.Since(agent.LastSeenAt) > threshold
}

// markOffline implements heartbeat_lost (and Shutdown's voluntary path
// shares this helper): active -> offline, and any of the agent's running
// tasks are paused rather than cleared, so §4.4 step 3 can reclaim them.
func (r *Reconciler) markOffline(agent *types.Agent, reason string) error {
	agent.State = types.AgentOffline
	agent.UpdatedAt = time.Now()
	if err := r.store.UpdateAgent(agent); err != nil {
		return err
	}

	tasks, err := r.store.ListTasksByAgent(agent.ID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if t.State != types.TaskRunning {
			continue
		}
		t.State = types.TaskPaused
		if err := r.store.UpdateTask(t); err != nil {
			return err
		}
	}

	r.slog.Log(statelog.Record{
		Event:   events.EventAgentOffline,
		AgentID: agent.ID,
		From:    "active",
		To:      "offline",
		Context: map[string]string{"reason": reason},
	})
	return nil
}

// Shutdown implements the voluntary shutdown transition.
func (r *Reconciler) Shutdown(agent *types.Agent) error {
	return r.markOffline(agent, "shutdown")
}

// Recover implements offline -> active on next authenticated pickup.
func (r *Reconciler) Recover(agent *types.Agent) error {
	if agent.State != types.AgentOffline {
		return nil
	}
	agent.State = types.AgentActive
	agent.LastSeenAt = time.Now()
	agent.UpdatedAt = time.Now()
	if err := r.store.UpdateAgent(agent); err != nil {
		return err
	}
	r.slog.Log(statelog.Record{
		Event:   events.EventAgentOnline,
		AgentID: agent.ID,
		From:    "offline",
		To:      "active",
	})
	return nil
}

// Activate implements pending -> active after a first successful
// benchmark.
func (r *Reconciler) Activate(agent *types.Agent) error {
	if agent.State != types.AgentPending {
		return nil
	}
	agent.State = types.AgentActive
	agent.UpdatedAt = time.Now()
	return r.store.UpdateAgent(agent)
}

// MarkError implements any -> error on repeated fatal AgentErrors.
func (r *Reconciler) MarkError(agent *types.Agent, reason string) error {
	from := string(agent.State)
	agent.State = types.AgentError
	agent.UpdatedAt = time.Now()
	if err := r.store.UpdateAgent(agent); err != nil {
		return err
	}
	r.slog.Log(statelog.Record{
		Event:   events.EventAgentError,
		AgentID: agent.ID,
		From:    from,
		To:      "error",
		Context: map[string]string{"reason": reason},
	})
	return nil
}
