package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/config"
	"github.com/cipherswarm/cipherswarmd/pkg/controller"
	"github.com/cipherswarm/cipherswarmd/pkg/crack"
	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/eta"
	"github.com/cipherswarm/cipherswarmd/pkg/health"
	"github.com/cipherswarm/cipherswarmd/pkg/kv"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
	"github.com/cipherswarm/cipherswarmd/pkg/manager"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
	"github.com/cipherswarm/cipherswarmd/pkg/preemption"
	"github.com/cipherswarm/cipherswarmd/pkg/reconciler"
	"github.com/cipherswarm/cipherswarmd/pkg/scheduler"
	"github.com/cipherswarm/cipherswarmd/pkg/statusing"
	"github.com/cipherswarm/cipherswarmd/pkg/storage"
	"github.com/cipherswarm/cipherswarmd/pkg/types"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduling core and its ambient HTTP surfaces",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mgr := manager.NewManager(store, broker)

	preemptSvc := preemption.NewService(store, broker)
	schedulerSvc := scheduler.New(store, preemptSvc, broker)
	crackSvc := crack.NewService(store, broker)
	statusSvc := statusing.NewService(mgr)
	etaCalc := eta.NewCalculator(store, cfg.EtaCacheTTL)

	core := &controller.Controllers{
		Store:      mgr.Store(),
		Crack:      crackSvc,
		Status:     statusSvc,
		Assignment: schedulerSvc,
		Preemption: preemptSvc,
		Eta:        etaCalc,
		RecentIDs:  controller.NewSlidingWindowHeuristic(24 * time.Hour),
	}

	rec := reconciler.New(store, broker, cfg.HeartbeatGrace)
	rec.Start()
	defer rec.Stop()

	locks := kv.NewCacheStore(cfg.HealthLockTTL, cfg.HealthLockTTL*2)
	healthSvc := health.NewSystemHealthService(locks, cfg.HealthLockTTL)
	healthSvc.Register(health.DependencyRelationalStore, health.NewTCPChecker("127.0.0.1:0").WithTimeout(cfg.HealthProbeTimeout))
	healthSvc.Register(health.DependencyInMemoryStore, health.NewTCPChecker("127.0.0.1:0").WithTimeout(cfg.HealthProbeTimeout))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", healthSvc.Handler())
	mux.HandleFunc("/readyz", readyHandler(core))

	opsServer := &http.Server{
		Addr:         cfg.HealthAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger.Error().Err(err).Msg("ops server stopped")
		}
	}()

	log.Logger.Info().Str("data_dir", cfg.DataDir).Msg("scheduling core ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down cipherswarmd")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return opsServer.Shutdown(ctx)
}

// readyHandler reports whether the scheduling core's store is reachable,
// distinct from /health's deep dependency probes.
func readyHandler(core *controller.Controllers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := core.Store.ListAgentsByState(types.AgentActive); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready")
	}
}
