package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/kv"
	"github.com/cipherswarm/cipherswarmd/pkg/metrics"
)

// Dependency names the four collaborators a system health check probes.
type Dependency string

const (
	DependencyRelationalStore Dependency = "relational_store"
	DependencyInMemoryStore   Dependency = "in_memory_store"
	DependencyObjectStorage   Dependency = "object_storage"
	DependencyBackgroundJobs  Dependency = "background_jobs"
)

// OverallStatus is the aggregate verdict a system health check produces.
type OverallStatus string

const (
	StatusHealthy  OverallStatus = "healthy"
	StatusDegraded OverallStatus = "degraded"
	StatusChecking OverallStatus = "checking"
)

// Report is the JSON body a system health check returns.
type Report struct {
	Status     OverallStatus        `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	Components map[Dependency]Result `json:"components"`
}

// lockKey names the kv entry a system health check holds while it runs,
// so concurrent callers get the previous report (or "checking") instead
// of each re-probing every dependency.
const lockKey = "health:system-check"

// SystemHealthService implements C8: it probes every dependency Checker on
// demand, one check at a time. The lock is released when a check ends;
// lockTTL only bounds how long a lock can be held. Callers that arrive
// while another check is in flight receive the last report unchanged, or
// a report with Status "checking" when no report exists yet.
type SystemHealthService struct {
	mu       sync.RWMutex
	checkers map[Dependency]Checker
	lockTTL  time.Duration
	locks    kv.Store
	last     *Report
}

func NewSystemHealthService(locks kv.Store, lockTTL time.Duration) *SystemHealthService {
	return &SystemHealthService{
		checkers: make(map[Dependency]Checker),
		lockTTL:  lockTTL,
		locks:    locks,
	}
}

func (s *SystemHealthService) Register(dep Dependency, c Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[dep] = c
}

// Check runs (or reuses) a system health check. It is safe for concurrent
// use: only the caller that wins the named lock actually probes
// dependencies; the rest see the previous report, or "checking" if none
// exists yet.
func (s *SystemHealthService) Check(ctx context.Context) Report {
	won, err := s.locks.SetNX(lockKey, s.lockTTL)
	if err != nil {
		return s.checkDegradedWithoutLock(ctx, err)
	}
	if !won {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.last != nil {
			return *s.last
		}
		return Report{Status: StatusChecking, Timestamp: time.Now(), Components: map[Dependency]Result{}}
	}
	defer s.locks.Release(lockKey)

	report := s.probe(ctx, s.snapshotCheckers())

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	return report
}

// checkDegradedWithoutLock handles the in-memory store being unreachable
// outright (the lock itself cannot be taken): it cannot stampede-guard
// against concurrent callers, so it probes every other dependency
// directly and reports DependencyInMemoryStore as unhealthy rather than
// returning a stale cached report.
func (s *SystemHealthService) checkDegradedWithoutLock(ctx context.Context, lockErr error) Report {
	checkers := s.snapshotCheckers()
	delete(checkers, DependencyInMemoryStore)

	report := s.probe(ctx, checkers)
	report.Status = StatusDegraded
	report.Components[DependencyInMemoryStore] = Result{
		Healthy:   false,
		Message:   "lock store unreachable: " + lockErr.Error(),
		CheckedAt: time.Now(),
	}

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	return report
}

func (s *SystemHealthService) snapshotCheckers() map[Dependency]Checker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checkers := make(map[Dependency]Checker, len(s.checkers))
	for dep, c := range s.checkers {
		checkers[dep] = c
	}
	return checkers
}

// probe runs every checker in checkers and aggregates the result; it
// does not touch s.last, leaving that to the caller.
func (s *SystemHealthService) probe(ctx context.Context, checkers map[Dependency]Checker) Report {
	components := make(map[Dependency]Result, len(checkers))
	overall := StatusHealthy
	for dep, c := range checkers {
		timer := metrics.NewTimer()
		res := c.Check(ctx)
		timer.ObserveDurationVec(metrics.HealthCheckDuration, string(dep))
		components[dep] = res
		if !res.Healthy {
			overall = StatusDegraded
		}
	}
	return Report{Status: overall, Timestamp: time.Now(), Components: components}
}

// Handler serves the aggregate system health check over HTTP, as an
// ambient ops surface alongside the metrics endpoint; it is not part of
// the scheduling transport itself.
func (s *SystemHealthService) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := s.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if report.Status == StatusDegraded {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(report)
	}
}
