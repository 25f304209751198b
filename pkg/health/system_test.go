package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	result Result
}

func (s *stubChecker) Check(ctx context.Context) Result { return s.result }
func (s *stubChecker) Type() CheckType                  { return CheckTypeExec }

// erroringLockStore simulates the in-memory store itself being
// unreachable: SetNX always fails, so the lock can never be taken.
type erroringLockStore struct{}

func (erroringLockStore) SetNX(key string, ttl time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}
func (erroringLockStore) Incr(key string) (int64, error) { return 0, errors.New("connection refused") }
func (erroringLockStore) Release(key string) error       { return nil }

func TestSystemHealthServiceAggregatesHealthy(t *testing.T) {
	svc := NewSystemHealthService(kv.NewCacheStore(time.Minute, 0), time.Minute)
	svc.Register(DependencyRelationalStore, &stubChecker{result: Result{Healthy: true}})
	svc.Register(DependencyObjectStorage, &stubChecker{result: Result{Healthy: true}})

	report := svc.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Components, 2)
}

func TestSystemHealthServiceDegradedWhenOneDependencyUnhealthy(t *testing.T) {
	svc := NewSystemHealthService(kv.NewCacheStore(time.Minute, 0), time.Minute)
	svc.Register(DependencyRelationalStore, &stubChecker{result: Result{Healthy: true}})
	svc.Register(DependencyObjectStorage, &stubChecker{result: Result{Healthy: false}})

	report := svc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestSystemHealthServiceReturnsCheckingBeforeFirstReport(t *testing.T) {
	locks := kv.NewCacheStore(time.Minute, 0)
	// Pre-hold the lock so the service under test loses the race.
	won, err := locks.SetNX(lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	svc := NewSystemHealthService(locks, time.Minute)
	svc.Register(DependencyRelationalStore, &stubChecker{result: Result{Healthy: true}})

	report := svc.Check(context.Background())
	assert.Equal(t, StatusChecking, report.Status)
}

func TestSystemHealthServiceReusesLastReportWhenLockHeld(t *testing.T) {
	locks := kv.NewCacheStore(time.Minute, 0)
	svc := NewSystemHealthService(locks, time.Minute)
	svc.Register(DependencyRelationalStore, &stubChecker{result: Result{Healthy: true}})

	first := svc.Check(context.Background())
	require.Equal(t, StatusHealthy, first.Status)

	// The lock was released after the first check completed (deferred
	// Release), so re-acquire it here to simulate an in-flight probe.
	won, err := locks.SetNX(lockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	second := svc.Check(context.Background())
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Timestamp, second.Timestamp, "a caller that loses the lock gets the prior report verbatim")
}

func TestSystemHealthServiceProbesOthersWhenLockStoreErrors(t *testing.T) {
	svc := NewSystemHealthService(erroringLockStore{}, time.Minute)
	svc.Register(DependencyRelationalStore, &stubChecker{result: Result{Healthy: true}})
	svc.Register(DependencyObjectStorage, &stubChecker{result: Result{Healthy: true}})
	svc.Register(DependencyInMemoryStore, &stubChecker{result: Result{Healthy: true}})

	report := svc.Check(context.Background())

	assert.Equal(t, StatusDegraded, report.Status, "an unreachable lock store always degrades the overall report")
	require.Contains(t, report.Components, DependencyInMemoryStore)
	assert.False(t, report.Components[DependencyInMemoryStore].Healthy, "the in-memory store is synthesized unhealthy, not probed via its own registered Checker")

	require.Contains(t, report.Components, DependencyRelationalStore)
	assert.True(t, report.Components[DependencyRelationalStore].Healthy, "other dependencies are still probed directly, bypassing the lock")
	require.Contains(t, report.Components, DependencyObjectStorage)
	assert.True(t, report.Components[DependencyObjectStorage].Healthy)
}
