package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusUpdateFlipsUnhealthyAfterRetriesExhausted(t *testing.T) {
	cfg := Config{Retries: 3}
	s := NewStatus()

	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy, "still healthy before ConsecutiveFailures reaches Retries")
	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.True(t, s.Healthy)
	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	assert.False(t, s.Healthy, "flips once ConsecutiveFailures == Retries")
}

func TestStatusUpdateResetsFailuresOnSuccess(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()

	s.Update(Result{Healthy: false, CheckedAt: time.Now()}, cfg)
	s.Update(Result{Healthy: true, CheckedAt: time.Now()}, cfg)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.True(t, s.Healthy)
}

func TestStatusInStartPeriod(t *testing.T) {
	s := NewStatus()

	assert.False(t, s.InStartPeriod(Config{StartPeriod: 0}), "zero StartPeriod disables the grace window")
	assert.True(t, s.InStartPeriod(Config{StartPeriod: time.Hour}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 30*time.Second, cfg.Interval)
}
