package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerDurationIsMonotonic(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 5*time.Millisecond)
}

func TestTimerObserveDurationRecordsASample(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_observe_duration", Help: "test"})
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDuration(h)

	assert.Equal(t, uint64(1), testutil.ToFloat64Histogram(h).SampleCount)
}

func TestTimerObserveDurationVecRecordsPerLabel(t *testing.T) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_observe_duration_vec", Help: "test"}, []string{"dependency"})
	timer := NewTimer()
	timer.ObserveDurationVec(h, "object_storage")

	count := testutil.CollectAndCount(h)
	assert.Equal(t, 1, count)
}
