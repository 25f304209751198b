package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindNotFound, "not_found"},
		{KindGuessNotFound, "guess_not_found"},
		{KindDeviceStatusesNotFound, "device_statuses_not_found"},
		{KindTaskNotAssigned, "task_not_assigned"},
		{KindTaskDeleted, "task_deleted"},
		{KindTaskInvalid, "task_invalid"},
		{KindPerformanceThreshold, "performance_threshold"},
		{KindStale, "stale"},
		{KindPaused, "paused"},
		{KindPreempt, "preempt"},
		{KindVersionConflict, "version_conflict"},
		{KindInternal, "internal"},
		{Kind(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestDomainErrorError(t *testing.T) {
	plain := New(KindNotFound, "task missing")
	assert.Equal(t, "task missing", plain.Error())

	wrapped := Wrap(KindInternal, "store failed", errors.New("disk full"))
	assert.Equal(t, "store failed: disk full", wrapped.Error())
	assert.Equal(t, "disk full", errors.Unwrap(wrapped).Error())
}

func TestIs(t *testing.T) {
	err := New(KindStale, "task stale")
	assert.True(t, Is(err, KindStale))
	assert.False(t, Is(err, KindPaused))
	assert.False(t, Is(errors.New("plain error"), KindStale))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, KindNotFound, NotFound("task").Kind())
	assert.Equal(t, "task not found", NotFound("task").Error())

	assert.Equal(t, KindTaskInvalid, TaskInvalid("mismatched attack").Kind())

	vc := VersionConflict("task")
	assert.Equal(t, KindVersionConflict, vc.Kind())
	assert.Contains(t, vc.Error(), "version conflict")

	internal := Internal("boom", errors.New("root cause"))
	assert.Equal(t, KindInternal, internal.Kind())
	assert.Contains(t, internal.Error(), "root cause")
}
