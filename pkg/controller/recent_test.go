package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowHeuristicRecallsWithinWindow(t *testing.T) {
	h := NewSlidingWindowHeuristic(time.Minute)
	h.Observe("task-1", time.Now())
	assert.True(t, h.WasRecentlyDeleted("task-1"))
}

func TestSlidingWindowHeuristicUnknownIDNotRecalled(t *testing.T) {
	h := NewSlidingWindowHeuristic(time.Minute)
	assert.False(t, h.WasRecentlyDeleted("never-seen"))
}

func TestSlidingWindowHeuristicEvictsAfterWindow(t *testing.T) {
	h := NewSlidingWindowHeuristic(time.Minute)
	h.Observe("task-1", time.Now().Add(-time.Hour))
	assert.False(t, h.WasRecentlyDeleted("task-1"))
}

func TestSlidingWindowHeuristicEvictsStaleEntriesOnObserve(t *testing.T) {
	h := NewSlidingWindowHeuristic(time.Minute)
	h.Observe("stale", time.Now().Add(-2*time.Hour))
	h.Observe("fresh", time.Now())

	assert.False(t, h.WasRecentlyDeleted("stale"))
	assert.True(t, h.WasRecentlyDeleted("fresh"))
}
