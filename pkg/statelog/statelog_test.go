package statelog

import (
	"testing"
	"time"

	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, *events.Broker, events.Subscriber) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)
	sub := broker.Subscribe()
	return NewLogger(broker), broker, sub
}

func TestLogPublishesEventWithFromTo(t *testing.T) {
	logger, _, sub := newTestLogger(t)

	logger.Log(Record{Event: events.EventTaskAssigned, From: "none", To: "pending"})

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventTaskAssigned, ev.Type)
		assert.Equal(t, "none -> pending", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("expected an event to be published")
	}
}

func TestLogSuppressesZeroCountCleanup(t *testing.T) {
	logger, _, sub := newTestLogger(t)

	logger.Log(Record{Event: events.EventTaskReassigned, Context: map[string]string{"count": "0"}})

	select {
	case ev := <-sub:
		t.Fatalf("expected no event to be published for a zero-count cleanup record, got %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLogDoesNotSuppressNonzeroCount(t *testing.T) {
	logger, _, sub := newTestLogger(t)

	logger.Log(Record{Event: events.EventCrackFound, Context: map[string]string{"count": "2"}})

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventCrackFound, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event for a nonzero-count record")
	}
}

func TestLogDoesNotSuppressRecordsWithoutCountKey(t *testing.T) {
	logger, _, sub := newTestLogger(t)

	logger.Log(Record{Event: events.EventAgentOnline})

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventAgentOnline, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected an event for a record with no count context key")
	}
}

func TestBoundedContextCapsAtMaxContextKeys(t *testing.T) {
	ctx := make(map[string]string, maxContextKeys+5)
	for i := 0; i < maxContextKeys+5; i++ {
		ctx[string(rune('a'+i))] = "v"
	}
	bounded := boundedContext(ctx)
	require.LessOrEqual(t, len(bounded), maxContextKeys)
}

func TestBoundedContextPassesThroughSmallMaps(t *testing.T) {
	ctx := map[string]string{"a": "1", "b": "2"}
	bounded := boundedContext(ctx)
	assert.Equal(t, ctx, bounded)
}

func TestCaptureBacktraceReturnsFrames(t *testing.T) {
	frames := captureBacktrace()
	assert.NotEmpty(t, frames)
	assert.LessOrEqual(t, len(frames), maxBacktraceFrames)
}
