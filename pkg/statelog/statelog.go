// Package statelog implements the state-change logger (C7): every
// scheduling component funnels its transitions through here so that
// Campaign/Attack/Task/Agent state changes land as uniform structured
// log records and are broadcast on pkg/events for any UI subscriber.
package statelog

import (
	"runtime"
	"strconv"

	"github.com/cipherswarm/cipherswarmd/pkg/events"
	"github.com/cipherswarm/cipherswarmd/pkg/log"
)

const maxBacktraceFrames = 5

// maxContextKeys bounds how many context entries a Record carries, so a
// caller that builds up context in a loop cannot make a single log line
// unbounded.
const maxContextKeys = 16

// Record is one uniform state-change entry.
type Record struct {
	Event      events.EventType
	TaskID     string
	AgentID    string
	AttackID   string
	CampaignID string
	From       string
	To         string
	Context    map[string]string
	Backtrace  []string
}

// Logger writes Records to the structured logger and republishes them as
// events.Event on the broker.
type Logger struct {
	broker *events.Broker
}

func NewLogger(broker *events.Broker) *Logger {
	return &Logger{broker: broker}
}

// Log emits rec to the structured logger and the event broker. A
// data-cleanup record (one whose Context["count"] is an integer <= 0) is
// suppressed rather than logged, since an empty cleanup pass carries no
// information. A record without a "count" key is always logged.
func (l *Logger) Log(rec Record) {
	if isSuppressedCleanup(rec) {
		return
	}

	rec.Backtrace = captureBacktrace()

	logger := log.WithComponent("statelog")
	entry := logger.Info().
		Str("event", string(rec.Event)).
		Str("from", rec.From).
		Str("to", rec.To)

	if rec.TaskID != "" {
		entry = entry.Str("task_id", rec.TaskID)
	}
	if rec.AgentID != "" {
		entry = entry.Str("agent_id", rec.AgentID)
	}
	if rec.AttackID != "" {
		entry = entry.Str("attack_id", rec.AttackID)
	}
	if rec.CampaignID != "" {
		entry = entry.Str("campaign_id", rec.CampaignID)
	}

	ctx := boundedContext(rec.Context)
	for k, v := range ctx {
		entry = entry.Str("ctx_"+k, v)
	}
	entry.Strs("backtrace", rec.Backtrace).Msg("state change")

	if l.broker != nil {
		l.broker.Publish(&events.Event{
			Type:     rec.Event,
			Message:  rec.From + " -> " + rec.To,
			Metadata: ctx,
		})
	}
}

func isSuppressedCleanup(rec Record) bool {
	if rec.Context == nil {
		return false
	}
	count, ok := rec.Context["count"]
	if !ok {
		return false
	}
	n, err := strconv.Atoi(count)
	return err == nil && n <= 0
}

func boundedContext(ctx map[string]string) map[string]string {
	if len(ctx) <= maxContextKeys {
		return ctx
	}
	out := make(map[string]string, maxContextKeys)
	n := 0
	for k, v := range ctx {
		if n >= maxContextKeys {
			break
		}
		out[k] = v
		n++
	}
	return out
}

// captureBacktrace returns up to maxBacktraceFrames caller frames above
// this package, for attaching to a state-change record.
func captureBacktrace() []string {
	pc := make([]uintptr, maxBacktraceFrames+4)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pc[:n])
	out := make([]string, 0, maxBacktraceFrames)
	for len(out) < maxBacktraceFrames {
		frame, more := frames.Next()
		out = append(out, frame.Function)
		if !more {
			break
		}
	}
	return out
}
