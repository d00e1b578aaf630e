package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBus_SubscribeDispatch verifies type-scoped handlers only see their
// type.
func TestBus_SubscribeDispatch(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var queued, failed int
	bus.Subscribe(JobQueued, func(e *Event) { queued++ })
	bus.Subscribe(JobFailed, func(e *Event) { failed++ })

	bus.Emit(JobQueued, "test", nil)
	bus.Emit(JobQueued, "test", nil)
	bus.Emit(JobCompleted, "test", nil)

	assert.Equal(t, 2, queued)
	assert.Equal(t, 0, failed)
}

// TestBus_SubscribeAll verifies the catch-all handler sees every type.
func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var types []EventType
	bus.SubscribeAll(func(e *Event) { types = append(types, e.Type) })

	bus.Emit(JobQueued, "test", nil)
	bus.Emit(JobProgress, "test", nil)
	bus.Emit(SystemStatusChanged, "test", nil)

	assert.Equal(t, []EventType{JobQueued, JobProgress, SystemStatusChanged}, types)
}

// TestBus_Unsubscribe verifies a removed subscription stops receiving events
// while other subscriptions keep theirs. Streaming handlers subscribe per
// connection, so removal has to actually drop the handler.
func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var all, scoped, kept int
	unsubAll := bus.SubscribeAll(func(e *Event) { all++ })
	unsubScoped := bus.Subscribe(JobQueued, func(e *Event) { scoped++ })
	bus.SubscribeAll(func(e *Event) { kept++ })

	bus.Emit(JobQueued, "test", nil)
	require.Equal(t, 1, all)
	require.Equal(t, 1, scoped)

	unsubAll()
	unsubScoped()

	bus.Emit(JobQueued, "test", nil)
	bus.Emit(JobCompleted, "test", nil)

	assert.Equal(t, 1, all)
	assert.Equal(t, 1, scoped)
	assert.Equal(t, 3, kept)
}

// TestBus_EmitTyped verifies structured payloads arrive intact with source
// and timestamp populated.
func TestBus_EmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got *Event
	bus.Subscribe(JobCompleted, func(e *Event) { got = e })

	data := &JobStatusData{
		JobID:     "abc",
		Status:    "completed",
		ResultRef: "ref-1",
		Timestamp: time.Now(),
	}
	bus.EmitTyped(JobCompleted, "queue", data)

	require.NotNil(t, got)
	assert.Equal(t, "queue", got.Source)
	assert.False(t, got.Timestamp.IsZero())

	typed, ok := got.Typed.(*JobStatusData)
	require.True(t, ok)
	assert.Equal(t, "abc", typed.JobID)
	assert.Equal(t, "ref-1", typed.ResultRef)
}

// TestJobStatusData_EventType covers the status-to-type mapping.
func TestJobStatusData_EventType(t *testing.T) {
	cases := map[string]EventType{
		"queued":    JobQueued,
		"running":   JobStarted,
		"progress":  JobProgress,
		"completed": JobCompleted,
		"failed":    JobFailed,
		"cancelled": JobCancelled,
		"other":     JobProgress,
	}
	for status, want := range cases {
		d := &JobStatusData{Status: status}
		assert.Equal(t, want, d.EventType(), status)
	}

	s := &SystemStatusData{Status: "ok"}
	assert.Equal(t, SystemStatusChanged, s.EventType())
}
