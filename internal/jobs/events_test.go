package jobs

import (
	"testing"

	"github.com/mantonx/vcompress/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestBroker_TerminalClosesStreams(t *testing.T) {
	b := newBroker()
	first, _ := b.subscribe("j")
	second, _ := b.subscribe("j")
	other, unsubscribeOther := b.subscribe("k")
	defer unsubscribeOther()

	b.publish(Event{JobID: "j", Status: database.JobStatusRunning, Progress: 0.5})
	b.publish(Event{JobID: "j", Status: database.JobStatusCompleted, Progress: 1})

	for _, ch := range []<-chan Event{first, second} {
		events := drain(ch)
		require.Len(t, events, 2)
		assert.Equal(t, 0.5, events[0].Progress)
		assert.True(t, events[1].Terminal())
	}

	select {
	case ev := <-other:
		t.Fatalf("unexpected event for other job: %+v", ev)
	default:
	}
}

func TestBroker_SlowSubscriber(t *testing.T) {
	b := newBroker()
	ch, _ := b.subscribe("j")

	for i := 0; i < subscriberBuffer*2; i++ {
		b.publish(Event{JobID: "j", Status: database.JobStatusRunning, Progress: float64(i) / 100})
	}
	b.publish(Event{JobID: "j", Status: database.JobStatusFailed, Error: "boom"})

	events := drain(ch)
	require.Len(t, events, subscriberBuffer)
	last := events[len(events)-1]
	assert.Equal(t, database.JobStatusFailed, last.Status)
	assert.Equal(t, "boom", last.Error)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := newBroker()
	ch, unsubscribe := b.subscribe("j")

	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing to a job nobody listens to is a no-op.
	b.publish(Event{JobID: "j", Status: database.JobStatusCancelled})
	assert.Empty(t, b.subs)
}

func TestClosedStream(t *testing.T) {
	events := drain(closedStream(Event{JobID: "j", Status: database.JobStatusSkipped}))
	require.Len(t, events, 1)
	assert.Equal(t, database.JobStatusSkipped, events[0].Status)
}

func TestBroker_EndClosesOnAnyStatus(t *testing.T) {
	b := newBroker()
	ch, unsubscribe := b.subscribe("j")

	b.end(Event{JobID: "j", Status: database.JobStatusPending})

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, database.JobStatusPending, events[0].Status)
	assert.Empty(t, b.subs)

	// Unsubscribing after the stream ended must not close it twice.
	assert.NotPanics(t, unsubscribe)
}
