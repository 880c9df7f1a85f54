package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe(4)
	second := hub.Subscribe(4)
	defer first.Cancel()
	defer second.Cancel()

	hub.Publish(Event{Queue: "q", JobID: "a", Outcome: OutcomeCompleted, Attempt: 1})

	assert.Equal(t, "a", (<-first.C).JobID)
	assert.Equal(t, "a", (<-second.C).JobID)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1)
	sub.Cancel()

	_, open := <-sub.C
	assert.False(t, open)

	// Cancel is idempotent and publishing after cancel must not panic.
	sub.Cancel()
	hub.Publish(Event{Queue: "q", JobID: "a"})
}

func TestHub_SlowSubscriberMissesInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1)
	defer sub.Cancel()

	hub.Publish(Event{JobID: "first"})
	hub.Publish(Event{JobID: "second"}) // buffer full, dropped

	assert.Equal(t, "first", (<-sub.C).JobID)
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}
