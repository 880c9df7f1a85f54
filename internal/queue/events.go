package queue

import "sync"

// Outcome labels the observable result of one handler attempt.
type Outcome string

const (
	// OutcomeCompleted fires when a job reached the completed state.
	OutcomeCompleted Outcome = "completed"
	// OutcomeRetrying fires when a failed job is going to be retried.
	// Note: if retry attempts are exhausted, this outcome won't fire.
	OutcomeRetrying Outcome = "retrying"
	// OutcomeFailed fires when a failed job is aborted for good. If the job
	// still has retry attempts remaining, this outcome won't fire.
	OutcomeFailed Outcome = "failed"
)

// Event describes a job outcome. It is informational only; consuming it never
// mutates the stored job state.
type Event struct {
	Queue   string
	JobID   string
	Outcome Outcome
	Attempt int
	Err     string
}

// Hub fans job outcomes out to any number of subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Event)}
}

// Subscription is a cancellable stream of events. C is closed by Cancel.
type Subscription struct {
	C      <-chan Event
	cancel func()
	once   sync.Once
}

// Cancel detaches the subscription from the hub and closes C.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Subscribe registers a new observer with the given channel buffer. A slow
// observer whose buffer is full misses events rather than blocking workers.
func (h *Hub) Subscribe(buffer int) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Event, buffer)
	h.subs[id] = ch
	return &Subscription{
		C: ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		},
	}
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
