package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InProcessDriver is a memory-backed Driver for tests and local development.
// It honors the same ordering, retention and single-owner semantics as the
// redis driver, minus durability.
type InProcessDriver struct {
	mu         sync.Mutex
	queues     map[string]*memQueue
	popTimeout time.Duration
}

type memEntry struct {
	id       string
	priority int
	seq      int64
}

type memQueue struct {
	waiting   []memEntry
	seq       int64
	delayed   map[string]time.Time
	active    map[string]struct{}
	completed []string
	failed    []string
	jobs      map[string]*Job
	notify    chan struct{}
}

// NewInProcessDriver returns an empty in-process driver.
func NewInProcessDriver() *InProcessDriver {
	return &InProcessDriver{
		queues:     make(map[string]*memQueue),
		popTimeout: 200 * time.Millisecond,
	}
}

func (d *InProcessDriver) queue(name string) *memQueue {
	q, ok := d.queues[name]
	if !ok {
		q = &memQueue{
			delayed: make(map[string]time.Time),
			active:  make(map[string]struct{}),
			jobs:    make(map[string]*Job),
			notify:  make(chan struct{}, 1),
		}
		d.queues[name] = q
	}
	return q
}

func (q *memQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *memQueue) insertWaiting(job *Job) {
	q.seq++
	entry := memEntry{id: job.ID, priority: job.Options.Priority, seq: q.seq}
	// Sequence numbers grow monotonically, so inserting after the last entry
	// of lower-or-equal priority keeps the slice in (priority, seq) order.
	i := sort.Search(len(q.waiting), func(i int) bool {
		return q.waiting[i].priority > entry.priority
	})
	q.waiting = append(q.waiting, memEntry{})
	copy(q.waiting[i+1:], q.waiting[i:])
	q.waiting[i] = entry
}

// Push implements Driver.
func (d *InProcessDriver) Push(ctx context.Context, job *Job, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(job.Queue)
	stored := job.clone()
	q.jobs[stored.ID] = stored
	if delay > 0 {
		stored.State = StateDelayed
		q.delayed[stored.ID] = time.Now().Add(delay)
		return nil
	}
	stored.State = StateWaiting
	q.insertWaiting(stored)
	q.signal()
	return nil
}

// Pop implements Driver.
func (d *InProcessDriver) Pop(ctx context.Context, queue string) (*Job, error) {
	deadline := time.After(d.popTimeout)
	for {
		d.mu.Lock()
		q := d.queue(queue)
		if len(q.waiting) > 0 {
			entry := q.waiting[0]
			q.waiting = q.waiting[1:]
			job := q.jobs[entry.id]
			job.State = StateActive
			job.AttemptsMade++
			job.ProcessedAt = time.Now()
			q.active[job.ID] = struct{}{}
			out := job.clone()
			d.mu.Unlock()
			return out, nil
		}
		notify := q.notify
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, ErrEmpty
		case <-notify:
		}
	}
}

// Ack implements Driver.
func (d *InProcessDriver) Ack(ctx context.Context, job *Job, result []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(job.Queue)
	stored, ok := q.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	stored.AttemptsMade = job.AttemptsMade
	stored.State = StateCompleted
	stored.FinishedAt = time.Now()
	stored.Result = result
	delete(q.active, stored.ID)
	q.completed = append(q.completed, stored.ID)
	q.completed = trimTerminal(q, q.completed, stored.Options.KeepCompleted)
	return nil
}

// Fail implements Driver.
func (d *InProcessDriver) Fail(ctx context.Context, job *Job, msg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(job.Queue)
	stored, ok := q.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	stored.AttemptsMade = job.AttemptsMade
	stored.State = StateFailed
	stored.FinishedAt = time.Now()
	stored.LastError = msg
	delete(q.active, stored.ID)
	q.failed = append(q.failed, stored.ID)
	q.failed = trimTerminal(q, q.failed, stored.Options.KeepFailed)
	return nil
}

// trimTerminal evicts the oldest ids beyond keep, hashes included.
func trimTerminal(q *memQueue, ids []string, keep int) []string {
	if keep <= 0 {
		return ids
	}
	for len(ids) > keep {
		delete(q.jobs, ids[0])
		ids = ids[1:]
	}
	return ids
}

// Retry implements Driver.
func (d *InProcessDriver) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(job.Queue)
	stored, ok := q.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	stored.AttemptsMade = job.AttemptsMade
	stored.State = StateDelayed
	stored.LastError = job.LastError
	delete(q.active, stored.ID)
	q.delayed[stored.ID] = time.Now().Add(delay)
	return nil
}

// PromoteDue implements Driver.
func (d *InProcessDriver) PromoteDue(ctx context.Context, queue string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(queue)
	now := time.Now()
	var promoted int
	for id, due := range q.delayed {
		if due.After(now) {
			continue
		}
		delete(q.delayed, id)
		job := q.jobs[id]
		job.State = StateWaiting
		q.insertWaiting(job)
		promoted++
	}
	if promoted > 0 {
		q.signal()
	}
	return promoted, nil
}

// Get implements Driver.
func (d *InProcessDriver) Get(ctx context.Context, queue, id string) (*Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.queue(queue).jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

// Info implements Driver.
func (d *InProcessDriver) Info(ctx context.Context, queue string) (Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queue(queue)
	return Info{
		Waiting:   int64(len(q.waiting)),
		Active:    int64(len(q.active)),
		Completed: int64(len(q.completed)),
		Failed:    int64(len(q.failed)),
		Delayed:   int64(len(q.delayed)),
	}, nil
}
