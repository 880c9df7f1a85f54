package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Queue is the producer surface of one named queue. It validates payloads,
// applies the queue's default options and persists the job via the driver.
type Queue struct {
	name     string
	kind     string
	driver   Driver
	defaults Options
}

// QueueOption tunes a Queue at construction.
type QueueOption func(*Queue)

// WithDefaults replaces the queue's default job options.
func WithDefaults(defaults Options) QueueOption {
	return func(q *Queue) {
		q.defaults = defaults
	}
}

// New binds a queue name to a payload kind and a driver.
func New(name, kind string, driver Driver, opts ...QueueOption) *Queue {
	q := &Queue{
		name:   name,
		kind:   kind,
		driver: driver,
		defaults: Options{
			MaxAttempts: 1,
			Backoff:     Policy{Type: BackoffExponential, Delay: 2 * time.Second},
		},
	}
	for _, f := range opts {
		f(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

type jobSettings struct {
	priority    *int
	maxAttempts *int
	delay       time.Duration
}

// JobOption adjusts a single enqueued job.
type JobOption func(*jobSettings)

// WithPriority orders the job ahead of higher numeric priorities.
func WithPriority(priority int) JobOption {
	return func(s *jobSettings) {
		s.priority = &priority
	}
}

// WithMaxAttempts overrides the queue's default attempt cap.
func WithMaxAttempts(attempts int) JobOption {
	return func(s *jobSettings) {
		s.maxAttempts = &attempts
	}
}

// WithDelay defers the first execution of the job.
func WithDelay(delay time.Duration) JobOption {
	return func(s *jobSettings) {
		s.delay = delay
	}
}

// Enqueue persists a job and returns its id. The acknowledgment is of
// persistence, not of execution. It fails with ErrInvalidPayload when the
// payload does not match the queue's kind or fails validation, and with
// ErrBrokerUnavailable when the broker cannot be reached.
func (q *Queue) Enqueue(ctx context.Context, payload Payload, opts ...JobOption) (string, error) {
	if payload == nil || payload.Kind() != q.kind {
		return "", errors.Wrapf(ErrInvalidPayload, "queue %s accepts %s payloads", q.name, q.kind)
	}
	if err := payload.Validate(); err != nil {
		return "", errors.Wrapf(ErrInvalidPayload, "%v", err)
	}

	var settings jobSettings
	for _, f := range opts {
		f(&settings)
	}
	options := q.defaults
	if settings.priority != nil {
		options.Priority = *settings.priority
	}
	if settings.maxAttempts != nil {
		options.MaxAttempts = *settings.maxAttempts
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	job := &Job{
		ID:        uuid.NewString(),
		Queue:     q.name,
		Payload:   payload,
		Options:   options,
		CreatedAt: time.Now(),
	}
	if err := q.driver.Push(ctx, job, settings.delay); err != nil {
		return "", err
	}
	return job.ID, nil
}

// GetJob loads a job by id. ErrNotFound if the job never existed or has been
// evicted by retention.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.driver.Get(ctx, q.name, id)
}

// Counts reports the per-state lengths of the queue.
func (q *Queue) Counts(ctx context.Context) (Info, error) {
	return q.driver.Info(ctx, q.name)
}
