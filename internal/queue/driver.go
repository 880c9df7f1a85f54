package queue

import (
	"context"
	"time"
)

// Driver is the storage backend behind queues and workers. Implementations
// must be safe for concurrent use by all worker pools of the process, and
// must guarantee single-owner delivery: a popped job is handed to exactly one
// caller.
type Driver interface {
	// Push persists the job. With delay > 0 the job lands in the delayed set
	// and becomes visible to Pop only once the delay elapsed.
	Push(ctx context.Context, job *Job, delay time.Duration) error
	// Pop blocks up to the driver's pop timeout for the next job of the
	// queue, honoring priority (lower first) then FIFO. It returns ErrEmpty
	// on timeout. The returned job is already transitioned to active with
	// AttemptsMade incremented.
	Pop(ctx context.Context, queue string) (*Job, error)
	// Ack marks the job completed, stores its result and applies the
	// completed-retention policy.
	Ack(ctx context.Context, job *Job, result []byte) error
	// Fail marks the job terminally failed, stores the error message and
	// applies the failed-retention policy.
	Fail(ctx context.Context, job *Job, msg string) error
	// Retry reschedules the failed job into the delayed set.
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	// PromoteDue moves delayed jobs whose schedule elapsed back to waiting.
	// It returns the number of promoted jobs.
	PromoteDue(ctx context.Context, queue string) (int, error)
	// Get loads a job by id. ErrNotFound if absent or evicted.
	Get(ctx context.Context, queue, id string) (*Job, error)
	// Info reports the per-state lengths of the queue.
	Info(ctx context.Context, queue string) (Info, error)
}

// Info describes the state of one queue.
type Info struct {
	// Waiting is the length of the waiting set.
	Waiting int64 `json:"waiting"`
	// Active is the number of in-flight jobs.
	Active int64 `json:"active"`
	// Completed is the length of the completed set (after retention).
	Completed int64 `json:"completed"`
	// Failed is the length of the failed set (after retention).
	Failed int64 `json:"failed"`
	// Delayed is the length of the delayed set.
	Delayed int64 `json:"delayed"`
}
