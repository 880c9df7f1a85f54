package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueAppliesDefaults(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver, WithDefaults(Options{
		MaxAttempts:   3,
		Backoff:       Policy{Type: BackoffExponential, Delay: 5 * time.Second},
		KeepCompleted: 100,
		KeepFailed:    50,
	}))

	id, err := q.Enqueue(context.Background(), EmailPayload{To: "a@b.c", Subject: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
	assert.Equal(t, 3, job.Options.MaxAttempts)
	assert.Equal(t, 100, job.Options.KeepCompleted)
	assert.Zero(t, job.AttemptsMade)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestQueue_EnqueueOptionsOverride(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver)

	id, err := q.Enqueue(context.Background(), EmailPayload{To: "a@b.c", Subject: "hi"},
		WithPriority(7), WithMaxAttempts(5))
	require.NoError(t, err)

	job, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 7, job.Options.Priority)
	assert.Equal(t, 5, job.Options.MaxAttempts)
}

func TestQueue_EnqueueWithDelay(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver)

	id, err := q.Enqueue(context.Background(), EmailPayload{To: "a@b.c", Subject: "hi"},
		WithDelay(time.Minute))
	require.NoError(t, err)

	job, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, job.State)
}

func TestQueue_EnqueueRejectsWrongKind(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver)

	_, err := q.Enqueue(context.Background(), VideoPayload{VideoLink: "https://youtu.be/x1y2z3", UserID: 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestQueue_EnqueueRejectsInvalidPayload(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver)

	_, err := q.Enqueue(context.Background(), EmailPayload{Subject: "no recipient"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestQueue_GetJobNotFound(t *testing.T) {
	q := New("email-queue", KindEmail, NewInProcessDriver())
	_, err := q.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueue_Counts(t *testing.T) {
	driver := NewInProcessDriver()
	q := New("email-queue", KindEmail, driver)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, EmailPayload{To: "a@b.c", Subject: "hi"})
		require.NoError(t, err)
	}
	_, err := q.Enqueue(ctx, EmailPayload{To: "a@b.c", Subject: "later"}, WithDelay(time.Hour))
	require.NoError(t, err)

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts.Waiting)
	assert.EqualValues(t, 1, counts.Delayed)
}
