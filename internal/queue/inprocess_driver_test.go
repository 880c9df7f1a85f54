package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(queue, id string, priority int) *Job {
	return &Job{
		ID:    id,
		Queue: queue,
		Payload: EmailPayload{
			To:      id + "@example.com",
			Subject: "test",
		},
		Options: Options{
			Priority:    priority,
			MaxAttempts: 3,
			Backoff:     Policy{Type: BackoffFixed, Delay: time.Millisecond},
		},
		CreatedAt: time.Now(),
	}
}

func TestInProcessDriver_PriorityThenFIFO(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()

	// A has priority 2, B and C priority 1, enqueued in order A, B, C.
	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 2), 0))
	require.NoError(t, driver.Push(ctx, newTestJob("q", "B", 1), 0))
	require.NoError(t, driver.Push(ctx, newTestJob("q", "C", 1), 0))

	var order []string
	for i := 0; i < 3; i++ {
		job, err := driver.Pop(ctx, "q")
		require.NoError(t, err)
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)
}

func TestInProcessDriver_PopIncrementsAttempts(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()
	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 0), 0))

	job, err := driver.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.AttemptsMade)
	assert.False(t, job.ProcessedAt.IsZero())
}

func TestInProcessDriver_PopEmpty(t *testing.T) {
	driver := NewInProcessDriver()
	_, err := driver.Pop(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestInProcessDriver_DelayedVisibleAfterPromote(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()
	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 0), 10*time.Millisecond))

	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Delayed)
	assert.EqualValues(t, 0, info.Waiting)

	// Not due yet.
	n, err := driver.PromoteDue(ctx, "q")
	require.NoError(t, err)
	assert.Zero(t, n)

	time.Sleep(15 * time.Millisecond)
	n, err = driver.PromoteDue(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := driver.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "A", job.ID)
}

func TestInProcessDriver_AckStoresResultOnce(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()
	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 0), 0))
	job, err := driver.Pop(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, driver.Ack(ctx, job, []byte(`{"ok":true}`)))

	got, err := driver.Get(ctx, "q", "A")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.JSONEq(t, `{"ok":true}`, string(got.Result))
	assert.Empty(t, got.LastError)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestInProcessDriver_FailStoresError(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()
	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 0), 0))
	job, err := driver.Pop(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, driver.Fail(ctx, job, "boom"))

	got, err := driver.Get(ctx, "q", "A")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, got.State)
	assert.Equal(t, "boom", got.LastError)
	assert.Nil(t, got.Result)
}

func TestInProcessDriver_RetentionEvictsOldestFirst(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := newTestJob("q", fmt.Sprintf("job-%d", i), 0)
		job.Options.KeepCompleted = 2
		require.NoError(t, driver.Push(ctx, job, 0))
	}
	for i := 0; i < 5; i++ {
		job, err := driver.Pop(ctx, "q")
		require.NoError(t, err)
		require.NoError(t, driver.Ack(ctx, job, nil))
	}

	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.Completed)

	// The three oldest completions are gone, the two newest remain.
	for _, id := range []string{"job-0", "job-1", "job-2"} {
		_, err := driver.Get(ctx, "q", id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	for _, id := range []string{"job-3", "job-4"} {
		_, err := driver.Get(ctx, "q", id)
		assert.NoError(t, err, id)
	}
}

func TestInProcessDriver_GetNotFound(t *testing.T) {
	driver := NewInProcessDriver()
	_, err := driver.Get(context.Background(), "q", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInProcessDriver_SingleOwnerDelivery(t *testing.T) {
	driver := NewInProcessDriver()
	ctx := context.Background()
	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, driver.Push(ctx, newTestJob("q", fmt.Sprintf("job-%d", i), 0), 0))
	}

	ids := make(chan string, total)
	for i := 0; i < 4; i++ {
		go func() {
			for {
				job, err := driver.Pop(ctx, "q")
				if err != nil {
					return
				}
				ids <- job.ID
			}
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < total; i++ {
		select {
		case id := <-ids:
			assert.False(t, seen[id], "job %s delivered twice", id)
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d deliveries", i)
		}
	}
}
