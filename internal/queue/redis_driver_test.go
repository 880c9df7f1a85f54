package queue

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getDefaultRedisAddrs() ([]string, bool) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, false
	}
	return strings.Split(addr, ","), true
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func setUpRedisDriver(t *testing.T) (*RedisDriver, func()) {
	t.Helper()
	addrs, ok := getDefaultRedisAddrs()
	if !ok {
		t.Skip("Set env REDIS_ADDR to run redis driver tests")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs})
	prefix := fmt.Sprintf("jobqtest:%d", time.Now().UnixNano())
	driver := &RedisDriver{
		RedisClient: client,
		KeyPrefix:   prefix,
		PopTimeout:  time.Second,
	}
	return driver, func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	}
}

func TestRedisDriver_PushPopAck(t *testing.T) {
	driver, tearDown := setUpRedisDriver(t)
	defer tearDown()
	ctx := context.Background()

	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 2), 0))
	require.NoError(t, driver.Push(ctx, newTestJob("q", "B", 1), 0))
	require.NoError(t, driver.Push(ctx, newTestJob("q", "C", 1), 0))

	var order []string
	for i := 0; i < 3; i++ {
		job, err := driver.Pop(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, StateActive, job.State)
		assert.Equal(t, 1, job.AttemptsMade)
		order = append(order, job.ID)
		require.NoError(t, driver.Ack(ctx, job, []byte(`{"ok":true}`)))
	}
	assert.Equal(t, []string{"B", "C", "A"}, order)

	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.Completed)
	assert.EqualValues(t, 0, info.Waiting)
	assert.EqualValues(t, 0, info.Active)

	job, err := driver.Get(ctx, "q", "B")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State)
	assert.JSONEq(t, `{"ok":true}`, string(job.Result))
}

func TestRedisDriver_PopEmpty(t *testing.T) {
	driver, tearDown := setUpRedisDriver(t)
	defer tearDown()
	driver.PopTimeout = 100 * time.Millisecond

	_, err := driver.Pop(context.Background(), "empty")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisDriver_RetryAndPromote(t *testing.T) {
	driver, tearDown := setUpRedisDriver(t)
	defer tearDown()
	ctx := context.Background()

	require.NoError(t, driver.Push(ctx, newTestJob("q", "A", 0), 0))
	job, err := driver.Pop(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, driver.Retry(ctx, job, 10*time.Millisecond))
	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Delayed)
	assert.EqualValues(t, 0, info.Active)

	time.Sleep(20 * time.Millisecond)
	n, err := driver.PromoteDue(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := driver.Pop(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "A", again.ID)
	assert.Equal(t, 2, again.AttemptsMade)
}

func TestRedisDriver_RetentionTrim(t *testing.T) {
	driver, tearDown := setUpRedisDriver(t)
	defer tearDown()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		job := newTestJob("q", fmt.Sprintf("job-%d", i), 0)
		job.Options.KeepCompleted = 2
		require.NoError(t, driver.Push(ctx, job, 0))
	}
	for i := 0; i < 4; i++ {
		job, err := driver.Pop(ctx, "q")
		require.NoError(t, err)
		require.NoError(t, driver.Ack(ctx, job, nil))
		time.Sleep(2 * time.Millisecond) // distinct finish timestamps
	}

	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 2, info.Completed)

	_, err = driver.Get(ctx, "q", "job-0")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = driver.Get(ctx, "q", "job-3")
	assert.NoError(t, err)
}

func TestRedisDriver_DelayedPush(t *testing.T) {
	driver, tearDown := setUpRedisDriver(t)
	defer tearDown()
	ctx := context.Background()

	require.NoError(t, driver.Push(ctx, newTestJob("q", "later", 0), time.Hour))
	info, err := driver.Info(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.Delayed)

	job, err := driver.Get(ctx, "q", "later")
	require.NoError(t, err)
	assert.Equal(t, StateDelayed, job.State)
}
