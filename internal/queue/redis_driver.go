package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// priorityShift packs (priority, sequence) into one ZSET score. Sequence
// numbers stay below 2^40, priorities below 2^13, so the packed score is
// exactly representable in a float64.
const priorityShift = 40

// RedisDriver stores jobs in redis. Each queue maps to a small set of keys
// sharing one hash tag, so all of them land in the same cluster slot:
//
//  waiting    ZSET    score = priority<<40 | seq, popped with BZPOPMIN
//  delayed    ZSET    score = scheduledAt (unix ms)
//  active     SET     ids of in-flight jobs
//  completed  ZSET    score = finishedAt (unix ms), trimmed by retention
//  failed     ZSET    score = finishedAt (unix ms), trimmed by retention
//  job:<id>   HASH    serialized envelope + current state
//
// RedisDriver is safe for concurrent use by multiple worker pools.
type RedisDriver struct {
	Logger log.Logger
	// RedisClient is the shared broker connection. It is constructed once at
	// process start and injected; the go-redis client reconnects on its own.
	RedisClient redis.UniversalClient
	// KeyPrefix namespaces all keys. Defaults to "jobq".
	KeyPrefix string
	// PopTimeout bounds each blocking pop. Defaults to 2 seconds.
	PopTimeout time.Duration
	// Codec serializes the envelope. Defaults to JSON.
	Codec Codec
}

func (d *RedisDriver) prefix() string {
	if d.KeyPrefix == "" {
		return "jobq"
	}
	return d.KeyPrefix
}

func (d *RedisDriver) popTimeout() time.Duration {
	if d.PopTimeout == 0 {
		return 2 * time.Second
	}
	return d.PopTimeout
}

func (d *RedisDriver) codec() Codec {
	if d.Codec == nil {
		return jsonCodec{}
	}
	return d.Codec
}

func (d *RedisDriver) logger() log.Logger {
	if d.Logger == nil {
		return log.NewNopLogger()
	}
	return d.Logger
}

func (d *RedisDriver) key(queue, channel string) string {
	return fmt.Sprintf("%s:{%s}:%s", d.prefix(), queue, channel)
}

func (d *RedisDriver) jobKey(queue, id string) string {
	return fmt.Sprintf("%s:{%s}:job:%s", d.prefix(), queue, id)
}

func (d *RedisDriver) save(ctx context.Context, job *Job) error {
	data, err := d.codec().Marshal(job)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}
	return d.RedisClient.HSet(ctx, d.jobKey(job.Queue, job.ID), map[string]interface{}{
		"data":  data,
		"state": string(job.State),
	}).Err()
}

func (d *RedisDriver) load(ctx context.Context, queue, id string) (*Job, error) {
	data, err := d.RedisClient.HGet(ctx, d.jobKey(queue, id), "data").Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load job")
	}
	var job Job
	if err := d.codec().Unmarshal([]byte(data), &job); err != nil {
		return nil, errors.Wrap(err, "unmarshal job")
	}
	return &job, nil
}

// Push implements Driver.
func (d *RedisDriver) Push(ctx context.Context, job *Job, delay time.Duration) error {
	if delay > 0 {
		job.State = StateDelayed
		if err := d.save(ctx, job); err != nil {
			return errors.Wrapf(ErrBrokerUnavailable, "push: %v", err)
		}
		due := float64(time.Now().Add(delay).UnixMilli())
		err := d.RedisClient.ZAdd(ctx, d.key(job.Queue, "delayed"), &redis.Z{Score: due, Member: job.ID}).Err()
		if err != nil {
			return errors.Wrapf(ErrBrokerUnavailable, "push delayed: %v", err)
		}
		return nil
	}
	job.State = StateWaiting
	if err := d.save(ctx, job); err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "push: %v", err)
	}
	return d.pushWaiting(ctx, job)
}

func (d *RedisDriver) pushWaiting(ctx context.Context, job *Job) error {
	seq, err := d.RedisClient.Incr(ctx, d.key(job.Queue, "seq")).Result()
	if err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "push seq: %v", err)
	}
	score := float64(int64(job.Options.Priority)<<priorityShift | seq)
	err = d.RedisClient.ZAdd(ctx, d.key(job.Queue, "waiting"), &redis.Z{Score: score, Member: job.ID}).Err()
	if err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "push waiting: %v", err)
	}
	return nil
}

// Pop implements Driver. BZPOPMIN removes the member atomically, so each job
// id is handed to exactly one consumer.
func (d *RedisDriver) Pop(ctx context.Context, queue string) (*Job, error) {
	res, err := d.RedisClient.BZPopMin(ctx, d.popTimeout(), d.key(queue, "waiting")).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, errors.Wrap(err, "pop")
	}
	id, _ := res.Member.(string)
	job, err := d.load(ctx, queue, id)
	if err != nil {
		return nil, errors.Wrapf(err, "pop %s", id)
	}
	job.State = StateActive
	job.AttemptsMade++
	job.ProcessedAt = time.Now()
	if err := d.save(ctx, job); err != nil {
		return nil, errors.Wrapf(err, "reserve %s", id)
	}
	if err := d.RedisClient.SAdd(ctx, d.key(queue, "active"), id).Err(); err != nil {
		return nil, errors.Wrapf(err, "reserve %s", id)
	}
	return job, nil
}

// Ack implements Driver.
func (d *RedisDriver) Ack(ctx context.Context, job *Job, result []byte) error {
	job.State = StateCompleted
	job.FinishedAt = time.Now()
	job.Result = result
	if err := d.finish(ctx, job, "completed"); err != nil {
		return err
	}
	return d.trim(ctx, job.Queue, "completed", job.Options.KeepCompleted)
}

// Fail implements Driver.
func (d *RedisDriver) Fail(ctx context.Context, job *Job, msg string) error {
	job.State = StateFailed
	job.FinishedAt = time.Now()
	job.LastError = msg
	if err := d.finish(ctx, job, "failed"); err != nil {
		return err
	}
	return d.trim(ctx, job.Queue, "failed", job.Options.KeepFailed)
}

func (d *RedisDriver) finish(ctx context.Context, job *Job, channel string) error {
	if err := d.save(ctx, job); err != nil {
		return errors.Wrapf(err, "%s %s", channel, job.ID)
	}
	if err := d.RedisClient.SRem(ctx, d.key(job.Queue, "active"), job.ID).Err(); err != nil {
		return errors.Wrapf(err, "%s %s", channel, job.ID)
	}
	score := float64(job.FinishedAt.UnixMilli())
	err := d.RedisClient.ZAdd(ctx, d.key(job.Queue, channel), &redis.Z{Score: score, Member: job.ID}).Err()
	return errors.Wrapf(err, "%s %s", channel, job.ID)
}

// trim evicts the oldest terminal jobs beyond keep, hashes included.
func (d *RedisDriver) trim(ctx context.Context, queue, channel string, keep int) error {
	if keep <= 0 {
		return nil
	}
	key := d.key(queue, channel)
	n, err := d.RedisClient.ZCard(ctx, key).Result()
	if err != nil || n <= int64(keep) {
		return errors.Wrap(err, "trim")
	}
	stop := n - int64(keep) - 1
	evicted, err := d.RedisClient.ZRange(ctx, key, 0, stop).Result()
	if err != nil {
		return errors.Wrap(err, "trim")
	}
	for _, id := range evicted {
		if err := d.RedisClient.Del(ctx, d.jobKey(queue, id)).Err(); err != nil {
			_ = level.Warn(d.logger()).Log("msg", "evict job hash", "id", id, "err", err)
		}
	}
	return errors.Wrap(d.RedisClient.ZRemRangeByRank(ctx, key, 0, stop).Err(), "trim")
}

// Retry implements Driver.
func (d *RedisDriver) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	job.State = StateDelayed
	if err := d.save(ctx, job); err != nil {
		return errors.Wrapf(err, "retry %s", job.ID)
	}
	if err := d.RedisClient.SRem(ctx, d.key(job.Queue, "active"), job.ID).Err(); err != nil {
		return errors.Wrapf(err, "retry %s", job.ID)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	err := d.RedisClient.ZAdd(ctx, d.key(job.Queue, "delayed"), &redis.Z{Score: due, Member: job.ID}).Err()
	return errors.Wrapf(err, "retry %s", job.ID)
}

// PromoteDue implements Driver. The ZREM result arbitrates between competing
// movers: only the caller that actually removed the member re-enqueues it.
func (d *RedisDriver) PromoteDue(ctx context.Context, queue string) (int, error) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := d.RedisClient.ZRangeByScore(ctx, d.key(queue, "delayed"), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "promote")
	}
	var promoted int
	for _, id := range due {
		removed, err := d.RedisClient.ZRem(ctx, d.key(queue, "delayed"), id).Result()
		if err != nil {
			return promoted, errors.Wrapf(err, "promote %s", id)
		}
		if removed == 0 {
			continue
		}
		job, err := d.load(ctx, queue, id)
		if err != nil {
			_ = level.Warn(d.logger()).Log("msg", "promote: job hash missing", "id", id)
			continue
		}
		job.State = StateWaiting
		if err := d.save(ctx, job); err != nil {
			return promoted, errors.Wrapf(err, "promote %s", id)
		}
		if err := d.pushWaiting(ctx, job); err != nil {
			return promoted, errors.Wrapf(err, "promote %s", id)
		}
		promoted++
	}
	return promoted, nil
}

// Get implements Driver.
func (d *RedisDriver) Get(ctx context.Context, queue, id string) (*Job, error) {
	return d.load(ctx, queue, id)
}

// Info implements Driver.
func (d *RedisDriver) Info(ctx context.Context, queue string) (Info, error) {
	var info Info
	pipe := d.RedisClient.Pipeline()
	waiting := pipe.ZCard(ctx, d.key(queue, "waiting"))
	delayed := pipe.ZCard(ctx, d.key(queue, "delayed"))
	completed := pipe.ZCard(ctx, d.key(queue, "completed"))
	failed := pipe.ZCard(ctx, d.key(queue, "failed"))
	active := pipe.SCard(ctx, d.key(queue, "active"))
	if _, err := pipe.Exec(ctx); err != nil {
		return info, errors.Wrap(err, "info")
	}
	info.Waiting = waiting.Val()
	info.Delayed = delayed.Val()
	info.Completed = completed.Val()
	info.Failed = failed.Val()
	info.Active = active.Val()
	return info, nil
}
