package queue

import (
	"context"
	"runtime"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// maxPopFailures is the number of consecutive broker errors tolerated by the
// pop loop before the worker gives up and surfaces the error.
const maxPopFailures = 10

// Handler processes one job. The returned bytes become the job's result on
// success. A plain error marks the attempt as transient and eligible for
// retry; wrap with Fatal to abort immediately.
type Handler func(ctx context.Context, job *Job) ([]byte, error)

// Worker is a bounded-concurrency pool consuming one queue. At any instant at
// most parallelism handler invocations are active.
type Worker struct {
	queue         string
	driver        Driver
	handler       Handler
	logger        log.Logger
	hub           *Hub
	parallelism   int
	gauge         metrics.Gauge
	checkInterval time.Duration
}

// WorkerOption tunes a Worker at construction.
type WorkerOption func(*Worker)

// UseLogger feeds the worker with a logger of choice.
func UseLogger(logger log.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// UseParallelism sets the number of concurrent handler slots.
func UseParallelism(parallelism int) WorkerOption {
	return func(w *Worker) {
		w.parallelism = parallelism
	}
}

// UseEvents publishes job outcomes to the hub.
func UseEvents(hub *Hub) WorkerOption {
	return func(w *Worker) {
		w.hub = hub
	}
}

// UseGauge reports queue lengths to the gauge on the given interval. The
// gauge is expected to carry a "channel" label.
func UseGauge(gauge metrics.Gauge, interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.gauge = gauge
		w.checkInterval = interval
	}
}

// NewWorker binds a handler to a queue with the default parallelism of
// runtime.NumCPU().
func NewWorker(queue string, driver Driver, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:       queue,
		driver:      driver,
		handler:     handler,
		logger:      log.NewNopLogger(),
		parallelism: runtime.NumCPU(),
	}
	for _, f := range opts {
		f(w)
	}
	return w
}

// Run starts the pool and blocks until the context is canceled or the broker
// becomes unreachable for good. Cancellation stops new dequeues; in-flight
// jobs finish before Run returns (graceful drain).
func (w *Worker) Run(ctx context.Context) error {
	var jobChan = make(chan *Job)
	g, popCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobChan)
		var failures int
		for {
			job, err := w.driver.Pop(popCtx, w.queue)
			if errors.Is(err, ErrEmpty) {
				failures = 0
				continue
			}
			if err != nil {
				if popCtx.Err() != nil {
					return nil
				}
				failures++
				if failures >= maxPopFailures {
					return errors.Wrapf(err, "queue %s unreachable after %d attempts", w.queue, failures)
				}
				_ = level.Warn(w.logger).Log("queue", w.queue, "err", errors.Wrap(err, "pop failed, backing off"))
				select {
				case <-time.After(time.Second):
				case <-popCtx.Done():
					return nil
				}
				continue
			}
			failures = 0
			select {
			case jobChan <- job:
			case <-popCtx.Done():
				// Ctx canceled after the pop succeeded. Hand the attempt back
				// and requeue so the job is not lost to the drain.
				job.AttemptsMade--
				_ = w.driver.Retry(context.Background(), job, 0)
				return nil
			}
		}
	})

	if w.gauge != nil {
		if w.checkInterval == 0 {
			w.checkInterval = 15 * time.Second
		}
		g.Go(func() error {
			ticker := time.NewTicker(w.checkInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					w.reportGauge(popCtx)
				case <-popCtx.Done():
					return nil
				}
			}
		})
	}

	for i := 0; i < w.parallelism; i++ {
		g.Go(func() error {
			for job := range jobChan {
				w.work(job)
			}
			return nil
		})
	}
	return g.Wait()
}

// work runs one attempt. State transitions use a background context: an
// attempt that already ran must be recorded even while shutting down.
func (w *Worker) work(job *Job) {
	ctx := context.Background()
	result, err := w.handler(ctx, job)
	if err != nil {
		if !IsFatal(err) && job.AttemptsMade < job.Options.MaxAttempts {
			delay := job.Options.Backoff.Next(job.AttemptsMade)
			_ = level.Info(w.logger).Log("err", errors.Wrapf(err, "job %s failed %d times, retrying in %s", job.ID, job.AttemptsMade, delay))
			job.LastError = err.Error()
			if rerr := w.driver.Retry(ctx, job, delay); rerr != nil {
				_ = level.Error(w.logger).Log("err", errors.Wrapf(rerr, "retry job %s", job.ID))
				return
			}
			w.publish(Event{Queue: w.queue, JobID: job.ID, Outcome: OutcomeRetrying, Attempt: job.AttemptsMade, Err: err.Error()})
			return
		}
		_ = level.Warn(w.logger).Log("err", errors.Wrapf(err, "job %s failed after %d attempts, aborted", job.ID, job.AttemptsMade))
		if ferr := w.driver.Fail(ctx, job, err.Error()); ferr != nil {
			_ = level.Error(w.logger).Log("err", errors.Wrapf(ferr, "fail job %s", job.ID))
			return
		}
		w.publish(Event{Queue: w.queue, JobID: job.ID, Outcome: OutcomeFailed, Attempt: job.AttemptsMade, Err: err.Error()})
		return
	}
	if aerr := w.driver.Ack(ctx, job, result); aerr != nil {
		_ = level.Error(w.logger).Log("err", errors.Wrapf(aerr, "ack job %s", job.ID))
		return
	}
	w.publish(Event{Queue: w.queue, JobID: job.ID, Outcome: OutcomeCompleted, Attempt: job.AttemptsMade})
}

func (w *Worker) publish(ev Event) {
	if w.hub != nil {
		w.hub.Publish(ev)
	}
}

func (w *Worker) reportGauge(ctx context.Context) {
	info, err := w.driver.Info(ctx, w.queue)
	if err != nil {
		_ = level.Warn(w.logger).Log("err", err)
		return
	}
	w.gauge.With("channel", "waiting").Set(float64(info.Waiting))
	w.gauge.With("channel", "active").Set(float64(info.Active))
	w.gauge.With("channel", "completed").Set(float64(info.Completed))
	w.gauge.With("channel", "failed").Set(float64(info.Failed))
	w.gauge.With("channel", "delayed").Set(float64(info.Delayed))
}
