// Package queue implements a durable, Redis-backed job queue with typed
// payloads, priority dequeue, bounded-concurrency workers and automatic
// retries.
//
// Introduction
//
// Queues in go is not as prominent as in some other languages, since go excels
// at handling concurrency. However, the durable queue can still offer some
// benefit missing from the native mechanism, say go channels. A queued job
// won't be lost even if the system shutdown. In other words, it means jobs can
// be retried until success. Plus, it is also possible to delay the execution
// of a particular job for a lengthy period of time.
//
// Simple Usage
//
// A Queue binds a name to one payload kind and a set of default options.
// Producers enqueue a typed payload and get back a job id:
//
//  emails := queue.New("email-queue", queue.KindEmail, driver)
//  id, err := emails.Enqueue(ctx, queue.EmailPayload{
//      To:      "user@example.com",
//      Subject: "Welcome",
//      Body:    "Thanks for signing up.",
//  }, queue.WithPriority(1))
//
// A Worker consumes that queue with a handler. At most N handler invocations
// run concurrently; each failed attempt is rescheduled with the backoff policy
// of the job until attempts are exhausted:
//
//  w := queue.NewWorker("email-queue", driver, handler, queue.UseParallelism(5))
//  go w.Run(ctx)
//
// How the queue persists the jobs is subject to the underlying driver. The
// default driver bundled in this package is the redis driver. An in-process
// driver is provided for tests and local development.
//
// Observing outcomes
//
// Completion, retry and terminal failure of every job are published to an
// event Hub. Any number of observers can subscribe; a subscription is a
// channel plus a cancel handle:
//
//  sub := hub.Subscribe(16)
//  defer sub.Cancel()
//  for ev := range sub.C { ... }
//
// Note if a job is retryable, it is your responsibility to ensure the
// idempotency of the handler.
package queue
