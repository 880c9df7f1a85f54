// Package handler holds the job handlers of the non-video queues.
package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/linklift/jobq/internal/queue"
)

type outcome struct {
	Success     bool      `json:"success"`
	ProcessedAt time.Time `json:"processedAt"`
	ProcessedBy string    `json:"processedBy"`
}

// Mailer sends one email. The default implementation only simulates the send;
// wiring a real provider is a matter of swapping this out in cmd.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, body string) error

func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// SimulatedMailer logs the email instead of sending it.
func SimulatedMailer(logger log.Logger, delay time.Duration) Mailer {
	return MailerFunc(func(ctx context.Context, to, subject, body string) error {
		_ = level.Info(logger).Log("msg", "sending email", "to", to, "subject", subject)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		_ = level.Info(logger).Log("msg", "email sent", "to", to)
		return nil
	})
}

// Email returns the handler of the email queue.
func Email(mailer Mailer) queue.Handler {
	return func(ctx context.Context, job *queue.Job) ([]byte, error) {
		payload, ok := job.Payload.(queue.EmailPayload)
		if !ok {
			return nil, queue.Fatal(errors.Errorf("email handler got %T payload", job.Payload))
		}
		if err := mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			return nil, err
		}
		return json.Marshal(outcome{Success: true, ProcessedAt: time.Now(), ProcessedBy: "emailWorker"})
	}
}

// Data returns the handler of the data-processing queue. The operations are
// simulated; each logs its input and reports success after a short pause.
func Data(logger log.Logger, delay time.Duration) queue.Handler {
	return func(ctx context.Context, job *queue.Job) ([]byte, error) {
		payload, ok := job.Payload.(queue.DataPayload)
		if !ok {
			return nil, queue.Fatal(errors.Errorf("data handler got %T payload", job.Payload))
		}
		_ = level.Info(logger).Log("msg", "processing data", "user", payload.UserID, "operation", payload.Operation)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		_ = level.Info(logger).Log("msg", "data processed", "user", payload.UserID)
		return json.Marshal(outcome{Success: true, ProcessedAt: time.Now(), ProcessedBy: "dataProcessingWorker"})
	}
}
