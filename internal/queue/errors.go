package queue

import "github.com/pkg/errors"

var (
	// ErrEmpty is returned by Driver.Pop when no job became available within
	// the pop timeout. Consumers should just poll again.
	ErrEmpty = errors.New("no job available")
	// ErrNotFound is returned when a job id does not exist or has been
	// evicted by the retention policy.
	ErrNotFound = errors.New("job not found")
	// ErrBrokerUnavailable indicates the connection to the durable store
	// cannot be established.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrInvalidPayload indicates the payload failed validation for the
	// target queue. Never retried.
	ErrInvalidPayload = errors.New("invalid payload")
)

// FatalError forces an immediate terminal failure regardless of remaining
// attempts. Handlers return it for conditions that cannot heal by retrying,
// e.g. missing required configuration.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err so the worker aborts the job instead of retrying.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Transient wraps err with context marking it as retriable. It exists for
// symmetry and readability at call sites; any non-fatal handler error is
// treated as transient by the worker.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, "transient")
}
