package queue

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Mover is the background ticking process that re-admits delayed jobs whose
// schedule elapsed back into the waiting set. One mover serves all queues of
// the process; running several is safe, the driver arbitrates.
type Mover struct {
	driver   Driver
	queues   []string
	interval time.Duration
	logger   log.Logger
}

// NewMover returns a mover ticking at the given interval.
func NewMover(driver Driver, queues []string, interval time.Duration, logger log.Logger) *Mover {
	if interval == 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Mover{driver: driver, queues: queues, interval: interval, logger: logger}
}

// Run blocks until the context is canceled.
func (m *Mover) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, queue := range m.queues {
				n, err := m.driver.PromoteDue(ctx, queue)
				if err != nil {
					_ = level.Warn(m.logger).Log("queue", queue, "err", err)
					continue
				}
				if n > 0 {
					_ = level.Debug(m.logger).Log("queue", queue, "promoted", n)
				}
			}
		}
	}
}
