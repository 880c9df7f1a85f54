package queue

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// BackoffType selects how the retry delay grows between attempts.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Policy computes the delay before a failed job re-enters the waiting queue.
// It is deterministic on purpose: no jitter is added, so delay sequences can
// be asserted in tests and reasoned about in production.
type Policy struct {
	Type  BackoffType
	Delay time.Duration
}

// Next returns the delay to apply after the given attempt. attemptsMade is
// the number of attempts already made, starting from 1.
func (p Policy) Next(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	switch p.Type {
	case BackoffExponential:
		return p.Delay * (1 << (attemptsMade - 1))
	default:
		return p.Delay
	}
}

type policyWire struct {
	Type    BackoffType `json:"type"`
	DelayMS int64       `json:"delayMs"`
}

// MarshalJSON encodes the delay in milliseconds, matching the shape producers
// submit over HTTP.
func (p Policy) MarshalJSON() ([]byte, error) {
	return json.Marshal(policyWire{Type: p.Type, DelayMS: p.Delay.Milliseconds()})
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var w policyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(err, "decode backoff policy")
	}
	p.Type = w.Type
	p.Delay = time.Duration(w.DelayMS) * time.Millisecond
	return nil
}
