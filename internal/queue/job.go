package queue

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// State is the lifecycle state of a job. A job is in exactly one state at a
// time and never leaves a terminal state.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Payload kinds. Each queue is bound to exactly one kind.
const (
	KindEmail = "email"
	KindData  = "data"
	KindVideo = "video"
)

// Payload is the closed set of job payload variants. Implementations are
// plain value types that can be serialized to JSON.
type Payload interface {
	// Kind returns the payload variant tag used on the wire.
	Kind() string
	// Validate checks the payload shape before it is accepted by Enqueue.
	Validate() error
}

// EmailPayload describes an outbound email job.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (EmailPayload) Kind() string { return KindEmail }

func (p EmailPayload) Validate() error {
	if p.To == "" {
		return errors.New("email payload: to is required")
	}
	if p.Subject == "" {
		return errors.New("email payload: subject is required")
	}
	return nil
}

// DataPayload describes a user-data mutation job.
type DataPayload struct {
	UserID    string                 `json:"userId"`
	Operation string                 `json:"operation"`
	Data      map[string]interface{} `json:"data"`
}

func (DataPayload) Kind() string { return KindData }

func (p DataPayload) Validate() error {
	if p.UserID == "" {
		return errors.New("data payload: userId is required")
	}
	switch p.Operation {
	case "create", "update", "delete":
		return nil
	default:
		return errors.Errorf("data payload: unknown operation %q", p.Operation)
	}
}

// VideoPayload describes a video link submitted for content analysis.
type VideoPayload struct {
	VideoLink string `json:"videoLink"`
	IsVideo   bool   `json:"isVideo"`
	UserID    int64  `json:"userId"`
	Type      string `json:"type"`
}

func (VideoPayload) Kind() string { return KindVideo }

func (p VideoPayload) Validate() error {
	if p.VideoLink == "" {
		return errors.New("video payload: videoLink is required")
	}
	if p.UserID == 0 {
		return errors.New("video payload: userId is required")
	}
	return nil
}

// Options are the per-job knobs. Queue defaults are applied when the producer
// omits them.
type Options struct {
	// Priority orders dequeue: lower value first, FIFO within equal values.
	Priority int `json:"priority"`
	// MaxAttempts caps how many times the handler may run. At least 1.
	MaxAttempts int `json:"maxAttempts"`
	// Backoff decides the delay before the next retry.
	Backoff Policy `json:"backoff"`
	// KeepCompleted and KeepFailed bound the retention of terminal jobs.
	// Oldest beyond the bound are evicted. Zero keeps everything.
	KeepCompleted int `json:"keepCompleted"`
	KeepFailed    int `json:"keepFailed"`
}

// Job is the persisted unit of work. It is mutated only by the driver during
// state transitions; the single-owner pop guarantee means no two workers ever
// hold the same job at once.
type Job struct {
	ID           string
	Queue        string
	Payload      Payload
	Options      Options
	State        State
	AttemptsMade int
	CreatedAt    time.Time
	ProcessedAt  time.Time
	FinishedAt   time.Time
	Result       json.RawMessage
	LastError    string
}

type jobWire struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Options      Options         `json:"options"`
	State        State           `json:"state"`
	AttemptsMade int             `json:"attemptsMade"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"error,omitempty"`
}

// MarshalJSON flattens the payload behind a kind tag so the envelope can be
// reconstructed without reflection.
func (j *Job) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}
	w := jobWire{
		ID:           j.ID,
		Queue:        j.Queue,
		Kind:         j.Payload.Kind(),
		Payload:      raw,
		Options:      j.Options,
		State:        j.State,
		AttemptsMade: j.AttemptsMade,
		CreatedAt:    j.CreatedAt,
		Result:       j.Result,
		LastError:    j.LastError,
	}
	if !j.ProcessedAt.IsZero() {
		t := j.ProcessedAt
		w.ProcessedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		w.FinishedAt = &t
	}
	return json.Marshal(w)
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}
	j.ID = w.ID
	j.Queue = w.Queue
	j.Payload = payload
	j.Options = w.Options
	j.State = w.State
	j.AttemptsMade = w.AttemptsMade
	j.CreatedAt = w.CreatedAt
	j.Result = w.Result
	j.LastError = w.LastError
	j.ProcessedAt = time.Time{}
	j.FinishedAt = time.Time{}
	if w.ProcessedAt != nil {
		j.ProcessedAt = *w.ProcessedAt
	}
	if w.FinishedAt != nil {
		j.FinishedAt = *w.FinishedAt
	}
	return nil
}

func decodePayload(kind string, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindEmail:
		var p EmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "decode email payload")
		}
		return p, nil
	case KindData:
		var p DataPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "decode data payload")
		}
		return p, nil
	case KindVideo:
		var p VideoPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.Wrap(err, "decode video payload")
		}
		return p, nil
	default:
		return nil, errors.Errorf("unknown payload kind %q", kind)
	}
}

func (j *Job) clone() *Job {
	c := *j
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	return &c
}
