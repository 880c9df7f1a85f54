package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_WireRoundTrip(t *testing.T) {
	job := &Job{
		ID:    "abc",
		Queue: "video-processing-queue",
		Payload: VideoPayload{
			VideoLink: "https://youtube.com/watch?v=abc123",
			IsVideo:   true,
			UserID:    42,
			Type:      "video",
		},
		Options: Options{
			Priority:      1,
			MaxAttempts:   3,
			Backoff:       Policy{Type: BackoffExponential, Delay: 5 * time.Second},
			KeepCompleted: 100,
			KeepFailed:    50,
		},
		State:        StateWaiting,
		AttemptsMade: 0,
		CreatedAt:    time.Now().Truncate(time.Millisecond),
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"video"`)

	var got Job
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, job.ID, got.ID)
	assert.IsType(t, VideoPayload{}, got.Payload)
	assert.Equal(t, job.Payload, got.Payload)
	assert.Equal(t, job.Options, got.Options)
	assert.True(t, got.ProcessedAt.IsZero())
	assert.True(t, got.FinishedAt.IsZero())
}

func TestJob_UnknownKind(t *testing.T) {
	var got Job
	err := json.Unmarshal([]byte(`{"id":"x","kind":"carrier-pigeon","payload":{}}`), &got)
	assert.Error(t, err)
}

func TestPayload_Validate(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"valid email", EmailPayload{To: "a@b.c", Subject: "hi", Body: "text"}, false},
		{"email missing to", EmailPayload{Subject: "hi"}, true},
		{"email missing subject", EmailPayload{To: "a@b.c"}, true},
		{"valid data", DataPayload{UserID: "u1", Operation: "create"}, false},
		{"data bad operation", DataPayload{UserID: "u1", Operation: "upsert"}, true},
		{"valid video", VideoPayload{VideoLink: "https://youtu.be/x1y2z3", UserID: 42}, false},
		{"video missing link", VideoPayload{UserID: 42}, true},
		{"video missing user", VideoPayload{VideoLink: "https://youtu.be/x1y2z3"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.payload.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateWaiting.Terminal())
	assert.False(t, StateActive.Terminal())
	assert.False(t, StateDelayed.Terminal())
}
