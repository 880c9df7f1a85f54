package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, ":5050", cfg.HTTP.Addr)

	email := cfg.Queues[EmailQueue]
	assert.Equal(t, 5, email.Parallelism)
	assert.Equal(t, 3, email.MaxAttempts)
	assert.Equal(t, "exponential", email.Backoff.Type)
	assert.EqualValues(t, 5000, email.Backoff.DelayMS)
	assert.Equal(t, 100, email.KeepCompleted)
	assert.Equal(t, 50, email.KeepFailed)

	data := cfg.Queues[DataQueue]
	assert.Equal(t, 3, data.Parallelism)
	assert.Equal(t, 5, data.MaxAttempts)
	assert.EqualValues(t, 2000, data.Backoff.DelayMS)

	video := cfg.Queues[VideoQueue]
	assert.Equal(t, 2, video.Parallelism)
	assert.Equal(t, 3, video.MaxAttempts)

	assert.Equal(t, "https://api.openai.com/v1", cfg.Pipeline.LLM.BaseURL)
	assert.False(t, cfg.Pipeline.StrictAI)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.FetchTimeout())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":8080"
redis:
  addrs:
    - redis-a:6379
    - redis-b:6379
  password: hunter2
pipeline:
  strictai: true
  llm:
    apikey: file-key
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Redis.Addrs)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.True(t, cfg.Pipeline.StrictAI)
	assert.Equal(t, "file-key", cfg.Pipeline.LLM.APIKey)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Queues[EmailQueue].Parallelism)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JOBQ_REDIS_PASSWORD", "from-env")
	t.Setenv("JOBQ_PIPELINE_LLM_APIKEY", "env-key")
	t.Setenv("JOBQ_HTTP_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Redis.Password)
	assert.Equal(t, "env-key", cfg.Pipeline.LLM.APIKey)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Pipeline.LLM.APIKey = "key"
		return cfg
	}

	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Redis.Addrs = nil
	assert.Error(t, cfg.Validate())

	cfg = valid()
	q := cfg.Queues[EmailQueue]
	q.Parallelism = 0
	cfg.Queues[EmailQueue] = q
	assert.Error(t, cfg.Validate())

	cfg = valid()
	q = cfg.Queues[DataQueue]
	q.Backoff.Type = "jittered"
	cfg.Queues[DataQueue] = q
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Pipeline.LLM.APIKey = ""
	assert.Error(t, cfg.Validate(), "video queue enabled without llm key")

	// Dropping the video queue lifts the llm requirement.
	delete(cfg.Queues, VideoQueue)
	assert.NoError(t, cfg.Validate())
}

func TestQueueNames_StableOrder(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{EmailQueue, DataQueue, VideoQueue}, cfg.QueueNames())
}
