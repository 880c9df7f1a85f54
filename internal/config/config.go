// Package config loads and validates the process configuration from an
// optional YAML file with JOBQ_ environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

// Queue names. The closed queue set is part of the configuration surface.
const (
	EmailQueue = "email-queue"
	DataQueue  = "data-processing-queue"
	VideoQueue = "video-processing-queue"
)

// Redis is the broker connection target.
type Redis struct {
	Addrs    []string `koanf:"addrs"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	DB       int      `koanf:"db"`
}

// HTTP is the ingress listener.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Backoff mirrors the per-queue retry policy.
type Backoff struct {
	Type    string `koanf:"type"`
	DelayMS int64  `koanf:"delayms"`
}

// Queue is the per-queue tuning.
type Queue struct {
	Parallelism   int     `koanf:"parallelism"`
	MaxAttempts   int     `koanf:"maxattempts"`
	Backoff       Backoff `koanf:"backoff"`
	KeepCompleted int     `koanf:"keepcompleted"`
	KeepFailed    int     `koanf:"keepfailed"`
}

// LLM is the language model service used by the video pipeline.
type LLM struct {
	BaseURL string `koanf:"baseurl"`
	APIKey  string `koanf:"apikey"`
	Model   string `koanf:"model"`
}

// Pipeline configures the video content-analysis stages.
type Pipeline struct {
	YouTubeAPIKey       string `koanf:"youtubeapikey"`
	LLM                 LLM    `koanf:"llm"`
	StrictAI            bool   `koanf:"strictai"`
	FetchTimeoutSeconds int    `koanf:"fetchtimeoutseconds"`
}

// FetchTimeout is the raw page fetch timeout.
func (p Pipeline) FetchTimeout() time.Duration {
	if p.FetchTimeoutSeconds == 0 {
		return 10 * time.Second
	}
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}

// Config is the full process configuration.
type Config struct {
	Redis    Redis            `koanf:"redis"`
	HTTP     HTTP             `koanf:"http"`
	Queues   map[string]Queue `koanf:"queues"`
	Pipeline Pipeline         `koanf:"pipeline"`
}

// Defaults mirror the original deployment: light email jobs run wide, the
// video pipeline runs narrow because of external API rate sensitivity.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"redis.addrs": []string{"localhost:6379"},
		"http.addr":   ":5050",

		"queues." + EmailQueue + ".parallelism":    5,
		"queues." + EmailQueue + ".maxattempts":    3,
		"queues." + EmailQueue + ".backoff.type":   "exponential",
		"queues." + EmailQueue + ".backoff.delayms": 5000,
		"queues." + EmailQueue + ".keepcompleted":  100,
		"queues." + EmailQueue + ".keepfailed":     50,

		"queues." + DataQueue + ".parallelism":    3,
		"queues." + DataQueue + ".maxattempts":    5,
		"queues." + DataQueue + ".backoff.type":   "exponential",
		"queues." + DataQueue + ".backoff.delayms": 2000,
		"queues." + DataQueue + ".keepcompleted":  50,
		"queues." + DataQueue + ".keepfailed":     100,

		"queues." + VideoQueue + ".parallelism":    2,
		"queues." + VideoQueue + ".maxattempts":    3,
		"queues." + VideoQueue + ".backoff.type":   "exponential",
		"queues." + VideoQueue + ".backoff.delayms": 5000,
		"queues." + VideoQueue + ".keepcompleted":  100,
		"queues." + VideoQueue + ".keepfailed":     50,

		"pipeline.llm.baseurl":         "https://api.openai.com/v1",
		"pipeline.llm.model":           "gpt-4o-mini",
		"pipeline.strictai":            false,
		"pipeline.fetchtimeoutseconds": 10,
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment overrides apply. Environment variables use the
// JOBQ_ prefix with underscores as separators, e.g. JOBQ_REDIS_PASSWORD or
// JOBQ_PIPELINE_LLM_APIKEY.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}
	err := k.Load(env.Provider("JOBQ_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "JOBQ_")), "_", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// Validate fails fast on configuration the process cannot run with. Missing
// credentials for an enabled pipeline stage are a startup error, not a
// per-job surprise.
func (c *Config) Validate() error {
	if len(c.Redis.Addrs) == 0 {
		return errors.New("config: redis.addrs is required")
	}
	for name, q := range c.Queues {
		if q.Parallelism < 1 {
			return errors.Errorf("config: queue %s: parallelism must be at least 1", name)
		}
		if q.MaxAttempts < 1 {
			return errors.Errorf("config: queue %s: maxAttempts must be at least 1", name)
		}
		switch q.Backoff.Type {
		case "fixed", "exponential":
		default:
			return errors.Errorf("config: queue %s: unknown backoff type %q", name, q.Backoff.Type)
		}
	}
	if _, ok := c.Queues[VideoQueue]; ok {
		if c.Pipeline.LLM.APIKey == "" {
			return errors.New("config: pipeline.llm.apiKey is required when the video queue is enabled")
		}
	}
	return nil
}

// QueueNames lists the configured queues in a stable order.
func (c *Config) QueueNames() []string {
	names := make([]string, 0, len(c.Queues))
	for _, n := range []string{EmailQueue, DataQueue, VideoQueue} {
		if _, ok := c.Queues[n]; ok {
			names = append(names, n)
		}
	}
	for n := range c.Queues {
		switch n {
		case EmailQueue, DataQueue, VideoQueue:
		default:
			names = append(names, n)
		}
	}
	return names
}
