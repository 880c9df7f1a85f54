package main

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-redis/redis/v8"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/linklift/jobq/internal/config"
	"github.com/linklift/jobq/internal/handler"
	"github.com/linklift/jobq/internal/httpapi"
	"github.com/linklift/jobq/internal/pipeline"
	"github.com/linklift/jobq/internal/queue"
)

func newLogger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func openRedis(cfg *config.Config) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(queue.ErrBrokerUnavailable, "ping %v: %v", cfg.Redis.Addrs, err)
	}
	return client, nil
}

func kindFor(name string) (string, error) {
	switch name {
	case config.EmailQueue:
		return queue.KindEmail, nil
	case config.DataQueue:
		return queue.KindData, nil
	case config.VideoQueue:
		return queue.KindVideo, nil
	default:
		return "", errors.Errorf("no payload kind registered for queue %s", name)
	}
}

func queueDefaults(qc config.Queue) queue.Options {
	return queue.Options{
		MaxAttempts: qc.MaxAttempts,
		Backoff: queue.Policy{
			Type:  queue.BackoffType(qc.Backoff.Type),
			Delay: time.Duration(qc.Backoff.DelayMS) * time.Millisecond,
		},
		KeepCompleted: qc.KeepCompleted,
		KeepFailed:    qc.KeepFailed,
	}
}

func buildQueues(cfg *config.Config, driver queue.Driver) (map[string]*queue.Queue, error) {
	queues := make(map[string]*queue.Queue)
	for _, name := range cfg.QueueNames() {
		kind, err := kindFor(name)
		if err != nil {
			return nil, err
		}
		queues[name] = queue.New(name, kind, driver, queue.WithDefaults(queueDefaults(cfg.Queues[name])))
	}
	return queues, nil
}

func buildAnalyzer(cfg *config.Config, logger log.Logger) *pipeline.Analyzer {
	llm := &pipeline.LLMClient{
		BaseURL: cfg.Pipeline.LLM.BaseURL,
		APIKey:  cfg.Pipeline.LLM.APIKey,
		Model:   cfg.Pipeline.LLM.Model,
	}
	opts := []pipeline.AnalyzerOption{
		pipeline.WithLogger(log.With(logger, "component", "pipeline")),
		pipeline.WithPageFetcher(pipeline.NewPageFetcher(cfg.Pipeline.FetchTimeout())),
		pipeline.StrictAI(cfg.Pipeline.StrictAI),
	}
	if cfg.Pipeline.YouTubeAPIKey != "" {
		opts = append(opts, pipeline.WithYouTube(&pipeline.YouTubeClient{APIKey: cfg.Pipeline.YouTubeAPIKey}))
	}
	return pipeline.NewAnalyzer(llm, opts...)
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and all worker pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger()

			client, err := openRedis(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			driver := &queue.RedisDriver{
				Logger:      log.With(logger, "component", "driver"),
				RedisClient: client,
			}
			queues, err := buildQueues(cfg, driver)
			if err != nil {
				return err
			}
			analyzer := buildAnalyzer(cfg, logger)
			hub := queue.NewHub()

			gauge := kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
				Namespace: "jobq",
				Name:      "queue_length",
				Help:      "The gauge of queue length",
			}, []string{"queue", "channel"})

			handlers := map[string]queue.Handler{
				config.EmailQueue: handler.Email(handler.SimulatedMailer(log.With(logger, "component", "email"), 2*time.Second)),
				config.DataQueue:  handler.Data(log.With(logger, "component", "data"), 3*time.Second),
				config.VideoQueue: analyzer.Handler(),
			}

			var g run.Group

			for _, name := range cfg.QueueNames() {
				h, ok := handlers[name]
				if !ok {
					return errors.Errorf("no handler registered for queue %s", name)
				}
				w := queue.NewWorker(name, driver, h,
					queue.UseLogger(log.With(logger, "component", "worker", "queue", name)),
					queue.UseParallelism(cfg.Queues[name].Parallelism),
					queue.UseEvents(hub),
					queue.UseGauge(gauge.With("queue", name), 15*time.Second),
				)
				ctx, cancel := context.WithCancel(context.Background())
				g.Add(func() error {
					return w.Run(ctx)
				}, func(err error) {
					cancel()
				})
			}

			mover := queue.NewMover(driver, cfg.QueueNames(), time.Second, log.With(logger, "component", "mover"))
			{
				ctx, cancel := context.WithCancel(context.Background())
				g.Add(func() error {
					return mover.Run(ctx)
				}, func(err error) {
					cancel()
				})
			}

			api := httpapi.New(queues[config.VideoQueue], queues, log.With(logger, "component", "http"))
			srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: api.Router()}
			g.Add(func() error {
				_ = level.Info(logger).Log("msg", "http server listening", "addr", cfg.HTTP.Addr)
				return srv.ListenAndServe()
			}, func(err error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			})

			// Outcome log: one subscriber of the hub, the dashboards are another.
			sub := hub.Subscribe(64)
			g.Add(func() error {
				for ev := range sub.C {
					_ = level.Info(logger).Log("msg", "job outcome", "queue", ev.Queue, "job", ev.JobID, "outcome", ev.Outcome, "attempt", ev.Attempt, "err", ev.Err)
				}
				return nil
			}, func(err error) {
				sub.Cancel()
			})

			g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

			err = g.Run()
			var sig run.SignalError
			if errors.As(err, &sig) {
				_ = level.Info(logger).Log("msg", "shutting down", "signal", sig.Signal)
				return nil
			}
			return err
		},
	}
}
