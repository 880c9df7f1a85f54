package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/linklift/jobq/internal/config"
	"github.com/linklift/jobq/internal/queue"
)

// produceCommand enqueues a batch of sample jobs, handy for smoke-testing a
// deployment end to end.
func produceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "produce",
		Short: "Enqueue sample email and data jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
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
			emails, data := queues[config.EmailQueue], queues[config.DataQueue]

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			emailJobs := []struct {
				payload  queue.EmailPayload
				priority int
			}{
				{queue.EmailPayload{To: "user1@example.com", Subject: "Welcome!", Body: "Thanks for signing up."}, 1},
				{queue.EmailPayload{To: "user2@example.com", Subject: "Order confirmation", Body: "Your order #12345 is confirmed."}, 2},
				{queue.EmailPayload{To: "user3@example.com", Subject: "Weekly newsletter", Body: "Here is what's new this week!"}, 3},
			}
			for _, j := range emailJobs {
				id, err := emails.Enqueue(ctx, j.payload, queue.WithPriority(j.priority))
				if err != nil {
					return err
				}
				fmt.Printf("email job %s (to: %s)\n", id, j.payload.To)
			}

			dataJobs := []queue.DataPayload{
				{UserID: "user-123", Operation: "create", Data: map[string]interface{}{"name": "Joao Silva", "role": "admin"}},
				{UserID: "user-456", Operation: "update", Data: map[string]interface{}{"status": "active", "lastLogin": time.Now().Format(time.RFC3339)}},
				{UserID: "user-789", Operation: "delete", Data: map[string]interface{}{"reason": "user requested account deletion"}},
			}
			for _, p := range dataJobs {
				id, err := data.Enqueue(ctx, p)
				if err != nil {
					return err
				}
				fmt.Printf("data job %s (user: %s)\n", id, p.UserID)
			}

			for _, q := range []*queue.Queue{emails, data} {
				counts, err := q.Counts(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s: waiting=%d active=%d completed=%d failed=%d delayed=%d\n",
					q.Name(), counts.Waiting, counts.Active, counts.Completed, counts.Failed, counts.Delayed)
			}
			return nil
		},
	}
}
