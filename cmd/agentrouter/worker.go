package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/felipepmaragno/agentrouter/internal/queue"
	"github.com/felipepmaragno/agentrouter/internal/usage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newUsageWorkerCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "usage-worker",
		Short: "Drain usage records from SQS into the usage database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if cfg.UsageQueueURL == "" {
				return errors.New("usage-worker requires SQS_USAGE_QUEUE_URL")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a := &app{cfg: cfg, logger: log}
			if err := a.openUsageDB(ctx); err != nil {
				return err
			}
			defer a.Close()
			if a.repo == nil {
				return errors.New("usage-worker requires DATABASE_URL or SQLITE_PATH")
			}

			q, err := queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.UsageQueueURL, log)
			if err != nil {
				return err
			}

			log.Info("usage worker starting",
				zap.String("queue_url", cfg.UsageQueueURL),
				zap.String("driver", a.dbName),
			)
			return usage.NewConsumer(q, a.repo, log, usage.WithBatchSize(batchSize)).Run(ctx)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "messages received per poll (max 10)")
	return cmd
}
