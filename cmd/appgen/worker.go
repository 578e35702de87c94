package main

import (
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/appgen/internal/store/rabbitmq"
	"github.com/suPer8Hu/appgen/internal/worker"
)

var (
	maxRetries int
	jobTimeout time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued completion jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := buildDeps(cfg)
		defer d.Close()

		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()

		consumer, deliveries, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency)
		if err != nil {
			return err
		}
		defer consumer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		slog.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", cfg.WorkerConcurrency)
		pool := worker.NewPool(d.Svc, pub, cfg.WorkerConcurrency, maxRetries)
		pool.JobTimeout = jobTimeout
		return pool.Run(ctx, deliveries)
	},
}

func init() {
	workerCmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retries for jobs that fail before recording a result")
	workerCmd.Flags().DurationVar(&jobTimeout, "job-timeout", worker.DefaultJobTimeout, "upper bound for one job, also applied while draining on shutdown")
	rootCmd.AddCommand(workerCmd)
}
