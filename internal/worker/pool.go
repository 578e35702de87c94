// Package worker runs queued completion jobs from rabbitmq.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/store/rabbitmq"
)

type JobRunner interface {
	RunJob(ctx context.Context, jobID string) error
	GetJob(ctx context.Context, jobID string) (*chat.Job, error)
	FailJob(ctx context.Context, jobID, reason string) error
}

type Retrier interface {
	PublishRetry(ctx context.Context, jobID string, attempt int) error
}

// DefaultJobTimeout bounds one job, including a job still running when the
// pool shuts down.
const DefaultJobTimeout = 10 * time.Minute

type Pool struct {
	runner      JobRunner
	retry       Retrier
	concurrency int
	maxRetries  int

	JobTimeout time.Duration
}

func NewPool(runner JobRunner, retry Retrier, concurrency, maxRetries int) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	return &Pool{
		runner:      runner,
		retry:       retry,
		concurrency: concurrency,
		maxRetries:  maxRetries,
		JobTimeout:  DefaultJobTimeout,
	}
}

// Run dispatches deliveries to the pool until ctx is done or the delivery
// channel closes. In-flight jobs finish before Run returns; they run detached
// from ctx and are bounded by JobTimeout. Deliveries not yet started when ctx
// is done go back to the queue.
func (p *Pool) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	jobs := make(chan amqp.Delivery)
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(p.concurrency)
	for i := 0; i < p.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				if ctx.Err() != nil {
					requeue(d)
					continue
				}
				p.runOne(jobCtx, workerID, d)
			}
		}(i)
	}

	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			return nil

		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			select {
			case jobs <- d:
			case <-ctx.Done():
				requeue(d)
				slog.Info("worker shutting down")
				return nil
			}
		}
	}
}

func (p *Pool) runOne(ctx context.Context, workerID int, d amqp.Delivery) {
	if p.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.JobTimeout)
		defer cancel()
	}
	p.handle(ctx, workerID, d)
}

func requeue(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		slog.Warn("requeue failed", "err", err)
	}
}

func (p *Pool) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	var m rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
		slog.Warn("bad job message", "worker", workerID, "err", err)
		_ = d.Nack(false, false)
		return
	}
	log := slog.With("worker", workerID, "job_id", m.JobID)

	start := time.Now()
	err := p.runner.RunJob(ctx, m.JobID)
	cost := time.Since(start)
	if err == nil {
		if cost > 2*time.Second {
			log.Info("job_timing", "total", cost)
		}
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", "err", err)
		}
		return
	}

	log.Warn("job_timing_failed", "total", cost, "err", err)

	if errors.Is(err, context.Canceled) {
		requeue(d)
		return
	}
	if errors.Is(err, chat.ErrJobNotFound) {
		_ = d.Nack(false, false)
		return
	}
	// the failure is already recorded on the job row
	if j, gerr := p.runner.GetJob(ctx, m.JobID); gerr == nil && j.Status == chat.JobFailed {
		_ = d.Ack(false)
		return
	}

	attempt := rabbitmq.Attempt(d) + 1
	if p.retry != nil && attempt <= p.maxRetries {
		rerr := p.retry.PublishRetry(ctx, m.JobID, attempt)
		if rerr == nil {
			log.Info("job scheduled for retry", "attempt", attempt)
			_ = d.Ack(false)
			return
		}
		log.Warn("retry publish failed", "err", rerr)
	}
	if ferr := p.runner.FailJob(context.WithoutCancel(ctx), m.JobID, err.Error()); ferr != nil {
		log.Warn("mark job failed", "err", ferr)
	}
	_ = d.Nack(false, false)
}
