package usage

import (
	"context"
	"errors"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/queue"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 10
	defaultPollInterval = time.Second
)

// Consumer drains usage records published by gateway instances into a sink.
// A record is acknowledged only after the sink accepted it, so failed writes
// are redelivered by the queue.
type Consumer struct {
	queue        queue.Queue
	sink         Sink
	logger       *zap.Logger
	batchSize    int
	pollInterval time.Duration
}

type ConsumerOption func(*Consumer)

func WithBatchSize(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func NewConsumer(q queue.Queue, sink Sink, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		queue:        q,
		sink:         sink,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessBatch receives one batch and returns how many records were stored.
func (c *Consumer) ProcessBatch(ctx context.Context) (int, error) {
	messages, err := c.queue.Receive(ctx, c.batchSize)
	if err != nil {
		return 0, err
	}

	stored := 0
	var errs []error
	for _, msg := range messages {
		if err := c.sink.Record(ctx, msg.Record); err != nil {
			c.logger.Warn("failed to store usage record",
				zap.String("id", msg.Record.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if err := c.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			c.logger.Warn("failed to acknowledge usage message", zap.String("id", msg.Record.ID), zap.Error(err))
			errs = append(errs, err)
		}
		stored++
	}

	return stored, errors.Join(errs...)
}

// Run processes batches until ctx is cancelled. It sleeps for the poll interval
// after an empty batch or a receive failure.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("usage consumer started", zap.Int("batch_size", c.batchSize))

	for {
		if ctx.Err() != nil {
			c.logger.Info("usage consumer stopped")
			return nil
		}

		n, err := c.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.Error("usage batch failed", zap.Error(err))
		}
		if n > 0 {
			c.logger.Debug("usage batch stored", zap.Int("count", n))
		}
		if n > 0 && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(c.pollInterval):
		}
	}
}
