package usage

import (
	"context"
	"sync"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultRecordTimeout = 5 * time.Second
	DefaultBufferSize    = 256
)

type RecorderConfig struct {
	Timeout    time.Duration
	BufferSize int
}

// Recorder writes usage records to a sink without ever surfacing sink failures.
// After Start, records are queued and written by a background worker; a full
// queue drops the record with a warning.
type Recorder struct {
	sink    Sink
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	queue   chan domain.UsageRecord
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewRecorder(sink Sink, logger *zap.Logger, cfg RecorderConfig) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRecordTimeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Recorder{
		sink:    sink,
		logger:  logger,
		timeout: cfg.Timeout,
		queue:   make(chan domain.UsageRecord, cfg.BufferSize),
	}
}

// Start launches the background writer. Records queued before Stop are drained.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started || r.closed {
		return
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for rec := range r.queue {
			r.write(context.Background(), rec)
		}
	}()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) Record(ctx context.Context, rec domain.UsageRecord) {
	if r.sink == nil {
		return
	}

	r.mu.RLock()
	async, closed := r.started, r.closed
	if async && !closed {
		select {
		case r.queue <- rec:
			r.mu.RUnlock()
			return
		default:
			r.mu.RUnlock()
			metrics.RecordUsage("dropped")
			r.logger.Warn("usage queue full, dropping record",
				zap.String("task_id", rec.TaskID),
				zap.String("model", rec.ModelUsed),
			)
			return
		}
	}
	r.mu.RUnlock()

	if closed {
		metrics.RecordUsage("dropped")
		return
	}
	r.write(context.WithoutCancel(ctx), rec)
}

func (r *Recorder) write(ctx context.Context, rec domain.UsageRecord) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sink.Record(ctx, rec); err != nil {
		metrics.RecordUsage("failed")
		r.logger.Warn("failed to record usage",
			zap.String("task_id", rec.TaskID),
			zap.String("model", rec.ModelUsed),
			zap.Error(err),
		)
		return
	}
	metrics.RecordUsage("recorded")
}
