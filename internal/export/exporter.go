package export

import (
	"context"
	"errors"
	"time"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/recorder"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Sink is the downstream consumer of result records (CSV file, test
// capture, ...). Implementations are called from a single goroutine.
type Sink interface {
	Send(ctx context.Context, records []types.ResultRecord) error
}

// Option configures an Exporter instance.
type Option func(*Exporter)

// WithBatchSize overrides the number of records flushed per send.
func WithBatchSize(size int) Option {
	return func(e *Exporter) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithIdleSleep customises the sleep interval when no data is available.
func WithIdleSleep(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.idleSleep = d
		}
	}
}

// WithMetricsRecorder counts exported records in the metrics store.
func WithMetricsRecorder(rec metrics.ExportRecorder) Option {
	return func(e *Exporter) {
		if rec != nil {
			e.metrics = rec
		}
	}
}

// Exporter is the single writer between the shared record queue and the
// export sink. Concurrent sessions enqueue; only this goroutine touches
// the sink, so rows can never interleave.
type Exporter struct {
	queue     *recorder.RecordQueue
	sink      Sink
	batchSize int
	idleSleep time.Duration
	metrics   metrics.ExportRecorder
}

func New(queue *recorder.RecordQueue, sink Sink, opts ...Option) *Exporter {
	e := &Exporter{
		queue:     queue,
		sink:      sink,
		batchSize: 256,
		idleSleep: 20 * time.Millisecond,
		metrics:   metrics.NoopExportRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run blocks until the context is cancelled, then performs a final
// drain so records enqueued before cancellation still reach the sink.
func (e *Exporter) Run(ctx context.Context) error {
	if e.queue == nil {
		return errors.New("exporter queue is nil")
	}
	if e.sink == nil {
		return errors.New("exporter sink is nil")
	}

	for {
		select {
		case <-ctx.Done():
			return e.Flush(context.WithoutCancel(ctx))
		default:
		}

		if e.flushBatch(ctx) {
			continue
		}

		select {
		case <-ctx.Done():
			return e.Flush(context.WithoutCancel(ctx))
		case <-time.After(e.idleSleep):
		}
	}
}

// Flush drains everything currently queued into the sink.
func (e *Exporter) Flush(ctx context.Context) error {
	for {
		records := e.queue.Drain(e.batchSize)
		if len(records) == 0 {
			return nil
		}
		if err := e.sink.Send(ctx, records); err != nil {
			return err
		}
		e.metrics.AddRecordsExported(len(records))
	}
}

func (e *Exporter) flushBatch(ctx context.Context) bool {
	records := e.queue.Drain(e.batchSize)
	if len(records) == 0 {
		return false
	}
	if err := e.sink.Send(ctx, records); err != nil {
		// Requeue so a transient sink fault loses nothing; the
		// drop-oldest queue bounds the damage under a persistent one.
		for _, rec := range records {
			e.queue.Enqueue(rec)
		}
		return false
	}
	e.metrics.AddRecordsExported(len(records))
	return true
}
