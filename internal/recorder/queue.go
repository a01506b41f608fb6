package recorder

import (
	"sync"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// RecordQueue is the single serialization point between concurrent
// client sessions and the export sink. Sessions enqueue finished
// records; one exporter goroutine drains them. When the queue is full
// the oldest record is dropped in favour of the new one.
type RecordQueue struct {
	mu       sync.Mutex
	capacity int
	items    []types.ResultRecord
	dropped  uint64
	metrics  metrics.QueueRecorder
}

func NewRecordQueue(capacity int) *RecordQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &RecordQueue{
		capacity: capacity,
		items:    make([]types.ResultRecord, 0, capacity),
	}
}

func (q *RecordQueue) SetMetricsRecorder(rec metrics.QueueRecorder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = rec
}

func (q *RecordQueue) Enqueue(record types.ResultRecord) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		q.dropped++
		dropped = true
		if q.metrics != nil {
			q.metrics.IncQueueDrops()
		}
	}
	q.items = append(q.items, record)
	if q.metrics != nil {
		q.metrics.ObserveQueueDepth(len(q.items))
	}
	return dropped
}

// Drain removes and returns up to max records; max <= 0 drains all.
func (q *RecordQueue) Drain(max int) []types.ResultRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if max > 0 && max < n {
		n = max
	}
	drained := make([]types.ResultRecord, n)
	copy(drained, q.items[:n])
	q.items = q.items[n:]
	if q.metrics != nil {
		q.metrics.ObserveQueueDepth(len(q.items))
	}
	return drained
}

func (q *RecordQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type Stats struct {
	Len     int
	Dropped uint64
}

func (q *RecordQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Len: len(q.items), Dropped: q.dropped}
}
