package recorder

import (
	"time"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Recorder flattens finished sessions into export records at the
// configured granularity and feeds them through the shared queue.
type Recorder struct {
	runID       string
	granularity types.Granularity
	queue       *RecordQueue
}

func New(runID string, granularity types.Granularity, queue *RecordQueue) *Recorder {
	return &Recorder{
		runID:       runID,
		granularity: granularity,
		queue:       queue,
	}
}

func (r *Recorder) Queue() *RecordQueue {
	return r.queue
}

// RecordSession converts one finalized session into queue records.
// Session granularity emits a single aggregate row; exchange
// granularity emits one row per exchange, lost ones included.
func (r *Recorder) RecordSession(s *session.Session, stats session.Stats) {
	now := time.Now().UTC()
	switch r.granularity {
	case types.GranularityExchange:
		for _, e := range s.Exchanges() {
			r.queue.Enqueue(exchangeRecord(r.runID, s, e, now))
		}
	default:
		r.queue.Enqueue(sessionRecord(r.runID, stats, now))
	}
}

func sessionRecord(runID string, stats session.Stats, at time.Time) types.ResultRecord {
	return types.ResultRecord{
		RunID:         runID,
		SessionID:     stats.SessionID,
		ClientNum:     stats.ClientNum,
		Transport:     stats.Transport,
		Granularity:   types.GranularitySession,
		Exchanges:     stats.Sent,
		LatencyMs:     stats.MeanLatencyMs,
		ThroughputBps: stats.MeanThroughputBps,
		Valid:         stats.Valid,
		LossPct:       stats.LossPct,
		Timestamp:     at,
	}
}

func exchangeRecord(runID string, s *session.Session, e session.Exchange, at time.Time) types.ResultRecord {
	rec := types.ResultRecord{
		RunID:       runID,
		SessionID:   s.ID,
		ClientNum:   s.ClientNum,
		Transport:   s.Transport,
		Granularity: types.GranularityExchange,
		Sequence:    e.Sequence,
		Lost:        e.Outcome != session.OutcomeCompleted,
		Timestamp:   at,
	}
	if lat, ok := e.Latency(); ok {
		rec.LatencyMs = lat.Seconds() * 1000
		if tput, ok := e.Throughput(s.PayloadSize); ok {
			rec.ThroughputBps = tput
			rec.Valid = true
		}
	}
	return rec
}
