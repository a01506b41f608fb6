package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

var (
	// ErrConnectionFailure covers connect, accept, and reset failures.
	// Fatal to the affected session; the experiment continues.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrIOFailure covers mid-session read/write faults. Terminates the
	// session's remaining exchanges; other sessions are unaffected.
	ErrIOFailure = errors.New("i/o failure")
)

// Outcome is the terminal state of an exchange. The three outcomes are
// mutually exclusive and exhaustive: every exchange either completed,
// timed out (unreliable channel only), or belonged to a failed session.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeLost
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeLost:
		return "lost"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Exchange is one request/response pair. ReceivedAt stays zero for lost
// or failed exchanges.
type Exchange struct {
	Sequence   uint64
	SentAt     time.Time
	ReceivedAt time.Time
	Outcome    Outcome
}

func (e *Exchange) Latency() (time.Duration, bool) {
	if e.Outcome != OutcomeCompleted {
		return 0, false
	}
	return e.ReceivedAt.Sub(e.SentAt), true
}

// Throughput returns bytes per second for this exchange and false when
// it is undefined: lost/failed exchanges and zero-latency completions
// never produce a value, so no caller can divide by zero.
func (e *Exchange) Throughput(payloadSize int) (float64, bool) {
	lat, ok := e.Latency()
	if !ok || lat <= 0 {
		return 0, false
	}
	return float64(payloadSize) / lat.Seconds(), true
}

// Session is one logical client's ordered run of exchanges. It is owned
// by the goroutine driving the channel until Finalize; only the returned
// Stats cross goroutine boundaries.
type Session struct {
	ID          string
	ClientNum   int
	Transport   types.Transport
	PayloadSize int

	exchanges []Exchange
	nextSeq   uint64
	sent      int
	acked     int
	lost      int
	failure   error
	startedAt time.Time
	endedAt   time.Time
}

func New(clientNum int, transport types.Transport, payloadSize int) *Session {
	return &Session{
		ID:          uuid.NewString(),
		ClientNum:   clientNum,
		Transport:   transport,
		PayloadSize: payloadSize,
		startedAt:   time.Now().UTC(),
	}
}

// Begin allocates the next exchange and returns its sequence number.
// Sequence numbers are monotonic and unique within the session, and
// double as indexes into the exchange slice.
func (s *Session) Begin(sentAt time.Time) uint64 {
	seq := s.nextSeq
	s.nextSeq++
	s.sent++
	s.exchanges = append(s.exchanges, Exchange{
		Sequence: seq,
		SentAt:   sentAt,
		Outcome:  OutcomePending,
	})
	return seq
}

func (s *Session) Complete(seq uint64, receivedAt time.Time) {
	e := &s.exchanges[seq]
	if e.Outcome != OutcomePending {
		return
	}
	e.ReceivedAt = receivedAt
	e.Outcome = OutcomeCompleted
	s.acked++
}

func (s *Session) MarkLost(seq uint64) {
	e := &s.exchanges[seq]
	if e.Outcome != OutcomePending {
		return
	}
	e.Outcome = OutcomeLost
	s.lost++
}

// Fail records a session-level failure and converts every pending
// exchange to OutcomeFailed. Exchanges that already completed or were
// counted lost keep their outcome.
func (s *Session) Fail(err error) {
	if s.failure == nil {
		s.failure = err
	}
	for i := range s.exchanges {
		if s.exchanges[i].Outcome == OutcomePending {
			s.exchanges[i].Outcome = OutcomeFailed
		}
	}
}

func (s *Session) Failed() bool    { return s.failure != nil }
func (s *Session) Failure() error  { return s.failure }
func (s *Session) Sent() int       { return s.sent }
func (s *Session) Acked() int      { return s.acked }
func (s *Session) Lost() int       { return s.lost }
func (s *Session) NextSequence() uint64 { return s.nextSeq }

// Exchanges returns the session's exchanges in send order.
func (s *Session) Exchanges() []Exchange {
	return s.exchanges
}

// Stats are the finalized aggregates of one session. Mean latency and
// throughput cover acknowledged exchanges only.
type Stats struct {
	SessionID     string
	ClientNum     int
	Transport     types.Transport
	Sent          int
	Acked         int
	Lost          int
	MeanLatencyMs float64
	// MeanThroughputBps is payload bytes per second averaged over
	// acknowledged exchanges. Zero with Valid=false when nothing was
	// acknowledged.
	MeanThroughputBps float64
	Valid             bool
	LossPct           float64
	Elapsed           time.Duration
	BytesSent         int64
	Failed            bool
}

// Finalize closes the session and computes aggregates. Lost and failed
// exchanges contribute to loss percentage but never to the means.
func (s *Session) Finalize() Stats {
	s.endedAt = time.Now().UTC()

	var totalLatency time.Duration
	var totalThroughput float64
	measured := 0
	for i := range s.exchanges {
		e := &s.exchanges[i]
		lat, ok := e.Latency()
		if !ok {
			continue
		}
		tput, ok := e.Throughput(s.PayloadSize)
		if !ok {
			continue
		}
		totalLatency += lat
		totalThroughput += tput
		measured++
	}

	stats := Stats{
		SessionID: s.ID,
		ClientNum: s.ClientNum,
		Transport: s.Transport,
		Sent:      s.sent,
		Acked:     s.acked,
		Lost:      s.lost,
		Elapsed:   s.endedAt.Sub(s.startedAt),
		BytesSent: int64(s.sent) * int64(s.PayloadSize),
		Failed:    s.failure != nil,
	}
	if s.sent > 0 {
		stats.LossPct = float64(s.lost) / float64(s.sent) * 100
	}
	if measured > 0 {
		stats.MeanLatencyMs = (totalLatency / time.Duration(measured)).Seconds() * 1000
		stats.MeanThroughputBps = totalThroughput / float64(measured)
		stats.Valid = true
	}
	return stats
}
