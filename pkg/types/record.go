package types

import "time"

// Granularity selects what one exported row describes.
type Granularity string

const (
	// GranularitySession emits one row per finished client session.
	GranularitySession Granularity = "session"
	// GranularityExchange emits one row per individual exchange.
	GranularityExchange Granularity = "exchange"
)

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularitySession, "":
		return GranularitySession, nil
	case GranularityExchange:
		return GranularityExchange, nil
	}
	return "", errBadGranularity(s)
}

type errBadGranularity string

func (e errBadGranularity) Error() string {
	return "unknown export granularity " + string(e)
}

// ResultRecord is one flattened, immutable row for the export sink.
// LatencyMs and ThroughputBps are meaningful only when Valid is true;
// a lost exchange (or an empty session) produces Valid=false and the
// sink renders the fields as not-applicable rather than zero.
type ResultRecord struct {
	RunID       string      `json:"run_id"`
	SessionID   string      `json:"session_id"`
	ClientNum   int         `json:"client_num"`
	Transport   Transport   `json:"transport"`
	Granularity Granularity `json:"granularity"`

	// Sequence is set for exchange-granularity rows.
	Sequence uint64 `json:"seq,omitempty"`
	// Exchanges is the number of exchanges covered by a session row.
	Exchanges int `json:"exchanges,omitempty"`

	LatencyMs     float64 `json:"latency_ms"`
	ThroughputBps float64 `json:"throughput_bps"`
	Valid         bool    `json:"valid"`
	Lost          bool    `json:"lost,omitempty"`
	LossPct       float64 `json:"loss_pct"`

	Timestamp time.Time `json:"ts"`
}

// ExchangeLog is the raw per-exchange row kept in the archive store,
// the durable successor of the original plain-text communication logs.
type ExchangeLog struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	ClientNum  int       `json:"client_num"`
	Transport  Transport `json:"transport"`
	Sequence   uint64    `json:"seq"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
	Lost       bool      `json:"lost"`
	Failed     bool      `json:"failed,omitempty"`
}
