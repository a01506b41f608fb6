package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
)

// Store maintains in-memory gauges and counters for a running
// measurement process (server or experiment driver).
type Store struct {
	exchangesSent     atomic.Uint64
	exchangesAcked    atomic.Uint64
	exchangesLost     atomic.Uint64
	sessionsFailed    atomic.Uint64
	activeConnections atomic.Int64
	connectionsTotal  atomic.Uint64
	framesEchoed      atomic.Uint64
	datagramsReceived atomic.Uint64
	datagramsDropped  atomic.Uint64
	datagramsReplied  atomic.Uint64
	queueDepth        atomic.Int64
	queueDrops        atomic.Uint64
	recordsExported   atomic.Uint64
}

// NewStore constructs a Store with zeroed metrics.
func NewStore() *Store {
	return &Store{}
}

// Snapshot captures the current metric values in a plain struct.
type Snapshot struct {
	ExchangesSent     uint64
	ExchangesAcked    uint64
	ExchangesLost     uint64
	SessionsFailed    uint64
	ActiveConnections int64
	ConnectionsTotal  uint64
	FramesEchoed      uint64
	DatagramsReceived uint64
	DatagramsDropped  uint64
	DatagramsReplied  uint64
	QueueDepth        int64
	QueueDrops        uint64
	RecordsExported   uint64
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		ExchangesSent:     s.exchangesSent.Load(),
		ExchangesAcked:    s.exchangesAcked.Load(),
		ExchangesLost:     s.exchangesLost.Load(),
		SessionsFailed:    s.sessionsFailed.Load(),
		ActiveConnections: s.activeConnections.Load(),
		ConnectionsTotal:  s.connectionsTotal.Load(),
		FramesEchoed:      s.framesEchoed.Load(),
		DatagramsReceived: s.datagramsReceived.Load(),
		DatagramsDropped:  s.datagramsDropped.Load(),
		DatagramsReplied:  s.datagramsReplied.Load(),
		QueueDepth:        s.queueDepth.Load(),
		QueueDrops:        s.queueDrops.Load(),
		RecordsExported:   s.recordsExported.Load(),
	}
}

// SessionRecorder returns an implementation of SessionRecorder backed by the store.
func (s *Store) SessionRecorder() SessionRecorder {
	return sessionRecorder{store: s}
}

// ServerRecorder returns an implementation of ServerRecorder backed by the store.
func (s *Store) ServerRecorder() ServerRecorder {
	return serverRecorder{store: s}
}

// QueueRecorder returns an implementation of QueueRecorder backed by the store.
func (s *Store) QueueRecorder() QueueRecorder {
	return queueRecorder{store: s}
}

// ExportRecorder returns an implementation of ExportRecorder backed by the store.
func (s *Store) ExportRecorder() ExportRecorder {
	return exportRecorder{store: s}
}

type sessionRecorder struct {
	store *Store
}

func (r sessionRecorder) IncExchangesSent()  { r.store.exchangesSent.Add(1) }
func (r sessionRecorder) IncExchangesAcked() { r.store.exchangesAcked.Add(1) }
func (r sessionRecorder) IncExchangesLost()  { r.store.exchangesLost.Add(1) }
func (r sessionRecorder) IncSessionsFailed() { r.store.sessionsFailed.Add(1) }

type serverRecorder struct {
	store *Store
}

func (r serverRecorder) ConnOpened() {
	r.store.activeConnections.Add(1)
	r.store.connectionsTotal.Add(1)
}

func (r serverRecorder) ConnClosed() {
	r.store.activeConnections.Add(-1)
}

func (r serverRecorder) IncFramesEchoed()      { r.store.framesEchoed.Add(1) }
func (r serverRecorder) IncDatagramsReceived() { r.store.datagramsReceived.Add(1) }
func (r serverRecorder) IncDatagramsDropped()  { r.store.datagramsDropped.Add(1) }
func (r serverRecorder) IncDatagramsReplied()  { r.store.datagramsReplied.Add(1) }

type queueRecorder struct {
	store *Store
}

func (r queueRecorder) ObserveQueueDepth(depth int) {
	r.store.queueDepth.Store(int64(depth))
}

func (r queueRecorder) IncQueueDrops() {
	r.store.queueDrops.Add(1)
}

type exportRecorder struct {
	store *Store
}

func (r exportRecorder) AddRecordsExported(n int) {
	if n > 0 {
		r.store.recordsExported.Add(uint64(n))
	}
}

// WritePrometheus renders the current metrics using the Prometheus text format.
func (s *Store) WritePrometheus(w io.Writer) error {
	snap := s.Snapshot()
	lines := []string{
		"# HELP netperf_exchanges_sent_total Total exchanges initiated by clients.",
		"# TYPE netperf_exchanges_sent_total counter",
		fmt.Sprintf("netperf_exchanges_sent_total %d", snap.ExchangesSent),
		"# HELP netperf_exchanges_acked_total Total exchanges acknowledged by the server.",
		"# TYPE netperf_exchanges_acked_total counter",
		fmt.Sprintf("netperf_exchanges_acked_total %d", snap.ExchangesAcked),
		"# HELP netperf_exchanges_lost_total Total exchanges declared lost after timeout.",
		"# TYPE netperf_exchanges_lost_total counter",
		fmt.Sprintf("netperf_exchanges_lost_total %d", snap.ExchangesLost),
		"# HELP netperf_sessions_failed_total Total client sessions terminated by connection or i/o failure.",
		"# TYPE netperf_sessions_failed_total counter",
		fmt.Sprintf("netperf_sessions_failed_total %d", snap.SessionsFailed),
		"# HELP netperf_server_active_connections Currently open TCP echo connections.",
		"# TYPE netperf_server_active_connections gauge",
		fmt.Sprintf("netperf_server_active_connections %d", snap.ActiveConnections),
		"# HELP netperf_server_connections_total Total TCP connections accepted.",
		"# TYPE netperf_server_connections_total counter",
		fmt.Sprintf("netperf_server_connections_total %d", snap.ConnectionsTotal),
		"# HELP netperf_server_frames_echoed_total Total TCP frames echoed back.",
		"# TYPE netperf_server_frames_echoed_total counter",
		fmt.Sprintf("netperf_server_frames_echoed_total %d", snap.FramesEchoed),
		"# HELP netperf_server_datagrams_received_total Total UDP datagrams received.",
		"# TYPE netperf_server_datagrams_received_total counter",
		fmt.Sprintf("netperf_server_datagrams_received_total %d", snap.DatagramsReceived),
		"# HELP netperf_server_datagrams_dropped_total Total UDP datagrams dropped by simulated loss.",
		"# TYPE netperf_server_datagrams_dropped_total counter",
		fmt.Sprintf("netperf_server_datagrams_dropped_total %d", snap.DatagramsDropped),
		"# HELP netperf_server_datagrams_replied_total Total UDP datagrams echoed back.",
		"# TYPE netperf_server_datagrams_replied_total counter",
		fmt.Sprintf("netperf_server_datagrams_replied_total %d", snap.DatagramsReplied),
		"# HELP netperf_record_queue_depth Number of result records currently buffered.",
		"# TYPE netperf_record_queue_depth gauge",
		fmt.Sprintf("netperf_record_queue_depth %d", snap.QueueDepth),
		"# HELP netperf_record_queue_dropped_total Total result records dropped due to queue pressure.",
		"# TYPE netperf_record_queue_dropped_total counter",
		fmt.Sprintf("netperf_record_queue_dropped_total %d", snap.QueueDrops),
		"# HELP netperf_records_exported_total Total result records written to the export sink.",
		"# TYPE netperf_records_exported_total counter",
		fmt.Sprintf("netperf_records_exported_total %d", snap.RecordsExported),
		"",
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// NewHTTPHandler returns an http.Handler that serves Prometheus formatted metrics.
func NewHTTPHandler(store *Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if r.Method == http.MethodHead {
			return
		}
		if err := store.WritePrometheus(w); err != nil {
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
		}
	})
}
