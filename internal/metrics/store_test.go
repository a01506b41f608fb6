package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStoreCounters(t *testing.T) {
	store := NewStore()

	sess := store.SessionRecorder()
	sess.IncExchangesSent()
	sess.IncExchangesSent()
	sess.IncExchangesAcked()
	sess.IncExchangesLost()

	srv := store.ServerRecorder()
	srv.ConnOpened()
	srv.ConnOpened()
	srv.ConnClosed()
	srv.IncFramesEchoed()
	srv.IncDatagramsReceived()
	srv.IncDatagramsDropped()

	store.QueueRecorder().ObserveQueueDepth(7)
	store.ExportRecorder().AddRecordsExported(3)

	snap := store.Snapshot()
	if snap.ExchangesSent != 2 || snap.ExchangesAcked != 1 || snap.ExchangesLost != 1 {
		t.Fatalf("exchange counters wrong: %+v", snap)
	}
	if snap.ActiveConnections != 1 || snap.ConnectionsTotal != 2 {
		t.Fatalf("connection counters wrong: %+v", snap)
	}
	if snap.QueueDepth != 7 {
		t.Fatalf("queue depth = %d", snap.QueueDepth)
	}
	if snap.RecordsExported != 3 {
		t.Fatalf("records exported = %d", snap.RecordsExported)
	}
}

func TestWritePrometheus(t *testing.T) {
	store := NewStore()
	store.SessionRecorder().IncExchangesSent()
	store.ServerRecorder().IncDatagramsDropped()

	var sb strings.Builder
	if err := store.WritePrometheus(&sb); err != nil {
		t.Fatalf("write prometheus: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"netperf_exchanges_sent_total 1",
		"netperf_server_datagrams_dropped_total 1",
		"# TYPE netperf_record_queue_depth gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHTTPHandler(t *testing.T) {
	store := NewStore()
	handler := NewHTTPHandler(store)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "netperf_exchanges_sent_total 0") {
		t.Fatalf("unexpected body:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/metrics", nil))
	if rec.Code != 405 {
		t.Fatalf("expected 405 for POST, got %d", rec.Code)
	}
}
