package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/config"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/recorder"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// fakeChannel completes every exchange instantly with a fixed latency.
type fakeChannel struct {
	latency time.Duration
	failAt  int // exchange index to fail at, -1 for never
}

func (f *fakeChannel) Run(ctx context.Context, sess *session.Session, exchanges int) error {
	for i := 0; i < exchanges; i++ {
		if f.failAt >= 0 && i == f.failAt {
			err := fmt.Errorf("induced fault: %w", session.ErrIOFailure)
			sess.Fail(err)
			return err
		}
		at := time.Now()
		seq := sess.Begin(at)
		sess.Complete(seq, at.Add(f.latency))
	}
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func testConfig(mode string) config.Config {
	cfg := config.Default()
	cfg.Experiment.Mode = mode
	cfg.Experiment.ClientCounts = []int{3}
	cfg.Experiment.MessageCounts = []int{1, 10, 100}
	cfg.Experiment.MessagesPerClient = 5
	return cfg
}

func TestEscalatingLadderCounts(t *testing.T) {
	cfg := testConfig(config.ModeEscalating)
	queue := recorder.NewRecordQueue(128)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		return &fakeChannel{latency: time.Millisecond, failAt: -1}, nil
	}

	d := New(cfg, dial, queue)
	runID, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected a run id")
	}

	records := queue.Drain(0)
	if len(records) != 3 {
		t.Fatalf("expected 3 records for ladder [1,10,100], got %d", len(records))
	}
	for i, want := range []int{1, 10, 100} {
		if records[i].Exchanges != want {
			t.Fatalf("rung %d has %d exchanges, want %d", i, records[i].Exchanges, want)
		}
		if records[i].RunID != runID {
			t.Fatalf("record missing run id: %+v", records[i])
		}
	}
}

func TestMultiClientFanOut(t *testing.T) {
	cfg := testConfig(config.ModeMultiClient)
	queue := recorder.NewRecordQueue(128)

	var dials atomic.Int32
	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		dials.Add(1)
		return &fakeChannel{latency: time.Millisecond, failAt: -1}, nil
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if dials.Load() != 3 {
		t.Fatalf("expected 3 dials, got %d", dials.Load())
	}
	records := queue.Drain(0)
	if len(records) != 3 {
		t.Fatalf("expected 3 session records, got %d", len(records))
	}
	clients := make(map[int]bool)
	for _, rec := range records {
		if rec.Exchanges != 5 {
			t.Fatalf("session exchanges = %d, want 5", rec.Exchanges)
		}
		clients[rec.ClientNum] = true
	}
	if len(clients) != 3 {
		t.Fatalf("expected 3 distinct clients, got %v", clients)
	}
}

func TestSessionFailureIsolated(t *testing.T) {
	cfg := testConfig(config.ModeMultiClient)
	queue := recorder.NewRecordQueue(128)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		if clientNum == 2 {
			return &fakeChannel{latency: time.Millisecond, failAt: 1}, nil
		}
		return &fakeChannel{latency: time.Millisecond, failAt: -1}, nil
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("a session failure must not abort the experiment: %v", err)
	}

	records := queue.Drain(0)
	if len(records) != 3 {
		t.Fatalf("every session reports, failed ones included: got %d records", len(records))
	}
	healthy := 0
	for _, rec := range records {
		if rec.Exchanges == 5 && rec.Valid {
			healthy++
		}
	}
	if healthy != 2 {
		t.Fatalf("expected 2 healthy sessions, got %d", healthy)
	}
}

func TestDialFailureRecordedAsFailedSession(t *testing.T) {
	cfg := testConfig(config.ModeMultiClient)
	cfg.Experiment.ClientCounts = []int{1}
	queue := recorder.NewRecordQueue(16)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		return nil, fmt.Errorf("refused: %w", session.ErrConnectionFailure)
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("connection failure must not abort the experiment: %v", err)
	}
	records := queue.Drain(0)
	if len(records) != 1 {
		t.Fatalf("failed session must still produce a record, got %d", len(records))
	}
	if records[0].Valid {
		t.Fatalf("session with no exchanges cannot be valid: %+v", records[0])
	}
}

func TestInvalidConfigRejectedBeforeDialing(t *testing.T) {
	cfg := testConfig(config.ModeMultiClient)
	cfg.Experiment.MessagesPerClient = 0
	queue := recorder.NewRecordQueue(16)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		t.Fatalf("dialer must not be called for invalid config")
		return nil, nil
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestRepeatMultipliesRecords(t *testing.T) {
	cfg := testConfig(config.ModeEscalating)
	cfg.Experiment.MessageCounts = []int{2}
	cfg.Experiment.Repeat = 4
	queue := recorder.NewRecordQueue(64)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		return &fakeChannel{latency: time.Millisecond, failAt: -1}, nil
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := queue.Len(); got != 4 {
		t.Fatalf("expected 4 records for 4 repeats, got %d", got)
	}
}

func TestExchangeGranularityRowCount(t *testing.T) {
	cfg := testConfig(config.ModeEscalating)
	cfg.Experiment.MessageCounts = []int{4}
	cfg.Export.Granularity = string(types.GranularityExchange)
	queue := recorder.NewRecordQueue(64)

	dial := func(ctx context.Context, clientNum int) (Channel, error) {
		return &fakeChannel{latency: time.Millisecond, failAt: -1}, nil
	}

	d := New(cfg, dial, queue)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := queue.Len(); got != 4 {
		t.Fatalf("expected one row per exchange, got %d", got)
	}
}
