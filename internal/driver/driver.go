package driver

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/config"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/events"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/export"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/recorder"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Channel is one client session's transport. Implementations live in
// tcpchan and udpchan; tests substitute fakes.
type Channel interface {
	Run(ctx context.Context, sess *session.Session, exchanges int) error
	Close() error
}

// Dialer opens a channel for one client session.
type Dialer func(ctx context.Context, clientNum int) (Channel, error)

// Driver orchestrates an experiment: a ladder of run configurations,
// one or many concurrent client sessions per rung, and the hand-off of
// finished sessions to the record queue. Session failures are contained
// per session; only context cancellation aborts the experiment.
type Driver struct {
	cfg     config.Config
	dial    Dialer
	queue   *recorder.RecordQueue
	logger  *log.Logger
	events  events.Recorder
	archive *export.Archive
}

type Option func(*Driver)

func WithLogger(logger *log.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithEvents(rec events.Recorder) Option {
	return func(d *Driver) {
		if rec != nil {
			d.events = rec
		}
	}
}

// WithArchive keeps raw per-exchange records in the bolt archive in
// addition to the exported rows.
func WithArchive(archive *export.Archive) Option {
	return func(d *Driver) {
		d.archive = archive
	}
}

func New(cfg config.Config, dial Dialer, queue *recorder.RecordQueue, opts ...Option) *Driver {
	d := &Driver{
		cfg:    cfg,
		dial:   dial,
		queue:  queue,
		logger: log.New(io.Discard, "", 0),
		events: events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the configured experiment and returns its run id. The
// configuration is validated before any network activity.
func (d *Driver) Run(ctx context.Context) (string, error) {
	if err := d.cfg.Validate(); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	transport := types.Transport(d.cfg.Transport)
	granularity := types.Granularity(d.cfg.Export.Granularity)
	rec := recorder.New(runID, granularity, d.queue)

	d.logger.Printf("run %s starting (%s, mode=%s)", runID, transport, d.cfg.Experiment.Mode)

	var err error
	switch d.cfg.Experiment.Mode {
	case config.ModeMultiClient:
		err = d.runMultiClient(ctx, runID, transport, rec)
	case config.ModeEscalating:
		err = d.runEscalating(ctx, runID, transport, rec)
	default:
		err = fmt.Errorf("unknown experiment mode %q: %w",
			d.cfg.Experiment.Mode, config.ErrInvalidConfiguration)
	}
	if err != nil {
		return runID, err
	}
	d.logger.Printf("run %s finished", runID)
	return runID, nil
}

// runMultiClient launches each rung of the client-count ladder as a set
// of concurrent sessions, every session sending the same fixed number
// of exchanges.
func (d *Driver) runMultiClient(ctx context.Context, runID string, transport types.Transport, rec *recorder.Recorder) error {
	exp := d.cfg.Experiment
	var sem *semaphore.Weighted
	if exp.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(int64(exp.MaxConcurrent))
	}

	for repeat := 0; repeat < exp.Repeat; repeat++ {
		for _, clientCount := range exp.ClientCounts {
			d.logger.Printf("testing %d concurrent %s clients", clientCount, transport)

			grp, grpCtx := errgroup.WithContext(ctx)
			for i := 1; i <= clientCount; i++ {
				clientNum := i
				grp.Go(func() error {
					if sem != nil {
						if err := sem.Acquire(grpCtx, 1); err != nil {
							return err
						}
						defer sem.Release(1)
					}
					return d.runSession(grpCtx, runID, transport, rec, clientNum, exp.MessagesPerClient)
				})
			}
			if err := grp.Wait(); err != nil {
				return err
			}
		}
	}
	return nil
}

// runEscalating walks the message-count ladder with a single client,
// one session per rung, sequentially.
func (d *Driver) runEscalating(ctx context.Context, runID string, transport types.Transport, rec *recorder.Recorder) error {
	exp := d.cfg.Experiment
	for repeat := 0; repeat < exp.Repeat; repeat++ {
		for _, messageCount := range exp.MessageCounts {
			d.logger.Printf("testing %d sequential %s exchanges", messageCount, transport)
			if err := d.runSession(ctx, runID, transport, rec, 1, messageCount); err != nil {
				return err
			}
		}
	}
	return nil
}

// runSession executes one client session end to end. Session-level
// failures are recorded and contained: the returned error is non-nil
// only for context cancellation, so concurrent sessions and subsequent
// rungs keep going.
func (d *Driver) runSession(ctx context.Context, runID string, transport types.Transport, rec *recorder.Recorder, clientNum, exchanges int) error {
	sess := session.New(clientNum, transport, d.cfg.Experiment.PayloadSize)
	d.events.Record(types.Event{
		Type: types.EventSessionStart, Timestamp: time.Now().UTC(),
		RunID: runID, SessionID: sess.ID,
		Details: map[string]any{"client_num": clientNum, "exchanges": exchanges},
	})

	ch, err := d.dial(ctx, clientNum)
	if err != nil {
		sess.Fail(err)
		d.finishSession(runID, rec, sess, err)
		return ctx.Err()
	}
	defer ch.Close()

	runErr := ch.Run(ctx, sess, exchanges)
	d.finishSession(runID, rec, sess, runErr)
	return ctx.Err()
}

func (d *Driver) finishSession(runID string, rec *recorder.Recorder, sess *session.Session, cause error) {
	if cause != nil {
		d.logger.Printf("session %s (client %d) failed: %v", sess.ID, sess.ClientNum, cause)
		d.events.Record(types.Event{
			Type: types.EventSessionFailed, Timestamp: time.Now().UTC(),
			RunID: runID, SessionID: sess.ID,
			Details: map[string]any{"error": cause.Error()},
		})
	}
	stats := sess.Finalize()
	rec.RecordSession(sess, stats)

	if d.archive != nil {
		if err := d.archive.AppendExchanges(runID, exchangeLogs(runID, sess)); err != nil {
			d.logger.Printf("archive session %s: %v", sess.ID, err)
		}
	}
}

func exchangeLogs(runID string, sess *session.Session) []types.ExchangeLog {
	exchanges := sess.Exchanges()
	logs := make([]types.ExchangeLog, 0, len(exchanges))
	for _, e := range exchanges {
		logs = append(logs, types.ExchangeLog{
			RunID:      runID,
			SessionID:  sess.ID,
			ClientNum:  sess.ClientNum,
			Transport:  sess.Transport,
			Sequence:   e.Sequence,
			SentAt:     e.SentAt,
			ReceivedAt: e.ReceivedAt,
			Lost:       e.Outcome == session.OutcomeLost,
			Failed:     e.Outcome == session.OutcomeFailed,
		})
	}
	return logs
}
