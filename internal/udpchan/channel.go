package udpchan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/events"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// Channel drives one client session over a connected UDP socket. Each
// exchange is an independent datagram; the response is matched by
// sequence id, never by arrival order. A response that fails to arrive
// within the timeout marks the exchange lost, which is a counted
// outcome, not an error.
type Channel struct {
	conn     net.Conn
	codec    *wire.Codec
	clientID uint32
	timeout  time.Duration
	limiter  *rate.Limiter
	metrics  metrics.SessionRecorder
	events   events.Recorder
	readBuf  []byte
}

type Option func(*Channel)

// WithPace caps the send rate in packets per second.
func WithPace(pps int) Option {
	return func(c *Channel) {
		if pps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(pps), 1)
		}
	}
}

func WithMetrics(rec metrics.SessionRecorder) Option {
	return func(c *Channel) {
		if rec != nil {
			c.metrics = rec
		}
	}
}

func WithEvents(rec events.Recorder) Option {
	return func(c *Channel) {
		if rec != nil {
			c.events = rec
		}
	}
}

// Dial binds a socket for the session. UDP has no handshake, so this
// only fails on address or socket errors.
func Dial(ctx context.Context, addr string, codec *wire.Codec, clientID uint32, timeout time.Duration, opts ...Option) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %q: %v: %w", addr, err, session.ErrConnectionFailure)
	}
	c := &Channel{
		conn:     conn,
		codec:    codec,
		clientID: clientID,
		timeout:  timeout,
		metrics:  metrics.NoopSessionRecorder{},
		events:   events.NoopRecorder{},
		// responses are echoes of fixed-size frames, but read with
		// headroom so an oversized datagram is seen and discarded
		// rather than truncated into a plausible frame
		readBuf: make([]byte, codec.PayloadSize()+1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

// Run performs n exchanges. Timeouts are counted as loss and the run
// continues; only socket-level faults fail the session.
func (c *Channel) Run(ctx context.Context, sess *session.Session, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			sess.Fail(err)
			return err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				sess.Fail(err)
				return err
			}
		}
		if err := c.exchange(sess); err != nil {
			sess.Fail(err)
			c.metrics.IncSessionsFailed()
			return err
		}
	}
	return nil
}

func (c *Channel) exchange(sess *session.Session) error {
	sentAt := time.Now()
	seq := sess.Begin(sentAt)
	c.metrics.IncExchangesSent()

	frame := c.codec.Encode(c.clientID, seq)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("send datagram seq %d: %v: %w", seq, err, session.ErrIOFailure)
	}

	// The deadline is a hard upper bound for the whole wait, however
	// many stale or duplicated datagrams arrive in between.
	deadline := sentAt.Add(c.timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("set read deadline: %v: %w", err, session.ErrIOFailure)
	}

	for {
		n, err := c.conn.Read(c.readBuf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.markLost(sess, seq)
				return nil
			}
			return fmt.Errorf("read echo seq %d: %v: %w", seq, err, session.ErrIOFailure)
		}
		receivedAt := time.Now()

		hdr, err := c.codec.Decode(c.readBuf[:n])
		if err != nil {
			// not ours, keep waiting
			continue
		}
		if hdr.ClientID != c.clientID || hdr.Sequence != seq {
			// stale or duplicated response from an earlier
			// exchange, discard
			continue
		}

		sess.Complete(seq, receivedAt)
		c.metrics.IncExchangesAcked()
		return nil
	}
}

func (c *Channel) markLost(sess *session.Session, seq uint64) {
	sess.MarkLost(seq)
	c.metrics.IncExchangesLost()
	c.events.Record(types.Event{
		Type:      types.EventExchangeLost,
		Timestamp: time.Now().UTC(),
		SessionID: sess.ID,
		Details:   map[string]any{"seq": seq},
	})
}
