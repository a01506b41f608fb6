package tcpchan

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
)

// Channel drives one client session over a persistent TCP connection.
// Exchanges are strictly sequential: write one frame, block until the
// full echo is read back. The stream guarantees ordering, so the echoed
// header must match the request; a mismatch means the framing broke.
type Channel struct {
	conn     net.Conn
	codec    *wire.Codec
	clientID uint32
	limiter  *rate.Limiter
	metrics  metrics.SessionRecorder
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

// Dial opens the session's persistent connection. A refusal wraps
// session.ErrConnectionFailure and is fatal to this session only.
func Dial(ctx context.Context, addr string, codec *wire.Codec, clientID uint32, opts ...Option) (*Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %q: %v: %w", addr, err, session.ErrConnectionFailure)
	}
	c := &Channel{
		conn:     conn,
		codec:    codec,
		clientID: clientID,
		metrics:  metrics.NoopSessionRecorder{},
		readBuf:  make([]byte, codec.PayloadSize()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

// Run performs n sequential exchanges into sess. The first connection
// or i/o fault fails the session and its remaining exchanges; the error
// is recorded on the session and returned.
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
	seq := sess.Begin(time.Now())
	c.metrics.IncExchangesSent()

	frame := c.codec.Encode(c.clientID, seq)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame seq %d: %v: %w", seq, err, session.ErrIOFailure)
	}

	// The echo can arrive split across arbitrary stream boundaries;
	// ReadFull reassembles exactly one frame.
	if _, err := io.ReadFull(c.conn, c.readBuf); err != nil {
		return fmt.Errorf("read echo seq %d: %v: %w", seq, err, session.ErrIOFailure)
	}
	receivedAt := time.Now()

	hdr, err := c.codec.Decode(c.readBuf)
	if err != nil {
		return fmt.Errorf("decode echo seq %d: %v: %w", seq, err, session.ErrIOFailure)
	}
	if hdr.ClientID != c.clientID || hdr.Sequence != seq {
		return fmt.Errorf("echo mismatch: got client %d seq %d, want %d/%d: %w",
			hdr.ClientID, hdr.Sequence, c.clientID, seq, session.ErrIOFailure)
	}

	sess.Complete(seq, receivedAt)
	c.metrics.IncExchangesAcked()
	return nil
}
