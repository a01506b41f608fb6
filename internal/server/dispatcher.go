package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/events"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// maxDatagram is sized above any configurable payload so an oversized
// datagram is read whole and rejected by the codec, not truncated.
const maxDatagram = 65535

// Dispatcher echoes traffic back to clients on both transports. TCP
// connections each get their own goroutine so one slow or failing
// connection never blocks another; UDP is a single serial receive/reply
// loop since datagrams carry no per-client state. UDP back-pressure is
// bounded only by the socket receive buffer, a known limitation.
type Dispatcher struct {
	codec   *wire.Codec
	logger  *log.Logger
	metrics metrics.ServerRecorder
	events  events.Recorder

	lossProbability float64
	rng             *rand.Rand
}

type Option func(*Dispatcher)

func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(rec metrics.ServerRecorder) Option {
	return func(d *Dispatcher) {
		if rec != nil {
			d.metrics = rec
		}
	}
}

func WithEvents(rec events.Recorder) Option {
	return func(d *Dispatcher) {
		if rec != nil {
			d.events = rec
		}
	}
}

// WithSimulatedLoss silently drops the given fraction of inbound UDP
// datagrams. A non-zero seed makes the drop pattern reproducible.
func WithSimulatedLoss(probability float64, seed int64) Option {
	return func(d *Dispatcher) {
		if probability > 0 && probability < 1 {
			d.lossProbability = probability
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			d.rng = rand.New(rand.NewSource(seed))
		}
	}
}

func New(codec *wire.Codec, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		codec:   codec,
		logger:  log.New(io.Discard, "", 0),
		metrics: metrics.NoopServerRecorder{},
		events:  events.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServeTCP accepts connections until the context is cancelled. Every
// accepted connection runs its echo loop concurrently and in isolation.
func (d *Dispatcher) ServeTCP(parent context.Context, lis net.Listener) error {
	d.events.Record(types.Event{Type: types.EventServerStart, Timestamp: time.Now().UTC(),
		Details: map[string]any{"transport": types.TransportTCP, "addr": lis.Addr().String()}})
	defer d.events.Record(types.Event{Type: types.EventServerStop, Timestamp: time.Now().UTC(),
		Details: map[string]any{"transport": types.TransportTCP}})

	grp, ctx := errgroup.WithContext(parent)
	grp.Go(func() error {
		<-ctx.Done()
		lis.Close()
		return nil
	})
	grp.Go(func() error {
		for {
			conn, err := lis.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			d.metrics.ConnOpened()
			grp.Go(func() error {
				defer d.metrics.ConnClosed()
				d.echoConn(ctx, conn)
				return nil
			})
		}
	})
	err := grp.Wait()
	if parent.Err() != nil {
		return nil
	}
	return err
}

// echoConn reads full frames and writes the identical bytes back until
// the client closes the connection. A zero-byte read (EOF) is normal
// termination; anything else ends this connection only.
func (d *Dispatcher) echoConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	buf := make([]byte, d.codec.PayloadSize())
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.logger.Printf("tcp conn %s: read: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if _, err := conn.Write(buf); err != nil {
			if ctx.Err() == nil {
				d.logger.Printf("tcp conn %s: write: %v", conn.RemoteAddr(), err)
			}
			return
		}
		d.metrics.IncFramesEchoed()
	}
}

// ServeUDP receives datagrams serially and echoes each back to its
// originating address, subject to simulated loss.
func (d *Dispatcher) ServeUDP(ctx context.Context, conn net.PacketConn) error {
	d.events.Record(types.Event{Type: types.EventServerStart, Timestamp: time.Now().UTC(),
		Details: map[string]any{"transport": types.TransportUDP, "addr": conn.LocalAddr().String()}})
	defer d.events.Record(types.Event{Type: types.EventServerStop, Timestamp: time.Now().UTC(),
		Details: map[string]any{"transport": types.TransportUDP}})

	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		d.metrics.IncDatagramsReceived()

		if _, err := d.codec.Decode(buf[:n]); err != nil {
			// not our protocol, ignore
			continue
		}

		if d.rng != nil && d.rng.Float64() < d.lossProbability {
			d.metrics.IncDatagramsDropped()
			d.events.Record(types.Event{Type: types.EventDatagramDropped, Timestamp: time.Now().UTC(),
				Details: map[string]any{"addr": addr.String()}})
			continue
		}

		if _, err := conn.WriteTo(buf[:n], addr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Printf("udp reply to %s: %v", addr, err)
			continue
		}
		d.metrics.IncDatagramsReplied()
	}
}

// ListenAndServe binds the requested transport and serves until the
// context is cancelled.
func (d *Dispatcher) ListenAndServe(ctx context.Context, transport types.Transport, addr string) error {
	switch transport {
	case types.TransportTCP:
		var lc net.ListenConfig
		lis, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("listen tcp %q: %w", addr, err)
		}
		d.logger.Printf("tcp echo server listening on %s", lis.Addr())
		return d.ServeTCP(ctx, lis)
	case types.TransportUDP:
		var lc net.ListenConfig
		conn, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return fmt.Errorf("listen udp %q: %w", addr, err)
		}
		d.logger.Printf("udp echo server listening on %s", conn.LocalAddr())
		return d.ServeUDP(ctx, conn)
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}
