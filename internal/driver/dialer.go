package driver

import (
	"context"
	"fmt"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/config"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/events"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/tcpchan"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/udpchan"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// NewDialer builds the Dialer for the configured transport. The client
// num doubles as the wire-level client id, which keeps response
// demultiplexing unambiguous across concurrent sessions of one run.
func NewDialer(cfg config.Config, codec *wire.Codec, store *metrics.Store, rec events.Recorder) (Dialer, error) {
	transport, err := types.ParseTransport(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, config.ErrInvalidConfiguration)
	}

	sessionMetrics := metrics.SessionRecorder(metrics.NoopSessionRecorder{})
	if store != nil {
		sessionMetrics = store.SessionRecorder()
	}
	if rec == nil {
		rec = events.NoopRecorder{}
	}

	switch transport {
	case types.TransportTCP:
		addr := cfg.Server.TCPAddr
		pace := cfg.Experiment.PacePPS
		return func(ctx context.Context, clientNum int) (Channel, error) {
			return tcpchan.Dial(ctx, addr, codec, uint32(clientNum),
				tcpchan.WithPace(pace),
				tcpchan.WithMetrics(sessionMetrics))
		}, nil
	default:
		addr := cfg.Server.UDPAddr
		timeout := cfg.Experiment.Timeout
		pace := cfg.Experiment.PacePPS
		return func(ctx context.Context, clientNum int) (Channel, error) {
			return udpchan.Dial(ctx, addr, codec, uint32(clientNum), timeout,
				udpchan.WithPace(pace),
				udpchan.WithMetrics(sessionMetrics),
				udpchan.WithEvents(rec))
		}, nil
	}
}
