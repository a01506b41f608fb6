package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

// notApplicable renders a metric that is undefined for a row, such as
// the latency of a lost exchange. Downstream tooling treats it as a
// missing value.
const notApplicable = "NA"

// Header is the fixed field order of every results file. Field order
// and numeric formatting are stable so the downstream visualization
// tool can parse rows without configuration.
var Header = []string{
	"run_id", "session_id", "client_num", "transport", "granularity",
	"sequence", "exchanges", "throughput_bps", "latency_ms", "loss_pct", "lost",
}

// CSVSink appends result rows to one file per transport kind, e.g.
// tcp_results.csv and udp_results.csv. It is not safe for concurrent
// use; the Exporter is its single writer.
type CSVSink struct {
	dir     string
	files   map[types.Transport]*os.File
	writers map[types.Transport]*csv.Writer
}

func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure export dir %q: %w", dir, err)
	}
	return &CSVSink{
		dir:     dir,
		files:   make(map[types.Transport]*os.File),
		writers: make(map[types.Transport]*csv.Writer),
	}, nil
}

func (s *CSVSink) writer(transport types.Transport) (*csv.Writer, error) {
	if w, ok := s.writers[transport]; ok {
		return w, nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_results.csv", transport))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results file %q: %w", path, err)
	}
	w := csv.NewWriter(f)

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat results file %q: %w", path, err)
	}
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header to %q: %w", path, err)
		}
	}
	s.files[transport] = f
	s.writers[transport] = w
	return w, nil
}

// Send appends the records and flushes. Implements the exporter's Sink.
func (s *CSVSink) Send(ctx context.Context, records []types.ResultRecord) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, err := s.writer(rec.Transport)
		if err != nil {
			return err
		}
		if err := w.Write(row(rec)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	for transport, w := range s.writers {
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush %s results: %w", transport, err)
		}
	}
	return nil
}

func (s *CSVSink) Close() error {
	var firstErr error
	for transport, w := range s.writers {
		w.Flush()
		if err := w.Error(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("flush %s results: %w", transport, err)
		}
	}
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func row(rec types.ResultRecord) []string {
	throughput := notApplicable
	latency := notApplicable
	if rec.Valid {
		throughput = strconv.FormatFloat(rec.ThroughputBps, 'f', -1, 64)
		latency = strconv.FormatFloat(rec.LatencyMs, 'f', -1, 64)
	}
	sequence := ""
	if rec.Granularity == types.GranularityExchange {
		sequence = strconv.FormatUint(rec.Sequence, 10)
	}
	return []string{
		rec.RunID,
		rec.SessionID,
		strconv.Itoa(rec.ClientNum),
		rec.Transport.String(),
		string(rec.Granularity),
		sequence,
		strconv.Itoa(rec.Exchanges),
		throughput,
		latency,
		strconv.FormatFloat(rec.LossPct, 'f', -1, 64),
		strconv.FormatBool(rec.Lost),
	}
}
