package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

const (
	envConfigPath     = "NETPERF_CONFIG"
	DefaultConfigPath = "netperf.yaml"
)

// ErrInvalidConfiguration is the root of every validation failure. It is
// surfaced before any network activity begins.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type Config struct {
	Transport  string           `yaml:"transport"`
	Server     ServerConfig     `yaml:"server"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Export     ExportConfig     `yaml:"export"`
	Queue      QueueConfig      `yaml:"queue"`
}

type ServerConfig struct {
	TCPAddr string `yaml:"tcp_addr"`
	UDPAddr string `yaml:"udp_addr"`
	// LossProbability silently drops that fraction of inbound datagrams
	// on the UDP server to produce controlled loss experiments.
	LossProbability float64 `yaml:"loss_probability"`
	// MetricsAddr, when set, serves Prometheus text metrics over HTTP.
	MetricsAddr string `yaml:"metrics_addr"`
}

type ExperimentConfig struct {
	// Mode is "multi-client" (a ladder of concurrent client counts,
	// each client sending MessagesPerClient exchanges) or "escalating"
	// (one client, a ladder of message counts).
	Mode              string        `yaml:"mode"`
	ClientCounts      []int         `yaml:"client_counts"`
	MessageCounts     []int         `yaml:"message_counts"`
	MessagesPerClient int           `yaml:"messages_per_client"`
	Repeat            int           `yaml:"repeat"`
	PayloadSize       int           `yaml:"payload_size"`
	Timeout           time.Duration `yaml:"timeout"`
	// PacePPS caps the client send rate in packets per second.
	// Zero disables pacing.
	PacePPS int `yaml:"pace_pps"`
	// MaxConcurrent bounds simultaneously active client sessions in
	// multi-client mode. Zero means no bound beyond the ladder rung.
	MaxConcurrent int `yaml:"max_concurrent"`
}

type ExportConfig struct {
	Dir         string `yaml:"dir"`
	Granularity string `yaml:"granularity"`
	// ArchivePath, when set, keeps raw per-exchange records in a bolt
	// database alongside the CSV output.
	ArchivePath string `yaml:"archive_path"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

const (
	ModeMultiClient = "multi-client"
	ModeEscalating  = "escalating"
)

// Default returns the configuration used when no file is present,
// mirroring the defaults of the reference experiments.
func Default() Config {
	return Config{
		Transport: string(types.TransportTCP),
		Server: ServerConfig{
			TCPAddr: "127.0.0.1:12345",
			UDPAddr: "127.0.0.1:12346",
		},
		Experiment: ExperimentConfig{
			Mode:              ModeMultiClient,
			ClientCounts:      []int{1, 2, 5, 10, 20, 50},
			MessageCounts:     []int{1, 10, 20, 30, 50, 100, 200, 500},
			MessagesPerClient: 100,
			Repeat:            1,
			PayloadSize:       1024,
			Timeout:           250 * time.Millisecond,
		},
		Export: ExportConfig{
			Dir:         "results",
			Granularity: string(types.GranularitySession),
		},
		Queue: QueueConfig{Capacity: 4096},
	}
}

func Load(ctx context.Context, path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

// Validate rejects every configuration that could misattribute results
// once traffic starts. All failures wrap ErrInvalidConfiguration.
func (c Config) Validate() error {
	if _, err := types.ParseTransport(c.Transport); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfiguration)
	}
	if c.Experiment.PayloadSize < wire.HeaderSize {
		return fmt.Errorf("payload_size %d below frame header %d: %w",
			c.Experiment.PayloadSize, wire.HeaderSize, ErrInvalidConfiguration)
	}
	switch c.Experiment.Mode {
	case ModeMultiClient:
		if len(c.Experiment.ClientCounts) == 0 {
			return fmt.Errorf("multi-client mode needs client_counts: %w", ErrInvalidConfiguration)
		}
		for _, n := range c.Experiment.ClientCounts {
			if n <= 0 {
				return fmt.Errorf("client count %d not positive: %w", n, ErrInvalidConfiguration)
			}
		}
		if c.Experiment.MessagesPerClient <= 0 {
			return fmt.Errorf("messages_per_client %d not positive: %w",
				c.Experiment.MessagesPerClient, ErrInvalidConfiguration)
		}
	case ModeEscalating:
		if len(c.Experiment.MessageCounts) == 0 {
			return fmt.Errorf("escalating mode needs message_counts: %w", ErrInvalidConfiguration)
		}
		for _, n := range c.Experiment.MessageCounts {
			if n <= 0 {
				return fmt.Errorf("message count %d not positive: %w", n, ErrInvalidConfiguration)
			}
		}
	default:
		return fmt.Errorf("unknown experiment mode %q: %w", c.Experiment.Mode, ErrInvalidConfiguration)
	}
	if c.Experiment.Repeat <= 0 {
		return fmt.Errorf("repeat %d not positive: %w", c.Experiment.Repeat, ErrInvalidConfiguration)
	}
	if c.Transport == string(types.TransportUDP) && c.Experiment.Timeout <= 0 {
		return fmt.Errorf("udp transport needs a positive timeout: %w", ErrInvalidConfiguration)
	}
	if p := c.Server.LossProbability; p < 0 || p >= 1 {
		return fmt.Errorf("loss_probability %v outside [0,1): %w", p, ErrInvalidConfiguration)
	}
	if c.Experiment.PacePPS < 0 {
		return fmt.Errorf("pace_pps %d negative: %w", c.Experiment.PacePPS, ErrInvalidConfiguration)
	}
	if _, err := types.ParseGranularity(c.Export.Granularity); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfiguration)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue capacity %d not positive: %w", c.Queue.Capacity, ErrInvalidConfiguration)
	}
	return nil
}
