package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/config"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/driver"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/events"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/export"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/logging"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/metrics"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/recorder"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/server"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/session"
	"github.com/syedtaha22/tcp-udp-performance-analysis/internal/wire"
	"github.com/syedtaha22/tcp-udp-performance-analysis/pkg/types"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "server":
		err = runServer(ctx, os.Args[2:])
	case "run":
		err = runExperiment(ctx, os.Args[2:])
	case "client":
		err = runClient(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: netperf <command> [flags]

Commands:
  server   run the echo server for the configured transport
  run      execute the configured experiment and export results
  client   run a single ad hoc client session and print its stats
  help     show this message

Configuration is read from %s (override with NETPERF_CONFIG or -config).
`, config.DefaultConfigPath)
}

func loadConfig(ctx context.Context, fs *flag.FlagSet, args []string) (config.Config, error) {
	configPath := fs.String("config", "", "path to configuration file")
	transport := fs.String("transport", "", "transport override (tcp|udp)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(ctx, *configPath)
	} else if os.Getenv("NETPERF_CONFIG") != "" {
		cfg, err = config.LoadFromEnv(ctx)
	} else if _, statErr := os.Stat(config.DefaultConfigPath); statErr == nil {
		cfg, err = config.Load(ctx, config.DefaultConfigPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if *transport != "" {
		cfg.Transport = *transport
	}
	return cfg, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	loss := fs.Float64("loss", -1, "simulated datagram loss probability override")
	cfg, err := loadConfig(ctx, fs, args)
	if err != nil {
		return err
	}
	if *loss >= 0 {
		cfg.Server.LossProbability = *loss
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New()
	codec, err := wire.NewCodec(cfg.Experiment.PayloadSize)
	if err != nil {
		return err
	}

	store := metrics.NewStore()
	eventLog := events.NewLog(1024)
	dispatcher := server.New(codec,
		server.WithLogger(logger),
		server.WithMetrics(store.ServerRecorder()),
		server.WithEvents(eventLog),
		server.WithSimulatedLoss(cfg.Server.LossProbability, 0))

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	grp, grpCtx := errgroup.WithContext(runCtx)

	if cfg.Server.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.NewHTTPHandler(store)}
		grp.Go(func() error {
			logger.Printf("metrics listening on %s", cfg.Server.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		grp.Go(func() error {
			<-grpCtx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	transport := types.Transport(cfg.Transport)
	addr := cfg.Server.TCPAddr
	if transport == types.TransportUDP {
		addr = cfg.Server.UDPAddr
	}
	grp.Go(func() error {
		return dispatcher.ListenAndServe(grpCtx, transport, addr)
	})

	err = grp.Wait()
	logger.Printf("server stopped")
	if runCtx.Err() != nil {
		return nil
	}
	return err
}

func runExperiment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfg, err := loadConfig(ctx, fs, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New()
	codec, err := wire.NewCodec(cfg.Experiment.PayloadSize)
	if err != nil {
		return err
	}

	store := metrics.NewStore()
	eventLog := events.NewLog(4096)

	queue := recorder.NewRecordQueue(cfg.Queue.Capacity)
	queue.SetMetricsRecorder(store.QueueRecorder())

	sink, err := export.NewCSVSink(cfg.Export.Dir)
	if err != nil {
		return err
	}
	defer sink.Close()

	exporter := export.New(queue, sink,
		export.WithMetricsRecorder(store.ExportRecorder()))

	driverOpts := []driver.Option{
		driver.WithLogger(logger),
		driver.WithEvents(eventLog),
	}
	var archive *export.Archive
	if cfg.Export.ArchivePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Export.ArchivePath), 0o755); err != nil {
			return fmt.Errorf("ensure archive dir: %w", err)
		}
		archive, err = export.OpenArchive(cfg.Export.ArchivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
		driverOpts = append(driverOpts, driver.WithArchive(archive))
	}

	dial, err := driver.NewDialer(cfg, codec, store, eventLog)
	if err != nil {
		return err
	}
	d := driver.New(cfg, dial, queue, driverOpts...)

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	exportCtx, stopExporter := context.WithCancel(runCtx)
	grp, _ := errgroup.WithContext(runCtx)
	grp.Go(func() error {
		return exporter.Run(exportCtx)
	})

	runID, runErr := d.Run(runCtx)
	stopExporter()
	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("exporter: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	snap := store.Snapshot()
	logger.Printf("run %s: %d sent, %d acked, %d lost, %d records exported",
		runID, snap.ExchangesSent, snap.ExchangesAcked, snap.ExchangesLost, snap.RecordsExported)
	return nil
}

func runClient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	count := fs.Int("n", 10, "number of exchanges to perform")
	cfg, err := loadConfig(ctx, fs, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *count <= 0 {
		return fmt.Errorf("exchange count %d not positive: %w", *count, config.ErrInvalidConfiguration)
	}

	logger := logging.New()
	codec, err := wire.NewCodec(cfg.Experiment.PayloadSize)
	if err != nil {
		return err
	}

	dial, err := driver.NewDialer(cfg, codec, nil, nil)
	if err != nil {
		return err
	}

	runCtx, cancel := signalContext(ctx)
	defer cancel()

	ch, err := dial(runCtx, 1)
	if err != nil {
		return err
	}
	defer ch.Close()

	transport := types.Transport(cfg.Transport)
	sess := session.New(1, transport, cfg.Experiment.PayloadSize)
	if err := ch.Run(runCtx, sess, *count); err != nil {
		logger.Printf("session failed: %v", err)
	}
	stats := sess.Finalize()

	fmt.Printf("transport:        %s\n", stats.Transport)
	fmt.Printf("exchanges:        %d sent, %d acked, %d lost\n", stats.Sent, stats.Acked, stats.Lost)
	fmt.Printf("loss:             %.2f%%\n", stats.LossPct)
	if stats.Valid {
		fmt.Printf("mean latency:     %.4f ms\n", stats.MeanLatencyMs)
		fmt.Printf("mean throughput:  %.0f bytes/s\n", stats.MeanThroughputBps)
	} else {
		fmt.Printf("mean latency:     n/a\n")
		fmt.Printf("mean throughput:  n/a\n")
	}
	fmt.Printf("elapsed:          %s\n", stats.Elapsed)
	return nil
}
