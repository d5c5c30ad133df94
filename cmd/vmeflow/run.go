package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/vmeflow/arena"
	"github.com/c360/vmeflow/component"
	"github.com/c360/vmeflow/config"
	"github.com/c360/vmeflow/engine"
	"github.com/c360/vmeflow/feed"
	"github.com/c360/vmeflow/metric"
	"github.com/c360/vmeflow/natsclient"
	"github.com/c360/vmeflow/pkg/retry"
	"github.com/c360/vmeflow/service"
	"github.com/c360/vmeflow/stream"
)

// workerChannelCapacity sizes the hand-off channel between feed and worker.
// The feed buffers bursts itself, the channel only smooths the hand-off.
const workerChannelCapacity = 256

type runOptions struct {
	*rootOptions
	ShutdownTimeout time.Duration
	Export          bool
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the readout processing pipeline",
		Long: `Start the full pipeline: subscribe to readout frames on NATS, step
them through the analysis graph and serve histograms, rates and run
state over HTTP and websocket until interrupted.

Example:
  vmeflow run --config configs/vmeflow.json
  vmeflow run --log-level=debug --log-format=text --export`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}

	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout",
		30*time.Second, "graceful shutdown timeout")
	cmd.Flags().BoolVar(&opts.Export, "export",
		false, "write a sparse export stream of calibrated amplitudes")

	return cmd
}

func runPipeline(ctx context.Context, opts *runOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Info("starting vmeflow",
		"version", Version,
		"build_time", BuildTime,
		"config_path", opts.ConfigPath)

	if ctx == nil {
		ctx = context.Background()
	}
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	registry := metric.NewMetricsRegistry()

	natsClient, err := newNATSClient(cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	if err := connectToNATS(signalCtx, natsClient); err != nil {
		return err
	}
	defer func() {
		if err := natsClient.Close(context.Background()); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	// Analysis graph and the catalog the monitor serves from
	a := arena.New(arena.DefaultSize)
	sys, err := engine.NewSystem(a, logger, registry)
	if err != nil {
		return fmt.Errorf("create analysis system: %w", err)
	}

	catalog := service.NewCatalog()
	if opts.Export {
		if err := os.MkdirAll(cfg.Run.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create run output directory: %w", err)
		}
	}
	demo, err := buildDemoAnalysis(a, sys, catalog, demoConfig{
		OutputDir:        cfg.Run.OutputDir,
		Export:           opts.Export,
		TimetickInterval: time.Duration(cfg.Worker.TimetickInterval),
	})
	if err != nil {
		return fmt.Errorf("build analysis graph: %w", err)
	}

	events := make(chan stream.ReadoutEvent, workerChannelCapacity)

	worker := stream.NewWorker(stream.WorkerDeps{
		Name:             "stream-worker",
		System:           sys,
		Events:           events,
		TimetickInterval: time.Duration(cfg.Worker.TimetickInterval),
		MetricsRegistry:  registry,
		Logger:           logger,
	})

	readoutFeed := feed.NewFeed(feed.FeedDeps{
		Name:            "readout-feed",
		Subject:         cfg.Feed.Subject,
		QueueGroup:      cfg.Feed.QueueGroup,
		BufferCapacity:  cfg.Feed.BufferCapacity,
		Client:          natsClient,
		Events:          events,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if readoutFeed == nil {
		return errors.New("create readout feed")
	}

	monitor, err := service.NewMonitor(service.MonitorDeps{
		Config: service.MonitorConfig{
			ListenAddr:        cfg.Service.ListenAddr,
			BroadcastInterval: time.Duration(cfg.Service.BroadcastInterval),
		},
		Catalog:         catalog,
		Worker:          worker,
		Components:      []component.Discoverable{readoutFeed, worker},
		NATSClient:      natsClient,
		MetricsRegistry: registry,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create monitor service: %w", err)
	}

	// Monitor first so the observation surface is up before data flows,
	// intake last.
	if err := monitor.Start(signalCtx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	if err := startComponent(signalCtx, worker); err != nil {
		_ = monitor.Stop(opts.ShutdownTimeout)
		return err
	}
	if err := startComponent(signalCtx, readoutFeed); err != nil {
		_ = worker.Stop(opts.ShutdownTimeout)
		_ = monitor.Stop(opts.ShutdownTimeout)
		return err
	}

	logger.Info("vmeflow started",
		"subject", cfg.Feed.Subject,
		"listen_addr", monitor.Addr())

	<-signalCtx.Done()
	logger.Info("received shutdown signal")

	// Intake first, then the processing loop, the monitor last so the final
	// run state stays observable while the pipeline drains.
	var errs []error
	if err := readoutFeed.Stop(opts.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stop feed: %w", err))
	}
	if err := worker.Stop(opts.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stop worker: %w", err))
	}
	if err := monitor.Stop(opts.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("stop monitor: %w", err))
	}

	if demo.exportOp != nil {
		bytes, eventsWritten := engine.ExportSinkStats(demo.exportOp)
		if err := engine.ExportSinkLastError(demo.exportOp); err != nil {
			logger.Warn("export sink finished with error",
				"file", demo.exportFile, "error", err)
		} else {
			logger.Info("export stream written",
				"file", demo.exportFile, "events", eventsWritten, "payload_bytes", bytes)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("graceful shutdown failed: %w", errors.Join(errs...))
	}
	logger.Info("vmeflow shutdown complete")
	return nil
}

// startComponent runs Initialize and Start on one lifecycle component.
func startComponent(ctx context.Context, comp component.LifecycleComponent) error {
	name := comp.Meta().Name
	if err := comp.Initialize(); err != nil {
		return fmt.Errorf("initialize %s: %w", name, err)
	}
	if err := comp.Start(ctx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	return nil
}

// newNATSClient builds the client from config. The first URL wins; the
// nats.go reconnect machinery handles the rest of the cluster.
func newNATSClient(cfg *config.Config, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	clientOpts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithMetrics(registry),
		natsclient.WithLogger(logger.With("component", "natsclient")),
	}
	if cfg.NATS.ReconnectWait > 0 {
		clientOpts = append(clientOpts, natsclient.WithReconnectWait(time.Duration(cfg.NATS.ReconnectWait)))
	}
	if cfg.NATS.Username != "" {
		clientOpts = append(clientOpts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		clientOpts = append(clientOpts, natsclient.WithToken(cfg.NATS.Token))
	}
	return natsclient.NewClient(cfg.NATS.URLs[0], clientOpts...)
}

// connectToNATS establishes the connection and waits for it to be ready.
// Quick retries cover the daemon starting before the broker finished
// booting.
func connectToNATS(ctx context.Context, client *natsclient.Client) error {
	slog.Info("connecting to NATS")
	if err := retry.Do(ctx, retry.Quick(), func() error {
		return client.Connect(ctx)
	}); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}
