// Package main implements the aethalometer collector: it connects to an
// aethalometer over TCP and appends every measurement line to a daily file.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/c360/aethalometer/config"
	"github.com/c360/aethalometer/health"
	"github.com/c360/aethalometer/input/tcp"
	"github.com/c360/aethalometer/metric"
	"github.com/c360/aethalometer/natsclient"
	"github.com/c360/aethalometer/output/dailyfile"
	"github.com/c360/aethalometer/output/natsmirror"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "aethalometer"
)

// shutdownTimeout bounds closing the NATS connection and metrics server
const shutdownTimeout = 5 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	if err := checkStorageDirectory(cfg.StorageDirectory); err != nil {
		return err
	}

	removePID, err := writePIDFile(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer removePID()

	logger.Info("Starting aethalometer collector",
		"version", Version,
		"build_time", BuildTime,
		"producer", cfg.Producer.Address(),
		"storage", cfg.StorageDirectory)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.close()

	return p.run(ctx)
}

// initializeCLI parses flags and handles --help and --version
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	cliCfg, fs, err := parseFlags(args)
	if err != nil {
		printDetailedHelp(os.Stderr, fs)
		return nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp(os.Stdout, fs)
		return nil, true, nil
	}

	if err := validateFlags(cliCfg); err != nil {
		printDetailedHelp(os.Stderr, fs)
		return nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	return cliCfg, false, nil
}

// initializeConfiguration loads the config file, applies flag values on top
// and validates the result
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlags(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyFlags overrides configuration values with the flags that were given
func applyFlags(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.IP != "" {
		cfg.Producer.IP = cliCfg.IP
	}
	if cliCfg.Port != 0 {
		cfg.Producer.Port = cliCfg.Port
	}
	if cliCfg.Storage != "" {
		cfg.StorageDirectory = cliCfg.Storage
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.MetricsPort != 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
	if cliCfg.PIDFile != "" {
		cfg.PIDFile = cliCfg.PIDFile
	}
	if cliCfg.NATSURL != "" {
		cfg.NATS.URL = cliCfg.NATSURL
	}
}

// checkStorageDirectory fails unless path is an existing directory
func checkStorageDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("storage directory does not exist: %s", path)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage directory is not a directory: %s", path)
	}
	return nil
}

// pipeline holds the wired components of one collector process
type pipeline struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	monitor   *health.Monitor
	writer    *dailyfile.Writer
	mirror    *natsmirror.Mirror
	nats      *natsclient.Client
	collector *tcp.Collector
	server    *metric.Server
}

// buildPipeline creates the writer, the optional NATS mirror, the collector
// and the optional metrics server from cfg
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{
		logger:  logger,
		monitor: health.NewMonitor(),
	}
	if cfg.Metrics.Enabled {
		p.registry = metric.NewMetricsRegistry()
	}

	writer, err := dailyfile.NewWriter(dailyfile.WriterDeps{
		Directory:       cfg.StorageDirectory,
		Logger:          logger,
		MetricsRegistry: p.registrar(),
		HealthMonitor:   p.monitor,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage writer: %w", err)
	}
	p.writer = writer

	var sink tcp.Sink = writer
	if cfg.NATS.URL != "" {
		if err := p.connectMirror(ctx, cfg); err != nil {
			p.close()
			return nil, err
		}
		sink = p.mirror
	}

	collector, err := tcp.NewCollector(tcp.CollectorDeps{
		Config: tcp.Config{
			Host:            cfg.Producer.IP,
			Port:            cfg.Producer.Port,
			ReconnectPeriod: cfg.ReconnectPeriod.Duration(),
			MessagePeriod:   cfg.MessagePeriod.Duration(),
		},
		Sink:            sink,
		Logger:          logger,
		MetricsRegistry: p.registrar(),
		HealthMonitor:   p.monitor,
	})
	if err != nil {
		p.close()
		return nil, fmt.Errorf("create collector: %w", err)
	}
	p.collector = collector

	if cfg.Metrics.Enabled {
		p.server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, p.registry, p.monitor,
			logger.With("component", "metrics-server"))
	}

	return p, nil
}

// connectMirror connects to NATS and wraps the writer in a mirror. The
// connection is retried in the background, so an unreachable server does not
// prevent collection.
func (p *pipeline) connectMirror(ctx context.Context, cfg *config.Config) error {
	client, err := natsclient.NewClient(cfg.NATS.URL, natsOptions(cfg.NATS, p.logger, func(bool) {
		p.monitor.Update("nats", p.nats.Health("nats"))
	})...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	p.nats = client

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	p.monitor.Update("nats", client.Health("nats"))

	mirror, err := natsmirror.NewMirror(natsmirror.MirrorDeps{
		Sink:            p.writer,
		Publisher:       client,
		Subject:         cfg.NATS.Subject,
		Logger:          p.logger,
		MetricsRegistry: p.registrar(),
		HealthMonitor:   p.monitor,
	})
	if err != nil {
		return fmt.Errorf("create NATS mirror: %w", err)
	}
	p.mirror = mirror

	return nil
}

// natsOptions translates the nats config section into client options
func natsOptions(cfg config.NATSConfig, logger *slog.Logger, onHealth func(bool)) []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithReconnectWait(cfg.ReconnectWait.Duration()),
		natsclient.WithTimeout(cfg.Timeout.Duration()),
		natsclient.WithClientName(cfg.ClientName),
		natsclient.WithRetryOnFailedConnect(true),
		natsclient.WithLogger(logger),
		natsclient.WithHealthChangeCallback(onHealth),
	}
	if cfg.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	return opts
}

// registrar returns the metrics registry, or nil when metrics are disabled
func (p *pipeline) registrar() metric.MetricsRegistrar {
	if p.registry == nil {
		return nil
	}
	return p.registry
}

// run serves metrics in the background and runs the collector until ctx is
// cancelled or storage fails
func (p *pipeline) run(ctx context.Context) error {
	var wg sync.WaitGroup
	if p.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.server.Start(); err != nil {
				p.logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	err := p.collector.Run(ctx)

	if p.server != nil {
		if stopErr := p.server.Stop(); stopErr != nil {
			p.logger.Warn("Failed to stop metrics server", "error", stopErr)
		}
		wg.Wait()
	}

	p.logStats()

	if err != nil {
		return fmt.Errorf("collector stopped: %w", err)
	}

	p.logger.Info("Aethalometer collector shutdown complete")
	return nil
}

func (p *pipeline) logStats() {
	received, dropped, bytesReceived := p.collector.Stats()
	attrs := []any{"received", received, "dropped", dropped, "bytes", bytesReceived}
	if p.mirror != nil {
		published, failed := p.mirror.Stats()
		attrs = append(attrs, "published", published, "publish_failures", failed)
	}
	p.logger.Info("Collection totals", attrs...)
}

func (p *pipeline) close() {
	if p.nats == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := p.nats.Close(ctx); err != nil && !stderrors.Is(err, context.DeadlineExceeded) {
		p.logger.Warn("Failed to close NATS connection", "error", err)
	}
}
