// Package main provides the modmetrics application entry point.
// modmetrics polls registers from a Modbus device, decodes them into scaled
// physical values and republishes them to InfluxDB and a Prometheus push
// gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/modmetrics/modmetrics/internal/config"
	"github.com/modmetrics/modmetrics/internal/health"
	"github.com/modmetrics/modmetrics/internal/poller"
	"github.com/modmetrics/modmetrics/internal/schema"
	"github.com/modmetrics/modmetrics/internal/server"
	"github.com/modmetrics/modmetrics/internal/sink"
	"github.com/modmetrics/modmetrics/internal/transport"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func setupLogger(cfg config.Config) {
	var handler slog.Handler
	level := slog.LevelInfo

	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// performHealthCheck probes the local liveness endpoint; used by container
// health checks.
func performHealthCheck() error {
	cfg := config.Load()

	client := &http.Client{Timeout: 5 * time.Second}

	host := os.Getenv("HEALTH_CHECK_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%s/livez", host, cfg.Port)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// loadSchema loads and merges the configured register schema documents.
func loadSchema(cfg config.Config) (*schema.Set, error) {
	var lists [][]schema.RegisterDefinition

	if cfg.InputSchemaPath != "" {
		defs, err := schema.LoadFile(cfg.InputSchemaPath, schema.Input)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded input register schema", "path", cfg.InputSchemaPath, "registers", len(defs))
		lists = append(lists, defs)
	}
	if cfg.HoldingSchemaPath != "" {
		defs, err := schema.LoadFile(cfg.HoldingSchemaPath, schema.Holding)
		if err != nil {
			return nil, err
		}
		slog.Info("loaded holding register schema", "path", cfg.HoldingSchemaPath, "registers", len(defs))
		lists = append(lists, defs)
	}

	return schema.NewSet(lists...)
}

// buildSinks constructs the enabled sink adapters.
func buildSinks(cfg config.Config) []sink.Sink {
	var sinks []sink.Sink
	if cfg.InfluxEnabled {
		sinks = append(sinks, sink.NewInfluxSink(sink.InfluxOptions{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}))
		slog.Info("InfluxDB sink enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}
	if cfg.PushEnabled {
		sinks = append(sinks, sink.NewPushSink(sink.PushOptions{
			URL:     cfg.PushURL,
			Job:     cfg.PushJob,
			Timeout: cfg.SinkTimeout,
		}))
		slog.Info("Prometheus push sink enabled", "url", cfg.PushURL, "job", cfg.PushJob)
	}
	return sinks
}

func run(ctx context.Context, cfg config.Config) error {
	set, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	conn, err := transport.NewModbusTransport(transport.Options{
		URL:     cfg.ModbusURL,
		UnitID:  cfg.ModbusUnitID,
		Timeout: cfg.ReadTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Warn("closing modbus session", "error", err)
		}
	}()

	sinks := buildSinks(cfg)
	for _, s := range sinks {
		if c, ok := s.(interface{ Close() }); ok {
			defer c.Close()
		}
	}

	p := poller.New(set, conn, sinks, poller.Options{
		Interval:    cfg.PollInterval,
		SinkTimeout: cfg.SinkTimeout,
		Source:      cfg.SourceName,
	})

	hc := health.NewHealthChecker()
	hc.RegisterComponent(p)
	server.SetHealthChecker(hc)
	server.SetPipeline(p)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx, cfg.Port)
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- p.Run(ctx)
	}()

	return waitPipeline(cancel, pollErr, serverErr)
}

// waitPipeline blocks until the poller or the ops server finishes and stops
// the other one. A server failure (e.g. the port already bound) surfaces
// immediately instead of after the poller has been shut down.
func waitPipeline(cancel context.CancelFunc, pollErr, serverErr <-chan error) error {
	select {
	case err := <-serverErr:
		cancel()
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return <-pollErr
	case err := <-pollErr:
		cancel()
		if err != nil {
			return err
		}
		return <-serverErr
	}
}

func main() {
	var showVersion bool
	var showHelp bool
	var healthCheck bool

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&showHelp, "help", false, "show help information")
	flag.BoolVar(&healthCheck, "health-check", false, "perform health check and exit")
	flag.Parse()

	if healthCheck {
		if err := performHealthCheck(); err != nil {
			slog.Error("Health check failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Health check passed")
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("modmetrics %s (built: %s)\n", version, buildTime)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("go version: %s\n", info.GoVersion)
		}
		os.Exit(0)
	}

	if showHelp {
		fmt.Printf("modmetrics - Modbus register poller and metrics exporter\n\n")
		fmt.Printf("Usage: modmetrics [options]\n\n")
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nEnvironment variables:\n")
		fmt.Printf("  MODBUS_URL            Device address, e.g. tcp://10.0.0.7:502 (required)\n")
		fmt.Printf("  MODBUS_UNIT_ID        Modbus unit/slave id (default: 1)\n")
		fmt.Printf("  INPUT_SCHEMA_PATH     Path to the input register schema document\n")
		fmt.Printf("  HOLDING_SCHEMA_PATH   Path to the holding register schema document\n")
		fmt.Printf("  POLL_INTERVAL         Interval between poll cycles (default: 10s)\n")
		fmt.Printf("  READ_TIMEOUT          Per-request read timeout (default: 5s)\n")
		fmt.Printf("  SINK_TIMEOUT          Per-sink export timeout (default: 10s)\n")
		fmt.Printf("  INFLUX_URL            InfluxDB endpoint (enables the InfluxDB sink)\n")
		fmt.Printf("  INFLUX_TOKEN          InfluxDB API token\n")
		fmt.Printf("  INFLUX_ORG            InfluxDB organization\n")
		fmt.Printf("  INFLUX_BUCKET         InfluxDB bucket\n")
		fmt.Printf("  PUSHGATEWAY_URL       Prometheus push gateway endpoint (enables the push sink)\n")
		fmt.Printf("  PUSHGATEWAY_JOB       Push gateway job name (default: modmetrics)\n")
		fmt.Printf("  PORT                  Ops server port (default: 9100)\n")
		fmt.Printf("  LOG_LEVEL             Log level: debug, info, warn, error (default: info)\n")
		fmt.Printf("  LOG_FORMAT            Log format: text, json (default: text)\n")
		os.Exit(0)
	}

	cfg := config.Load()

	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	server.SetVersion(version, buildTime)

	slog.Info("Starting modmetrics",
		"version", version,
		"build_time", buildTime,
		"device", cfg.ModbusURL,
		"interval", cfg.PollInterval,
		"log_level", cfg.LogLevel,
		"log_format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
