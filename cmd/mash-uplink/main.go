// Command mash-uplink is the uplink device process.
//
// It keeps the wireless link associated, waits for the network stack to be
// usable and then drives TLS 1.3 sessions to the configured remote forever.
// Credentials, the remote endpoint and the pinned server fingerprint are
// compiled in (see pkg/config); the flags only select logging and the
// execution environment.
//
// Usage:
//
//	mash-uplink [flags]
//
// Flags:
//
//	-log-level string      Log level: debug, info, warn, error (default "info")
//	-protocol-log string   File path for protocol event logging (CBOR format)
//	-metrics-addr string   Serve Prometheus metrics on this address (e.g. :9100)
//	-simulate              Run against a simulated radio, stack and peer
//	-interface string      Host interface followed when not simulating (default "wlan0")
//
// Examples:
//
//	# Run against the simulator with verbose output
//	mash-uplink -simulate -log-level debug
//
//	# Run on a host whose OS manages the wireless link
//	mash-uplink -interface wlan0 -protocol-log /var/log/uplink.ulog
//
//	# Build with a pinned server certificate
//	go build -ldflags "-X github.com/mash-protocol/mash-uplink/pkg/config.Fingerprint=ab:cd:..." ./cmd/mash-uplink
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mash-protocol/mash-uplink/pkg/config"
	"github.com/mash-protocol/mash-uplink/pkg/connection"
	"github.com/mash-protocol/mash-uplink/pkg/entropy"
	mashlog "github.com/mash-protocol/mash-uplink/pkg/log"
	"github.com/mash-protocol/mash-uplink/pkg/metrics"
	"github.com/mash-protocol/mash-uplink/pkg/service"
)

var (
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	simulate    = flag.Bool("simulate", false, "Run against a simulated radio, stack and peer")
	iface       = flag.String("interface", "wlan0", "Host interface followed when not simulating")
)

func main() {
	flag.Parse()

	logger, err := setupLogging(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(logger); err != nil {
		logger.Error("uplink exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	source, err := entropy.New()
	if err != nil {
		return fmt.Errorf("randomness source: %w", err)
	}
	seed, err := source.StackSeed()
	if err != nil {
		return fmt.Errorf("stack seed: %w", err)
	}

	var protocolLogger mashlog.Logger
	if *protocolLog != "" {
		fileLogger, err := mashlog.NewFileLogger(*protocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fileLogger.Close()
		protocolLogger = fileLogger
		logger.Info("protocol logging", "path", *protocolLog)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := service.Dependencies{
		Entropy:        source,
		Handler:        connection.ReadUntilEOF{Logger: logger},
		Logger:         logger,
		ProtocolLogger: protocolLogger,
		Metrics:        metrics.New(reg),
	}

	if *simulate {
		env, err := startSimulation(cfg, seed, logger)
		if err != nil {
			return err
		}
		defer env.Close()
		deps.Radio = env.Radio
		deps.Stack = env.Stack
	} else {
		radio, stack := hostEnvironment(*iface, cfg, logger)
		deps.Radio = radio
		deps.Stack = stack
	}

	svc, err := service.New(cfg, deps)
	if err != nil {
		return err
	}

	if *metricsAddr != "" {
		srv := startMetricsServer(*metricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("mash-uplink starting",
		"remote", cfg.Remote.Address,
		"ssid", cfg.Network.SSID,
		"verify", cfg.Remote.Verify.Mode,
		"simulate", *simulate)

	return svc.Run(ctx)
}

func setupLogging(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
