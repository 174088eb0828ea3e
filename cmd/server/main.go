package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/emotibit-sync/internal/config"
	"github.com/skypro1111/emotibit-sync/internal/export"
	"github.com/skypro1111/emotibit-sync/internal/logging"
	"github.com/skypro1111/emotibit-sync/internal/metrics"
	"github.com/skypro1111/emotibit-sync/internal/server"
	"github.com/skypro1111/emotibit-sync/internal/stream"
	"github.com/skypro1111/emotibit-sync/internal/timesync"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "emotibit-sync"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", timesync.FormatVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("workers", cfg.Server.Workers),
		slog.Int("queue_size", cfg.Server.QueueSize),
		slog.Int("session_timeout", cfg.Server.SessionTimeout),
		slog.Int("min_sync_packets", cfg.Sync.MinSyncPackets),
		slog.String("timezone", cfg.Sync.Timezone),
		slog.String("output_dir", cfg.Export.OutputDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Own registry so /metrics only exposes what this service registers
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(reg)
	logger.Info("Prometheus metrics initialized")

	builder, err := newBuilder(cfg.Sync)
	if err != nil {
		logger.Error("Failed to configure clock sync",
			slog.String("timezone", cfg.Sync.Timezone),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var exporter *export.Exporter
	if cfg.Export.OutputDir != "" {
		exporter = export.New(export.Options{
			OutputDir:      cfg.Export.OutputDir,
			WriteErrors:    cfg.Export.WriteErrors,
			WriteTimeSyncs: cfg.Export.WriteTimeSyncs,
			Binary:         cfg.Export.Binary,
			Compress:       cfg.Export.Compress,
		}, builder, logger, appMetrics)
	}

	streamMgr := stream.NewManager(logger, stream.ManagerConfig{
		Timeout:  cfg.Server.GetSessionTimeout(),
		Builder:  builder,
		Exporter: exporter,
		Metrics:  appMetrics,
	})
	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Server.GetSessionTimeout()),
		slog.Bool("export_enabled", exporter != nil),
	)

	udpServer := server.NewUDPServer(&cfg.Server, logger, streamMgr, appMetrics)
	logger.Info("UDP server initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, streamMgr, udpServer, appMetrics, reg)
		logger.Info("HTTP API server initialized",
			slog.String("address", cfg.HTTP.GetAddress()),
		)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", cfg.Server.GetAddress()),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server before the manager so no record lands in a finalized session
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	// Finalizes every open session, exporting it when configured
	streamMgr.Stop()

	stats := udpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("datagrams_received", stats.DatagramsReceived),
		slog.Uint64("datagrams_dropped", stats.DatagramsDropped),
		slog.Uint64("records_decoded", stats.RecordsDecoded),
		slog.Uint64("decode_errors", stats.DecodeErrors),
	)

	logger.Info("Service stopped")
}

// newBuilder creates the sync map builder for the configured zone.
func newBuilder(cfg config.SyncConfig) (*timesync.Builder, error) {
	loc, err := cfg.GetLocation()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	return timesync.NewBuilder(timesync.Options{
		MinSyncPackets: cfg.MinSyncPackets,
		Location:       loc,
	}), nil
}
