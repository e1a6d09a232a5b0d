package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/erp/connector/internal/application/connector"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/remote"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/interfaces/http/router"
)

func main() {
	start := time.Now()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to a config file (default: ./config.toml)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()

	// Telemetry providers; each is a no-op when disabled.
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if logProvider.IsEnabled() {
		log = telemetry.Bridge(log, telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logProvider, logger.ParseLevel(cfg.Log.Level)))
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfileTypes,
		SpanProfiles:    cfg.Telemetry.SpanProfiles,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	metrics, err := telemetry.NewConnectorMetrics(meterProvider.Meter("connector"))
	if err != nil {
		log.Fatal("Failed to create connector metrics", zap.Error(err))
	}

	log.Info("Starting connector",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", cfg.App.Version),
	)

	client, err := remote.NewClient(remote.Config{
		Timeout:           cfg.Remote.Timeout,
		MaxResponseSize:   cfg.Remote.MaxResponseSize,
		HostTemplate:      cfg.Remote.HostTemplate,
		ReportingTemplate: cfg.Remote.ReportingTemplate,
		UserAgent:         cfg.Remote.UserAgent,
	}, log, remote.WithRecorder(metrics))
	if err != nil {
		log.Fatal("Failed to create remote client", zap.Error(err))
	}

	registry := connector.NewRegistry(client, client.Config(), log,
		connector.WithMetrics(metrics),
		connector.WithCatalogOptions(connector.CatalogOptions{
			DetailBatchSize:          cfg.Catalog.DetailBatchSize,
			FilterPricingByModified:  cfg.Catalog.FilterPricingByModified,
			FilterQuantityByModified: cfg.Catalog.FilterQuantityByModified,
		}),
	)
	log.Info("Connector functions registered", zap.Strings("functions", registry.Names()))

	engine := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        cfg.App.Version,
		Production:     cfg.IsProduction(),
		Tracing:        tracerProvider.IsEnabled(),
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, log, registry)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Flush telemetry after the last request finished.
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down tracing", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down log export", zap.Error(err))
	}

	log.Info("Server exited gracefully", zap.Duration("uptime", time.Since(start)))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
