package serverapp

import (
	"log/slog"

	"listquery/internal/config"
	"listquery/internal/logging"
	"listquery/internal/observability"
)

// InitLogger builds the process logger and, when log export is enabled, an OTLP logger
// provider bridged into it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(otelConfig(cfg.Observability, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")

	return logger, loggerProvider, nil
}

// otelConfig maps the service settings and one signal's exporter settings onto the
// observability package's configuration.
func otelConfig(obs config.ObservabilityConfig, exporter config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      obs.ServiceName,
		ServiceVersion:   obs.ServiceVersion,
		Environment:      obs.Environment,
		TraceSampleRatio: obs.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          exporter.Endpoint,
			Protocol:          exporter.Protocol,
			Insecure:          exporter.Insecure,
			TLSCertFile:       exporter.TLSCertFile,
			TLSClientCertFile: exporter.TLSClientCertFile,
			TLSClientKeyFile:  exporter.TLSClientKeyFile,
			Headers:           exporter.Headers,
			Timeout:           exporter.Timeout,
			Compression:       exporter.Compression,
			RetryEnabled:      exporter.RetryEnabled,
			RetryMaxAttempts:  exporter.RetryMaxAttempts,
		},
	}
}

// telemetry groups the meter provider and the instruments created on it. Every
// instrument is nil when metrics are disabled; their Record methods accept nil receivers.
type telemetry struct {
	meterProvider   *observability.MeterProvider
	queryMetrics    *observability.QueryMetrics
	snapshotMetrics *observability.SnapshotMetrics
	securityMetrics *observability.SecurityMetrics
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (telemetry, error) {
	if !cfg.Observability.MetricsEnabled {
		return telemetry{}, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg.Observability, config.OTLPConfig{}))
	if err != nil {
		return telemetry{}, err
	}

	queryMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return telemetry{}, err
	}
	snapshotMetrics, err := observability.InitSnapshotMetrics(logger.Logger)
	if err != nil {
		return telemetry{}, err
	}
	securityMetrics, err := observability.InitSecurityMetrics()
	if err != nil {
		return telemetry{}, err
	}
	logger.Info("OpenTelemetry metrics initialized")

	return telemetry{
		meterProvider:   meterProvider,
		queryMetrics:    queryMetrics,
		snapshotMetrics: snapshotMetrics,
		securityMetrics: securityMetrics,
	}, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.TracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(otelConfig(cfg.Observability, tracesConfig))
	if err != nil {
		return nil, err
	}
	logger.Info("OpenTelemetry tracing initialized")
	return tracerProvider, nil
}
