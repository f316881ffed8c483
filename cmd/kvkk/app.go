package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kvkk-permits/internal/config"
	"kvkk-permits/internal/consent/client"
	"kvkk-permits/internal/consent/service"
	"kvkk-permits/internal/host"
	"kvkk-permits/internal/platform/logging"
	"kvkk-permits/internal/security"
	"kvkk-permits/internal/telemetry"
	otelsetup "kvkk-permits/internal/telemetry/otel"
	"kvkk-permits/internal/telemetry/producer"
)

// app is everything one invocation needs, wired from config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	session  *service.Reconciler
	closeFns []func(context.Context)
}

type appOptions struct {
	EnvFile        string
	Verbose        bool
	LogFile        string
	RequesterPhone string
}

func newApp(ctx context.Context, opts appOptions) (a *app, err error) {
	cfg, err := config.LoadFile(opts.EnvFile)
	if err != nil {
		return nil, err
	}
	logger, restoreLogger, err := logging.Install(logging.Options{
		Level:   cfg.LogLevel,
		Verbose: opts.Verbose,
		File:    opts.LogFile,
	})
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, logger: logger}
	a.onClose(func(context.Context) { restoreLogger() })
	defer func() {
		if err != nil {
			a.Close(ctx)
		}
	}()

	bundle, err := loadHost(cfg, opts.RequesterPhone)
	if err != nil {
		return nil, err
	}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.onClose(func(ctx context.Context) { _ = providers.Shutdown(ctx) })

	emitters := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		a.onClose(func(context.Context) { _ = kafkaProducer.Close() })
		logger.Debug("audit events published to kafka", zap.String("topic", cfg.TelemetryKafkaTopic))
	}
	// Emits must finish before the providers and the Kafka writer close.
	a.onClose(func(ctx context.Context) {
		drainCtx, cancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
		defer cancel()
		if !telemetry.Drain(drainCtx) {
			logger.Warn("audit events still in flight at shutdown")
		}
	})

	api, err := client.New(client.Config{
		BaseURL:            cfg.APIURL,
		APIKey:             cfg.APIKey,
		Timeout:            cfg.RequestTimeout(),
		Retries:            cfg.LookupRetries,
		InsecureSkipVerify: cfg.TLSInsecure,
	}, client.WithMeterProvider(providers.MeterProvider), client.WithTracerProvider(providers.TracerProvider))
	if err != nil {
		return nil, err
	}

	a.session = service.NewReconciler(api, service.Options{
		Host:           bundle,
		RequestTimeout: cfg.RequestTimeout(),
		Events:         emitters,
		Logger:         logger,
		PhoneHasher:    security.NewPhoneHasher(cfg.AuditPhoneKey),
	})
	logger.Debug("session ready",
		zap.String("session_id", a.session.SessionID()),
		zap.Bool("tls_insecure", cfg.TLSInsecure),
		zap.Bool("has_token", bundle.HasToken()))
	return a, nil
}

func (a *app) onClose(fn func(context.Context)) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i](ctx)
	}
	a.closeFns = nil
}

// loadHost prefers the bundle file, then HOST_* values. requesterPhone, when set, replaces the
// host's requester phone.
func loadHost(cfg *config.Config, requesterPhone string) (*host.Bundle, error) {
	var bundle *host.Bundle
	if cfg.HostBundleFile != "" {
		b, err := host.LoadBundle(cfg.HostBundleFile)
		if err != nil {
			return nil, err
		}
		bundle = b
	} else {
		bundle = host.FromValues(cfg.HostToken, cfg.HostRequesterPhone)
	}
	if requesterPhone != "" {
		bundle.Context.Requester.Phone = requesterPhone
	}
	return bundle, nil
}
