package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sehyun-p/clubsync/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	checkInIssueCounter    metric.Int64Counter
	checkInScanCounter     metric.Int64Counter
	finalizeCounter        metric.Int64Counter
	repositoryOpCounter    metric.Int64Counter
	tokenValidationCounter metric.Int64Counter
	rateLimitCounter       metric.Int64Counter
	rateLimitRetryAfter    metric.Float64Histogram
	securityBypassCounter  metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("clubsync")
	issueCounter, err := meter.Int64Counter("checkin.issue.attempts")
	if err != nil {
		return nil, err
	}
	scanCounter, err := meter.Int64Counter("checkin.scan.attempts")
	if err != nil {
		return nil, err
	}
	finalizeCounter, err := meter.Int64Counter("session.finalize.runs")
	if err != nil {
		return nil, err
	}
	repoCounter, err := meter.Int64Counter("repository.operations")
	if err != nil {
		return nil, err
	}
	tokenCounter, err := meter.Int64Counter("auth.token.validations")
	if err != nil {
		return nil, err
	}
	rateLimitCounter, err := meter.Int64Counter("ratelimit.decisions")
	if err != nil {
		return nil, err
	}
	retryAfterHist, err := meter.Float64Histogram("ratelimit.retry_after.seconds")
	if err != nil {
		return nil, err
	}
	bypassCounter, err := meter.Int64Counter("security.bypass.events")
	if err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		checkInIssueCounter:    issueCounter,
		checkInScanCounter:     scanCounter,
		finalizeCounter:        finalizeCounter,
		repositoryOpCounter:    repoCounter,
		tokenValidationCounter: tokenCounter,
		rateLimitCounter:       rateLimitCounter,
		rateLimitRetryAfter:    retryAfterHist,
		securityBypassCounter:  bypassCounter,
	}
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordCheckInIssue(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.checkInIssueCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordCheckInScan(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.checkInScanCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordFinalize(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.finalizeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

func RecordAccessTokenValidation(ctx context.Context, result, source string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("result", result),
			attribute.String("source", source),
		),
	)
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode, keyType string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
			attribute.String("mode", mode),
			attribute.String("key_type", keyType),
		),
	)
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(),
		metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("reason", reason),
		),
	)
}

func RecordSecurityBypassEvent(ctx context.Context, reason, scope string) {
	m := current()
	if m == nil {
		return
	}
	m.securityBypassCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("scope", scope),
		),
	)
}
