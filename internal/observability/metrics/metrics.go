package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes access-domain instruments.
type Metrics struct {
	verifications    metric.Int64Counter
	verifyDuration   metric.Float64Histogram
	keysIssued       metric.Int64Counter
	keysRevoked      metric.Int64Counter
	auditWriteFailed metric.Int64Counter
	rateLimited      metric.Int64Counter
	accessDecisions  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

type counterDef struct {
	target      *metric.Int64Counter
	name        string
	description string
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "innercircle"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []counterDef{
		{&m.verifications, "innercircle_key_verifications_total", "Access key verifications by outcome."},
		{&m.keysIssued, "innercircle_keys_issued_total", "Access keys issued by tier."},
		{&m.keysRevoked, "innercircle_keys_revoked_total", "Access keys revoked by reason."},
		{&m.auditWriteFailed, "innercircle_audit_write_failures_total", "Audit events that could not be stored."},
		{&m.rateLimited, "innercircle_rate_limit_decisions_total", "Rate limiter decisions by endpoint and result."},
		{&m.accessDecisions, "innercircle_access_decisions_total", "Resolved access decisions by tier and source."},
	}
	for _, def := range counters {
		counter, err := meter.Int64Counter(def.name, metric.WithDescription(def.description))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.name, err)
		}
		*def.target = counter
	}

	verifyDuration, err := meter.Float64Histogram("innercircle_key_verification_duration_seconds",
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2),
	)
	if err != nil {
		return nil, err
	}
	m.verifyDuration = verifyDuration

	return m, nil
}

// RecordVerification counts a verification attempt and its latency.
func (m *Metrics) RecordVerification(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))...)
	m.verifications.Add(ctx, 1, attrs)
	m.verifyDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordKeyIssued increments issued key counts.
func (m *Metrics) RecordKeyIssued(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.keysIssued.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("tier", tier))...))
}

// RecordKeysRevoked adds count revocations performed for reason.
func (m *Metrics) RecordKeysRevoked(ctx context.Context, reason string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.keysRevoked.Add(ctx, count, metric.WithAttributes(FilterAttributes(attribute.String("reason", reason))...))
}

// RecordAuditWriteFailure counts audit events that could not be persisted.
func (m *Metrics) RecordAuditWriteFailure(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.auditWriteFailed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("action", action))...))
}

// RecordRateLimitAllowed counts a request the limiter let through.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.recordRateLimit(ctx, endpoint, "allowed", "")
}

// RecordRateLimitDenied counts a request the limiter refused, or could not decide.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.recordRateLimit(ctx, endpoint, "denied", reason)
}

func (m *Metrics) recordRateLimit(ctx context.Context, endpoint, result, reason string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("result", result),
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// RecordAccessDecision counts resolved decisions by tier and source.
func (m *Metrics) RecordAccessDecision(ctx context.Context, tier, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("tier", tier),
		attribute.String("source", source),
	)
	m.accessDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"tier":        {},
	"source":      {},
	"endpoint":    {},
	"status_code": {},
	"action":      {},
	"reason":      {},
	"result":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
