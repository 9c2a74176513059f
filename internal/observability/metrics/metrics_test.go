package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "revoked"),
		attribute.String("member_id", "456"),
		attribute.String("fingerprint", "ab12"),
		attribute.String("tier", "inner-circle"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" || attrs[1].Key != "tier" {
		t.Fatalf("expected outcome and tier to be retained, got %v", attrs)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordVerification(context.Background(), "ok", time.Millisecond)
	m.RecordKeyIssued(context.Background(), "inner-circle")
	m.RecordAuditWriteFailure(context.Background(), "KEY_ISSUED")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordVerification(context.Background(), "ok", time.Millisecond)
	m.RecordKeysRevoked(context.Background(), "admin", 2)
	m.RecordRateLimitDenied(context.Background(), "/api/access/verify", "rate_limited")
}

func TestRateLimitDecisionsShareOneCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "innercircle-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRateLimitAllowed(ctx, "/api/access/verify")
	m.RecordRateLimitAllowed(ctx, "/api/access/verify")
	m.RecordRateLimitDenied(ctx, "/api/access/verify", "rate_limited")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, item := range scope.Metrics {
			if item.Name != "innercircle_rate_limit_decisions_total" {
				continue
			}
			sum, ok := item.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				result, _ := point.Attributes.Value("result")
				totals[result.AsString()] += point.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"allowed": 2, "denied": 1}, totals)
}
