// Package observability provides OpenTelemetry metrics (Prometheus exporter)
// and log-record enrichment for the bot.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	meterScope         = "github.com/SEPPAN-hub/aikomon/internal/observability"
	defaultServiceName = "aikomon"
	cardinalityLimit   = 2000
)

// Pipeline stage outcomes recorded as metric attributes.
const (
	OutcomeSuccess           = "success"
	OutcomeFailure           = "failure"
	OutcomeEncodingFailure   = "encoding_failure"
	OutcomeGenerationFailure = "generation_failure"
	OutcomeInserted          = "inserted"
	OutcomeDuplicate         = "duplicate"
	OutcomeSkipped           = "skipped"
)

// latencyHistogramBoundaries are Prometheus-style buckets (seconds) for the
// mention pipeline duration histogram. The pipeline makes two provider calls,
// so the upper buckets run longer than typical HTTP-handler boundaries.
var latencyHistogramBoundaries = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}

// PipelineMetrics records mention pipeline outcomes and retrieval result sizes.
type PipelineMetrics interface {
	RecordMention(ctx context.Context, outcome string, duration time.Duration)
	RecordSearch(ctx context.Context, resultCount int)
}

// GenerationMetrics records answer generation outcomes.
type GenerationMetrics interface {
	RecordGeneration(ctx context.Context, outcome string)
}

// CacheMetrics records query-embedding cache hits and misses.
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
}

// IngestMetrics records per-message ingestion outcomes.
type IngestMetrics interface {
	RecordIngestedMessage(ctx context.Context, outcome string)
}

// BotMetrics bundles all metric interfaces backed by one meter.
type BotMetrics struct {
	Pipeline   PipelineMetrics
	Generation GenerationMetrics
	Cache      CacheMetrics
	Ingest     IngestMetrics
}

// MeterProviderShutdown is the subset of the SDK MeterProvider needed for shutdown.
type MeterProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// NewMeterProvider creates a MeterProvider with a Prometheus exporter and returns
// the provider, an HTTP handler for /metrics, and the bot metrics that use the
// provider's meter. Caller must call provider.Shutdown on exit.
func NewMeterProvider(serviceName string) (MeterProviderShutdown, http.Handler, *BotMetrics, error) {
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	// Single resource to avoid schema URL conflicts when merging with resource.Default().
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)

	reg := prometheus.NewRegistry()

	exporter, err := prometheusexporter.New(
		prometheusexporter.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(
			sdkmetric.NewView(
				sdkmetric.Instrument{Name: "bot_mention_duration_seconds"},
				sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: latencyHistogramBoundaries}},
			),
		),
	)

	metrics, err := newMetricsFromMeter(mp.Meter(meterScope))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create metric instruments: %w", err)
	}

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return mp, handler, metrics, nil
}

type botMetricsImpl struct {
	mentionCount     metric.Int64Counter
	mentionDuration  metric.Float64Histogram
	searchResults    metric.Int64Histogram
	generationCount  metric.Int64Counter
	cacheHits        metric.Int64Counter
	cacheMisses      metric.Int64Counter
	ingestedMessages metric.Int64Counter
}

func newMetricsFromMeter(meter metric.Meter) (*BotMetrics, error) {
	impl := &botMetricsImpl{}

	var err error

	impl.mentionCount, err = meter.Int64Counter(
		"bot_mentions_total",
		metric.WithDescription("Mentions handled, by pipeline outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_mentions_total: %w", err)
	}

	impl.mentionDuration, err = meter.Float64Histogram(
		"bot_mention_duration_seconds",
		metric.WithDescription("End-to-end mention pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_mention_duration_seconds: %w", err)
	}

	impl.searchResults, err = meter.Int64Histogram(
		"bot_search_results",
		metric.WithDescription("Ranked records returned per query after thresholding"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_search_results: %w", err)
	}

	impl.generationCount, err = meter.Int64Counter(
		"bot_generations_total",
		metric.WithDescription("Answer generations, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_generations_total: %w", err)
	}

	impl.cacheHits, err = meter.Int64Counter(
		"bot_cache_hits_total",
		metric.WithDescription("Cache hits, by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_cache_hits_total: %w", err)
	}

	impl.cacheMisses, err = meter.Int64Counter(
		"bot_cache_misses_total",
		metric.WithDescription("Cache misses, by cache name"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_cache_misses_total: %w", err)
	}

	impl.ingestedMessages, err = meter.Int64Counter(
		"bot_ingested_messages_total",
		metric.WithDescription("Ingested source messages, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("bot_ingested_messages_total: %w", err)
	}

	return &BotMetrics{
		Pipeline:   impl,
		Generation: impl,
		Cache:      impl,
		Ingest:     impl,
	}, nil
}

func attrOutcome(v string) attribute.KeyValue {
	return attribute.String("outcome", v)
}

func (m *botMetricsImpl) RecordMention(ctx context.Context, outcome string, duration time.Duration) {
	m.mentionCount.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
	m.mentionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrOutcome(outcome)))
}

func (m *botMetricsImpl) RecordSearch(ctx context.Context, resultCount int) {
	m.searchResults.Record(ctx, int64(resultCount))
}

func (m *botMetricsImpl) RecordGeneration(ctx context.Context, outcome string) {
	m.generationCount.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
}

func (m *botMetricsImpl) RecordHit(ctx context.Context, cacheName string) {
	m.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (m *botMetricsImpl) RecordMiss(ctx context.Context, cacheName string) {
	m.cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("cache", cacheName)))
}

func (m *botMetricsImpl) RecordIngestedMessage(ctx context.Context, outcome string) {
	m.ingestedMessages.Add(ctx, 1, metric.WithAttributes(attrOutcome(outcome)))
}
