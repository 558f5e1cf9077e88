package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	globalMetrics Metrics = NoopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records measurements for the request path. Implementations
// must be safe for concurrent use and must tolerate being called with
// zero-value receivers.
type Metrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int)
	RecordChatRequest(ctx context.Context, strategy string, duration time.Duration, err error)
	RecordDecision(ctx context.Context, strategy string, confidence float64, cached bool)
	RecordLLMCall(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordAgentCall(ctx context.Context, agent string, duration time.Duration, err error)
	RecordRetrieval(ctx context.Context, knowledgeBase string, hits int, duration time.Duration, err error)
	RecordCacheLookup(ctx context.Context, cache string, hit bool)
	RecordCircuitTransition(ctx context.Context, provider, state string)
}

// PrometheusMetrics implements Metrics on OpenTelemetry instruments
// backed by a Prometheus exporter. Every method nil-guards its
// instruments so a partially initialized recorder degrades to a no-op
// instead of panicking.
type PrometheusMetrics struct {
	handler  http.Handler
	provider *sdkmetric.MeterProvider

	httpDuration metric.Float64Histogram
	httpTotal    metric.Int64Counter

	chatDuration metric.Float64Histogram
	chatTotal    metric.Int64Counter
	chatErrors   metric.Int64Counter

	decisionTotal      metric.Int64Counter
	decisionConfidence metric.Float64Histogram

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	agentDuration    metric.Float64Histogram
	agentCallsTotal  metric.Int64Counter
	agentErrorsTotal metric.Int64Counter

	retrievalDuration metric.Float64Histogram
	retrievalHits     metric.Int64Counter
	retrievalErrors   metric.Int64Counter

	cacheLookups       metric.Int64Counter
	circuitTransitions metric.Int64Counter
}

// Handler serves the Prometheus exposition format for this recorder's
// registry.
func (m *PrometheusMetrics) Handler() http.Handler {
	return m.handler
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, size int) {
	if m == nil || m.httpDuration == nil || m.httpTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordChatRequest(ctx context.Context, strategy string, duration time.Duration, err error) {
	if m == nil || m.chatDuration == nil || m.chatTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("strategy", strategy),
	}

	m.chatDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.chatTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.chatErrors != nil {
		m.chatErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordDecision(ctx context.Context, strategy string, confidence float64, cached bool) {
	if m == nil || m.decisionTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("strategy", strategy),
		attribute.Bool("cached", cached),
	}

	m.decisionTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.decisionConfidence != nil {
		m.decisionConfidence.Record(ctx, confidence, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, provider, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if inputTokens > 0 && m.llmInputTokens != nil {
		m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	}
	if outputTokens > 0 && m.llmOutputTokens != nil {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))
	}
	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.toolErrorsTotal != nil {
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordAgentCall(ctx context.Context, agent string, duration time.Duration, err error) {
	if m == nil || m.agentDuration == nil || m.agentCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("agent", agent),
	}

	m.agentDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.agentCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.agentErrorsTotal != nil {
		m.agentErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordRetrieval(ctx context.Context, knowledgeBase string, hits int, duration time.Duration, err error) {
	if m == nil || m.retrievalDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("knowledge_base", knowledgeBase),
	}

	m.retrievalDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if hits > 0 && m.retrievalHits != nil {
		m.retrievalHits.Add(ctx, int64(hits), metric.WithAttributes(attrs...))
	}
	if err != nil && m.retrievalErrors != nil {
		m.retrievalErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}

	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.Bool("hit", hit),
	))
}

func (m *PrometheusMetrics) RecordCircuitTransition(ctx context.Context, provider, state string) {
	if m == nil || m.circuitTransitions == nil {
		return
	}

	m.circuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", state),
	))
}

// SetGlobalMetrics replaces the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder. It never returns
// nil; before initialization it returns a no-op recorder.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
