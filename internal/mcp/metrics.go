package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/Big0290/memory-context-manager-v2/internal/mcp"

// Metrics instruments MCP tool calls via the otel meter, so they flow out the
// OTLP pipeline alongside traces rather than the Prometheus registry.
type Metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	errs        metric.Int64Counter
	active      metric.Int64UpDownCounter
}

// NewMetrics creates the tool-call instruments. Instrument creation failures
// are logged and the affected instrument becomes a no-op.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.invocations, err = m.meter.Int64Counter(
		"memctxd.mcp.tool.invocations_total",
		metric.WithDescription("Total MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("creating invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"memctxd.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool invocation duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("creating duration histogram", zap.Error(err))
	}

	m.errs, err = m.meter.Int64Counter(
		"memctxd.mcp.tool.errors_total",
		metric.WithDescription("Total MCP tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("creating errors counter", zap.Error(err))
	}

	m.active, err = m.meter.Int64UpDownCounter(
		"memctxd.mcp.tool.active_requests",
		metric.WithDescription("Currently active MCP tool requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("creating active requests counter", zap.Error(err))
	}
}

// RecordInvocation records one tool call and its outcome.
func (m *Metrics) RecordInvocation(ctx context.Context, tool string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))

	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil && m.errs != nil {
		m.errs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("reason", categorizeError(err)),
		))
	}
}

// IncrementActive bumps the in-flight counter for a tool.
func (m *Metrics) IncrementActive(ctx context.Context, tool string) {
	if m.active != nil {
		m.active.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

// DecrementActive drops the in-flight counter for a tool.
func (m *Metrics) DecrementActive(ctx context.Context, tool string) {
	if m.active != nil {
		m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unknown strategy") || strings.Contains(msg, "invalid"):
		return "validation_error"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	default:
		return "internal_error"
	}
}
