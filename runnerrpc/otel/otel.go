// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package runnerotel provides OpenTelemetry instrumentation for runner
// clients. It implements the [runnerrpc.RequestHook] interface to add
// client spans, trace context propagation and metrics to runner calls.
//
// Usage:
//
//	client := runnerrpc.NewClient("iris_clf", cfg, nil)
//	runnerotel.InstrumentClient(client, runnerotel.DefaultConfig())
package runnerotel

import (
	"context"
	"fmt"
	"time"

	"github.com/Query-farm/runner-rpc/runnerrpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "runner_rpc"
	rpcSystem           = "bentoml_runner"
)

// OtelConfig configures OpenTelemetry instrumentation for a runner client.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator injects trace context into request headers.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions calls RecordError on the span for failed calls.
	// Default true.
	RecordExceptions bool
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with tracing, metrics and exception
// recording enabled. Providers and the propagator are resolved from the
// global OTel SDK at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentClient attaches OpenTelemetry instrumentation to a runner client
// via [runnerrpc.Client.SetRequestHook].
func InstrumentClient(client *runnerrpc.Client, cfg OtelConfig) {
	client.SetRequestHook(NewHook(cfg))
}

// NewHook builds the request hook installed by [InstrumentClient], for use
// with [runnerrpc.Options].
func NewHook(cfg OtelConfig) runnerrpc.RequestHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("rpc.client.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of runner requests"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rpc.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of runner requests"),
		)
	}
	return hook
}

type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnRequestStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnRequestStart starts a client span and injects its context into the
// outgoing request headers.
func (h *otelHook) OnRequestStart(ctx context.Context, info runnerrpc.RequestInfo) (context.Context, runnerrpc.HookToken) {
	token := &spanToken{startTime: time.Now()}

	if h.cfg.EnableTracing {
		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", rpcSystem),
			attribute.String("rpc.service", info.Runner),
			attribute.String("rpc.method", info.Method),
			attribute.String("rpc.runner.request_id", info.RequestID),
			attribute.String("rpc.runner.transport", string(info.Transport)),
			attribute.String("url.full", info.URL),
		}
		attrs = append(attrs, h.cfg.CustomAttributes...)

		ctx, token.span = h.tracer.Start(ctx, fmt.Sprintf("runner/%s/%s", info.Runner, info.Method),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attrs...),
		)
	}

	if h.cfg.Propagator != nil && info.Header != nil {
		h.cfg.Propagator.Inject(ctx, propagation.HeaderCarrier(info.Header))
	}
	return ctx, token
}

// OnRequestEnd records metrics and span status, then ends the span.
func (h *otelHook) OnRequestEnd(ctx context.Context, token runnerrpc.HookToken, info runnerrpc.RequestInfo, stats *runnerrpc.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", rpcSystem),
			attribute.String("rpc.service", info.Runner),
			attribute.String("rpc.method", info.Method),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span == nil {
		return
	}
	if st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int("http.response.status_code", stats.StatusCode),
				attribute.Int64("http.request.body.size", stats.RequestBytes),
				attribute.Int64("http.response.body.size", stats.ResponseBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("rpc.runner.error_type", runnerrpc.ErrorType(err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}
	}
	st.span.End()
}
