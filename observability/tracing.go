// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogama/httpflow"
	"github.com/gogama/httpflow/header"
	"github.com/gogama/httpflow/request"
)

const instrumentationName = "github.com/gogama/httpflow"

type spanKey struct{}

// A Tracer is an event handler recording one client span per
// execution. The span is the child of any span in the execution's
// context.
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracer returns a tracing handler using provider. If provider is
// nil, the global tracer provider is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{
		tracer:     provider.Tracer(instrumentationName),
		propagator: otel.GetTextMapPropagator(),
	}
}

// WithPropagator returns a copy of t injecting trace context with p.
func (t *Tracer) WithPropagator(p propagation.TextMapPropagator) *Tracer {
	c := *t
	c.propagator = p
	return &c
}

// Handle starts the span on BeforeExecutionStart and ends it on
// AfterExecutionEnd.
func (t *Tracer) Handle(evt httpflow.Event, e *request.Execution) {
	switch evt {
	case httpflow.BeforeExecutionStart:
		ctx := e.Context
		if ctx == nil {
			ctx = context.Background()
		}
		_, span := t.tracer.Start(ctx, "HTTP "+e.Method, trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			attribute.String("http.method", e.Method),
			attribute.String("http.url", e.URI),
			attribute.String("http.host", host(e.URI)),
			attribute.String("httpflow.execution_id", e.ID.String()),
			attribute.Bool("httpflow.async", e.Async),
		)
		e.SetValue(spanKey{}, span)
	case httpflow.AfterTimeout:
		if span, ok := e.Value(spanKey{}).(trace.Span); ok {
			span.AddEvent("timeout", trace.WithAttributes(
				attribute.String("httpflow.timeout", e.Timeout.String()),
			))
		}
	case httpflow.AfterExecutionEnd:
		span, ok := e.Value(spanKey{}).(trace.Span)
		if !ok {
			return
		}
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		} else {
			span.SetAttributes(attribute.Int("http.status_code", e.StatusCode()))
			if e.StatusCode() >= 400 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", e.StatusCode()))
			} else {
				span.SetStatus(codes.Ok, "")
			}
		}
		span.End()
	}
}

// Inject returns a copy of cfg whose header carries the trace context
// of cfg's context, so the server can join the caller's trace. The
// header of cfg is not modified.
func (t *Tracer) Inject(cfg request.Configuration) request.Configuration {
	h := cfg.Header.Clone()
	t.propagator.Inject(cfg.Context(), headerCarrier{h})
	if h.Len() > 0 {
		cfg.Header = h
	}
	return cfg
}

// headerCarrier adapts a header to propagation.TextMapCarrier.
type headerCarrier struct {
	h *header.Header
}

func (c headerCarrier) Get(key string) string {
	return c.h.Get(key)
}

func (c headerCarrier) Set(key, value string) {
	c.h.Set(key, value)
}

func (c headerCarrier) Keys() []string {
	return c.h.Names()
}
