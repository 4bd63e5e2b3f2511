// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package observability provides event handlers that add structured
logging, OpenTelemetry tracing and Prometheus metrics to an
httpflow.Client.

Each of Logger, Tracer and Metrics is an httpflow.Handler. Install one
into every event chain with Install:

	handlers := &httpflow.HandlerGroup{}
	observability.Install(handlers, observability.NewLogger(zapLogger))
	observability.Install(handlers, observability.NewTracer(nil))
	observability.Install(handlers, observability.NewMetrics(nil))
	client := &httpflow.Client{Handlers: handlers}

TimingsCollector exports the per-phase timing statistics a client
aggregates as Prometheus gauges.
*/
package observability
