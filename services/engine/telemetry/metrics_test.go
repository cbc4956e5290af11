// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestNewMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	if metrics.StepsTotal == nil {
		t.Error("StepsTotal is nil")
	}
	if metrics.StepDuration == nil {
		t.Error("StepDuration is nil")
	}
	if metrics.StepAgentsTotal == nil {
		t.Error("StepAgentsTotal is nil")
	}
	if metrics.LeaseRetriesTotal == nil {
		t.Error("LeaseRetriesTotal is nil")
	}
	if metrics.TasksTotal == nil {
		t.Error("TasksTotal is nil")
	}
	if metrics.TaskDuration == nil {
		t.Error("TaskDuration is nil")
	}
	if metrics.BatchFlushesTotal == nil {
		t.Error("BatchFlushesTotal is nil")
	}
	if metrics.BatchReloadsTotal == nil {
		t.Error("BatchReloadsTotal is nil")
	}
	if metrics.HTTPRequestsTotal == nil {
		t.Error("HTTPRequestsTotal is nil")
	}
	if metrics.HTTPRequestDuration == nil {
		t.Error("HTTPRequestDuration is nil")
	}
	if metrics.HTTPActiveRequests == nil {
		t.Error("HTTPActiveRequests is nil")
	}
	if metrics.ErrorsTotal == nil {
		t.Error("ErrorsTotal is nil")
	}
}

func TestMetrics_RecordStepMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_step_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("status", "completed"),
		attribute.String("run_id", "run-1"),
	)

	// Should not panic
	metrics.StepsTotal.Add(ctx, 1, attrs)
	metrics.StepDuration.Record(ctx, 0.042, attrs)
	metrics.StepAgentsTotal.Add(ctx, 16, attrs)
	metrics.LeaseRetriesTotal.Add(ctx, 2, attrs)
}

func TestMetrics_RecordTaskAndStateMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_task_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()

	metrics.TasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", "completed"),
	))
	metrics.TaskDuration.Record(ctx, 0.005)
	metrics.BatchFlushesTotal.Add(ctx, 3)
	metrics.BatchReloadsTotal.Add(ctx, 1)
	metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", "worker"),
	))
}

func TestMetrics_RecordHTTPMetrics(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_http_metrics")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("method", "GET"),
		attribute.String("path", "/v1/engine/status"),
		attribute.Int("status", 200),
	)

	metrics.HTTPRequestsTotal.Add(ctx, 1, attrs)
	metrics.HTTPRequestDuration.Record(ctx, 0.003, attrs)
	metrics.HTTPActiveRequests.Add(ctx, 1)
	metrics.HTTPActiveRequests.Add(ctx, -1)
}

func TestRegisterOutstandingLeases(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("test_lease_gauge")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	if metrics.OutstandingLeases != nil {
		t.Error("OutstandingLeases should be nil before registration")
	}

	reg, err := metrics.RegisterOutstandingLeases(meter, func() int64 { return 3 })
	if err != nil {
		t.Fatalf("RegisterOutstandingLeases() error = %v", err)
	}
	if reg == nil {
		t.Fatal("registration is nil")
	}
	if metrics.OutstandingLeases == nil {
		t.Error("OutstandingLeases is nil after registration")
	}

	if err := reg.Unregister(); err != nil {
		t.Errorf("Unregister() error = %v", err)
	}
}
