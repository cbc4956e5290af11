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
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the swarm engine.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for step
//	execution, task dispatch, and batch lease activity. All metrics use
//	the "swarm_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Step Metrics ---

	// StepsTotal counts executed steps by status.
	StepsTotal metric.Int64Counter

	// StepDuration records step duration in seconds.
	StepDuration metric.Float64Histogram

	// StepAgentsTotal counts agents processed across all steps.
	StepAgentsTotal metric.Int64Counter

	// LeaseRetriesTotal counts whole-state lease retries caused by
	// contention.
	LeaseRetriesTotal metric.Int64Counter

	// --- Task Metrics ---

	// TasksTotal counts resolved tasks by outcome.
	TasksTotal metric.Int64Counter

	// TaskDuration records task resolution duration in seconds.
	TaskDuration metric.Float64Histogram

	// --- State Metrics ---

	// BatchFlushesTotal counts batch segment flushes.
	BatchFlushesTotal metric.Int64Counter

	// BatchReloadsTotal counts proxy reloads that caught up with an
	// out-of-band flush.
	BatchReloadsTotal metric.Int64Counter

	// OutstandingLeases tracks currently outstanding batch leases.
	OutstandingLeases metric.Int64ObservableGauge

	// --- HTTP Metrics ---

	// HTTPRequestsTotal counts monitor HTTP requests.
	HTTPRequestsTotal metric.Int64Counter

	// HTTPRequestDuration records monitor request duration in seconds.
	HTTPRequestDuration metric.Float64Histogram

	// HTTPActiveRequests tracks in-flight monitor requests.
	HTTPActiveRequests metric.Int64UpDownCounter

	// --- Error Metrics ---

	// ErrorsTotal counts errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics
// registered on the given meter.
//
// Outputs:
//
//	*Metrics - The metrics instance with all instruments initialized.
//	error - Non-nil if instrument registration fails.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Step Metrics ---
	m.StepsTotal, err = meter.Int64Counter(
		"swarm_steps_total",
		metric.WithDescription("Total executed steps"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create steps_total: %w", err)
	}

	m.StepDuration, err = meter.Float64Histogram(
		"swarm_step_duration_seconds",
		metric.WithDescription("Step duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create step_duration: %w", err)
	}

	m.StepAgentsTotal, err = meter.Int64Counter(
		"swarm_step_agents_total",
		metric.WithDescription("Total agents processed across steps"),
		metric.WithUnit("{agent}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create step_agents_total: %w", err)
	}

	m.LeaseRetriesTotal, err = meter.Int64Counter(
		"swarm_lease_retries_total",
		metric.WithDescription("Whole-state lease retries caused by contention"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create lease_retries_total: %w", err)
	}

	// --- Task Metrics ---
	m.TasksTotal, err = meter.Int64Counter(
		"swarm_tasks_total",
		metric.WithDescription("Total resolved tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasks_total: %w", err)
	}

	m.TaskDuration, err = meter.Float64Histogram(
		"swarm_task_duration_seconds",
		metric.WithDescription("Task resolution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create task_duration: %w", err)
	}

	// --- State Metrics ---
	m.BatchFlushesTotal, err = meter.Int64Counter(
		"swarm_batch_flushes_total",
		metric.WithDescription("Total batch segment flushes"),
		metric.WithUnit("{flush}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_flushes_total: %w", err)
	}

	m.BatchReloadsTotal, err = meter.Int64Counter(
		"swarm_batch_reloads_total",
		metric.WithDescription("Total proxy reloads after out-of-band flushes"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch_reloads_total: %w", err)
	}

	// Note: OutstandingLeases requires a callback registration, handled
	// via RegisterOutstandingLeases.

	// --- HTTP Metrics ---
	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"swarm_http_requests_total",
		metric.WithDescription("Total monitor HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"swarm_http_request_duration_seconds",
		metric.WithDescription("Monitor HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration: %w", err)
	}

	m.HTTPActiveRequests, err = meter.Int64UpDownCounter(
		"swarm_http_active_requests",
		metric.WithDescription("In-flight monitor HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_active_requests: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"swarm_errors_total",
		metric.WithDescription("Total errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterOutstandingLeases registers a callback for the outstanding
// lease gauge.
//
// Description:
//
//	Sets up an observable gauge that reports how many batch leases are
//	outstanding across the state pools. The callback is invoked each
//	time metrics are scraped.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	leaseFunc - A function that returns the current outstanding lease count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func (m *Metrics) RegisterOutstandingLeases(meter metric.Meter, leaseFunc func() int64) (metric.Registration, error) {
	var err error
	m.OutstandingLeases, err = meter.Int64ObservableGauge(
		"swarm_outstanding_leases",
		metric.WithDescription("Currently outstanding batch leases"),
		metric.WithUnit("{lease}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create outstanding_leases: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.OutstandingLeases, leaseFunc())
		return nil
	}, m.OutstandingLeases)
}
