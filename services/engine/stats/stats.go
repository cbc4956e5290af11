// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats ships per-step simulation statistics to a time-series
// backend.
//
// The engine records one point per completed step and one summary
// point per finished run. InfluxSink writes them to InfluxDB through
// the blocking write API; NopSink discards them for runs where no
// backend is configured.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/domain"
)

var (
	// ErrMissingToken is returned when the InfluxDB token is empty.
	ErrMissingToken = errors.New("influxdb token is required")

	// ErrMissingURL is returned when the InfluxDB URL is empty.
	ErrMissingURL = errors.New("influxdb url is required")

	// ErrNotReady is returned when InfluxDB does not report healthy
	// within the configured attempts.
	ErrNotReady = errors.New("influxdb not ready")
)

// StepStats is one step's worth of statistics.
type StepStats struct {
	RunID     string        `json:"run_id"`
	Step      int           `json:"step"`
	Agents    int           `json:"agents"`
	Groups    int           `json:"groups"`
	Tasks     int           `json:"tasks"`
	Completed int           `json:"completed"`
	Cancelled int           `json:"cancelled"`
	Retries   int           `json:"retries"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunStats summarizes a finished run.
type RunStats struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	Steps     int           `json:"steps"`
	Agents    int           `json:"agents"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Sink receives simulation statistics.
//
// Thread Safety: implementations must be safe for concurrent use.
type Sink interface {
	// RecordStep records one step's statistics.
	RecordStep(ctx context.Context, rec StepStats) error

	// RecordRun records a run summary.
	RecordRun(ctx context.Context, rec RunStats) error

	// Close releases backend resources.
	Close()
}

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`

	// ReadyAttempts is how many health probes to try before giving up.
	ReadyAttempts int `json:"ready_attempts"`

	// ReadyInterval is the pause between health probes.
	ReadyInterval time.Duration `json:"ready_interval"`
}

// DefaultConfig returns connection settings from the environment:
//   - INFLUXDB_URL (default http://localhost:8086)
//   - INFLUXDB_TOKEN (required, no default)
//   - INFLUXDB_ORG (default aleutian-sim)
//   - INFLUXDB_BUCKET (default swarm-stats)
func DefaultConfig() Config {
	return Config{
		URL:           getEnvOr("INFLUXDB_URL", "http://localhost:8086"),
		Token:         os.Getenv("INFLUXDB_TOKEN"),
		Org:           getEnvOr("INFLUXDB_ORG", "aleutian-sim"),
		Bucket:        getEnvOr("INFLUXDB_BUCKET", "swarm-stats"),
		ReadyAttempts: 5,
		ReadyInterval: 2 * time.Second,
	}
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InfluxSink writes statistics to InfluxDB.
//
// The write API is an exported field so tests can inject a mock
// without a running server.
type InfluxSink struct {
	// WriteAPI is the blocking write API points go through.
	WriteAPI api.WriteAPIBlocking

	client influxdb2.Client
	logger *slog.Logger
}

// NewInfluxSink connects to InfluxDB and waits for it to report
// healthy.
//
// # Description
//
// Creates the client, probes /health up to cfg.ReadyAttempts times,
// and returns a sink bound to cfg.Org and cfg.Bucket. The returned
// sink owns the client; call Close when done.
//
// # Inputs
//
//   - ctx: bounds the readiness wait.
//   - cfg: connection settings. Use DefaultConfig for env-driven values.
//   - logger: structured logger. May be nil.
//
// # Outputs
//
//   - *InfluxSink: the connected sink.
//   - error: ErrMissingURL, ErrMissingToken, ErrNotReady, or a ctx error.
func NewInfluxSink(ctx context.Context, cfg Config, logger *slog.Logger) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "stats"))

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	s := &InfluxSink{
		WriteAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		client:   client,
		logger:   logger,
	}

	if err := s.waitReady(ctx, cfg); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("influxdb connected",
		slog.String("url", cfg.URL),
		slog.String("org", cfg.Org),
		slog.String("bucket", cfg.Bucket))
	return s, nil
}

func (s *InfluxSink) waitReady(ctx context.Context, cfg Config) error {
	attempts := cfg.ReadyAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		health, err := s.client.Health(ctx)
		if err == nil && health.Status == domain.HealthCheckStatusPass {
			return nil
		}

		var errMsg string
		if err != nil {
			errMsg = err.Error()
		} else if health != nil && health.Message != nil {
			errMsg = *health.Message
		}
		s.logger.Warn("influxdb not ready",
			slog.Int("attempt", i+1),
			slog.String("error", errMsg))

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.ReadyInterval):
		}
	}
	return ErrNotReady
}

// RecordStep writes one step point to the swarm_step measurement.
func (s *InfluxSink) RecordStep(ctx context.Context, rec StepStats) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	p := influxdb2.NewPoint(
		"swarm_step",
		map[string]string{
			"run_id": rec.RunID,
		},
		map[string]interface{}{
			"step":        rec.Step,
			"agents":      rec.Agents,
			"groups":      rec.Groups,
			"tasks":       rec.Tasks,
			"completed":   rec.Completed,
			"cancelled":   rec.Cancelled,
			"retries":     rec.Retries,
			"duration_ms": float64(rec.Duration.Microseconds()) / 1000.0,
		},
		ts,
	)

	if err := s.WriteAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write step point: %w", err)
	}
	return nil
}

// RecordRun writes a run summary point to the swarm_run measurement.
func (s *InfluxSink) RecordRun(ctx context.Context, rec RunStats) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	p := influxdb2.NewPoint(
		"swarm_run",
		map[string]string{
			"run_id": rec.RunID,
			"status": rec.Status,
		},
		map[string]interface{}{
			"steps":       rec.Steps,
			"agents":      rec.Agents,
			"duration_ms": float64(rec.Duration.Microseconds()) / 1000.0,
		},
		ts,
	)

	if err := s.WriteAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write run point: %w", err)
	}
	return nil
}

// Close closes the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// NopSink discards all statistics. Used when no backend is configured.
type NopSink struct{}

// RecordStep discards the record.
func (NopSink) RecordStep(ctx context.Context, rec StepStats) error { return nil }

// RecordRun discards the record.
func (NopSink) RecordRun(ctx context.Context, rec RunStats) error { return nil }

// Close is a no-op.
func (NopSink) Close() {}
