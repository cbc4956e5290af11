// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the swarm engine configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Default() builds the baseline.
//  2. A YAML (or JSON) file overrides the defaults.
//  3. SWARM_* environment variables override the file.
//
// The resolved Config is validated once at load time so every
// component downstream can trust its section without re-checking.
package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	"github.com/AleutianAI/AleutianSwarm/services/engine/journal"
	"github.com/AleutianAI/AleutianSwarm/services/engine/stats"
	"github.com/AleutianAI/AleutianSwarm/services/engine/task"
	"github.com/AleutianAI/AleutianSwarm/services/engine/telemetry"
	"github.com/AleutianAI/AleutianSwarm/services/engine/worker"
)

// configValidate is the shared validator instance for config structs.
var configValidate *validator.Validate

// identifierPattern matches behavior names: lowercase snake_case
// identifiers as registered with the sim behavior registry.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func init() {
	configValidate = validator.New()

	// Register the custom identifier validator for behavior names.
	_ = configValidate.RegisterValidation("identifier", validateIdentifier)
}

// validateIdentifier checks that a field is a lowercase identifier.
func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierPattern.MatchString(fl.Field().String())
}

// Config is the complete engine configuration.
//
// Every field carries both yaml and json tags so a config file can be
// written in either format, and validate tags so Validate() can reject
// a bad file before the engine touches any state.
type Config struct {
	// Run controls the stepping loop itself.
	Run RunConfig `json:"run" yaml:"run"`

	// World describes the population the demo seeder builds.
	World WorldConfig `json:"world" yaml:"world"`

	// Journal controls run history persistence.
	Journal JournalConfig `json:"journal" yaml:"journal"`

	// Stats controls the InfluxDB statistics sink.
	Stats StatsConfig `json:"stats" yaml:"stats"`

	// Telemetry controls OpenTelemetry traces and metrics.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Monitor controls the HTTP monitor endpoint.
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`

	// Logging controls structured log output.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// RunConfig bounds a single engine run.
type RunConfig struct {
	// Steps is the number of simulation steps to execute.
	Steps int `json:"steps" yaml:"steps" validate:"gte=1"`

	// Workers is the size of the worker pool driving agent tasks.
	Workers int `json:"workers" yaml:"workers" validate:"gte=1,lte=1024"`

	// QueueDepth is the per-worker inbox capacity.
	QueueDepth int `json:"queue_depth" yaml:"queue_depth" validate:"gte=1"`

	// Seed seeds the simulation RNG. Zero picks a fresh seed at
	// startup; the chosen value is logged so a run can be replayed.
	Seed int64 `json:"seed" yaml:"seed"`

	// LeaseRetries bounds how often a step retries acquiring the
	// whole-state write lease before the run aborts.
	LeaseRetries int `json:"lease_retries" yaml:"lease_retries" validate:"gte=0"`

	// LeaseBackoff is the pause between lease acquisition attempts.
	LeaseBackoff time.Duration `json:"lease_backoff" yaml:"lease_backoff" validate:"gte=0"`

	// DropWait bounds how long releasing a still-running task blocks
	// before falling back to a drop.
	DropWait time.Duration `json:"drop_wait" yaml:"drop_wait" validate:"gte=0"`
}

// WorldConfig describes the seeded demo population.
type WorldConfig struct {
	// Groups is the number of agent groups (one batch per group).
	Groups int `json:"groups" yaml:"groups" validate:"gte=1"`

	// AgentsPerGroup is the population of each group.
	AgentsPerGroup int `json:"agents_per_group" yaml:"agents_per_group" validate:"gte=1"`

	// Behavior names the registered behavior every agent runs.
	Behavior string `json:"behavior" yaml:"behavior" validate:"required,identifier"`
}

// JournalConfig controls the BadgerDB run journal.
type JournalConfig struct {
	// Enabled turns journaling on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the on-disk journal directory. Required unless the
	// journal is disabled or in-memory.
	Path string `json:"path" yaml:"path" validate:"required_if=Enabled true InMemory false"`

	// InMemory keeps the journal in memory, for tests and dry runs.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites fsyncs every journal write.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`
}

// StatsConfig controls the InfluxDB statistics sink.
type StatsConfig struct {
	// Enabled turns per-step stats shipping on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// URL is the InfluxDB endpoint.
	URL string `json:"url" yaml:"url" validate:"required_if=Enabled true,omitempty,url"`

	// Token authenticates against InfluxDB. Required when enabled.
	Token string `json:"token" yaml:"token" validate:"required_if=Enabled true"`

	// Org is the InfluxDB organization.
	Org string `json:"org" yaml:"org"`

	// Bucket receives the step and run points.
	Bucket string `json:"bucket" yaml:"bucket"`
}

// TelemetryConfig controls OpenTelemetry initialization.
type TelemetryConfig struct {
	// Enabled turns tracing and metrics on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TraceExporter selects the span exporter.
	TraceExporter string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=otlp stdout none"`

	// MetricExporter selects the metric exporter.
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// OTLPEndpoint is the OTLP gRPC collector address.
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`

	// SampleRate is the trace sampling rate in [0.0, 1.0].
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// MonitorConfig controls the HTTP monitor server.
type MonitorConfig struct {
	// Enabled starts the monitor alongside the run.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Addr is the listen address, host:port.
	Addr string `json:"addr" yaml:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn or error.
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`

	// Format selects the stderr encoding. "auto" picks text on a
	// terminal and JSON otherwise.
	Format string `json:"format" yaml:"format" validate:"oneof=auto text json"`

	// Dir enables file logging to the given directory when set.
	Dir string `json:"dir" yaml:"dir"`
}

// Default returns the baseline configuration.
//
// The stats and telemetry sections start from their packages' own
// defaults so the same environment variables (INFLUXDB_*, OTEL_*)
// keep working when no config file is present.
func Default() Config {
	sink := stats.DefaultConfig()
	tel := telemetry.DefaultConfig()

	return Config{
		Run: RunConfig{
			Steps:        100,
			Workers:      4,
			QueueDepth:   4,
			Seed:         0,
			LeaseRetries: 10,
			LeaseBackoff: 100 * time.Millisecond,
			DropWait:     10 * time.Second,
		},
		World: WorldConfig{
			Groups:         4,
			AgentsPerGroup: 25,
			Behavior:       "random_walk",
		},
		Journal: JournalConfig{
			Enabled:    true,
			Path:       "data/journal",
			InMemory:   false,
			SyncWrites: true,
		},
		Stats: StatsConfig{
			Enabled: false,
			URL:     sink.URL,
			Token:   sink.Token,
			Org:     sink.Org,
			Bucket:  sink.Bucket,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			TraceExporter:  tel.TraceExporter,
			MetricExporter: tel.MetricExporter,
			OTLPEndpoint:   tel.OTLPEndpoint,
			SampleRate:     tel.SampleRate,
		},
		Monitor: MonitorConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8089",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			Dir:    "",
		},
	}
}

// Validate checks every section against its constraints.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ToWorkerOptions maps the run section onto worker pool options.
func (r RunConfig) ToWorkerOptions() worker.Options {
	return worker.Options{QueueDepth: r.QueueDepth}
}

// ToTaskOptions maps the run section onto task lifecycle options.
func (r RunConfig) ToTaskOptions() task.Options {
	return task.Options{DropWait: r.DropWait}
}

// ToJournalConfig maps the journal section onto the journal package
// configuration, keeping that package's GC defaults.
func (j JournalConfig) ToJournalConfig(logger *slog.Logger) journal.Config {
	cfg := journal.DefaultConfig()
	cfg.Path = j.Path
	cfg.InMemory = j.InMemory
	cfg.SyncWrites = j.SyncWrites
	cfg.Logger = logger
	return cfg
}

// ToSinkConfig maps the stats section onto the stats sink
// configuration, keeping that package's readiness defaults.
func (s StatsConfig) ToSinkConfig() stats.Config {
	cfg := stats.DefaultConfig()
	cfg.URL = s.URL
	cfg.Token = s.Token
	cfg.Org = s.Org
	cfg.Bucket = s.Bucket
	return cfg
}

// ToTelemetryConfig maps the telemetry section onto the telemetry
// package configuration, keeping service name and version defaults.
func (t TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.TraceExporter = t.TraceExporter
	cfg.MetricExporter = t.MetricExporter
	cfg.OTLPEndpoint = t.OTLPEndpoint
	cfg.SampleRate = t.SampleRate
	return cfg
}

// ToLoggingConfig maps the logging section onto a logger
// configuration. stderrIsTTY resolves the "auto" format: text on a
// terminal, JSON otherwise.
func (l LoggingConfig) ToLoggingConfig(service string, stderrIsTTY bool) logging.Config {
	jsonOut := l.Format == "json" || (l.Format == "auto" && !stderrIsTTY)
	return logging.Config{
		Level:   logging.ParseLevel(l.Level),
		LogDir:  l.Dir,
		Service: service,
		JSON:    jsonOut,
	}
}
