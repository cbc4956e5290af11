// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
)

// clearSwarmEnv blanks the override variables the test asserts on so
// ambient environment cannot leak into the layered load.
func clearSwarmEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SWARM_STEPS", "SWARM_WORKERS", "SWARM_QUEUE_DEPTH", "SWARM_SEED",
		"SWARM_LEASE_RETRIES", "SWARM_LEASE_BACKOFF", "SWARM_DROP_WAIT",
		"SWARM_GROUPS", "SWARM_AGENTS_PER_GROUP", "SWARM_BEHAVIOR",
		"SWARM_JOURNAL_ENABLED", "SWARM_JOURNAL_PATH",
		"SWARM_JOURNAL_IN_MEMORY", "SWARM_JOURNAL_SYNC_WRITES",
		"SWARM_STATS_ENABLED", "SWARM_TELEMETRY_ENABLED",
		"SWARM_TRACE_SAMPLE_RATE", "SWARM_MONITOR_ENABLED",
		"SWARM_MONITOR_ADDR", "SWARM_LOG_LEVEL", "SWARM_LOG_FORMAT",
		"SWARM_LOG_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Run.Steps != 100 {
		t.Errorf("Run.Steps = %d, want 100", cfg.Run.Steps)
	}
	if cfg.Run.Workers != 4 {
		t.Errorf("Run.Workers = %d, want 4", cfg.Run.Workers)
	}
	if cfg.Run.LeaseBackoff != 100*time.Millisecond {
		t.Errorf("Run.LeaseBackoff = %v, want 100ms", cfg.Run.LeaseBackoff)
	}
	if cfg.Run.DropWait != 10*time.Second {
		t.Errorf("Run.DropWait = %v, want 10s", cfg.Run.DropWait)
	}
	if cfg.World.Behavior != "random_walk" {
		t.Errorf("World.Behavior = %s, want random_walk", cfg.World.Behavior)
	}
	if !cfg.Journal.Enabled {
		t.Error("Journal.Enabled should be true by default")
	}
	if cfg.Journal.Path != "data/journal" {
		t.Errorf("Journal.Path = %s, want data/journal", cfg.Journal.Path)
	}
	if cfg.Stats.Enabled {
		t.Error("Stats.Enabled should be false by default")
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Telemetry.SampleRate = %f, want 1.0", cfg.Telemetry.SampleRate)
	}
	if cfg.Monitor.Addr != "127.0.0.1:8089" {
		t.Errorf("Monitor.Addr = %s, want 127.0.0.1:8089", cfg.Monitor.Addr)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should validate cleanly: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantError bool
	}{
		{
			name:      "valid default config",
			modify:    func(_ *Config) {},
			wantError: false,
		},
		{
			name: "zero steps",
			modify: func(c *Config) {
				c.Run.Steps = 0
			},
			wantError: true,
		},
		{
			name: "zero workers",
			modify: func(c *Config) {
				c.Run.Workers = 0
			},
			wantError: true,
		},
		{
			name: "too many workers",
			modify: func(c *Config) {
				c.Run.Workers = 2048
			},
			wantError: true,
		},
		{
			name: "negative lease backoff",
			modify: func(c *Config) {
				c.Run.LeaseBackoff = -1 * time.Second
			},
			wantError: true,
		},
		{
			name: "empty behavior",
			modify: func(c *Config) {
				c.World.Behavior = ""
			},
			wantError: true,
		},
		{
			name: "behavior not an identifier",
			modify: func(c *Config) {
				c.World.Behavior = "Random-Walk"
			},
			wantError: true,
		},
		{
			name: "journal enabled without path",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantError: true,
		},
		{
			name: "in-memory journal needs no path",
			modify: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
				c.Journal.InMemory = true
			},
			wantError: false,
		},
		{
			name: "stats enabled without token",
			modify: func(c *Config) {
				c.Stats.Enabled = true
				c.Stats.Token = ""
			},
			wantError: true,
		},
		{
			name: "stats enabled with bad url",
			modify: func(c *Config) {
				c.Stats.Enabled = true
				c.Stats.Token = "secret"
				c.Stats.URL = "not a url"
			},
			wantError: true,
		},
		{
			name: "stats enabled fully configured",
			modify: func(c *Config) {
				c.Stats.Enabled = true
				c.Stats.Token = "secret"
			},
			wantError: false,
		},
		{
			name: "unknown trace exporter",
			modify: func(c *Config) {
				c.Telemetry.TraceExporter = "zipkin"
			},
			wantError: true,
		},
		{
			name: "sample rate too high",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = 1.5
			},
			wantError: true,
		},
		{
			name: "sample rate negative",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = -0.1
			},
			wantError: true,
		},
		{
			name: "monitor enabled without addr",
			modify: func(c *Config) {
				c.Monitor.Enabled = true
				c.Monitor.Addr = ""
			},
			wantError: true,
		},
		{
			name: "monitor addr missing port",
			modify: func(c *Config) {
				c.Monitor.Addr = "localhost"
			},
			wantError: true,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Logging.Level = "verbose"
			},
			wantError: true,
		},
		{
			name: "unknown log format",
			modify: func(c *Config) {
				c.Logging.Format = "xml"
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError = %v", err, tt.wantError)
			}
		})
	}
}

func TestLoad_FromYAML(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "swarm.yaml")

	yamlContent := `
run:
  steps: 500
  workers: 8

world:
  groups: 2
  agents_per_group: 10
  behavior: noop

journal:
  enabled: false

monitor:
  addr: 127.0.0.1:9000
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Steps != 500 {
		t.Errorf("Run.Steps = %d, want 500", cfg.Run.Steps)
	}
	if cfg.Run.Workers != 8 {
		t.Errorf("Run.Workers = %d, want 8", cfg.Run.Workers)
	}
	if cfg.World.Groups != 2 {
		t.Errorf("World.Groups = %d, want 2", cfg.World.Groups)
	}
	if cfg.World.Behavior != "noop" {
		t.Errorf("World.Behavior = %s, want noop", cfg.World.Behavior)
	}
	if cfg.Journal.Enabled {
		t.Error("Journal.Enabled should be false from file")
	}
	if cfg.Monitor.Addr != "127.0.0.1:9000" {
		t.Errorf("Monitor.Addr = %s, want 127.0.0.1:9000", cfg.Monitor.Addr)
	}

	// Unset sections keep their defaults.
	if cfg.Run.LeaseRetries != 10 {
		t.Errorf("Run.LeaseRetries = %d, want default 10", cfg.Run.LeaseRetries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want default info", cfg.Logging.Level)
	}
}

func TestLoad_FromJSON(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "swarm.json")

	jsonContent := `{
  "run": {
    "steps": 7
  },
  "telemetry": {
    "sample_rate": 0.25
  }
}`

	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Steps != 7 {
		t.Errorf("Run.Steps = %d, want 7", cfg.Run.Steps)
	}
	if cfg.Telemetry.SampleRate != 0.25 {
		t.Errorf("Telemetry.SampleRate = %f, want 0.25", cfg.Telemetry.SampleRate)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearSwarmEnv(t)
	t.Setenv("SWARM_STEPS", "42")
	t.Setenv("SWARM_LEASE_BACKOFF", "250ms")
	t.Setenv("SWARM_BEHAVIOR", "gossip")
	t.Setenv("SWARM_MONITOR_ENABLED", "0")
	t.Setenv("SWARM_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Steps != 42 {
		t.Errorf("Run.Steps = %d, want 42", cfg.Run.Steps)
	}
	if cfg.Run.LeaseBackoff != 250*time.Millisecond {
		t.Errorf("Run.LeaseBackoff = %v, want 250ms", cfg.Run.LeaseBackoff)
	}
	if cfg.World.Behavior != "gossip" {
		t.Errorf("World.Behavior = %s, want gossip", cfg.World.Behavior)
	}
	if cfg.Monitor.Enabled {
		t.Error("Monitor.Enabled should be false from env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "swarm.yaml")

	if err := os.WriteFile(configPath, []byte("run:\n  steps: 500\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Setenv("SWARM_STEPS", "42")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Run.Steps != 42 {
		t.Errorf("Run.Steps = %d, want env override 42", cfg.Run.Steps)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearSwarmEnv(t)

	// Non-existent file should return defaults
	cfg, err := Load("/nonexistent/path/swarm.yaml")
	if err != nil {
		t.Fatalf("Load() should not error for missing file: %v", err)
	}
	if cfg.Run.Steps != 100 {
		t.Errorf("Should return default Steps=100, got %d", cfg.Run.Steps)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "swarm.yaml")

	if err := os.WriteFile(configPath, []byte("not: valid: yaml: content:::"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() should error for invalid file")
	}
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "swarm.yaml")

	if err := os.WriteFile(configPath, []byte("run:\n  steps: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() should reject steps=0")
	}
}

func TestWriteDefault(t *testing.T) {
	clearSwarmEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "conf", "swarm.yaml")

	if err := WriteDefault(configPath); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	// The written file must load back to the defaults.
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() of written default error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("round-tripped config = %+v, want defaults", cfg)
	}

	// A second write must not clobber the existing file.
	if err := WriteDefault(configPath); err == nil {
		t.Error("WriteDefault() should refuse to overwrite an existing file")
	}
}

func TestRunConfig_ToWorkerOptions(t *testing.T) {
	run := RunConfig{QueueDepth: 16}
	opts := run.ToWorkerOptions()
	if opts.QueueDepth != 16 {
		t.Errorf("QueueDepth = %d, want 16", opts.QueueDepth)
	}
}

func TestRunConfig_ToTaskOptions(t *testing.T) {
	run := RunConfig{DropWait: 3 * time.Second}
	opts := run.ToTaskOptions()
	if opts.DropWait != 3*time.Second {
		t.Errorf("DropWait = %v, want 3s", opts.DropWait)
	}
}

func TestJournalConfig_ToJournalConfig(t *testing.T) {
	logger := slog.Default()
	section := JournalConfig{
		Enabled:    true,
		Path:       "/tmp/journal",
		InMemory:   false,
		SyncWrites: false,
	}

	cfg := section.ToJournalConfig(logger)

	if cfg.Path != "/tmp/journal" {
		t.Errorf("Path = %s, want /tmp/journal", cfg.Path)
	}
	if cfg.SyncWrites {
		t.Error("SyncWrites should follow the section, not the package default")
	}
	if cfg.Logger != logger {
		t.Error("Logger should be wired through")
	}

	// GC tuning stays at the journal package defaults.
	if cfg.GCInterval != 5*time.Minute {
		t.Errorf("GCInterval = %v, want 5m", cfg.GCInterval)
	}
	if cfg.GCDiscardRatio != 0.5 {
		t.Errorf("GCDiscardRatio = %f, want 0.5", cfg.GCDiscardRatio)
	}
}

func TestStatsConfig_ToSinkConfig(t *testing.T) {
	section := StatsConfig{
		URL:    "http://influx:8086",
		Token:  "secret",
		Org:    "my-org",
		Bucket: "my-bucket",
	}

	cfg := section.ToSinkConfig()

	if cfg.URL != "http://influx:8086" {
		t.Errorf("URL = %s, want http://influx:8086", cfg.URL)
	}
	if cfg.Token != "secret" {
		t.Errorf("Token = %s, want secret", cfg.Token)
	}
	if cfg.ReadyAttempts != 5 {
		t.Errorf("ReadyAttempts = %d, want package default 5", cfg.ReadyAttempts)
	}
}

func TestTelemetryConfig_ToTelemetryConfig(t *testing.T) {
	section := TelemetryConfig{
		TraceExporter:  "stdout",
		MetricExporter: "none",
		OTLPEndpoint:   "collector:4317",
		SampleRate:     0.5,
	}

	cfg := section.ToTelemetryConfig()

	if cfg.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %s, want stdout", cfg.TraceExporter)
	}
	if cfg.MetricExporter != "none" {
		t.Errorf("MetricExporter = %s, want none", cfg.MetricExporter)
	}
	if cfg.SampleRate != 0.5 {
		t.Errorf("SampleRate = %f, want 0.5", cfg.SampleRate)
	}
	if cfg.ServiceName != "swarm-engine" {
		t.Errorf("ServiceName = %s, want package default swarm-engine", cfg.ServiceName)
	}
}

func TestLoggingConfig_ToLoggingConfig(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		tty      bool
		wantJSON bool
	}{
		{name: "json always json", format: "json", tty: true, wantJSON: true},
		{name: "text always text", format: "text", tty: false, wantJSON: false},
		{name: "auto on tty is text", format: "auto", tty: true, wantJSON: false},
		{name: "auto off tty is json", format: "auto", tty: false, wantJSON: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			section := LoggingConfig{Level: "warn", Format: tt.format, Dir: "/var/log/swarm"}
			cfg := section.ToLoggingConfig("engine", tt.tty)

			if cfg.JSON != tt.wantJSON {
				t.Errorf("JSON = %v, want %v", cfg.JSON, tt.wantJSON)
			}
			if cfg.Level != logging.LevelWarn {
				t.Errorf("Level = %v, want LevelWarn", cfg.Level)
			}
			if cfg.Service != "engine" {
				t.Errorf("Service = %s, want engine", cfg.Service)
			}
			if cfg.LogDir != "/var/log/swarm" {
				t.Errorf("LogDir = %s, want /var/log/swarm", cfg.LogDir)
			}
		})
	}
}
