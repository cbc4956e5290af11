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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration.
//
// Resolution order, later layers winning:
//
//  1. Default()
//  2. The file at path, when path is non-empty and the file exists.
//     A missing file is not an error; a malformed one is.
//  3. SWARM_* environment variables.
//
// The merged result is validated before it is returned.
//
// Inputs:
//   - path: Config file path, or "" to skip the file layer.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is malformed or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadFromEnv(cfg *Config) {
	// Run
	if v := os.Getenv("SWARM_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Steps = n
		}
	}
	if v := os.Getenv("SWARM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Workers = n
		}
	}
	if v := os.Getenv("SWARM_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.QueueDepth = n
		}
	}
	if v := os.Getenv("SWARM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Run.Seed = n
		}
	}
	if v := os.Getenv("SWARM_LEASE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.LeaseRetries = n
		}
	}
	if v := os.Getenv("SWARM_LEASE_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.LeaseBackoff = d
		}
	}
	if v := os.Getenv("SWARM_DROP_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Run.DropWait = d
		}
	}

	// World
	if v := os.Getenv("SWARM_GROUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.World.Groups = n
		}
	}
	if v := os.Getenv("SWARM_AGENTS_PER_GROUP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.World.AgentsPerGroup = n
		}
	}
	if v := os.Getenv("SWARM_BEHAVIOR"); v != "" {
		cfg.World.Behavior = v
	}

	// Journal
	if v := os.Getenv("SWARM_JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SWARM_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("SWARM_JOURNAL_IN_MEMORY"); v != "" {
		cfg.Journal.InMemory = v == "true" || v == "1"
	}
	if v := os.Getenv("SWARM_JOURNAL_SYNC_WRITES"); v != "" {
		cfg.Journal.SyncWrites = v == "true" || v == "1"
	}

	// Stats. The INFLUXDB_* names match the stats package defaults so
	// the same variables work with and without a config file.
	if v := os.Getenv("SWARM_STATS_ENABLED"); v != "" {
		cfg.Stats.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.Stats.URL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Stats.Token = v
	}
	if v := os.Getenv("INFLUXDB_ORG"); v != "" {
		cfg.Stats.Org = v
	}
	if v := os.Getenv("INFLUXDB_BUCKET"); v != "" {
		cfg.Stats.Bucket = v
	}

	// Telemetry. OTEL_* names match the telemetry package defaults.
	if v := os.Getenv("SWARM_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OTEL_TRACES_EXPORTER"); v != "" {
		cfg.Telemetry.TraceExporter = v
	}
	if v := os.Getenv("OTEL_METRICS_EXPORTER"); v != "" {
		cfg.Telemetry.MetricExporter = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("SWARM_TRACE_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Telemetry.SampleRate = f
		}
	}

	// Monitor
	if v := os.Getenv("SWARM_MONITOR_ENABLED"); v != "" {
		cfg.Monitor.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SWARM_MONITOR_ADDR"); v != "" {
		cfg.Monitor.Addr = v
	}

	// Logging
	if v := os.Getenv("SWARM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWARM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SWARM_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
}

// WriteDefault writes the default configuration to path as YAML,
// creating parent directories as needed. An existing file is left
// untouched and reported as an error. Duration fields are written and
// read as Go duration strings like "100ms".
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
