// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command swarm runs the Aleutian Swarm simulation engine.
//
// A run seeds a demo world of agent groups, steps it forward with a
// worker pool, and journals every step. While the run is in flight the
// monitor server exposes status, run history and a live event stream
// over HTTP.
//
// Usage:
//
//	swarm run
//	swarm run --steps 500 --seed 42
//	swarm run --config swarm.yaml --run-id nightly-2026-08-25
//
// Write a starting config file:
//
//	swarm config init swarm.yaml
//
// Watch a run:
//
//	curl http://localhost:8089/v1/engine/status
//	curl http://localhost:8089/v1/engine/steps | jq
//	websocat 'ws://localhost:8089/v1/engine/ws?topic=step.'
//
// Settings resolve in four layers, later layers winning: built-in
// defaults, the config file, SWARM_* environment variables, flags.
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
