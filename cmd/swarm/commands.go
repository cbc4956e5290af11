// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSwarm/services/engine/config"
	"github.com/AleutianAI/AleutianSwarm/services/engine/sim"
)

// --- Global Command Variables ---
var (
	cfgFile      string // config file path, "" means defaults + env only
	debugMode    bool
	flagRunID    string
	flagSteps    int
	flagWorkers  int
	flagSeed     int64
	flagBehavior string

	rootCmd = &cobra.Command{
		Use:     "swarm",
		Short:   "Run and observe Aleutian Swarm simulations",
		Version: "1.0.0",
		Long: `Swarm steps a population of agents forward under a worker pool,
journals every step, and serves live status over HTTP while the run
is in flight.`,
	}

	// --- Run ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Seed a demo world and run the engine",
		Long: `Seeds a world of agent groups from the config, runs the configured
number of steps, and exits. SIGINT or SIGTERM aborts the run after the
current step; completed steps are already journaled.`,
		Run: runRunCommand, // Defined in cmd_run.go
	}

	// --- Config Management ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the engine configuration file",
	}
	configInitCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConfigInit,
	}

	// --- Behaviors ---
	behaviorsCmd = &cobra.Command{
		Use:   "behaviors",
		Short: "List the registered agent behaviors",
		Run:   runBehaviors,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Config file path (YAML or JSON). Missing file falls back to defaults.")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug mode (verbose gin output on the monitor)")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&flagRunID, "run-id", "",
		"Name for this run (lowercase alphanumerics and hyphens). Empty picks a UUID.")
	runCmd.Flags().IntVar(&flagSteps, "steps", 0,
		"Number of steps to run, overriding the config when positive")
	runCmd.Flags().IntVar(&flagWorkers, "workers", 0,
		"Worker pool size, overriding the config when positive")
	runCmd.Flags().Int64Var(&flagSeed, "seed", 0,
		"RNG seed for a replayable run. Zero picks a fresh seed.")
	runCmd.Flags().StringVar(&flagBehavior, "behavior", "",
		"Registered behavior to run, overriding the config when set")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(behaviorsCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	path := "swarm.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if err := config.WriteDefault(path); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	fmt.Printf("Wrote default configuration to %s\n", path)
}

func runBehaviors(cmd *cobra.Command, args []string) {
	for _, name := range sim.Behaviors() {
		fmt.Println(name)
	}
}
