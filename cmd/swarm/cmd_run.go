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
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianSwarm/pkg/logging"
	"github.com/AleutianAI/AleutianSwarm/pkg/validation"
	"github.com/AleutianAI/AleutianSwarm/services/engine/config"
	"github.com/AleutianAI/AleutianSwarm/services/engine/journal"
	"github.com/AleutianAI/AleutianSwarm/services/engine/memory"
	"github.com/AleutianAI/AleutianSwarm/services/engine/monitor"
	"github.com/AleutianAI/AleutianSwarm/services/engine/sim"
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
	"github.com/AleutianAI/AleutianSwarm/services/engine/stats"
	"github.com/AleutianAI/AleutianSwarm/services/engine/telemetry"
)

// shutdownTimeout bounds monitor and telemetry teardown after the run
// context is already cancelled.
const shutdownTimeout = 5 * time.Second

func runRunCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyRunFlags(&cfg)

	logger := logging.New(cfg.Logging.ToLoggingConfig("swarm", isatty.IsTerminal(os.Stderr.Fd())))
	slog.SetDefault(logger.Slog())

	runErr := runEngine(cfg, logger.Slog())
	if runErr != nil {
		logger.Error("Run failed", "error", runErr.Error())
	}
	logger.Close()
	if runErr != nil {
		os.Exit(1)
	}
}

// applyRunFlags layers the run command's flags over the loaded config.
// Zero values mean the flag was not given.
func applyRunFlags(cfg *config.Config) {
	if flagSteps > 0 {
		cfg.Run.Steps = flagSteps
	}
	if flagWorkers > 0 {
		cfg.Run.Workers = flagWorkers
	}
	if flagSeed != 0 {
		cfg.Run.Seed = flagSeed
	}
	if flagBehavior != "" {
		cfg.World.Behavior = flagBehavior
	}
}

// runEngine wires the full stack and executes one run.
//
// Startup order is telemetry, journal, stats sink, state and world,
// engine, segment watcher, monitor; teardown happens in reverse via
// defers, so the monitor stops answering before the engine it reports
// on goes away. SIGINT and SIGTERM cancel the run context, which
// aborts the run after the step in flight.
func runEngine(cfg config.Config, logger *slog.Logger) error {
	runID := ""
	if flagRunID != "" {
		id, err := validation.SanitizeRunID(flagRunID)
		if err != nil {
			return fmt.Errorf("invalid --run-id: %w", err)
		}
		runID = id
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received, aborting after the current step")
		cancel()
	}()

	// Gin mode must be set before the monitor builds its router.
	if debugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ToTelemetryConfig())
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}()

		metrics, err = telemetry.NewMetrics(otel.Meter("engine"))
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
	}

	var jnl *journal.Journal
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.ToJournalConfig(logger))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		jnl = j
	}

	var sink stats.Sink = stats.NopSink{}
	if cfg.Stats.Enabled {
		is, err := stats.NewInfluxSink(ctx, cfg.Stats.ToSinkConfig(), logger)
		if err != nil {
			return fmt.Errorf("connect stats sink: %w", err)
		}
		defer is.Close()
		sink = is
	}

	// The segment directory lives for one run. External flushers can
	// write into it; the watcher picks those flushes up.
	segDir, err := os.MkdirTemp("", "swarm-segments-")
	if err != nil {
		return fmt.Errorf("create segment directory: %w", err)
	}
	defer os.RemoveAll(segDir)

	// One seed drives both world placement and the per-group step RNGs,
	// so a logged seed replays the whole run.
	seed := cfg.Run.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	st := state.New(segDir, logger)
	_, agents, err := sim.SeedWorld(st, cfg.World.Groups, cfg.World.AgentsPerGroup, seed, logger)
	if err != nil {
		return fmt.Errorf("seed world: %w", err)
	}
	logger.Info("World seeded",
		slog.Int("groups", cfg.World.Groups),
		slog.Int("agents", agents),
		slog.Int64("seed", seed),
		slog.String("segment_dir", segDir))

	eng, err := sim.New(st, sim.Options{
		RunID:        runID,
		Steps:        cfg.Run.Steps,
		Workers:      cfg.Run.Workers,
		QueueDepth:   cfg.Run.QueueDepth,
		Seed:         seed,
		Behavior:     cfg.World.Behavior,
		LeaseRetries: cfg.Run.LeaseRetries,
		LeaseBackoff: cfg.Run.LeaseBackoff,
		DropWait:     cfg.Run.DropWait,
	}, sim.Deps{
		Journal: jnl,
		Sink:    sink,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer eng.Close()

	if metrics != nil {
		reg, err := metrics.RegisterOutstandingLeases(otel.Meter("engine"), func() int64 {
			return int64(st.AgentPool().OutstandingLeases() + st.MessagePool().OutstandingLeases())
		})
		if err != nil {
			logger.Warn("Failed to register lease gauge", slog.String("error", err.Error()))
		} else {
			defer reg.Unregister()
		}
	}

	watcher, err := memory.NewWatcher(st.Dir(), eng.NotifySegmentsChanged, logger, nil)
	if err != nil {
		return fmt.Errorf("create segment watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start segment watcher: %w", err)
	}
	defer watcher.Stop()

	if cfg.Monitor.Enabled {
		mon, err := monitor.New(monitor.Config{Addr: cfg.Monitor.Addr}, monitor.Deps{
			Engine:  eng,
			Journal: jnl,
			Metrics: metrics,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("build monitor: %w", err)
		}
		if err := mon.Start(); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := mon.Shutdown(sctx); err != nil {
				logger.Warn("Monitor shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	res, err := eng.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Run aborted by signal",
				slog.String("run_id", res.RunID),
				slog.Int("steps_run", res.StepsRun),
				slog.Duration("duration", res.Duration))
			return nil
		}
		return fmt.Errorf("run %s: %w", res.RunID, err)
	}

	logger.Info("Run complete",
		slog.String("run_id", res.RunID),
		slog.Int("steps_run", res.StepsRun),
		slog.Duration("duration", res.Duration))
	return nil
}
