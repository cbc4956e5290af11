// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sim drives the simulation loop.
//
// An Engine owns a worker pool and steps a state forward: each step it
// takes the whole-state write lease, splits it over the workers, runs
// the configured behavior on every group, and journals the outcome.
// Agents only message groupmates, so groups are independent within a
// step and the split needs no coordination beyond the lease itself.
//
// Behaviors are pure per-group logic registered by name. The engine
// hands each one a deterministic per-group RNG, so a run replays
// exactly from its seed no matter how many workers carried it.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/events"
	"github.com/AleutianAI/AleutianSwarm/services/engine/journal"
	"github.com/AleutianAI/AleutianSwarm/services/engine/memory"
	"github.com/AleutianAI/AleutianSwarm/services/engine/pool"
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
	"github.com/AleutianAI/AleutianSwarm/services/engine/stats"
	"github.com/AleutianAI/AleutianSwarm/services/engine/task"
	"github.com/AleutianAI/AleutianSwarm/services/engine/telemetry"
	"github.com/AleutianAI/AleutianSwarm/services/engine/worker"
)

const (
	// tracerName identifies engine spans.
	tracerName = "engine.sim"

	// finishTimeout bounds the detached journal and stats writes after
	// a run ends, including runs ended by context cancellation.
	finishTimeout = 5 * time.Second
)

// ResultKindStep tags the TaskMessage a worker sends back for a step
// share.
const ResultKindStep = "step_share"

// ShareResult is what one worker reports after running its share of a
// step. The step driver sums these across tasks.
type ShareResult struct {
	Agents   int `json:"agents"`
	Messages int `json:"messages"`
	Flushes  int `json:"flushes"`
}

// Options tunes a run.
type Options struct {
	// RunID names the run. Empty picks a fresh UUID.
	RunID string

	// Steps is how many steps the run executes.
	Steps int

	// Workers sizes the worker pool.
	Workers int

	// QueueDepth is the per-worker dispatch queue depth.
	QueueDepth int

	// Seed feeds the per-group RNGs. Zero picks the current time; the
	// effective seed is logged and exposed so any run can be replayed.
	Seed int64

	// Behavior is the registered behavior name to run.
	Behavior string

	// LeaseRetries is how many times a step retries the state lease
	// when another holder has it.
	LeaseRetries int

	// LeaseBackoff is the pause between lease retries.
	LeaseBackoff time.Duration

	// DropWait bounds the wait for workers to confirm abandoned tasks.
	// Zero uses the task default.
	DropWait time.Duration
}

// DefaultOptions returns the standard engine options.
func DefaultOptions() Options {
	return Options{
		Steps:        100,
		Workers:      4,
		QueueDepth:   4,
		Behavior:     "random_walk",
		LeaseRetries: 10,
		LeaseBackoff: 100 * time.Millisecond,
	}
}

// Deps are the engine's collaborators, all optional. A nil Sink means
// stats.NopSink, a nil Bus a private bus, a nil Logger slog.Default. A
// nil Journal runs without history and a nil Metrics without
// instrument updates.
type Deps struct {
	Journal *journal.Journal
	Sink    stats.Sink
	Bus     *events.Bus
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Engine steps a state forward with a pool of workers.
//
// # Thread Safety
//
// One run at a time; a second Run while the first is in flight fails
// with ErrAlreadyRunning. Status, RunID, Seed, Events and
// NotifySegmentsChanged are safe to call concurrently with a run.
type Engine struct {
	opts     Options
	st       *state.State
	behavior Behavior
	pool     *worker.Pool

	journal *journal.Journal
	sink    stats.Sink
	bus     *events.Bus
	metrics *telemetry.Metrics
	logger  *slog.Logger

	running  atomic.Bool
	lastStep atomic.Int64

	reloadMu sync.Mutex
	reload   map[string]struct{}
}

// New builds an engine over st and starts its worker pool.
//
// # Inputs
//
//   - st: the state to step. Must be non-nil.
//   - opts: run tuning. Zero fields fall back to DefaultOptions; a
//     zero Seed is replaced with the current time so the effective
//     seed is always concrete.
//   - deps: collaborators, all optional.
//
// # Outputs
//
//   - *Engine: ready to Run. Callers own Close.
//   - error: ErrNilState, ErrUnknownBehavior, or the worker pool
//     failure.
func New(st *state.State, opts Options, deps Deps) (*Engine, error) {
	if st == nil {
		return nil, ErrNilState
	}
	def := DefaultOptions()
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Steps <= 0 {
		opts.Steps = def.Steps
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Behavior == "" {
		opts.Behavior = def.Behavior
	}
	if opts.LeaseRetries < 0 {
		opts.LeaseRetries = 0
	}
	if opts.LeaseBackoff <= 0 {
		opts.LeaseBackoff = def.LeaseBackoff
	}

	behavior, err := LookupBehavior(opts.Behavior)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "sim"),
		slog.String("run_id", opts.RunID))

	sink := deps.Sink
	if sink == nil {
		sink = stats.NopSink{}
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.New()
	}

	wp, err := worker.NewPool(opts.Workers, worker.Options{QueueDepth: opts.QueueDepth}, logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:     opts,
		st:       st,
		behavior: behavior,
		pool:     wp,
		journal:  deps.Journal,
		sink:     sink,
		bus:      bus,
		metrics:  deps.Metrics,
		logger:   logger,
		reload:   make(map[string]struct{}),
	}, nil
}

// RunID returns the run identifier.
func (e *Engine) RunID() string { return e.opts.RunID }

// Seed returns the effective seed. Pass it back in to replay the run.
func (e *Engine) Seed() int64 { return e.opts.Seed }

// Events returns the bus run and step events publish on.
func (e *Engine) Events() *events.Bus { return e.bus }

// Status is a point-in-time snapshot of the engine for monitoring.
type Status struct {
	RunID    string       `json:"run_id"`
	Running  bool         `json:"running"`
	Step     int          `json:"step"`
	Steps    int          `json:"steps"`
	Seed     int64        `json:"seed"`
	Behavior string       `json:"behavior"`
	Workers  worker.Stats `json:"workers"`
	State    state.Status `json:"state"`
}

// Status reports where the engine is. Safe during a run; the state
// counts come from the state's own snapshot.
func (e *Engine) Status() Status {
	return Status{
		RunID:    e.opts.RunID,
		Running:  e.running.Load(),
		Step:     int(e.lastStep.Load()),
		Steps:    e.opts.Steps,
		Seed:     e.opts.Seed,
		Behavior: e.behavior.Name(),
		Workers:  e.pool.Stats(),
		State:    e.st.Snapshot(),
	}
}

// NotifySegmentsChanged flags segments for reconciliation before the
// next step. It matches memory.ChangeHandler, so the engine can sit
// directly behind a watcher.
func (e *Engine) NotifySegmentsChanged(segmentIDs []string) {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	for _, id := range segmentIDs {
		e.reload[id] = struct{}{}
	}
}

// takeReloads drains the flagged set and reports how many segments it
// held.
func (e *Engine) takeReloads() int {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()
	n := len(e.reload)
	if n > 0 {
		e.reload = make(map[string]struct{})
	}
	return n
}

// Close shuts the worker pool down. The engine cannot run again after
// Close.
func (e *Engine) Close() error {
	return e.pool.Close()
}

// RunResult summarizes a finished run.
type RunResult struct {
	RunID    string        `json:"run_id"`
	StepsRun int           `json:"steps_run"`
	Duration time.Duration `json:"duration_ns"`
}

// Run executes the configured number of steps.
//
// # Description
//
// The run is journaled start to finish and emits bus events as it
// goes. A step failure or a cancelled context aborts the run; the
// abort record is written on a detached short-lived context so it
// survives the cancellation that caused it. Partial progress is real
// progress: mutations from completed steps are already flushed.
//
// # Outputs
//
//   - RunResult: steps actually run and wall time, even on abort.
//   - error: ErrAlreadyRunning, the step failure, or the context
//     error.
func (e *Engine) Run(ctx context.Context) (RunResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return RunResult{}, ErrAlreadyRunning
	}
	defer e.running.Store(false)
	e.lastStep.Store(0)

	ctx, span := telemetry.StartSpan(ctx, tracerName, "engine.run",
		trace.WithAttributes(
			attribute.String("run_id", e.opts.RunID),
			attribute.Int("steps", e.opts.Steps),
			attribute.String("behavior", e.behavior.Name()),
			attribute.Int64("seed", e.opts.Seed),
		))
	defer span.End()

	logger := telemetry.LoggerWithTrace(ctx, e.logger)
	started := time.Now()

	agents, groups, err := e.census(ctx, logger)
	if err != nil {
		telemetry.RecordError(span, err)
		return RunResult{}, err
	}

	if e.journal != nil {
		rec := journal.RunRecord{
			RunID:     e.opts.RunID,
			Status:    journal.RunStatusRunning,
			StartedAt: started,
		}
		if err := e.journal.PutRun(ctx, rec); err != nil {
			telemetry.RecordError(span, err)
			return RunResult{}, fmt.Errorf("journal run start: %w", err)
		}
	}

	e.bus.Publish(events.TopicRunStarted, events.RunStartedEvent{
		RunID:  e.opts.RunID,
		Steps:  e.opts.Steps,
		Agents: agents,
		Groups: groups,
	})
	logger.Info("run started",
		slog.Int("steps", e.opts.Steps),
		slog.Int("agents", agents),
		slog.Int("groups", groups),
		slog.Int("workers", e.pool.Len()),
		slog.String("behavior", e.behavior.Name()),
		slog.Int64("seed", e.opts.Seed))

	stepsRun := 0
	var runErr error
	for stepNo := 1; stepNo <= e.opts.Steps; stepNo++ {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted before step %d: %w", stepNo, err)
			break
		}
		if err := e.step(ctx, stepNo); err != nil {
			e.bus.Publish(events.TopicStepFailed, events.StepFailedEvent{
				RunID:  e.opts.RunID,
				Step:   stepNo,
				Reason: err.Error(),
			})
			if e.metrics != nil {
				e.metrics.ErrorsTotal.Add(ctx, 1,
					metric.WithAttributes(attribute.String("component", "sim")))
			}
			runErr = fmt.Errorf("step %d: %w", stepNo, err)
			break
		}
		stepsRun++
		e.lastStep.Store(int64(stepNo))
	}

	duration := time.Since(started)
	e.finishRun(started, stepsRun, agents, duration, runErr, logger)

	result := RunResult{RunID: e.opts.RunID, StepsRun: stepsRun, Duration: duration}
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		logger.Error("run aborted",
			slog.Int("steps_run", stepsRun),
			slog.Duration("duration", duration),
			slog.String("error", runErr.Error()))
		return result, runErr
	}
	telemetry.SetSpanOK(span)
	logger.Info("run finished",
		slog.Int("steps_run", stepsRun),
		slog.Duration("duration", duration))
	return result, nil
}

// census counts the reachable population under a short read lease.
func (e *Engine) census(ctx context.Context, logger *slog.Logger) (agents, groups int, err error) {
	prx, _, err := leaseWithRetry(ctx, e, logger, e.st.ReadProxies)
	if err != nil {
		return 0, 0, fmt.Errorf("census: %w", err)
	}
	defer prx.Release()
	return prx.NAccessibleAgents(), prx.AgentPool().Len(), nil
}

// finishRun persists the run's final record and summary stats on a
// detached context, so an aborted run still lands in the journal.
func (e *Engine) finishRun(started time.Time, stepsRun, agents int, duration time.Duration, runErr error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	status := journal.RunStatusCompleted
	errText := ""
	if runErr != nil {
		status = journal.RunStatusAborted
		errText = runErr.Error()
	}

	if e.journal != nil {
		rec := journal.RunRecord{
			RunID:      e.opts.RunID,
			Status:     status,
			Steps:      stepsRun,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Error:      errText,
		}
		if err := e.journal.PutRun(ctx, rec); err != nil {
			logger.Warn("final run record not persisted",
				slog.String("error", err.Error()))
		}
	}

	if err := e.sink.RecordRun(ctx, stats.RunStats{
		RunID:     e.opts.RunID,
		Status:    status,
		Steps:     stepsRun,
		Agents:    agents,
		Duration:  duration,
		Timestamp: time.Now(),
	}); err != nil {
		logger.Warn("run stats not recorded", slog.String("error", err.Error()))
	}

	e.bus.Publish(events.TopicRunFinished, events.RunFinishedEvent{
		RunID:    e.opts.RunID,
		StepsRun: stepsRun,
		Duration: duration,
		Error:    errText,
	})
}

// step advances the world by one step.
//
// # Description
//
// The driver leases the whole state, reconciles any segments the
// watcher flagged, splits the lease over the workers, and drives every
// share's task to completion. Slices of the lease travel to the
// workers inside task stores; each worker flushes its groups before
// resolving, so a completed step means the step's mutations are
// persisted. Deferred releases reap whatever a failure leaves running,
// bounded by the drop window.
func (e *Engine) step(ctx context.Context, stepNo int) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "engine.step",
		trace.WithAttributes(
			attribute.String("run_id", e.opts.RunID),
			attribute.Int("step", stepNo)))
	defer span.End()

	logger := telemetry.LoggerWithStep(ctx, e.logger, stepNo)
	started := time.Now()

	prx, retries, err := leaseWithRetry(ctx, e, logger, e.st.WriteProxies)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if n := e.takeReloads(); n > 0 {
		if err := prx.MaybeReload(); err != nil {
			prx.Release()
			telemetry.RecordError(span, err)
			return fmt.Errorf("reload flagged segments: %w", err)
		}
		logger.Info("segments reconciled", slog.Int("flagged", n))
		if e.metrics != nil {
			e.metrics.BatchReloadsTotal.Add(ctx, int64(n))
		}
	}

	groups := prx.AgentPool().Len()

	// Distribute consumes the lease; from here the shares own it.
	store := task.NewTaskSharedStoreBuilder().WriteState(prx).ReadContext().Build()
	shares, split, err := store.Distribute(task.Distribution{}, e.pool.Allocation())
	if err != nil {
		store.Release()
		telemetry.RecordError(span, err)
		return fmt.Errorf("distribute state: %w", err)
	}
	logger.Debug("state distributed",
		slog.Int("workers", split.NumWorkers),
		slog.Any("agents_per_worker", split.AgentDistribution))

	tasks, dispatchErr := e.dispatch(shares, stepNo, logger)
	defer func() {
		for _, st := range tasks {
			st.at.Release()
		}
	}()
	if dispatchErr != nil {
		telemetry.RecordError(span, dispatchErr)
		return dispatchErr
	}

	agg, resolved, err := e.drive(ctx, tasks, stepNo, logger)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	duration := time.Since(started)
	if e.journal != nil {
		rec := journal.StepRecord{
			RunID:     e.opts.RunID,
			Step:      stepNo,
			Agents:    agg.Agents,
			Groups:    groups,
			Tasks:     resolved,
			Retries:   retries,
			Duration:  duration,
			StartedAt: started,
		}
		if err := e.journal.AppendStep(ctx, rec); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("journal step: %w", err)
		}
	}
	if err := e.sink.RecordStep(ctx, stats.StepStats{
		RunID:     e.opts.RunID,
		Step:      stepNo,
		Agents:    agg.Agents,
		Groups:    groups,
		Tasks:     resolved,
		Completed: resolved,
		Retries:   retries,
		Duration:  duration,
		Timestamp: started,
	}); err != nil {
		logger.Warn("step stats not recorded", slog.String("error", err.Error()))
	}

	e.bus.Publish(events.TopicStepCompleted, events.StepCompletedEvent{
		RunID:    e.opts.RunID,
		Step:     stepNo,
		Agents:   agg.Agents,
		Tasks:    resolved,
		Duration: duration,
	})
	if e.metrics != nil {
		e.metrics.StepsTotal.Add(ctx, 1)
		e.metrics.StepDuration.Record(ctx, duration.Seconds())
		e.metrics.StepAgentsTotal.Add(ctx, int64(agg.Agents))
		e.metrics.BatchFlushesTotal.Add(ctx, int64(agg.Flushes))
	}
	telemetry.SetSpanOK(span)
	logger.Debug("step completed",
		slog.Int("agents", agg.Agents),
		slog.Int("messages", agg.Messages),
		slog.Int("tasks", resolved),
		slog.Duration("duration", duration))
	return nil
}

// stepTask pairs an in-flight task with the worker carrying it.
type stepTask struct {
	at     *task.ActiveTask
	worker task.WorkerIndex
}

// dispatch creates and places one task per non-empty share. Tasks
// already placed when a dispatch fails are returned anyway, so the
// caller's deferred releases can reap them; shares that never became
// tasks are released here.
func (e *Engine) dispatch(shares []task.WorkerStore, stepNo int, logger *slog.Logger) ([]stepTask, error) {
	run := e.shareRunner(stepNo)
	tasks := make([]stepTask, 0, len(shares))
	for i, ws := range shares {
		if _, groups, err := ws.Store.WriteAccess(); err != nil || len(groups) == 0 {
			// More workers than groups leaves empty shares.
			ws.Store.Release()
			continue
		}
		at, handle := task.NewActiveTask(ws.Store, task.Options{DropWait: e.opts.DropWait}, logger)
		if err := e.pool.DispatchTo(ws.Worker, worker.Dispatch{Handle: handle, Run: run}); err != nil {
			// The worker never saw this task, so nobody else will
			// resolve it. Resolving it here keeps the deferred Release
			// from waiting out the drop window.
			if serr := handle.SendCancelled(); serr != nil {
				logger.Warn("undispatched task not resolved",
					slog.String("task_id", at.ID()),
					slog.String("error", serr.Error()))
			}
			tasks = append(tasks, stepTask{at: at, worker: ws.Worker})
			for _, rest := range shares[i+1:] {
				rest.Store.Release()
			}
			return tasks, fmt.Errorf("dispatch step %d to worker %d: %w", stepNo, ws.Worker, err)
		}
		tasks = append(tasks, stepTask{at: at, worker: ws.Worker})
	}
	return tasks, nil
}

// drive awaits every task and sums the share results.
func (e *Engine) drive(ctx context.Context, tasks []stepTask, stepNo int, logger *slog.Logger) (ShareResult, int, error) {
	var agg ShareResult
	resolved := 0
	for _, st := range tasks {
		waitStart := time.Now()
		msg, err := st.at.DriveToCompletion(ctx)
		taskState := st.at.State()

		e.bus.Publish(events.TopicTaskResolved, events.TaskResolvedEvent{
			RunID:  e.opts.RunID,
			Step:   stepNo,
			TaskID: st.at.ID(),
			Worker: int(st.worker),
			State:  taskState.String(),
		})
		if e.metrics != nil {
			e.metrics.TasksTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("state", taskState.String())))
			e.metrics.TaskDuration.Record(ctx, time.Since(waitStart).Seconds())
		}
		if err != nil {
			return agg, resolved, fmt.Errorf("task %s on worker %d: %w", st.at.ID(), st.worker, err)
		}
		resolved++

		var res ShareResult
		if jerr := json.Unmarshal(msg.Payload, &res); jerr != nil {
			logger.Warn("unreadable share result",
				slog.String("task_id", st.at.ID()),
				slog.String("error", jerr.Error()))
			continue
		}
		agg.Agents += res.Agents
		agg.Messages += res.Messages
		agg.Flushes += res.Flushes
	}
	return agg, resolved, nil
}

// shareRunner builds the worker-side body for one step. The closure
// may run on any worker, so everything step-specific travels in by
// value.
func (e *Engine) shareRunner(stepNo int) worker.BehaviorFunc {
	behavior := e.behavior
	runID := e.opts.RunID
	seed := e.opts.Seed
	return func(ctx context.Context, store *task.TaskSharedStore) (task.TaskMessage, error) {
		prx, groups, err := store.WriteAccess()
		if err != nil {
			return task.TaskMessage{}, fmt.Errorf("step %d share: %w", stepNo, err)
		}

		var res ShareResult
		agentPool := prx.AgentPool()
		messagePool := prx.MessagePool()
		for i := 0; i < agentPool.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return task.TaskMessage{}, fmt.Errorf("step %d share: %w", stepNo, err)
			}
			group := groups[i]
			sc := StepContext{
				RunID: runID,
				Step:  stepNo,
				Group: group,
				Rand:  rand.New(rand.NewSource(groupSeed(seed, stepNo, group))),
			}
			agents := agentPool.Batch(i)
			messages := messagePool.Batch(i)

			if err := behavior.Apply(ctx, sc, agents, messages); err != nil {
				return task.TaskMessage{}, fmt.Errorf("behavior %s on group %d: %w", behavior.Name(), group, err)
			}
			res.Agents += agents.Rows()
			res.Messages += messages.Rows()

			// Message rows change every step; agent rows never do.
			if err := agents.Flush(memory.NewBufferChange(false, false)); err != nil {
				return task.TaskMessage{}, fmt.Errorf("flush agents of group %d: %w", group, err)
			}
			if err := messages.Flush(memory.NewBufferChange(true, false)); err != nil {
				return task.TaskMessage{}, fmt.Errorf("flush messages of group %d: %w", group, err)
			}
			res.Flushes += 2
		}

		payload, err := json.Marshal(res)
		if err != nil {
			return task.TaskMessage{}, fmt.Errorf("encode share result: %w", err)
		}
		return task.TaskMessage{Kind: ResultKindStep, Payload: payload}, nil
	}
}

// groupSeed derives the RNG seed for one group's step. The mix uses
// the splitmix64 multipliers so nearby steps and groups land far
// apart.
func groupSeed(runSeed int64, step, group int) int64 {
	h := uint64(runSeed)
	h ^= uint64(step) * 0x9E3779B97F4A7C15
	h ^= uint64(group+1) * 0xBF58476D1CE4E5B9
	return int64(h)
}

// leaseWithRetry runs lease until it succeeds, retrying contention
// with backoff up to the engine's retry budget. Returns the leased
// value and how many retries it took.
func leaseWithRetry[T any](ctx context.Context, e *Engine, logger *slog.Logger, lease func() (T, error)) (T, int, error) {
	var zero T
	retries := 0
	for {
		v, err := lease()
		if err == nil {
			return v, retries, nil
		}
		if !isContention(err) {
			return zero, retries, fmt.Errorf("lease state: %w", err)
		}
		if retries >= e.opts.LeaseRetries {
			return zero, retries, fmt.Errorf("%w after %d attempts: %v", ErrLeaseRetriesExhausted, retries+1, err)
		}
		retries++
		if e.metrics != nil {
			e.metrics.LeaseRetriesTotal.Add(ctx, 1)
		}
		logger.Warn("state leased elsewhere, backing off",
			slog.Int("attempt", retries),
			slog.Duration("backoff", e.opts.LeaseBackoff),
			slog.String("cause", err.Error()))
		select {
		case <-ctx.Done():
			return zero, retries, fmt.Errorf("lease state: %w", ctx.Err())
		case <-time.After(e.opts.LeaseBackoff):
		}
	}
}

// isContention classifies lease failures worth retrying: another
// holder either leased overlapping batches or holds a batch lock the
// proxy needs.
func isContention(err error) bool {
	return errors.Is(err, pool.ErrLeaseOverlap) ||
		errors.Is(err, batch.ErrProxyExclusiveLock) ||
		errors.Is(err, batch.ErrProxySharedLock)
}
