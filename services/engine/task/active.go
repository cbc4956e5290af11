// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package task carries state access from the step driver to the
// workers and back.
//
// A task is born as a TaskSharedStore (what the task may touch), is
// split over workers by Distribute, and is observed by the owner
// through an ActiveTask. The owner and the worker exchange exactly one
// resolution over a one-shot channel: a result, or a cancellation
// confirmation. The shared store's proxies are released worker-side
// before that resolution is sent, so whenever the owner returns from
// awaiting a task, the batches the task held are free again.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is the owner-side lifecycle state of a task.
type TaskState int

const (
	// TaskRunning means the worker has not resolved the task yet.
	TaskRunning TaskState = iota
	// TaskCompletedNormally means DriveToCompletion returned a result.
	TaskCompletedNormally
	// TaskCompletedAfterCancelRace means the worker produced a result
	// before observing a requested cancellation. Benign.
	TaskCompletedAfterCancelRace
	// TaskCancelledCleanly means a requested cancellation was
	// confirmed by the worker.
	TaskCancelledCleanly
	// TaskAbandonedConfirmed means the task was released while still
	// running and the worker resolved it within the drop window.
	TaskAbandonedConfirmed
	// TaskAbandonedTimedOut means the task was released while still
	// running and the drop window expired without a resolution.
	TaskAbandonedTimedOut
	// TaskFailed means the owner-worker protocol desynced: the channel
	// closed, or a cancellation arrived that nobody requested.
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "running"
	case TaskCompletedNormally:
		return "completed_normally"
	case TaskCompletedAfterCancelRace:
		return "completed_after_cancel_race"
	case TaskCancelledCleanly:
		return "cancelled_cleanly"
	case TaskAbandonedConfirmed:
		return "abandoned_confirmed"
	case TaskAbandonedTimedOut:
		return "abandoned_timed_out"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s != TaskRunning
}

// Options tunes owner-side task behavior.
type Options struct {
	// DropWait bounds how long Release blocks waiting for a worker to
	// confirm an abandoned task.
	DropWait time.Duration
}

// DefaultOptions returns the standard task options.
func DefaultOptions() Options {
	return Options{DropWait: 10 * time.Second}
}

// ActiveTask is the owner's handle on a dispatched task.
//
// # Description
//
// The owner resolves a task through exactly one of DriveToCompletion
// or Cancel, with Release as the deferred fallback for paths that
// never got there. Go has no destructors, so callers are required to
// pair construction with `defer at.Release()`; relying on finalizers
// is not supported.
//
// # Thread Safety
//
// Safe for concurrent use. Only one caller can claim the result
// receiver; later claims fail with ErrTaskNotRunning.
type ActiveTask struct {
	id       string
	logger   *slog.Logger
	results  <-chan TaskResultOrCancelled
	cancels  chan<- CancelSignal
	dropWait time.Duration

	mu         sync.Mutex
	state      TaskState
	cancelSent bool
	waiting    bool
}

// TaskHandle is the worker's side of a dispatched task: the shared
// store to run against, the cancel signal to poll, and the one-shot
// resolution to send.
type TaskHandle struct {
	taskID  string
	store   *TaskSharedStore
	results chan<- TaskResultOrCancelled
	cancels <-chan CancelSignal

	mu         sync.Mutex
	resolved   bool
	cancelSeen bool
}

// NewActiveTask pairs an owner-side ActiveTask with its worker-side
// TaskHandle over fresh one-shot channels. The store moves to the
// worker side; the owner must not touch it afterwards. A nil logger
// falls back to slog.Default().
func NewActiveTask(store *TaskSharedStore, opts Options, logger *slog.Logger) (*ActiveTask, *TaskHandle) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DropWait <= 0 {
		opts.DropWait = DefaultOptions().DropWait
	}

	id := uuid.NewString()
	results := make(chan TaskResultOrCancelled, 1)
	cancels := make(chan CancelSignal, 1)

	at := &ActiveTask{
		id:       id,
		logger:   logger,
		results:  results,
		cancels:  cancels,
		dropWait: opts.DropWait,
		state:    TaskRunning,
	}
	handle := &TaskHandle{
		taskID:  id,
		store:   store,
		results: results,
		cancels: cancels,
	}
	return at, handle
}

// ID returns the task identifier.
func (a *ActiveTask) ID() string {
	return a.id
}

// State returns the current lifecycle state.
func (a *ActiveTask) State() TaskState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// DriveToCompletion awaits the task's result.
//
// # Description
//
// Valid only while the task is running and completion is not being
// driven elsewhere; this is the one-shot receiver's single consume. A
// cancellation confirmation arriving here means owner and worker
// disagree about the protocol state and is surfaced as
// ErrUnexpectedCancelledResult.
//
// # Outputs
//
//   - TaskMessage: the worker's result.
//   - error: ErrTaskNotRunning on repeated or misplaced calls,
//     ErrChannelClosed if the worker side disappeared,
//     ErrUnexpectedCancelledResult on an unrequested cancellation, or
//     the context error if ctx ends first (the task stays running and
//     Release still cleans up).
func (a *ActiveTask) DriveToCompletion(ctx context.Context) (TaskMessage, error) {
	a.mu.Lock()
	if a.state != TaskRunning || a.waiting {
		a.mu.Unlock()
		return TaskMessage{}, fmt.Errorf("task %s: drive to completion: %w", a.id, ErrTaskNotRunning)
	}
	if a.cancelSent {
		a.mu.Unlock()
		return TaskMessage{}, fmt.Errorf("task %s: cancellation already requested: %w", a.id, ErrTaskNotRunning)
	}
	a.waiting = true
	a.mu.Unlock()

	select {
	case <-ctx.Done():
		a.mu.Lock()
		a.waiting = false
		a.mu.Unlock()
		return TaskMessage{}, fmt.Errorf("task %s: await result: %w", a.id, ctx.Err())
	case r, ok := <-a.results:
		a.mu.Lock()
		defer a.mu.Unlock()
		a.waiting = false
		if !ok {
			a.state = TaskFailed
			return TaskMessage{}, fmt.Errorf("task %s: await result: %w", a.id, ErrChannelClosed)
		}
		if r.Cancelled {
			a.state = TaskFailed
			return TaskMessage{}, fmt.Errorf("task %s: %w", a.id, ErrUnexpectedCancelledResult)
		}
		a.state = TaskCompletedNormally
		a.logger.Debug("task completed",
			slog.String("task_id", a.id),
			slog.String("kind", r.Result.Kind))
		return r.Result, nil
	}
}

// Cancel sends the one cancel signal and awaits the task's resolution.
//
// The worker may already have produced a normal result before the
// signal lands; that race is benign, logged, and not an error. A
// confirmed cancellation is not an error either.
func (a *ActiveTask) Cancel(ctx context.Context) error {
	a.mu.Lock()
	if a.state != TaskRunning || a.waiting {
		a.mu.Unlock()
		return fmt.Errorf("task %s: cancel: %w", a.id, ErrTaskNotRunning)
	}
	if a.cancelSent {
		a.mu.Unlock()
		return fmt.Errorf("task %s: %w", a.id, ErrCancelAlreadySent)
	}
	a.cancelSent = true
	a.waiting = true
	a.mu.Unlock()

	// Buffered and guarded by cancelSent, so this never blocks.
	a.cancels <- CancelSignal{}

	select {
	case <-ctx.Done():
		a.mu.Lock()
		a.waiting = false
		a.mu.Unlock()
		return fmt.Errorf("task %s: await cancellation: %w", a.id, ctx.Err())
	case r, ok := <-a.results:
		a.mu.Lock()
		defer a.mu.Unlock()
		a.waiting = false
		if !ok {
			a.state = TaskFailed
			return fmt.Errorf("task %s: await cancellation: %w", a.id, ErrChannelClosed)
		}
		if r.Cancelled {
			a.state = TaskCancelledCleanly
			a.logger.Debug("task cancelled cleanly", slog.String("task_id", a.id))
			return nil
		}
		a.state = TaskCompletedAfterCancelRace
		a.logger.Info("task completed before cancellation was observed",
			slog.String("task_id", a.id),
			slog.String("kind", r.Result.Kind))
		return nil
	}
}

// Release is the fallback cleanup for tasks that never ran to
// completion through DriveToCompletion or Cancel. Call it deferred
// right after construction.
//
// # Description
//
// If the task already reached a terminal state this is a no-op. While
// still running, Release best-effort sends a cancel signal and then
// blocks, bounded by the drop window, for the worker to resolve. The
// one-shot resolving implies the worker released the store, so the
// task's batches are free again. Failures here are logged, never
// returned; there is no caller left to receive them.
func (a *ActiveTask) Release() {
	a.mu.Lock()
	if a.state != TaskRunning {
		a.mu.Unlock()
		return
	}
	if a.waiting {
		a.mu.Unlock()
		a.logger.Warn("task released while completion is driven elsewhere",
			slog.String("task_id", a.id))
		return
	}
	sendCancel := !a.cancelSent
	a.cancelSent = true
	a.waiting = true
	a.mu.Unlock()

	if sendCancel {
		a.cancels <- CancelSignal{}
	}

	timer := time.NewTimer(a.dropWait)
	defer timer.Stop()
	select {
	case r, ok := <-a.results:
		a.setState(TaskAbandonedConfirmed)
		switch {
		case !ok:
			a.logger.Warn("task channel closed during abandoned cleanup",
				slog.String("task_id", a.id))
		case r.Cancelled:
			a.logger.Warn("abandoned task confirmed cancellation",
				slog.String("task_id", a.id))
		default:
			a.logger.Warn("abandoned task completed; result discarded",
				slog.String("task_id", a.id),
				slog.String("kind", r.Result.Kind))
		}
	case <-timer.C:
		a.setState(TaskAbandonedTimedOut)
		a.logger.Warn("abandoned task did not resolve within the drop window",
			slog.String("task_id", a.id),
			slog.Duration("waited", a.dropWait))
	}
}

func (a *ActiveTask) setState(s TaskState) {
	a.mu.Lock()
	a.waiting = false
	a.state = s
	a.mu.Unlock()
}

// TaskID returns the task identifier.
func (h *TaskHandle) TaskID() string {
	return h.taskID
}

// Store returns the shared store the task runs against.
func (h *TaskHandle) Store() *TaskSharedStore {
	return h.store
}

// CancelRequested polls for a cancel signal without blocking. Once
// observed it stays true.
func (h *TaskHandle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelSeen {
		return true
	}
	select {
	case <-h.cancels:
		h.cancelSeen = true
		return true
	default:
		return false
	}
}

// SendResult resolves the task with a normal result. The store is
// released first, so the owner's return implies the task's batches are
// free.
func (h *TaskHandle) SendResult(msg TaskMessage) error {
	if err := h.claimResolve(); err != nil {
		return err
	}
	h.store.Release()
	h.results <- TaskResultOrCancelled{Result: msg}
	return nil
}

// SendCancelled resolves the task as cancelled. The store is released
// first, same as SendResult.
func (h *TaskHandle) SendCancelled() error {
	if err := h.claimResolve(); err != nil {
		return err
	}
	h.store.Release()
	h.results <- TaskResultOrCancelled{Cancelled: true}
	return nil
}

func (h *TaskHandle) claimResolve() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return fmt.Errorf("task %s: %w", h.taskID, ErrResultAlreadySent)
	}
	h.resolved = true
	return nil
}
