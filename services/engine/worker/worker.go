// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianSwarm/services/engine/task"
)

// BehaviorFunc runs one task against its shared store and produces the
// task's result message. The function must honor ctx; a behavior that
// ignores cancellation can hold a worker goroutine past a forced
// shutdown.
type BehaviorFunc func(ctx context.Context, store *task.TaskSharedStore) (task.TaskMessage, error)

// Dispatch is one unit of work for a worker: the worker-side handle of
// an active task and the behavior to run against its store.
type Dispatch struct {
	Handle *task.TaskHandle
	Run    BehaviorFunc
}

// Worker is a single executor goroutine with its own inbox.
type Worker struct {
	index  task.WorkerIndex
	inbox  chan Dispatch
	done   <-chan struct{}
	counts *counters
	logger *slog.Logger
}

// Index returns the worker's position in its pool.
func (w *Worker) Index() task.WorkerIndex {
	return w.index
}

// run is the worker loop. It exits when the pool shuts down or the
// pool context ends, draining queued dispatches either way.
func (w *Worker) run(ctx context.Context) error {
	w.logger.Debug("worker started")
	for {
		select {
		case <-w.done:
			w.drain()
			w.logger.Debug("worker stopped")
			return nil
		case <-ctx.Done():
			w.drain()
			w.logger.Debug("worker stopped", slog.String("cause", ctx.Err().Error()))
			return ctx.Err()
		case d := <-w.inbox:
			w.execute(ctx, d)
		}
	}
}

// execute resolves one dispatch: a cancellation confirmation when the
// owner asked before execution started or the behavior failed, the
// result otherwise. The handle releases the shared store before either
// resolution is sent.
func (w *Worker) execute(ctx context.Context, d Dispatch) {
	taskID := d.Handle.TaskID()

	if d.Handle.CancelRequested() {
		w.counts.cancelled.Add(1)
		w.logger.Debug("task cancelled before execution",
			slog.String("task_id", taskID))
		if err := d.Handle.SendCancelled(); err != nil {
			w.logger.Warn("cancel confirmation dropped",
				slog.String("task_id", taskID),
				slog.String("error", err.Error()))
		}
		return
	}

	msg, err := w.invoke(ctx, d)
	if err != nil {
		w.counts.failed.Add(1)
		w.logger.Warn("task behavior failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
		if serr := d.Handle.SendCancelled(); serr != nil {
			w.logger.Warn("cancel confirmation dropped",
				slog.String("task_id", taskID),
				slog.String("error", serr.Error()))
		}
		return
	}

	w.counts.completed.Add(1)
	if err := d.Handle.SendResult(msg); err != nil {
		w.logger.Warn("task result dropped",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

// invoke runs the behavior with panic containment. A panicking
// behavior resolves its task as failed instead of taking the worker
// down.
func (w *Worker) invoke(ctx context.Context, d Dispatch) (msg task.TaskMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("behavior panic: %v", r)
		}
	}()
	return d.Run(ctx, d.Handle.Store())
}

// drain cancels everything still queued so no owner is left waiting on
// an unresolved task.
func (w *Worker) drain() {
	for {
		select {
		case d := <-w.inbox:
			w.counts.cancelled.Add(1)
			w.logger.Debug("queued task cancelled at shutdown",
				slog.String("task_id", d.Handle.TaskID()))
			if err := d.Handle.SendCancelled(); err != nil {
				w.logger.Warn("cancel confirmation dropped",
					slog.String("task_id", d.Handle.TaskID()),
					slog.String("error", err.Error()))
			}
		default:
			return
		}
	}
}
