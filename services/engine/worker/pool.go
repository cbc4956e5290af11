// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package worker executes dispatched simulation tasks on a fixed set
// of goroutines.
//
// Each worker owns an inbox of dispatches. A dispatch pairs a
// task.TaskHandle with the behavior function to run against its shared
// store. The worker resolves every dispatch it receives exactly once:
// a result on success, a cancellation confirmation when the owner
// cancelled first or the behavior failed. Shutdown stops the intake,
// lets workers finish the task they are on, and cancels anything still
// queued so no owner is left waiting on an unresolved task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/engine/task"
	"golang.org/x/sync/errgroup"
)

const (
	defaultQueueDepth = 4
	defaultCloseGrace = 10 * time.Second
)

// Options tunes pool construction.
type Options struct {
	// QueueDepth is the per-worker inbox capacity. Zero or negative
	// uses the default.
	QueueDepth int
}

// DefaultOptions returns the standard pool options.
func DefaultOptions() Options {
	return Options{QueueDepth: defaultQueueDepth}
}

// Stats counts dispatch outcomes since the pool started.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Cancelled  uint64 `json:"cancelled"`
	Failed     uint64 `json:"failed"`
}

type counters struct {
	dispatched atomic.Uint64
	completed  atomic.Uint64
	cancelled  atomic.Uint64
	failed     atomic.Uint64
}

// Pool runs a fixed set of workers.
//
// # Description
//
// Workers start at construction and run until Shutdown. Dispatch
// spreads untargeted work round-robin; DispatchTo places a distributed
// store's share on the worker index the distribution assigned.
//
// # Thread Safety
//
// Safe for concurrent use.
type Pool struct {
	logger  *slog.Logger
	workers []*Worker
	counts  counters

	group  *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	next   int
	closed bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewPool starts a pool of n workers. A nil logger falls back to
// slog.Default().
func NewPool(n int, opts Options, logger *slog.Logger) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pool of %d workers: %w", n, ErrPoolSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		logger: logger.With(slog.String("component", "worker_pool")),
		group:  group,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.workers = make([]*Worker, n)
	for i := range p.workers {
		w := &Worker{
			index:  task.WorkerIndex(i),
			inbox:  make(chan Dispatch, depth),
			done:   p.done,
			counts: &p.counts,
			logger: p.logger.With(slog.Int("worker", i)),
		}
		p.workers[i] = w
		group.Go(func() error { return w.run(gctx) })
	}

	p.logger.Info("worker pool started",
		slog.Int("workers", n),
		slog.Int("queue_depth", depth))
	return p, nil
}

// Len returns the number of workers.
func (p *Pool) Len() int {
	return len(p.workers)
}

// Allocation returns the worker allocation covering the whole pool, in
// index order. Pass it to TaskSharedStore.Distribute.
func (p *Pool) Allocation() task.WorkerAllocation {
	alloc := make(task.WorkerAllocation, len(p.workers))
	for i := range alloc {
		alloc[i] = task.WorkerIndex(i)
	}
	return alloc
}

// Stats returns a snapshot of dispatch outcome counts.
func (p *Pool) Stats() Stats {
	return Stats{
		Dispatched: p.counts.dispatched.Load(),
		Completed:  p.counts.completed.Load(),
		Cancelled:  p.counts.cancelled.Load(),
		Failed:     p.counts.failed.Load(),
	}
}

// Dispatch hands the dispatch to the next worker round-robin.
func (p *Pool) Dispatch(d Dispatch) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	w := p.workers[p.next%len(p.workers)]
	p.next++
	p.mu.Unlock()
	return p.send(w, d)
}

// DispatchTo hands the dispatch to a specific worker.
func (p *Pool) DispatchTo(worker task.WorkerIndex, d Dispatch) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if worker < 0 || int(worker) >= len(p.workers) {
		p.mu.Unlock()
		return fmt.Errorf("worker %d of %d: %w", worker, len(p.workers), ErrNoSuchWorker)
	}
	w := p.workers[worker]
	p.mu.Unlock()
	return p.send(w, d)
}

func (p *Pool) send(w *Worker, d Dispatch) error {
	if d.Handle == nil {
		return ErrNilHandle
	}
	if d.Run == nil {
		return ErrNilBehavior
	}
	select {
	case w.inbox <- d:
		p.counts.dispatched.Add(1)
		return nil
	case <-p.done:
		return ErrPoolClosed
	}
}

// Shutdown stops the pool.
//
// # Description
//
// Intake closes first, then workers finish the task they are on and
// cancel anything still queued. If ctx ends before the workers come
// back, the pool context is cancelled and Shutdown returns without
// waiting further; a behavior that ignores its context can hold a
// worker goroutine past that point. Repeated calls return the first
// call's result.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)

		waitCh := make(chan error, 1)
		go func() { waitCh <- p.group.Wait() }()

		select {
		case err := <-waitCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				p.shutdownErr = err
			}
		case <-ctx.Done():
			p.cancel()
			p.shutdownErr = fmt.Errorf("worker pool shutdown forced: %w", ctx.Err())
		}
		p.cancel()
		p.sweepInboxes()

		stats := p.Stats()
		p.logger.Info("worker pool stopped",
			slog.Uint64("dispatched", stats.Dispatched),
			slog.Uint64("completed", stats.Completed),
			slog.Uint64("cancelled", stats.Cancelled),
			slog.Uint64("failed", stats.Failed))
	})
	return p.shutdownErr
}

// Close shuts the pool down with the default grace period.
func (p *Pool) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCloseGrace)
	defer cancel()
	return p.Shutdown(ctx)
}

// sweepInboxes drains dispatches that raced past the closed check or
// were left behind by a forced shutdown.
func (p *Pool) sweepInboxes() {
	for _, w := range p.workers {
		w.drain()
	}
}
