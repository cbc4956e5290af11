// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package task

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptyStore() *TaskSharedStore {
	return NewTaskSharedStore(NoSharedState(), NoSharedContext())
}

func TestActiveTask_DriveToCompletion(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())
	defer at.Release()

	go func() {
		_ = handle.SendResult(TaskMessage{Kind: "behavior.done"})
	}()

	msg, err := at.DriveToCompletion(context.Background())
	if err != nil {
		t.Fatalf("DriveToCompletion() error = %v", err)
	}
	if msg.Kind != "behavior.done" {
		t.Errorf("result Kind = %q, want %q", msg.Kind, "behavior.done")
	}
	if got := at.State(); got != TaskCompletedNormally {
		t.Errorf("State() = %v, want %v", got, TaskCompletedNormally)
	}

	if _, err := at.DriveToCompletion(context.Background()); !errors.Is(err, ErrTaskNotRunning) {
		t.Errorf("second DriveToCompletion() error = %v, want ErrTaskNotRunning", err)
	}
}

func TestActiveTask_UnexpectedCancelledResult(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())
	defer at.Release()

	if err := handle.SendCancelled(); err != nil {
		t.Fatalf("SendCancelled() error = %v", err)
	}

	_, err := at.DriveToCompletion(context.Background())
	if !errors.Is(err, ErrUnexpectedCancelledResult) {
		t.Fatalf("DriveToCompletion() error = %v, want ErrUnexpectedCancelledResult", err)
	}
	if got := at.State(); got != TaskFailed {
		t.Errorf("State() = %v, want %v", got, TaskFailed)
	}
}

func TestActiveTask_CancelCleanly(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())
	defer at.Release()

	go func() {
		for !handle.CancelRequested() {
			time.Sleep(time.Millisecond)
		}
		_ = handle.SendCancelled()
	}()

	if err := at.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got := at.State(); got != TaskCancelledCleanly {
		t.Errorf("State() = %v, want %v", got, TaskCancelledCleanly)
	}

	if err := at.Cancel(context.Background()); !errors.Is(err, ErrTaskNotRunning) {
		t.Errorf("second Cancel() error = %v, want ErrTaskNotRunning", err)
	}
}

func TestActiveTask_CancelRace(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())
	defer at.Release()

	// The worker resolves before the cancel signal can be observed.
	if err := handle.SendResult(TaskMessage{Kind: "behavior.done"}); err != nil {
		t.Fatalf("SendResult() error = %v", err)
	}

	if err := at.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel() during race error = %v", err)
	}
	if got := at.State(); got != TaskCompletedAfterCancelRace {
		t.Errorf("State() = %v, want %v", got, TaskCompletedAfterCancelRace)
	}
}

func TestActiveTask_ReleaseMidFlightFreesLocks(t *testing.T) {
	s := newTestState(t, 2)
	write, err := s.WriteProxies()
	if err != nil {
		t.Fatalf("WriteProxies() error = %v", err)
	}
	store := NewTaskSharedStoreBuilder().WriteState(write).Build()

	at, handle := NewActiveTask(store, Options{DropWait: 5 * time.Second}, discardLogger())

	go func() {
		for !handle.CancelRequested() {
			time.Sleep(time.Millisecond)
		}
		_ = handle.SendCancelled()
	}()

	// Owner walks away without driving the task.
	at.Release()

	if got := at.State(); got != TaskAbandonedConfirmed {
		t.Errorf("State() = %v, want %v", got, TaskAbandonedConfirmed)
	}

	// The abandoned task's batches are free again.
	prx, err := s.WriteProxies()
	if err != nil {
		t.Fatalf("WriteProxies() after abandoned cleanup error = %v", err)
	}
	prx.Release()
}

func TestActiveTask_ReleaseTimesOut(t *testing.T) {
	at, _ := NewActiveTask(emptyStore(), Options{DropWait: 50 * time.Millisecond}, discardLogger())

	start := time.Now()
	at.Release()
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond {
		t.Errorf("Release() returned after %v, want at least the drop window", elapsed)
	}
	if elapsed > 3*time.Second {
		t.Errorf("Release() blocked for %v, want a bounded wait", elapsed)
	}
	if got := at.State(); got != TaskAbandonedTimedOut {
		t.Errorf("State() = %v, want %v", got, TaskAbandonedTimedOut)
	}
}

func TestActiveTask_ReleaseAfterCompletionIsNoop(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())

	go func() {
		_ = handle.SendResult(TaskMessage{Kind: "behavior.done"})
	}()
	if _, err := at.DriveToCompletion(context.Background()); err != nil {
		t.Fatalf("DriveToCompletion() error = %v", err)
	}

	at.Release()
	if got := at.State(); got != TaskCompletedNormally {
		t.Errorf("State() after Release = %v, want %v", got, TaskCompletedNormally)
	}
}

func TestActiveTask_DriveInterruptedByContext(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), Options{DropWait: 5 * time.Second}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := at.DriveToCompletion(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("DriveToCompletion() error = %v, want context.Canceled", err)
	}
	if got := at.State(); got != TaskRunning {
		t.Fatalf("State() after interrupted drive = %v, want %v", got, TaskRunning)
	}

	// Release still owns the cleanup path.
	go func() {
		for !handle.CancelRequested() {
			time.Sleep(time.Millisecond)
		}
		_ = handle.SendCancelled()
	}()
	at.Release()
	if got := at.State(); got != TaskAbandonedConfirmed {
		t.Errorf("State() after Release = %v, want %v", got, TaskAbandonedConfirmed)
	}
}

func TestActiveTask_DriveAfterCancelRequestRejected(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())
	defer at.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := at.Cancel(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Cancel() error = %v, want context.Canceled", err)
	}

	// Cancellation was requested; completion can no longer be driven.
	if _, err := at.DriveToCompletion(context.Background()); !errors.Is(err, ErrTaskNotRunning) {
		t.Errorf("DriveToCompletion() error = %v, want ErrTaskNotRunning", err)
	}
	if err := at.Cancel(context.Background()); !errors.Is(err, ErrCancelAlreadySent) {
		t.Errorf("second Cancel() error = %v, want ErrCancelAlreadySent", err)
	}

	go func() {
		_ = handle.SendCancelled()
	}()
}

func TestTaskHandle_DoubleResolve(t *testing.T) {
	_, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())

	if err := handle.SendResult(TaskMessage{Kind: "behavior.done"}); err != nil {
		t.Fatalf("SendResult() error = %v", err)
	}
	if err := handle.SendCancelled(); !errors.Is(err, ErrResultAlreadySent) {
		t.Errorf("SendCancelled() after SendResult() error = %v, want ErrResultAlreadySent", err)
	}
}

func TestTaskHandle_CancelRequestedLatches(t *testing.T) {
	at, handle := NewActiveTask(emptyStore(), DefaultOptions(), discardLogger())

	if handle.CancelRequested() {
		t.Fatal("CancelRequested() = true before any cancel")
	}

	done := make(chan error, 1)
	go func() {
		done <- at.Cancel(context.Background())
	}()

	deadline := time.After(3 * time.Second)
	for !handle.CancelRequested() {
		select {
		case <-deadline:
			t.Fatal("cancel signal never observed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if !handle.CancelRequested() {
		t.Error("CancelRequested() did not latch")
	}

	if err := handle.SendCancelled(); err != nil {
		t.Fatalf("SendCancelled() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}
