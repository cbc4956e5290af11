// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package task

import "errors"

var (
	// ErrTaskNotRunning is returned when completion or cancellation is
	// driven on a task that already reached a terminal state, or whose
	// result receiver was already claimed. Protocol misuse, not a race.
	ErrTaskNotRunning = errors.New("task is not running")

	// ErrCancelAlreadySent is returned by Cancel when a cancel signal
	// was already sent for this task.
	ErrCancelAlreadySent = errors.New("cancel signal already sent")

	// ErrChannelClosed is returned when the worker side of the result
	// channel disappeared. The owner treats it as an unrecoverable
	// desync and aborts the run.
	ErrChannelClosed = errors.New("task channel closed by peer")

	// ErrUnexpectedCancelledResult is returned when a task resolves as
	// cancelled even though the owner never requested cancellation.
	// This signals a logic bug between owner and worker, not a benign
	// race.
	ErrUnexpectedCancelledResult = errors.New("task cancelled without a cancel request")

	// ErrResultAlreadySent is returned by the worker-side handle when
	// the one-shot result was already resolved.
	ErrResultAlreadySent = errors.New("task result already sent")

	// ErrMultipleWriteAccess is returned when cloning a shared store
	// that holds write access. Write views are single-owner.
	ErrMultipleWriteAccess = errors.New("shared state with write access cannot be cloned")

	// ErrStateNotWritable is returned when write proxies are requested
	// from a store that shares no writable state.
	ErrStateNotWritable = errors.New("shared state is not writable")

	// ErrStateNotReadable is returned when read proxies are requested
	// from a store that shares no readable state.
	ErrStateNotReadable = errors.New("shared state is not readable")

	// ErrNoWorkers is returned by Distribute when the worker allocation
	// is empty.
	ErrNoWorkers = errors.New("no workers to distribute batches over")
)
