// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import "errors"

var (
	// ErrPoolClosed is returned when dispatching to a pool that has
	// begun shutting down.
	ErrPoolClosed = errors.New("worker pool is shut down")

	// ErrPoolSize is returned when a pool is created without at least
	// one worker.
	ErrPoolSize = errors.New("worker pool needs at least one worker")

	// ErrNoSuchWorker is returned when a dispatch targets a worker
	// index outside the pool.
	ErrNoSuchWorker = errors.New("worker index out of range")

	// ErrNilHandle is returned when a dispatch carries no task handle.
	ErrNilHandle = errors.New("dispatch carries no task handle")

	// ErrNilBehavior is returned when a dispatch carries no behavior
	// function.
	ErrNilBehavior = errors.New("dispatch carries no behavior function")
)
