// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package task

import "encoding/json"

// TaskMessage is the payload a worker returns when a task completes
// normally. The engine treats it as opaque; Kind routes it, Payload is
// whatever the behavior produced.
type TaskMessage struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TaskResultOrCancelled is the one-shot resolution of a task. Exactly
// one of the two shapes arrives: a real result, or confirmation that
// the worker observed cancellation and stopped. The two are distinct so
// the owner resolves the cancel race deterministically instead of
// guessing from timing.
type TaskResultOrCancelled struct {
	Result    TaskMessage
	Cancelled bool
}

// CancelSignal is the advisory cancel marker sent owner to worker. The
// worker may finish its unit of work before observing it.
type CancelSignal struct{}
