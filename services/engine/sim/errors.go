// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sim

import "errors"

var (
	// ErrNilState is returned when an engine is built without a state
	// to run against.
	ErrNilState = errors.New("engine needs a state to run against")

	// ErrAlreadyRunning is returned by Run while another run is in
	// flight. An engine executes one run at a time.
	ErrAlreadyRunning = errors.New("a run is already in progress")

	// ErrUnknownBehavior is returned when looking up a behavior name
	// nobody registered.
	ErrUnknownBehavior = errors.New("unknown behavior")

	// ErrLeaseRetriesExhausted is returned when the step driver cannot
	// take the state lease within its configured retry budget.
	ErrLeaseRetriesExhausted = errors.New("state lease retries exhausted")

	// ErrWorldShape is returned when seeding a world with no groups or
	// no agents per group.
	ErrWorldShape = errors.New("world needs at least one group and one agent per group")
)
