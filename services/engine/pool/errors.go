// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import "errors"

var (
	// ErrBatchLeased is returned by Remove and SwapRemove when the target
	// batch is held by an outstanding proxy. Removal while leased is a
	// caller protocol violation, not a transient race.
	ErrBatchLeased = errors.New("batch is currently leased")

	// ErrLeaseOverlap is returned when a proxy request names a batch that
	// is already leased out by a previous request, or names the same index
	// twice. The request is rejected before any lock is touched.
	ErrLeaseOverlap = errors.New("requested batches overlap an outstanding lease")

	// ErrIndexOutOfRange is returned when a partial proxy request or a
	// removal names an index outside the pool.
	ErrIndexOutOfRange = errors.New("batch index out of range")
)
