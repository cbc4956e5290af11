// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import "errors"

// Sentinel errors for the memory package.
var (
	// ErrInvalidVersion indicates a metaversion whose batch version is
	// behind its memory version. Persisted versions bump the batch
	// whenever the memory moves, so this ordering never holds for a
	// well-formed persisted version.
	ErrInvalidVersion = errors.New("batch version must be at least memory version")

	// ErrShortBuffer indicates a metaversion buffer shorter than 8 bytes.
	ErrShortBuffer = errors.New("metaversion buffer too short")

	// ErrBadMagic indicates a segment file that doesn't start with the
	// segment magic. Usually a foreign file in the data directory.
	ErrBadMagic = errors.New("segment magic mismatch")

	// ErrCorruptSegment indicates a truncated or malformed segment file.
	ErrCorruptSegment = errors.New("segment file corrupt")

	// ErrStaleFlush indicates an attempt to flush a payload whose version
	// is behind the version already persisted. Another writer got there
	// first; reload before flushing again.
	ErrStaleFlush = errors.New("persisted version is newer than flushed version")
)
