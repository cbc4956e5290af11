// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory provides the shared segment layer under the engine's
// batches.
//
// Every batch persists its payload in a segment file that other engine
// components (and, in multi-process deployments, other processes) can
// open independently. A two-part metaversion tracks staleness: the
// memory version increases when the segment itself moves or resizes,
// and the batch version increases whenever the batch data changes. A
// component compares the version it has loaded against the persisted
// one to decide whether a reload is needed before touching the data.
//
// The persisted batch version is always greater than or equal to the
// memory version: reloading memory invalidates the batch, so any memory
// bump is accompanied by a batch bump. Comparisons between versions of
// the same batch therefore only need to look at the batch component.
//
// Thread Safety: Metaversion is a small value type; copy it freely.
// Segment and Watcher document their own concurrency rules.
package memory

import (
	"encoding/binary"
	"fmt"
)

// Metaversion tracks whether a component must reload a shared segment
// (memory version) or re-read its batch data (batch version).
//
// The zero value is the version of a freshly created batch.
type Metaversion struct {
	memory uint32
	batch  uint32
}

// NewMetaversion builds a Metaversion and validates the ordering
// invariant.
//
// # Inputs
//
//   - memory: Segment-level version.
//   - batch: Data-level version. Must be >= memory.
//
// # Outputs
//
//   - Metaversion: The validated version.
//   - error: ErrInvalidVersion if batch < memory.
func NewMetaversion(memory, batch uint32) (Metaversion, error) {
	if batch < memory {
		return Metaversion{}, fmt.Errorf("memory=%d batch=%d: %w", memory, batch, ErrInvalidVersion)
	}
	return Metaversion{memory: memory, batch: batch}, nil
}

// DecodeMetaversion parses the 8-byte little-endian wire form: memory
// version first, batch version second.
//
// # Inputs
//
//   - b: At least 8 bytes.
//
// # Outputs
//
//   - Metaversion: The decoded version.
//   - error: ErrShortBuffer or ErrInvalidVersion.
func DecodeMetaversion(b []byte) (Metaversion, error) {
	if len(b) < 8 {
		return Metaversion{}, fmt.Errorf("got %d bytes: %w", len(b), ErrShortBuffer)
	}
	mem := binary.LittleEndian.Uint32(b[0:4])
	bat := binary.LittleEndian.Uint32(b[4:8])
	return NewMetaversion(mem, bat)
}

// Encode returns the 8-byte little-endian wire form: memory version
// first, batch version second.
func (m Metaversion) Encode() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], m.memory)
	binary.LittleEndian.PutUint32(b[4:8], m.batch)
	return b
}

// Memory returns the segment-level version.
func (m Metaversion) Memory() uint32 { return m.memory }

// Batch returns the data-level version.
func (m Metaversion) Batch() uint32 { return m.batch }

// OlderThan reports whether m is older than other.
//
// Versions of the same batch are linearly ordered: one was obtained
// from the other by some number of increments, and each increment bumps
// the batch version. Comparing the batch component is sufficient.
func (m Metaversion) OlderThan(other Metaversion) bool {
	return m.batch < other.batch
}

// NewerThan reports whether m is newer than other.
func (m Metaversion) NewerThan(other Metaversion) bool {
	return m.batch > other.batch
}

// MaybeUpdate advances m to other if other is newer. Returns true if
// an update happened.
func (m *Metaversion) MaybeUpdate(other Metaversion) bool {
	if other.batch > m.batch {
		m.batch = other.batch
		m.memory = other.memory
		return true
	}
	return false
}

// Increment marks both the segment and the batch data as changed.
// Components with older versions must reload memory and data.
func (m *Metaversion) Increment() {
	m.memory++
	m.batch++
}

// IncrementBatch marks the batch data as changed in place. Components
// with older versions must re-read the data but not remap the segment.
func (m *Metaversion) IncrementBatch() {
	m.batch++
}

// IncrementWith bumps the version according to how a buffer changed:
// a resize invalidates the segment mapping, a shift invalidates only
// the batch data.
func (m *Metaversion) IncrementWith(change BufferChange) {
	if change.Resized() {
		m.Increment()
	} else if change.Shifted() {
		m.IncrementBatch()
	}
}

// String formats the version for logs.
func (m Metaversion) String() string {
	return fmt.Sprintf("memory=%d batch=%d", m.memory, m.batch)
}

// BufferChange describes how a segment buffer changed during a write.
//
// Resized changes move the whole segment; shifted changes move data
// within it. Either way readers holding cached views must refresh.
type BufferChange struct {
	resized bool
	shifted bool
}

// NewBufferChange builds a BufferChange.
func NewBufferChange(resized, shifted bool) BufferChange {
	return BufferChange{resized: resized, shifted: shifted}
}

// Resized reports whether the segment was remapped or resized.
func (c BufferChange) Resized() bool { return c.resized }

// Shifted reports whether data moved within the segment.
func (c BufferChange) Shifted() bool { return c.shifted }
