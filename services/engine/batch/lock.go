// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package batch provides the engine's batch payloads and the
// non-blocking lock guards that mediate access to them.
//
// A batch is the unit of agent (or message) storage: a slice of rows
// persisted in a shared segment. Simulation steps hand batches to
// worker goroutines, so access goes through proxy guards that can be
// acquired on one goroutine and released on another. Acquisition never
// blocks: a step that cannot take every lock it needs gives up
// immediately and lets the driver decide whether to retry.
//
// # Lock model
//
// BatchLock is a readers/writer lock with manual book-keeping instead
// of sync.RWMutex. RWMutex requires the releasing goroutine to be the
// acquiring one; these guards are fetched by the step driver and
// released by whichever worker finishes with them, so the lock state is
// a plain reader count and writer flag behind a mutex. Go's garbage
// collector keeps a lock (and its batch) alive for as long as any
// proxy referencing it lives.
//
// # Thread Safety
//
// BatchLock and both proxy types are safe for concurrent use. A proxy
// value may be handed to another goroutine; Release is idempotent.
package batch

import (
	"sync"

	"github.com/AleutianAI/AleutianSwarm/services/engine/memory"
)

// Batch is the storage contract the lock layer guards.
//
// Implementations pair cached column views with a persisted segment
// and track the staleness of the cache through metaversions.
type Batch interface {
	// BatchID returns the stable identity of the batch.
	BatchID() string

	// Rows returns the number of rows in the cached views.
	Rows() int

	// LoadedVersion returns the version of the currently cached views.
	LoadedVersion() memory.Metaversion

	// PersistedVersion re-reads the authoritative persisted version.
	PersistedVersion() (memory.Metaversion, error)

	// MaybeReload refreshes the cached views if the persisted version
	// is newer than the loaded one. No-op when already current.
	MaybeReload() error

	// Flush persists the cached views, bumping the version according
	// to how the underlying buffer changed.
	Flush(change memory.BufferChange) error
}

// BatchLock pairs a batch with its readers/writer lock state.
//
// All acquisitions are non-blocking try-operations used by the proxy
// constructors in this package. The zero value is not usable; create
// locks with NewBatchLock.
type BatchLock[K Batch] struct {
	mu      sync.Mutex
	batch   K
	readers int
	writer  bool
}

// NewBatchLock wraps a batch in an unlocked BatchLock.
func NewBatchLock[K Batch](b K) *BatchLock[K] {
	return &BatchLock[K]{batch: b}
}

// Leased reports whether any proxy currently holds the lock, in either
// mode. Pool maintenance uses this to refuse structural changes on
// batches that are checked out.
func (l *BatchLock[K]) Leased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer || l.readers > 0
}

// BatchID returns the guarded batch's id without taking the payload.
func (l *BatchLock[K]) BatchID() string {
	return l.batch.BatchID()
}

// tryShared attempts a shared (read) acquisition.
func (l *BatchLock[K]) tryShared() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer {
		return false
	}
	l.readers++
	return true
}

// tryExclusive attempts an exclusive (write) acquisition.
func (l *BatchLock[K]) tryExclusive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer || l.readers > 0 {
		return false
	}
	l.writer = true
	return true
}

// releaseShared drops one shared hold.
func (l *BatchLock[K]) releaseShared() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readers > 0 {
		l.readers--
	}
}

// releaseExclusive drops the exclusive hold.
func (l *BatchLock[K]) releaseExclusive() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = false
}

// downgrade converts the exclusive hold into a single shared hold.
// Both mutations happen under the lock mutex, so no instant exists
// where a concurrent exclusive attempt could slip in between.
func (l *BatchLock[K]) downgrade() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = false
	l.readers = 1
}

// addReader registers one more shared hold for a clone. The caller
// must already hold a live shared proxy on this lock.
func (l *BatchLock[K]) addReader() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readers++
}
