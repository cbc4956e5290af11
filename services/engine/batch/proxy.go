// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package batch

import "sync/atomic"

// BatchReadProxy is a held shared lock on one batch.
//
// # Description
//
// Constructed by NewBatchReadProxy (or by cloning an existing read
// proxy) and valid until Release. The proxy may cross goroutine
// boundaries: the step driver acquires it, a worker releases it.
//
// # Thread Safety
//
// Release is idempotent and safe to call from any goroutine. Batch()
// must not be called after Release.
type BatchReadProxy[K Batch] struct {
	lock     *BatchLock[K]
	released atomic.Bool
}

// NewBatchReadProxy attempts a non-blocking shared acquisition.
//
// # Inputs
//
//   - l: The lock to acquire.
//
// # Outputs
//
//   - *BatchReadProxy: Live proxy on success.
//   - error: *LockError wrapping ErrProxySharedLock if a writer holds
//     the batch. Recoverable; retry after the writer releases.
func NewBatchReadProxy[K Batch](l *BatchLock[K]) (*BatchReadProxy[K], error) {
	if !l.tryShared() {
		return nil, &LockError{BatchID: l.BatchID(), Err: ErrProxySharedLock}
	}
	return &BatchReadProxy[K]{lock: l}, nil
}

// Batch returns the guarded payload for reading.
//
// Valid only between acquisition and Release.
func (p *BatchReadProxy[K]) Batch() K {
	return p.lock.batch
}

// Clone registers an additional shared hold on the same batch.
//
// Cloning cannot contend: the source proxy is live, so a writer cannot
// hold the lock. Panics if called on a released proxy, which is a
// caller bug of the same severity as unlocking an unlocked mutex.
func (p *BatchReadProxy[K]) Clone() *BatchReadProxy[K] {
	if p.released.Load() {
		panic("batch: Clone on released read proxy")
	}
	p.lock.addReader()
	return &BatchReadProxy[K]{lock: p.lock}
}

// Release drops the shared hold. Safe to call more than once; only the
// first call releases.
func (p *BatchReadProxy[K]) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.lock.releaseShared()
	}
}

// BatchWriteProxy is a held exclusive lock on one batch.
//
// # Thread Safety
//
// Release is idempotent and safe to call from any goroutine. Batch()
// must not be called after Release or Downgrade.
type BatchWriteProxy[K Batch] struct {
	lock     *BatchLock[K]
	released atomic.Bool
}

// NewBatchWriteProxy attempts a non-blocking exclusive acquisition.
//
// # Inputs
//
//   - l: The lock to acquire.
//
// # Outputs
//
//   - *BatchWriteProxy: Live proxy on success.
//   - error: *LockError wrapping ErrProxyExclusiveLock if any reader
//     or writer holds the batch. Recoverable; retry after release.
func NewBatchWriteProxy[K Batch](l *BatchLock[K]) (*BatchWriteProxy[K], error) {
	if !l.tryExclusive() {
		return nil, &LockError{BatchID: l.BatchID(), Err: ErrProxyExclusiveLock}
	}
	return &BatchWriteProxy[K]{lock: l}, nil
}

// Batch returns the guarded payload for reading and writing.
//
// Valid only between acquisition and Release (or Downgrade).
func (p *BatchWriteProxy[K]) Batch() K {
	return p.lock.batch
}

// Downgrade converts this write proxy into a read proxy without an
// unlocked window: the exclusive hold becomes a shared hold in one
// step under the lock mutex, so no concurrent exclusive attempt can
// succeed in between.
//
// The write proxy is consumed. Panics if called on a released proxy.
func (p *BatchWriteProxy[K]) Downgrade() *BatchReadProxy[K] {
	if !p.released.CompareAndSwap(false, true) {
		panic("batch: Downgrade on released write proxy")
	}
	p.lock.downgrade()
	return &BatchReadProxy[K]{lock: p.lock}
}

// Release drops the exclusive hold. Safe to call more than once; only
// the first call releases.
func (p *BatchWriteProxy[K]) Release() {
	if p.released.CompareAndSwap(false, true) {
		p.lock.releaseExclusive()
	}
}
