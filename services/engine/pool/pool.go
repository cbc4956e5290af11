// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pool groups batch locks into ordered collections and hands out
// all-or-nothing leases over them.
//
// A Pool owns one kind of simulation state (all agent batches, or all
// message batches) as an ordered list of locks. Proxy construction is the
// only way to reach the batches: a request either leases every batch it
// names or leases nothing. Each successful request is a single-use lease
// recorded in the pool's lease table; a later request that names any batch
// of an outstanding lease is rejected with ErrLeaseOverlap before any lock
// is touched. Callers that want to share read access fan out through
// BatchReadProxy.Clone instead of asking the pool twice.
//
// The lease table is keyed by lock identity, not index, so it survives
// Remove and SwapRemove reshuffling. Entries are validated against the
// lock's own state and swept when stale at every pool operation; releasing
// a proxy therefore needs no callback into the pool.
package pool

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
)

// leaseKind records what a lease was handed out as. The overlap check does
// not depend on it; it exists for error detail.
type leaseKind int

const (
	leaseRead leaseKind = iota + 1
	leaseWrite
)

func (k leaseKind) String() string {
	switch k {
	case leaseRead:
		return "read"
	case leaseWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Pool is an ordered collection of batch locks with single-use lease
// accounting.
//
// # Thread Safety
//
// Safe for concurrent use. Every operation takes the pool's mutex; the
// per-batch lock state is inspected and acquired under it.
type Pool[K batch.Batch] struct {
	mu     sync.Mutex
	locks  []*batch.BatchLock[K]
	leases map[*batch.BatchLock[K]]leaseKind
}

// AgentPool and MessagePool are the two pool shapes the engine runs on.
type (
	AgentPool   = Pool[*batch.AgentBatch]
	MessagePool = Pool[*batch.MessageBatch]
)

// New creates an empty pool.
func New[K batch.Batch]() *Pool[K] {
	return &Pool[K]{
		leases: make(map[*batch.BatchLock[K]]leaseKind),
	}
}

// Len reports the number of batches in the pool.
func (p *Pool[K]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

// IsEmpty reports whether the pool holds no batches.
func (p *Pool[K]) IsEmpty() bool {
	return p.Len() == 0
}

// Push appends a batch to the end of the pool, wrapping it in a fresh
// lock. The new batch is immediately leasable at index Len()-1.
func (p *Pool[K]) Push(b K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locks = append(p.locks, batch.NewBatchLock(b))
}

// IndexOf returns the index of the batch with the given ID, or -1 if the
// pool does not hold it.
func (p *Pool[K]) IndexOf(batchID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.locks {
		if l.BatchID() == batchID {
			return i
		}
	}
	return -1
}

// BatchIDs returns the IDs of all batches in pool order.
func (p *Pool[K]) BatchIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(p.locks))
	for i, l := range p.locks {
		ids[i] = l.BatchID()
	}
	return ids
}

// OutstandingLeases reports how many batches are currently leased out.
func (p *Pool[K]) OutstandingLeases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return len(p.leases)
}

// Remove takes the batch at index i out of the pool, preserving the order
// of the remaining batches. O(n).
//
// # Outputs
//
//   - *batch.BatchLock[K]: the removed lock. It is no longer tracked by
//     the pool but still guards its batch; callers that need the batch
//     contents acquire a proxy on it directly.
//   - error: ErrIndexOutOfRange, or ErrBatchLeased if an outstanding
//     proxy still holds the batch.
func (p *Pool[K]) Remove(i int) (*batch.BatchLock[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()

	l, err := p.removableLocked(i)
	if err != nil {
		return nil, err
	}
	copy(p.locks[i:], p.locks[i+1:])
	p.locks[len(p.locks)-1] = nil
	p.locks = p.locks[:len(p.locks)-1]
	return l, nil
}

// SwapRemove takes the batch at index i out of the pool by moving the last
// batch into its place. O(1), does not preserve order.
func (p *Pool[K]) SwapRemove(i int) (*batch.BatchLock[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()

	l, err := p.removableLocked(i)
	if err != nil {
		return nil, err
	}
	last := len(p.locks) - 1
	p.locks[i] = p.locks[last]
	p.locks[last] = nil
	p.locks = p.locks[:last]
	return l, nil
}

func (p *Pool[K]) removableLocked(i int) (*batch.BatchLock[K], error) {
	if i < 0 || i >= len(p.locks) {
		return nil, fmt.Errorf("pool: remove index %d of %d: %w", i, len(p.locks), ErrIndexOutOfRange)
	}
	l := p.locks[i]
	if l.Leased() {
		return nil, fmt.Errorf("pool: index %d (batch %s): %w", i, l.BatchID(), ErrBatchLeased)
	}
	delete(p.leases, l)
	return l, nil
}

// ReadProxies leases every batch in the pool for shared access.
//
// # Description
//
// Acquisition runs in pool order. On the first batch that cannot be
// leased, every proxy acquired by this call is released and the error is
// returned; no batch stays leased after a failed call. A request that
// overlaps any outstanding lease fails with ErrLeaseOverlap without
// touching a single lock.
func (p *Pool[K]) ReadProxies() (*PoolReadProxy[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return p.leaseReadLocked(p.allIndicesLocked())
}

// WriteProxies leases every batch in the pool for exclusive access. Same
// all-or-nothing contract as ReadProxies.
func (p *Pool[K]) WriteProxies() (*PoolWriteProxy[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return p.leaseWriteLocked(p.allIndicesLocked())
}

// PartialReadProxies leases exactly the given indices for shared access.
// Indices may arrive in any order; acquisition follows the given order.
func (p *Pool[K]) PartialReadProxies(indices []int) (*PoolReadProxy[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return p.leaseReadLocked(indices)
}

// PartialWriteProxies leases exactly the given indices for exclusive
// access.
func (p *Pool[K]) PartialWriteProxies(indices []int) (*PoolWriteProxy[K], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweepLocked()
	return p.leaseWriteLocked(indices)
}

func (p *Pool[K]) leaseReadLocked(indices []int) (*PoolReadProxy[K], error) {
	if err := p.validateLocked(indices); err != nil {
		return nil, err
	}
	parts := make([]*batch.BatchReadProxy[K], 0, len(indices))
	for _, i := range indices {
		prx, err := batch.NewBatchReadProxy(p.locks[i])
		if err != nil {
			releaseReadParts(parts)
			return nil, fmt.Errorf("pool: lease index %d: %w", i, err)
		}
		parts = append(parts, prx)
	}
	for _, i := range indices {
		p.leases[p.locks[i]] = leaseRead
	}
	return NewPoolReadProxy(parts), nil
}

func (p *Pool[K]) leaseWriteLocked(indices []int) (*PoolWriteProxy[K], error) {
	if err := p.validateLocked(indices); err != nil {
		return nil, err
	}
	parts := make([]*batch.BatchWriteProxy[K], 0, len(indices))
	for _, i := range indices {
		prx, err := batch.NewBatchWriteProxy(p.locks[i])
		if err != nil {
			releaseWriteParts(parts)
			return nil, fmt.Errorf("pool: lease index %d: %w", i, err)
		}
		parts = append(parts, prx)
	}
	for _, i := range indices {
		p.leases[p.locks[i]] = leaseWrite
	}
	return NewPoolWriteProxy(parts), nil
}

// validateLocked rejects out-of-range indices, duplicates within the
// request, and overlap with outstanding leases. Assumes a fresh sweep.
func (p *Pool[K]) validateLocked(indices []int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(p.locks) {
			return fmt.Errorf("pool: lease index %d of %d: %w", i, len(p.locks), ErrIndexOutOfRange)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("pool: index %d requested twice: %w", i, ErrLeaseOverlap)
		}
		seen[i] = struct{}{}
		if kind, held := p.leases[p.locks[i]]; held {
			return fmt.Errorf("pool: index %d (batch %s) already leased for %s: %w",
				i, p.locks[i].BatchID(), kind, ErrLeaseOverlap)
		}
	}
	return nil
}

// sweepLocked drops lease entries whose lock is no longer held. A lease
// ends when its last proxy (clones included) is released, wherever that
// release happened.
func (p *Pool[K]) sweepLocked() {
	for l := range p.leases {
		if !l.Leased() {
			delete(p.leases, l)
		}
	}
}

func (p *Pool[K]) allIndicesLocked() []int {
	indices := make([]int, len(p.locks))
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func releaseReadParts[K batch.Batch](parts []*batch.BatchReadProxy[K]) {
	for _, prx := range parts {
		prx.Release()
	}
}

func releaseWriteParts[K batch.Batch](parts []*batch.BatchWriteProxy[K]) {
	for _, prx := range parts {
		prx.Release()
	}
}
