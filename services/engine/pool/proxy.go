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

import (
	"fmt"
	"sync/atomic"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
)

// PoolReadProxy holds shared leases on a set of batches from one pool.
//
// # Description
//
// One PoolReadProxy is one lease: the right to read the batches it was
// built over, single-use by convention. It can cross goroutine
// boundaries, be deconstructed into its per-batch proxies, and be
// recombined from parts without touching the pool again.
//
// # Thread Safety
//
// Release is idempotent and safe from any goroutine. Batch accessors
// must not be called after Release or Deconstruct.
type PoolReadProxy[K batch.Batch] struct {
	parts []*batch.BatchReadProxy[K]
	spent atomic.Bool
}

// NewPoolReadProxy recombines per-batch read proxies into a pool-level
// proxy. The parts keep their original holds; nothing is re-locked.
func NewPoolReadProxy[K batch.Batch](parts []*batch.BatchReadProxy[K]) *PoolReadProxy[K] {
	return &PoolReadProxy[K]{parts: parts}
}

// Len reports the number of leased batches.
func (p *PoolReadProxy[K]) Len() int {
	return len(p.parts)
}

// Batch returns the leased batch at position i for reading. Positions
// follow the order of the request that built the proxy.
func (p *PoolReadProxy[K]) Batch(i int) K {
	return p.parts[i].Batch()
}

// Clone registers an additional shared hold on every leased batch.
//
// This is the fan-out path: handing the same read view to several
// workers means cloning, never asking the pool for a second lease.
// Panics if called on a spent proxy.
func (p *PoolReadProxy[K]) Clone() *PoolReadProxy[K] {
	if p.spent.Load() {
		panic("pool: Clone on spent pool read proxy")
	}
	parts := make([]*batch.BatchReadProxy[K], len(p.parts))
	for i, prx := range p.parts {
		parts[i] = prx.Clone()
	}
	return NewPoolReadProxy(parts)
}

// Deconstruct consumes the proxy and returns its per-batch proxies. The
// holds live on in the returned parts; the pool proxy must not be used
// afterwards. Panics if the proxy is already spent.
func (p *PoolReadProxy[K]) Deconstruct() []*batch.BatchReadProxy[K] {
	if !p.spent.CompareAndSwap(false, true) {
		panic("pool: Deconstruct on spent pool read proxy")
	}
	parts := p.parts
	p.parts = nil
	return parts
}

// Release drops every hold this proxy carries. Safe to call more than
// once; only the first call releases.
func (p *PoolReadProxy[K]) Release() {
	if !p.spent.CompareAndSwap(false, true) {
		return
	}
	releaseReadParts(p.parts)
	p.parts = nil
}

// PoolWriteProxy holds exclusive leases on a set of batches from one
// pool. Same lease and lifecycle semantics as PoolReadProxy.
type PoolWriteProxy[K batch.Batch] struct {
	parts []*batch.BatchWriteProxy[K]
	spent atomic.Bool
}

// NewPoolWriteProxy recombines per-batch write proxies into a pool-level
// proxy without re-locking.
func NewPoolWriteProxy[K batch.Batch](parts []*batch.BatchWriteProxy[K]) *PoolWriteProxy[K] {
	return &PoolWriteProxy[K]{parts: parts}
}

// Len reports the number of leased batches.
func (p *PoolWriteProxy[K]) Len() int {
	return len(p.parts)
}

// Batch returns the leased batch at position i for reading and writing.
func (p *PoolWriteProxy[K]) Batch(i int) K {
	return p.parts[i].Batch()
}

// MaybeReload refreshes every leased batch whose segment was advanced by
// an out-of-band writer since the batch was loaded. Fails on the first
// batch that cannot be checked or reloaded.
func (p *PoolWriteProxy[K]) MaybeReload() error {
	for i, prx := range p.parts {
		b := prx.Batch()
		if err := b.MaybeReload(); err != nil {
			return fmt.Errorf("pool: reload batch %s at position %d: %w", b.BatchID(), i, err)
		}
	}
	return nil
}

// Deconstruct consumes the proxy and returns its per-batch proxies.
// Panics if the proxy is already spent.
func (p *PoolWriteProxy[K]) Deconstruct() []*batch.BatchWriteProxy[K] {
	if !p.spent.CompareAndSwap(false, true) {
		panic("pool: Deconstruct on spent pool write proxy")
	}
	parts := p.parts
	p.parts = nil
	return parts
}

// Release drops every hold this proxy carries. Safe to call more than
// once; only the first call releases.
func (p *PoolWriteProxy[K]) Release() {
	if !p.spent.CompareAndSwap(false, true) {
		return
	}
	releaseWriteParts(p.parts)
	p.parts = nil
}
