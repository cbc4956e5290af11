// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/pool"
)

// StateReadProxy is the read view of the whole simulation state: one
// pool lease over the agent batches paired with one over the message
// batches.
//
// # Thread Safety
//
// The proxy may cross goroutine boundaries. Release is idempotent;
// accessors must not be called after Release or Deconstruct.
type StateReadProxy struct {
	agents   *pool.PoolReadProxy[*batch.AgentBatch]
	messages *pool.PoolReadProxy[*batch.MessageBatch]
}

// NewStateReadProxy composes two pool read proxies into a state view
// without touching any lock.
func NewStateReadProxy(
	agents *pool.PoolReadProxy[*batch.AgentBatch],
	messages *pool.PoolReadProxy[*batch.MessageBatch],
) *StateReadProxy {
	return &StateReadProxy{agents: agents, messages: messages}
}

// AgentPool returns the agent half of the view.
func (p *StateReadProxy) AgentPool() *pool.PoolReadProxy[*batch.AgentBatch] {
	return p.agents
}

// MessagePool returns the message half of the view.
func (p *StateReadProxy) MessagePool() *pool.PoolReadProxy[*batch.MessageBatch] {
	return p.messages
}

// NAccessibleAgents sums the row counts of every agent batch in the
// view. Callers use it to size downstream parallel work.
func (p *StateReadProxy) NAccessibleAgents() int {
	n := 0
	for i := 0; i < p.agents.Len(); i++ {
		n += p.agents.Batch(i).Rows()
	}
	return n
}

// Clone registers an additional shared hold on every batch in the view.
// Fan-out to multiple workers happens here, never through a second
// lease request against the pools.
func (p *StateReadProxy) Clone() *StateReadProxy {
	return &StateReadProxy{
		agents:   p.agents.Clone(),
		messages: p.messages.Clone(),
	}
}

// Deconstruct consumes the proxy and returns the per-batch proxies of
// both halves, letting a higher layer split and recombine access
// without re-locking.
func (p *StateReadProxy) Deconstruct() ([]*batch.BatchReadProxy[*batch.AgentBatch], []*batch.BatchReadProxy[*batch.MessageBatch]) {
	return p.agents.Deconstruct(), p.messages.Deconstruct()
}

// Release drops every hold in both halves. Safe to call more than once.
func (p *StateReadProxy) Release() {
	p.agents.Release()
	p.messages.Release()
}

// StateWriteProxy is the exclusive view of the whole simulation state.
//
// # Thread Safety
//
// Same transfer and release semantics as StateReadProxy.
type StateWriteProxy struct {
	agents   *pool.PoolWriteProxy[*batch.AgentBatch]
	messages *pool.PoolWriteProxy[*batch.MessageBatch]
}

// NewStateWriteProxy composes two pool write proxies into a state view
// without touching any lock.
func NewStateWriteProxy(
	agents *pool.PoolWriteProxy[*batch.AgentBatch],
	messages *pool.PoolWriteProxy[*batch.MessageBatch],
) *StateWriteProxy {
	return &StateWriteProxy{agents: agents, messages: messages}
}

// AgentPool returns the agent half of the view for mutation.
func (p *StateWriteProxy) AgentPool() *pool.PoolWriteProxy[*batch.AgentBatch] {
	return p.agents
}

// MessagePool returns the message half of the view for mutation.
func (p *StateWriteProxy) MessagePool() *pool.PoolWriteProxy[*batch.MessageBatch] {
	return p.messages
}

// NAccessibleAgents sums the row counts of every agent batch in the
// view.
func (p *StateWriteProxy) NAccessibleAgents() int {
	n := 0
	for i := 0; i < p.agents.Len(); i++ {
		n += p.agents.Batch(i).Rows()
	}
	return n
}

// MaybeReload refreshes every batch in the view whose segment was
// advanced by an out-of-band writer. The lock protects structural
// access, not the segment bytes; this is the seam that reconciles the
// two before further mutation.
func (p *StateWriteProxy) MaybeReload() error {
	if err := p.agents.MaybeReload(); err != nil {
		return err
	}
	return p.messages.MaybeReload()
}

// Deconstruct consumes the proxy and returns the per-batch proxies of
// both halves.
func (p *StateWriteProxy) Deconstruct() ([]*batch.BatchWriteProxy[*batch.AgentBatch], []*batch.BatchWriteProxy[*batch.MessageBatch]) {
	return p.agents.Deconstruct(), p.messages.Deconstruct()
}

// Release drops every hold in both halves. Safe to call more than once.
func (p *StateWriteProxy) Release() {
	p.agents.Release()
	p.messages.Release()
}
