// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package task

import (
	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/pool"
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
)

// PartialStateReadProxy is read access to a subset of the state.
// GroupIndices names which groups of the full state the proxy holds,
// positionally aligned with the proxy's batches.
type PartialStateReadProxy struct {
	GroupIndices []int
	Proxy        *state.StateReadProxy
}

// Clone registers additional shared holds on the same subset.
func (p *PartialStateReadProxy) Clone() *PartialStateReadProxy {
	indices := make([]int, len(p.GroupIndices))
	copy(indices, p.GroupIndices)
	return &PartialStateReadProxy{GroupIndices: indices, Proxy: p.Proxy.Clone()}
}

// SplitIntoIndividual consumes the proxy and partitions it into one
// single-group proxy per held group, without re-locking.
func (p *PartialStateReadProxy) SplitIntoIndividual() []*PartialStateReadProxy {
	agents, messages := p.Proxy.Deconstruct()
	out := make([]*PartialStateReadProxy, len(p.GroupIndices))
	for i, group := range p.GroupIndices {
		out[i] = &PartialStateReadProxy{
			GroupIndices: []int{group},
			Proxy: state.NewStateReadProxy(
				pool.NewPoolReadProxy([]*batch.BatchReadProxy[*batch.AgentBatch]{agents[i]}),
				pool.NewPoolReadProxy([]*batch.BatchReadProxy[*batch.MessageBatch]{messages[i]}),
			),
		}
	}
	return out
}

// PartialStateWriteProxy is exclusive access to a subset of the state.
type PartialStateWriteProxy struct {
	GroupIndices []int
	Proxy        *state.StateWriteProxy
}

// SplitIntoIndividual consumes the proxy and partitions it into one
// single-group proxy per held group, without re-locking.
func (p *PartialStateWriteProxy) SplitIntoIndividual() []*PartialStateWriteProxy {
	agents, messages := p.Proxy.Deconstruct()
	out := make([]*PartialStateWriteProxy, len(p.GroupIndices))
	for i, group := range p.GroupIndices {
		out[i] = &PartialStateWriteProxy{
			GroupIndices: []int{group},
			Proxy: state.NewStateWriteProxy(
				pool.NewPoolWriteProxy([]*batch.BatchWriteProxy[*batch.AgentBatch]{agents[i]}),
				pool.NewPoolWriteProxy([]*batch.BatchWriteProxy[*batch.MessageBatch]{messages[i]}),
			),
		}
	}
	return out
}

// accessKind discriminates the shared state variants.
type accessKind int

const (
	accessNone accessKind = iota
	accessRead
	accessWrite
	accessPartialRead
	accessPartialWrite
)

// SharedState is the state access a task carries: nothing, the whole
// state read-only or read-write, or a subset of groups read-only or
// read-write. Read and write subsets of the same step never overlap;
// the pool's lease accounting enforces that at construction time.
type SharedState struct {
	kind         accessKind
	read         *state.StateReadProxy
	write        *state.StateWriteProxy
	partialRead  *PartialStateReadProxy
	partialWrite *PartialStateWriteProxy
}

// NoSharedState shares nothing.
func NoSharedState() SharedState {
	return SharedState{kind: accessNone}
}

// ReadSharedState shares the whole state read-only.
func ReadSharedState(p *state.StateReadProxy) SharedState {
	return SharedState{kind: accessRead, read: p}
}

// WriteSharedState shares the whole state read-write.
func WriteSharedState(p *state.StateWriteProxy) SharedState {
	return SharedState{kind: accessWrite, write: p}
}

// PartialReadSharedState shares a subset of groups read-only.
func PartialReadSharedState(p *PartialStateReadProxy) SharedState {
	return SharedState{kind: accessPartialRead, partialRead: p}
}

// PartialWriteSharedState shares a subset of groups read-write.
func PartialWriteSharedState(p *PartialStateWriteProxy) SharedState {
	return SharedState{kind: accessPartialWrite, partialWrite: p}
}

// IsDisabled reports whether the state is neither readable nor
// writable.
func (s SharedState) IsDisabled() bool {
	return s.kind == accessNone
}

// IsReadonly reports whether the state is readable, fully or
// partially, but not writable.
func (s SharedState) IsReadonly() bool {
	return s.kind == accessRead || s.kind == accessPartialRead
}

// IsReadWrite reports whether the state is readable and writable,
// fully or partially.
func (s SharedState) IsReadWrite() bool {
	return s.kind == accessWrite || s.kind == accessPartialWrite
}

// NAccessibleAgents reports how many agents the task can reach through
// this state.
func (s SharedState) NAccessibleAgents() int {
	switch s.kind {
	case accessRead:
		return s.read.NAccessibleAgents()
	case accessWrite:
		return s.write.NAccessibleAgents()
	case accessPartialRead:
		return s.partialRead.Proxy.NAccessibleAgents()
	case accessPartialWrite:
		return s.partialWrite.Proxy.NAccessibleAgents()
	default:
		return 0
	}
}

// TryClone duplicates read access by registering additional shared
// holds. Write access is single-owner and fails with
// ErrMultipleWriteAccess.
func (s SharedState) TryClone() (SharedState, error) {
	switch s.kind {
	case accessNone:
		return NoSharedState(), nil
	case accessRead:
		return ReadSharedState(s.read.Clone()), nil
	case accessPartialRead:
		return PartialReadSharedState(s.partialRead.Clone()), nil
	default:
		return SharedState{}, ErrMultipleWriteAccess
	}
}

// Release drops whatever holds the state carries. Safe to call more
// than once.
func (s SharedState) Release() {
	switch s.kind {
	case accessRead:
		s.read.Release()
	case accessWrite:
		s.write.Release()
	case accessPartialRead:
		s.partialRead.Proxy.Release()
	case accessPartialWrite:
		s.partialWrite.Proxy.Release()
	}
}

// SharedContext is the task's access to the simulation context (the
// read-only snapshot of the previous step). Context access is never
// exclusive, so a marker suffices.
type SharedContext struct {
	readable bool
}

// NoSharedContext shares no context.
func NoSharedContext() SharedContext {
	return SharedContext{}
}

// ReadSharedContext shares the context read-only.
func ReadSharedContext() SharedContext {
	return SharedContext{readable: true}
}

// IsDisabled reports whether the context is inaccessible.
func (c SharedContext) IsDisabled() bool {
	return !c.readable
}

// IsReadonly reports whether the context is readable.
func (c SharedContext) IsReadonly() bool {
	return c.readable
}
