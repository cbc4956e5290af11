// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package task

import (
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
)

// TaskSharedStore is everything a task may touch while it runs: its
// state access and its context access. The store travels owner to
// worker inside the dispatch payload and is released worker-side
// before the task resolves.
type TaskSharedStore struct {
	state   SharedState
	context SharedContext
}

// NewTaskSharedStore assembles a store directly. Most callers go
// through the builder.
func NewTaskSharedStore(st SharedState, ctx SharedContext) *TaskSharedStore {
	return &TaskSharedStore{state: st, context: ctx}
}

// State returns the store's state access.
func (s *TaskSharedStore) State() SharedState {
	return s.state
}

// Context returns the store's context access.
func (s *TaskSharedStore) Context() SharedContext {
	return s.context
}

// NAccessibleAgents reports how many agents the task can reach through
// this store.
func (s *TaskSharedStore) NAccessibleAgents() int {
	return s.state.NAccessibleAgents()
}

// WriteAccess returns the writable state view and the group indices it
// covers.
//
// # Outputs
//
//   - *state.StateWriteProxy: the writable view.
//   - []int: group indices covered by the view. The whole-state
//     variant covers 0..n-1.
//   - error: ErrStateNotWritable when the store shares no writable
//     state.
func (s *TaskSharedStore) WriteAccess() (*state.StateWriteProxy, []int, error) {
	switch s.state.kind {
	case accessWrite:
		return s.state.write, ascending(s.state.write.AgentPool().Len()), nil
	case accessPartialWrite:
		return s.state.partialWrite.Proxy, s.state.partialWrite.GroupIndices, nil
	default:
		return nil, nil, ErrStateNotWritable
	}
}

// ReadAccess returns the readable state view and the group indices it
// covers. Write-access stores go through WriteAccess instead; their
// view cannot be handed out read-only without a downgrade.
func (s *TaskSharedStore) ReadAccess() (*state.StateReadProxy, []int, error) {
	switch s.state.kind {
	case accessRead:
		return s.state.read, ascending(s.state.read.AgentPool().Len()), nil
	case accessPartialRead:
		return s.state.partialRead.Proxy, s.state.partialRead.GroupIndices, nil
	default:
		return nil, nil, ErrStateNotReadable
	}
}

// TryClone duplicates the store. Fails with ErrMultipleWriteAccess when
// the store holds write access.
func (s *TaskSharedStore) TryClone() (*TaskSharedStore, error) {
	st, err := s.state.TryClone()
	if err != nil {
		return nil, err
	}
	return &TaskSharedStore{state: st, context: s.context}, nil
}

// Release drops every hold the store carries. Safe to call more than
// once; workers call it before resolving the task one-shot.
func (s *TaskSharedStore) Release() {
	s.state.Release()
}

// TaskSharedStoreBuilder assembles a TaskSharedStore. The zero builder
// shares nothing.
type TaskSharedStoreBuilder struct {
	inner TaskSharedStore
}

// NewTaskSharedStoreBuilder returns a builder sharing nothing.
func NewTaskSharedStoreBuilder() *TaskSharedStoreBuilder {
	return &TaskSharedStoreBuilder{}
}

// WriteState lets the task write all of the state.
func (b *TaskSharedStoreBuilder) WriteState(p *state.StateWriteProxy) *TaskSharedStoreBuilder {
	b.inner.state = WriteSharedState(p)
	return b
}

// ReadState lets the task read all of the state.
func (b *TaskSharedStoreBuilder) ReadState(p *state.StateReadProxy) *TaskSharedStoreBuilder {
	b.inner.state = ReadSharedState(p)
	return b
}

// PartialWriteState lets the task write a subset of groups.
func (b *TaskSharedStoreBuilder) PartialWriteState(p *PartialStateWriteProxy) *TaskSharedStoreBuilder {
	b.inner.state = PartialWriteSharedState(p)
	return b
}

// PartialReadState lets the task read a subset of groups.
func (b *TaskSharedStoreBuilder) PartialReadState(p *PartialStateReadProxy) *TaskSharedStoreBuilder {
	b.inner.state = PartialReadSharedState(p)
	return b
}

// ReadContext lets the task read the simulation context.
func (b *TaskSharedStoreBuilder) ReadContext() *TaskSharedStoreBuilder {
	b.inner.context = ReadSharedContext()
	return b
}

// Build returns the assembled store.
func (b *TaskSharedStoreBuilder) Build() *TaskSharedStore {
	store := b.inner
	b.inner = TaskSharedStore{}
	return &store
}
