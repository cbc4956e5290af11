// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state owns the simulation state: the agent pool, the message
// pool, and the pairing between their batches. It builds the composite
// read and write views that tasks run against.
package state

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/pool"
)

// Group pairs one agent batch with its message batch. Agents in the
// batch read their inbox from and write their outbox to the paired
// message batch.
type Group struct {
	AgentBatchID   string `json:"agent_batch_id"`
	MessageBatchID string `json:"message_batch_id"`
}

// Status is a point-in-time snapshot of the state shape, taken for
// monitoring. Lease counts are advisory; they can change the moment the
// snapshot returns.
type Status struct {
	Groups               int `json:"groups"`
	AgentBatches         int `json:"agent_batches"`
	MessageBatches       int `json:"message_batches"`
	LeasedAgentBatches   int `json:"leased_agent_batches"`
	LeasedMessageBatches int `json:"leased_message_batches"`
}

// State is the simulation-state owner.
//
// # Description
//
// State holds the two pools and the group pairing. All access to batch
// contents goes through the composite proxies it builds; State itself
// never touches batch data outside a lease.
//
// # Thread Safety
//
// Safe for concurrent use. Group book-keeping is guarded by the state
// mutex; the pools carry their own.
type State struct {
	mu       sync.Mutex
	dir      string
	agents   *pool.AgentPool
	messages *pool.MessagePool
	groups   []Group
	logger   *slog.Logger
}

// New creates an empty state whose segments live under dir. A nil
// logger falls back to slog.Default().
func New(dir string, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		dir:      dir,
		agents:   pool.New[*batch.AgentBatch](),
		messages: pool.New[*batch.MessageBatch](),
		logger:   logger,
	}
}

// Dir returns the segment directory.
func (s *State) Dir() string {
	return s.dir
}

// AddGroup creates a new agent batch seeded with the given agents, an
// empty message batch paired with it, and appends both to their pools.
//
// # Outputs
//
//   - Group: the IDs of the created pair.
//   - error: segment creation failure. A half-created group is cleaned
//     up before the error returns.
func (s *State) AddGroup(agents []batch.AgentState) (Group, error) {
	ab, err := batch.NewAgentBatch(s.dir, agents)
	if err != nil {
		return Group{}, fmt.Errorf("state: create agent batch: %w", err)
	}
	mb, err := batch.NewMessageBatch(s.dir)
	if err != nil {
		if rmErr := ab.RemoveSegment(); rmErr != nil {
			s.logger.Warn("orphaned agent segment after failed group creation",
				slog.String("batch_id", ab.BatchID()),
				slog.String("error", rmErr.Error()))
		}
		return Group{}, fmt.Errorf("state: create message batch: %w", err)
	}

	g := Group{AgentBatchID: ab.BatchID(), MessageBatchID: mb.BatchID()}
	s.mu.Lock()
	s.groups = append(s.groups, g)
	s.mu.Unlock()
	s.agents.Push(ab)
	s.messages.Push(mb)

	s.logger.Debug("batch group added",
		slog.String("agent_batch", g.AgentBatchID),
		slog.String("message_batch", g.MessageBatchID),
		slog.Int("agents", len(agents)))
	return g, nil
}

// RemoveGroup takes a group out of both pools and deletes its segments.
//
// Fails with ErrGroupNotFound if the state does not hold the group and
// with pool.ErrBatchLeased if either half is still leased. When only
// the agent half could be removed, it is pushed back so the group stays
// intact.
func (s *State) RemoveGroup(g Group) error {
	s.mu.Lock()
	gi := -1
	for i, have := range s.groups {
		if have == g {
			gi = i
			break
		}
	}
	s.mu.Unlock()
	if gi < 0 {
		return fmt.Errorf("state: group (%s, %s): %w", g.AgentBatchID, g.MessageBatchID, ErrGroupNotFound)
	}

	ai := s.agents.IndexOf(g.AgentBatchID)
	mi := s.messages.IndexOf(g.MessageBatchID)
	if ai < 0 || mi < 0 {
		return fmt.Errorf("state: group (%s, %s) not in pools: %w", g.AgentBatchID, g.MessageBatchID, ErrGroupNotFound)
	}

	aLock, err := s.agents.SwapRemove(ai)
	if err != nil {
		return fmt.Errorf("state: remove agent batch %s: %w", g.AgentBatchID, err)
	}
	mLock, err := s.messages.SwapRemove(mi)
	if err != nil {
		s.restoreAgentBatch(aLock)
		return fmt.Errorf("state: remove message batch %s: %w", g.MessageBatchID, err)
	}

	s.mu.Lock()
	s.groups = append(s.groups[:gi], s.groups[gi+1:]...)
	s.mu.Unlock()

	s.removeAgentSegment(aLock)
	s.removeMessageSegment(mLock)
	s.logger.Debug("batch group removed",
		slog.String("agent_batch", g.AgentBatchID),
		slog.String("message_batch", g.MessageBatchID))
	return nil
}

// restoreAgentBatch puts a removed agent batch back into the pool after
// the message half of a group removal failed. The batch lands at the
// end; groups are tracked by ID, so the index shift is harmless.
func (s *State) restoreAgentBatch(l *batch.BatchLock[*batch.AgentBatch]) {
	prx, err := batch.NewBatchWriteProxy(l)
	if err != nil {
		s.logger.Warn("agent batch lost during group removal rollback",
			slog.String("batch_id", l.BatchID()),
			slog.String("error", err.Error()))
		return
	}
	s.agents.Push(prx.Batch())
	prx.Release()
}

func (s *State) removeAgentSegment(l *batch.BatchLock[*batch.AgentBatch]) {
	prx, err := batch.NewBatchWriteProxy(l)
	if err != nil {
		s.logger.Warn("agent segment not removed",
			slog.String("batch_id", l.BatchID()),
			slog.String("error", err.Error()))
		return
	}
	defer prx.Release()
	if err := prx.Batch().RemoveSegment(); err != nil {
		s.logger.Warn("agent segment not removed",
			slog.String("batch_id", l.BatchID()),
			slog.String("error", err.Error()))
	}
}

func (s *State) removeMessageSegment(l *batch.BatchLock[*batch.MessageBatch]) {
	prx, err := batch.NewBatchWriteProxy(l)
	if err != nil {
		s.logger.Warn("message segment not removed",
			slog.String("batch_id", l.BatchID()),
			slog.String("error", err.Error()))
		return
	}
	defer prx.Release()
	if err := prx.Batch().RemoveSegment(); err != nil {
		s.logger.Warn("message segment not removed",
			slog.String("batch_id", l.BatchID()),
			slog.String("error", err.Error()))
	}
}

// Groups returns a copy of the current group pairing in creation order.
func (s *State) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// AgentPool exposes the agent pool for partial leasing by the task
// layer.
func (s *State) AgentPool() *pool.AgentPool {
	return s.agents
}

// MessagePool exposes the message pool for partial leasing by the task
// layer.
func (s *State) MessagePool() *pool.MessagePool {
	return s.messages
}

// ReadProxies builds a read view over the whole state.
//
// All-or-nothing across both pools: when the message half cannot be
// leased, the agent half is fully released before the error returns.
func (s *State) ReadProxies() (*StateReadProxy, error) {
	agents, err := s.agents.ReadProxies()
	if err != nil {
		return nil, fmt.Errorf("state: lease agent pool: %w", err)
	}
	messages, err := s.messages.ReadProxies()
	if err != nil {
		agents.Release()
		return nil, fmt.Errorf("state: lease message pool: %w", err)
	}
	return NewStateReadProxy(agents, messages), nil
}

// WriteProxies builds an exclusive view over the whole state. Same
// cross-pool contract as ReadProxies.
func (s *State) WriteProxies() (*StateWriteProxy, error) {
	agents, err := s.agents.WriteProxies()
	if err != nil {
		return nil, fmt.Errorf("state: lease agent pool: %w", err)
	}
	messages, err := s.messages.WriteProxies()
	if err != nil {
		agents.Release()
		return nil, fmt.Errorf("state: lease message pool: %w", err)
	}
	return NewStateWriteProxy(agents, messages), nil
}

// Snapshot reports the current state shape for monitoring.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	groups := len(s.groups)
	s.mu.Unlock()
	return Status{
		Groups:               groups,
		AgentBatches:         s.agents.Len(),
		MessageBatches:       s.messages.Len(),
		LeasedAgentBatches:   s.agents.OutstandingLeases(),
		LeasedMessageBatches: s.messages.OutstandingLeases(),
	}
}
