// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package task

import (
	"fmt"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/pool"
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
)

// WorkerIndex identifies one worker in the pool.
type WorkerIndex int

// WorkerAllocation is the set of workers a task is spread over.
type WorkerAllocation []WorkerIndex

// SplitConfig describes how a distributed task was split: how many
// workers it covers and how many agents each one received, aligned
// with the allocation order.
type SplitConfig struct {
	NumWorkers        int
	AgentDistribution []int
}

// Distribution selects the batch distribution strategy for read-only
// stores. Partitioned hands each batch to exactly one worker;
// otherwise every worker gets a clone of the whole view.
type Distribution struct {
	Partitioned bool
}

// WorkerStore pairs a worker with the store slice it will run.
type WorkerStore struct {
	Worker WorkerIndex
	Store  *TaskSharedStore
}

// Distribute consumes the store and splits it over the given workers.
//
// # Description
//
// Write access is always partitioned: each batch goes to exactly one
// worker, round-robin by group, so no two workers ever hold the same
// batch writable. Read access is partitioned only when the
// distribution asks for it; otherwise every worker receives a clone of
// the same view. A worker can receive several groups or none.
//
// # Outputs
//
//   - []WorkerStore: one store per worker, in allocation order.
//   - SplitConfig: the agent spread, used to size downstream work.
//   - error: ErrNoWorkers for an empty allocation.
func (s *TaskSharedStore) Distribute(dist Distribution, workers WorkerAllocation) ([]WorkerStore, SplitConfig, error) {
	if len(workers) == 0 {
		return nil, SplitConfig{}, ErrNoWorkers
	}

	switch {
	case s.state.IsReadWrite():
		return s.distributeWrite(workers)
	case s.state.IsReadonly() && dist.Partitioned:
		return s.distributeRead(workers)
	default:
		return s.distributeClones(workers)
	}
}

func (s *TaskSharedStore) distributeWrite(workers WorkerAllocation) ([]WorkerStore, SplitConfig, error) {
	var (
		groupIndices []int
		agents       []*batch.BatchWriteProxy[*batch.AgentBatch]
		messages     []*batch.BatchWriteProxy[*batch.MessageBatch]
	)
	switch s.state.kind {
	case accessWrite:
		groupIndices = ascending(s.state.write.AgentPool().Len())
		agents, messages = s.state.write.Deconstruct()
	case accessPartialWrite:
		groupIndices = s.state.partialWrite.GroupIndices
		agents, messages = s.state.partialWrite.Proxy.Deconstruct()
	default:
		return nil, SplitConfig{}, fmt.Errorf("distribute write: %w", ErrStateNotWritable)
	}

	groupSizes := make([]int, len(agents))
	for i, prx := range agents {
		groupSizes[i] = prx.Batch().Rows()
	}
	shares, split := distributeBatches(workers, agents, messages, groupIndices, groupSizes)

	out := make([]WorkerStore, len(shares))
	for i, share := range shares {
		out[i] = WorkerStore{
			Worker: share.worker,
			Store: NewTaskSharedStore(
				PartialWriteSharedState(&PartialStateWriteProxy{
					GroupIndices: share.groupIndices,
					Proxy: state.NewStateWriteProxy(
						pool.NewPoolWriteProxy(share.agents),
						pool.NewPoolWriteProxy(share.messages),
					),
				}),
				s.context,
			),
		}
	}
	return out, split, nil
}

func (s *TaskSharedStore) distributeRead(workers WorkerAllocation) ([]WorkerStore, SplitConfig, error) {
	var (
		groupIndices []int
		agents       []*batch.BatchReadProxy[*batch.AgentBatch]
		messages     []*batch.BatchReadProxy[*batch.MessageBatch]
	)
	switch s.state.kind {
	case accessRead:
		groupIndices = ascending(s.state.read.AgentPool().Len())
		agents, messages = s.state.read.Deconstruct()
	case accessPartialRead:
		groupIndices = s.state.partialRead.GroupIndices
		agents, messages = s.state.partialRead.Proxy.Deconstruct()
	default:
		return nil, SplitConfig{}, fmt.Errorf("distribute read: %w", ErrStateNotReadable)
	}

	groupSizes := make([]int, len(agents))
	for i, prx := range agents {
		groupSizes[i] = prx.Batch().Rows()
	}
	shares, split := distributeBatches(workers, agents, messages, groupIndices, groupSizes)

	out := make([]WorkerStore, len(shares))
	for i, share := range shares {
		out[i] = WorkerStore{
			Worker: share.worker,
			Store: NewTaskSharedStore(
				PartialReadSharedState(&PartialStateReadProxy{
					GroupIndices: share.groupIndices,
					Proxy: state.NewStateReadProxy(
						pool.NewPoolReadProxy(share.agents),
						pool.NewPoolReadProxy(share.messages),
					),
				}),
				s.context,
			),
		}
	}
	return out, split, nil
}

// distributeClones gives every worker the same view: a clone for
// read-only stores, nothing for disabled ones. The original store is
// released once the clones exist.
func (s *TaskSharedStore) distributeClones(workers WorkerAllocation) ([]WorkerStore, SplitConfig, error) {
	out := make([]WorkerStore, len(workers))
	for i, w := range workers {
		clone, err := s.TryClone()
		if err != nil {
			for _, made := range out[:i] {
				made.Store.Release()
			}
			return nil, SplitConfig{}, fmt.Errorf("distribute clone for worker %d: %w", w, err)
		}
		out[i] = WorkerStore{Worker: w, Store: clone}
	}

	perWorker := s.NAccessibleAgents()
	s.Release()

	split := SplitConfig{
		NumWorkers:        len(workers),
		AgentDistribution: make([]int, len(workers)),
	}
	for i := range split.AgentDistribution {
		split.AgentDistribution[i] = perWorker
	}
	return out, split, nil
}

// workerShare is one worker's slice of a partitioned distribution.
type workerShare[A, M any] struct {
	worker       WorkerIndex
	agents       []A
	messages     []M
	groupIndices []int
}

// distributeBatches round-robins paired agent and message batches over
// the workers: group i goes to worker slot i mod len(workers). A slot
// can end up with several groups or none.
func distributeBatches[A, M any](
	workers WorkerAllocation,
	agents []A,
	messages []M,
	groupIndices []int,
	groupSizes []int,
) ([]workerShare[A, M], SplitConfig) {
	shares := make([]workerShare[A, M], len(workers))
	distribution := make([]int, len(workers))
	for i, w := range workers {
		shares[i] = workerShare[A, M]{worker: w}
	}

	for g := range agents {
		slot := g % len(workers)
		distribution[slot] += groupSizes[g]
		shares[slot].agents = append(shares[slot].agents, agents[g])
		shares[slot].messages = append(shares[slot].messages, messages[g])
		shares[slot].groupIndices = append(shares[slot].groupIndices, groupIndices[g])
	}

	return shares, SplitConfig{NumWorkers: len(workers), AgentDistribution: distribution}
}

func ascending(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
