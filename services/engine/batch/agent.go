// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package batch

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSwarm/services/engine/memory"
)

// AgentState is one agent's row in an agent batch.
type AgentState struct {
	// AgentID is the stable agent identity.
	AgentID string `json:"agent_id"`

	// X, Y are the agent's position.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// Energy is the agent's remaining energy budget.
	Energy float64 `json:"energy"`
}

// agentColumns is the columnar payload persisted in the segment.
// Cheap JSON stand-in for a real columnar format; the interface above
// it doesn't change when the codec does.
type agentColumns struct {
	AgentID []string  `json:"agent_id"`
	X       []float64 `json:"x"`
	Y       []float64 `json:"y"`
	Energy  []float64 `json:"energy"`
}

// AgentBatch is one group's agent rows, cached in memory and persisted
// in a shared segment.
//
// # Description
//
// The cached column views are what behaviors read and write. They can
// go stale if another component flushes the segment out-of-band; the
// loaded/persisted metaversion pair tracks that, and MaybeReload
// refreshes the cache when needed.
//
// # Thread Safety
//
// AgentBatch itself is NOT synchronized. All access goes through a
// BatchLock proxy; the lock discipline is what makes concurrent use
// safe.
type AgentBatch struct {
	id      string
	segment *memory.Segment
	loaded  memory.Metaversion
	cols    agentColumns
}

// NewAgentBatch creates a batch seeded with the given agents and
// persists it as a fresh segment in dir.
//
// # Inputs
//
//   - dir: Segment data directory.
//   - agents: Initial rows. May be empty.
//
// # Outputs
//
//   - *AgentBatch: The created batch, loaded version zero.
//   - error: Non-nil if the segment could not be written.
func NewAgentBatch(dir string, agents []AgentState) (*AgentBatch, error) {
	b := &AgentBatch{id: uuid.NewString()}
	for _, a := range agents {
		b.cols.AgentID = append(b.cols.AgentID, a.AgentID)
		b.cols.X = append(b.cols.X, a.X)
		b.cols.Y = append(b.cols.Y, a.Y)
		b.cols.Energy = append(b.cols.Energy, a.Energy)
	}

	payload, err := json.Marshal(b.cols)
	if err != nil {
		return nil, fmt.Errorf("encode agent batch: %w", err)
	}
	seg, err := memory.CreateSegment(dir, b.id, payload)
	if err != nil {
		return nil, err
	}
	b.segment = seg
	return b, nil
}

// OpenAgentBatch opens an existing agent segment and loads its rows.
//
// Used by components that didn't create the batch (a second process,
// a monitor) to attach to it by id.
func OpenAgentBatch(dir, id string) (*AgentBatch, error) {
	seg, err := memory.OpenSegment(dir, id)
	if err != nil {
		return nil, err
	}
	b := &AgentBatch{id: id, segment: seg}
	if err := b.reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// BatchID returns the batch's stable identity.
func (b *AgentBatch) BatchID() string { return b.id }

// Rows returns the number of agents in the cached views.
func (b *AgentBatch) Rows() int { return len(b.cols.AgentID) }

// LoadedVersion returns the version of the cached views.
func (b *AgentBatch) LoadedVersion() memory.Metaversion { return b.loaded }

// PersistedVersion re-reads the authoritative version from the segment.
func (b *AgentBatch) PersistedVersion() (memory.Metaversion, error) {
	return b.segment.PersistedVersion()
}

// MaybeReload refreshes the cached views if the persisted version is
// newer than the loaded one.
//
// Cheap when current: a single header read. Call under a write proxy
// before trusting cached rows for a step.
func (b *AgentBatch) MaybeReload() error {
	persisted, err := b.segment.PersistedVersion()
	if err != nil {
		return err
	}
	if !b.loaded.OlderThan(persisted) {
		return nil
	}
	return b.reload()
}

// Flush persists the cached views.
//
// Any flush rewrites the batch data, so the batch version always
// bumps; a resized buffer additionally bumps the memory version.
func (b *AgentBatch) Flush(change memory.BufferChange) error {
	if change.Resized() {
		b.loaded.Increment()
	} else {
		b.loaded.IncrementBatch()
	}
	payload, err := json.Marshal(b.cols)
	if err != nil {
		return fmt.Errorf("encode agent batch %s: %w", b.id, err)
	}
	return b.segment.Flush(payload, b.loaded)
}

// reload replaces the cached views with the persisted payload.
func (b *AgentBatch) reload() error {
	payload, version, err := b.segment.Load()
	if err != nil {
		return err
	}
	var cols agentColumns
	if err := json.Unmarshal(payload, &cols); err != nil {
		return fmt.Errorf("decode agent batch %s: %w", b.id, err)
	}
	b.cols = cols
	b.loaded = version
	return nil
}

// RemoveSegment deletes the batch's backing segment. Called when the
// batch is retired from its pool.
func (b *AgentBatch) RemoveSegment() error {
	return b.segment.Remove()
}

// ---------------------------------------------------------------------------
// Row access (callers hold the appropriate proxy)
// ---------------------------------------------------------------------------

// AgentID returns the id of the agent at row i.
func (b *AgentBatch) AgentID(i int) string { return b.cols.AgentID[i] }

// Position returns the position of the agent at row i.
func (b *AgentBatch) Position(i int) (x, y float64) {
	return b.cols.X[i], b.cols.Y[i]
}

// SetPosition updates the position of the agent at row i.
// Requires a write proxy.
func (b *AgentBatch) SetPosition(i int, x, y float64) {
	b.cols.X[i] = x
	b.cols.Y[i] = y
}

// Energy returns the energy of the agent at row i.
func (b *AgentBatch) Energy(i int) float64 { return b.cols.Energy[i] }

// SetEnergy updates the energy of the agent at row i.
// Requires a write proxy.
func (b *AgentBatch) SetEnergy(i int, v float64) {
	b.cols.Energy[i] = v
}

// States snapshots all rows. Requires at least a read proxy.
func (b *AgentBatch) States() []AgentState {
	out := make([]AgentState, b.Rows())
	for i := range out {
		out[i] = AgentState{
			AgentID: b.cols.AgentID[i],
			X:       b.cols.X[i],
			Y:       b.cols.Y[i],
			Energy:  b.cols.Energy[i],
		}
	}
	return out
}
