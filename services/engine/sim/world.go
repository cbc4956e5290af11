// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
)

// World seeding parameters.
const (
	worldExtent = 100.0
	startEnergy = 10.0
)

// SeedWorld populates st with groups of randomly placed agents.
//
// # Description
//
// Agent ids encode group and slot ("agent-002-017") and are stable for
// a given shape. Positions draw uniformly from [0, worldExtent) on
// both axes and every agent starts with the same energy. If any group
// fails to persist, the groups created so far are removed again before
// returning.
//
// # Outputs
//
//   - []state.Group: the created groups, in creation order.
//   - int: total agents created.
//   - error: ErrWorldShape for a non-positive shape, or the AddGroup
//     failure.
func SeedWorld(st *state.State, groups, agentsPerGroup int, seed int64, logger *slog.Logger) ([]state.Group, int, error) {
	if groups <= 0 || agentsPerGroup <= 0 {
		return nil, 0, fmt.Errorf("%d groups x %d agents: %w", groups, agentsPerGroup, ErrWorldShape)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(seed))
	made := make([]state.Group, 0, groups)
	for g := 0; g < groups; g++ {
		agents := make([]batch.AgentState, agentsPerGroup)
		for i := range agents {
			agents[i] = batch.AgentState{
				AgentID: fmt.Sprintf("agent-%03d-%03d", g, i),
				X:       rng.Float64() * worldExtent,
				Y:       rng.Float64() * worldExtent,
				Energy:  startEnergy,
			}
		}
		grp, err := st.AddGroup(agents)
		if err != nil {
			for _, m := range made {
				if rerr := st.RemoveGroup(m); rerr != nil {
					logger.Warn("seed rollback left a group behind",
						slog.String("agent_batch", m.AgentBatchID),
						slog.String("error", rerr.Error()))
				}
			}
			return nil, 0, fmt.Errorf("seed group %d: %w", g, err)
		}
		made = append(made, grp)
	}

	total := groups * agentsPerGroup
	logger.Info("world seeded",
		slog.Int("groups", groups),
		slog.Int("agents", total),
		slog.Int64("seed", seed))
	return made, total, nil
}
