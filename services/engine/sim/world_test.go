// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/engine/state"
)

func TestSeedWorld(t *testing.T) {
	st := state.New(t.TempDir(), discardLogger())

	groups, total, err := SeedWorld(st, 3, 5, 42, discardLogger())
	require.NoError(t, err)
	assert.Len(t, groups, 3)
	assert.Equal(t, 15, total)
	assert.Len(t, st.Groups(), 3)

	prx, err := st.ReadProxies()
	require.NoError(t, err)
	defer prx.Release()

	ap := prx.AgentPool()
	require.Equal(t, 3, ap.Len())
	assert.Equal(t, 15, prx.NAccessibleAgents())

	for g := 0; g < ap.Len(); g++ {
		b := ap.Batch(g)
		require.Equal(t, 5, b.Rows())
		for i := 0; i < b.Rows(); i++ {
			x, y := b.Position(i)
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, worldExtent)
			assert.GreaterOrEqual(t, y, 0.0)
			assert.Less(t, y, worldExtent)
			assert.Equal(t, startEnergy, b.Energy(i))
		}
	}

	// Ids encode group and slot, independent of the seed.
	assert.Equal(t, "agent-000-000", ap.Batch(0).AgentID(0))
	assert.Equal(t, "agent-002-004", ap.Batch(2).AgentID(4))
}

func TestSeedWorld_RejectsBadShape(t *testing.T) {
	st := state.New(t.TempDir(), discardLogger())

	_, _, err := SeedWorld(st, 0, 5, 1, discardLogger())
	require.ErrorIs(t, err, ErrWorldShape)

	_, _, err = SeedWorld(st, 2, 0, 1, discardLogger())
	require.ErrorIs(t, err, ErrWorldShape)

	assert.Empty(t, st.Groups())
}

func TestSeedWorld_SeedControlsPositions(t *testing.T) {
	stA := state.New(t.TempDir(), discardLogger())
	stB := state.New(t.TempDir(), discardLogger())
	stC := state.New(t.TempDir(), discardLogger())

	_, _, err := SeedWorld(stA, 2, 3, 7, discardLogger())
	require.NoError(t, err)
	_, _, err = SeedWorld(stB, 2, 3, 7, discardLogger())
	require.NoError(t, err)
	_, _, err = SeedWorld(stC, 2, 3, 8, discardLogger())
	require.NoError(t, err)

	same := collectStates(t, stA)
	assert.Equal(t, same, collectStates(t, stB))
	assert.NotEqual(t, same, collectStates(t, stC))
}
