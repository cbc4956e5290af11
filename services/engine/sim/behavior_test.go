// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
)

func walkContext(step, group int, seed int64) StepContext {
	return StepContext{
		RunID: "test-run",
		Step:  step,
		Group: group,
		Rand:  rand.New(rand.NewSource(seed)),
	}
}

func newWalkGroup(t *testing.T, agents []batch.AgentState) (*batch.AgentBatch, *batch.MessageBatch) {
	t.Helper()
	dir := t.TempDir()
	ab, err := batch.NewAgentBatch(dir, agents)
	require.NoError(t, err)
	mb, err := batch.NewMessageBatch(dir)
	require.NoError(t, err)
	return ab, mb
}

func TestRegistry_Builtins(t *testing.T) {
	for _, name := range []string{"random_walk", "noop"} {
		b, err := LookupBehavior(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}

	names := Behaviors()
	assert.Contains(t, names, "random_walk")
	assert.Contains(t, names, "noop")
	assert.IsIncreasing(t, names)
}

func TestLookupBehavior_Unknown(t *testing.T) {
	_, err := LookupBehavior("flocking")
	require.ErrorIs(t, err, ErrUnknownBehavior)
}

func TestRegisterBehavior_DuplicatePanics(t *testing.T) {
	assert.Panics(t, func() { RegisterBehavior(RandomWalk{}) })
	assert.Panics(t, func() { RegisterBehavior(nil) })
}

func TestRandomWalk_MovesAndSpendsEnergy(t *testing.T) {
	ab, mb := newWalkGroup(t, []batch.AgentState{
		{AgentID: "a0", X: 50, Y: 50, Energy: 10},
	})

	err := RandomWalk{}.Apply(context.Background(), walkContext(1, 0, 1), ab, mb)
	require.NoError(t, err)

	x, y := ab.Position(0)
	assert.True(t, x != 50 || y != 50, "agent should have moved from (50, 50), got (%v, %v)", x, y)

	// A move costs at most walkMoveCost per axis unit, two units max.
	energy := ab.Energy(0)
	assert.Less(t, energy, 10.0)
	assert.GreaterOrEqual(t, energy, 10.0-2*walkMoveCost)

	// A lone agent has nobody to ping.
	assert.Equal(t, 0, mb.Rows())
}

func TestRandomWalk_RestsWhenExhausted(t *testing.T) {
	ab, mb := newWalkGroup(t, []batch.AgentState{
		{AgentID: "a0", X: 10, Y: 20, Energy: 0.2},
	})

	err := RandomWalk{}.Apply(context.Background(), walkContext(1, 0, 1), ab, mb)
	require.NoError(t, err)

	x, y := ab.Position(0)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
	assert.InDelta(t, 0.2+walkRestRecovery, ab.Energy(0), 1e-9)
}

func TestRandomWalk_PingRestoresEnergy(t *testing.T) {
	ab, mb := newWalkGroup(t, []batch.AgentState{
		{AgentID: "a0", X: 10, Y: 20, Energy: 0.96},
	})
	mb.Append(batch.Message{From: "a1", To: "a0", Kind: MessageKindPing, Payload: "0"})

	// 0.96 alone is under the rest threshold; one ping pushes the
	// agent over it and it moves.
	err := RandomWalk{}.Apply(context.Background(), walkContext(2, 0, 3), ab, mb)
	require.NoError(t, err)

	x, y := ab.Position(0)
	assert.True(t, x != 10 || y != 20, "pinged agent should have moved, got (%v, %v)", x, y)

	// The consumed ping is gone.
	assert.Equal(t, 0, mb.Rows())
}

func TestRandomWalk_PingsStayInGroup(t *testing.T) {
	agents := make([]batch.AgentState, 20)
	ids := make(map[string]bool, len(agents))
	for i := range agents {
		id := string(rune('a'+i)) + "-agent"
		agents[i] = batch.AgentState{AgentID: id, X: float64(i), Y: float64(i), Energy: 10}
		ids[id] = true
	}
	ab, mb := newWalkGroup(t, agents)

	sent := 0
	for step := 1; step <= 10; step++ {
		err := RandomWalk{}.Apply(context.Background(), walkContext(step, 0, int64(step)), ab, mb)
		require.NoError(t, err)
		for _, m := range mb.Messages() {
			sent++
			assert.True(t, ids[m.From], "ping from stranger %q", m.From)
			assert.True(t, ids[m.To], "ping to stranger %q", m.To)
			assert.NotEqual(t, m.From, m.To)
			assert.Equal(t, MessageKindPing, m.Kind)
		}
	}
	// 20 agents x 10 steps at 10% ping chance. Zero would mean the
	// chance is not applied at all.
	assert.Positive(t, sent)
}

func TestRandomWalk_DeterministicForSeed(t *testing.T) {
	seedAgents := []batch.AgentState{
		{AgentID: "a0", X: 1, Y: 2, Energy: 10},
		{AgentID: "a1", X: 3, Y: 4, Energy: 10},
		{AgentID: "a2", X: 5, Y: 6, Energy: 10},
	}
	abA, mbA := newWalkGroup(t, seedAgents)
	abB, mbB := newWalkGroup(t, seedAgents)

	for step := 1; step <= 5; step++ {
		require.NoError(t, RandomWalk{}.Apply(context.Background(), walkContext(step, 0, 99), abA, mbA))
		require.NoError(t, RandomWalk{}.Apply(context.Background(), walkContext(step, 0, 99), abB, mbB))
	}

	assert.Equal(t, abA.States(), abB.States())
	assert.Equal(t, mbA.Messages(), mbB.Messages())
}

func TestNoop_LeavesGroupUntouched(t *testing.T) {
	ab, mb := newWalkGroup(t, []batch.AgentState{
		{AgentID: "a0", X: 1, Y: 2, Energy: 3},
	})
	mb.Append(batch.Message{From: "x", To: "a0", Kind: MessageKindPing, Payload: "1"})

	err := Noop{}.Apply(context.Background(), walkContext(1, 0, 1), ab, mb)
	require.NoError(t, err)

	assert.Equal(t, []batch.AgentState{{AgentID: "a0", X: 1, Y: 2, Energy: 3}}, ab.States())
	assert.Equal(t, 1, mb.Rows())
}
