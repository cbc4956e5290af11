// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"github.com/AleutianAI/AleutianSwarm/services/engine/batch"
)

// MessageKindPing is the kind tag agents use for greetings.
const MessageKindPing = "ping"

// StepContext carries the per-group facts a behavior may depend on.
//
// Rand is seeded from the run seed, the step number, and the group
// index. A behavior that draws randomness only from it reproduces
// exactly on replay, regardless of how many workers carried the run.
type StepContext struct {
	RunID string
	Step  int
	Group int
	Rand  *rand.Rand
}

// Behavior is one step of agent logic over a single group.
//
// # Description
//
// Apply runs under the group's write lease: it may mutate agents and
// messages freely but must not retain either past the call. The
// message batch holds what groupmates sent during the previous step; a
// behavior that consumes them should Reset the batch before appending
// its own. Behaviors run on worker goroutines, so implementations must
// not share mutable state across groups.
type Behavior interface {
	// Name returns the registry key, a lowercase identifier.
	Name() string

	// Apply advances one group by one step.
	Apply(ctx context.Context, sc StepContext, agents *batch.AgentBatch, messages *batch.MessageBatch) error
}

var (
	behaviorMu sync.RWMutex
	behaviors  = make(map[string]Behavior)
)

// RegisterBehavior makes a behavior available by name. It panics when
// the behavior is nil or the name is already taken; registration
// happens at init time, where an error return would only be ignored.
func RegisterBehavior(b Behavior) {
	if b == nil {
		panic("sim: RegisterBehavior with nil behavior")
	}
	behaviorMu.Lock()
	defer behaviorMu.Unlock()
	name := b.Name()
	if _, dup := behaviors[name]; dup {
		panic("sim: RegisterBehavior called twice for " + name)
	}
	behaviors[name] = b
}

// LookupBehavior returns the behavior registered under name.
func LookupBehavior(name string) (Behavior, error) {
	behaviorMu.RLock()
	defer behaviorMu.RUnlock()
	b, ok := behaviors[name]
	if !ok {
		return nil, fmt.Errorf("behavior %q: %w", name, ErrUnknownBehavior)
	}
	return b, nil
}

// Behaviors returns the registered behavior names, sorted.
func Behaviors() []string {
	behaviorMu.RLock()
	defer behaviorMu.RUnlock()
	names := make([]string, 0, len(behaviors))
	for name := range behaviors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterBehavior(RandomWalk{})
	RegisterBehavior(Noop{})
}

// Movement and energy tuning for RandomWalk.
const (
	walkStepScale     = 1.0
	walkMoveCost      = 0.1
	walkRestThreshold = 1.0
	walkRestRecovery  = 0.5
	walkPingChance    = 0.1
	walkPingBonus     = 0.05
)

// RandomWalk drifts agents around the plane.
//
// Each step an agent spends energy proportional to the distance it
// covers, recovers a little for every ping received during the
// previous step, and occasionally pings a random groupmate. Agents too
// tired to move rest and recover instead.
type RandomWalk struct{}

// Name returns "random_walk".
func (RandomWalk) Name() string { return "random_walk" }

// Apply advances one group of walkers.
func (RandomWalk) Apply(ctx context.Context, sc StepContext, agents *batch.AgentBatch, messages *batch.MessageBatch) error {
	// Last step's pings, tallied per recipient.
	pings := make(map[string]int)
	for _, m := range messages.Messages() {
		if m.Kind == MessageKindPing {
			pings[m.To]++
		}
	}
	messages.Reset()

	for i := 0; i < agents.Rows(); i++ {
		id := agents.AgentID(i)
		energy := agents.Energy(i) + walkPingBonus*float64(pings[id])

		if energy < walkRestThreshold {
			agents.SetEnergy(i, energy+walkRestRecovery)
			continue
		}

		dx := (sc.Rand.Float64()*2 - 1) * walkStepScale
		dy := (sc.Rand.Float64()*2 - 1) * walkStepScale
		x, y := agents.Position(i)
		agents.SetPosition(i, x+dx, y+dy)
		agents.SetEnergy(i, energy-walkMoveCost*(math.Abs(dx)+math.Abs(dy)))

		if agents.Rows() > 1 && sc.Rand.Float64() < walkPingChance {
			to := sc.Rand.Intn(agents.Rows() - 1)
			if to >= i {
				to++
			}
			messages.Append(batch.Message{
				From:    id,
				To:      agents.AgentID(to),
				Kind:    MessageKindPing,
				Payload: strconv.Itoa(sc.Step),
			})
		}
	}
	return nil
}

// Noop advances nothing. Useful for measuring engine overhead.
type Noop struct{}

// Name returns "noop".
func (Noop) Name() string { return "noop" }

// Apply leaves the group untouched.
func (Noop) Apply(ctx context.Context, sc StepContext, agents *batch.AgentBatch, messages *batch.MessageBatch) error {
	return nil
}
