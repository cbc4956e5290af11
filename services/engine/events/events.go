// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import "time"

// Run and step event topics.
const (
	TopicRunStarted    = "run.started"
	TopicRunFinished   = "run.finished"
	TopicStepCompleted = "step.completed"
	TopicStepFailed    = "step.failed"
	TopicTaskResolved  = "task.resolved"
)

// RunStartedEvent is published once when a run begins.
type RunStartedEvent struct {
	RunID  string `json:"run_id"`
	Steps  int    `json:"steps"`
	Agents int    `json:"agents"`
	Groups int    `json:"groups"`
}

// RunFinishedEvent is published once when a run ends, cleanly or not.
type RunFinishedEvent struct {
	RunID    string        `json:"run_id"`
	StepsRun int           `json:"steps_run"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// StepCompletedEvent is published after each successful step.
type StepCompletedEvent struct {
	RunID    string        `json:"run_id"`
	Step     int           `json:"step"`
	Agents   int           `json:"agents"`
	Tasks    int           `json:"tasks"`
	Duration time.Duration `json:"duration_ns"`
}

// StepFailedEvent is published when a step aborts the run.
type StepFailedEvent struct {
	RunID  string `json:"run_id"`
	Step   int    `json:"step"`
	Reason string `json:"reason"`
}

// TaskResolvedEvent is published for every task the step driver
// resolves.
type TaskResolvedEvent struct {
	RunID  string `json:"run_id"`
	Step   int    `json:"step"`
	TaskID string `json:"task_id"`
	Worker int    `json:"worker"`
	State  string `json:"state"`
}
