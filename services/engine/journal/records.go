// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Run statuses recorded in the journal.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusAborted   = "aborted"
)

// RunRecord is the per-run journal entry. It is written when the run
// starts and overwritten when it finishes.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Steps      int       `json:"steps"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// StepRecord is the per-step journal entry.
type StepRecord struct {
	RunID     string        `json:"run_id"`
	Step      int           `json:"step"`
	Agents    int           `json:"agents"`
	Groups    int           `json:"groups"`
	Tasks     int           `json:"tasks"`
	Retries   int           `json:"retries"`
	Duration  time.Duration `json:"duration_ns"`
	StartedAt time.Time     `json:"started_at"`
}

func runKey(runID string) []byte {
	return []byte("run/" + runID)
}

// stepKey zero-pads the step so lexicographic key order is step order.
func stepKey(runID string, step int) []byte {
	return []byte(fmt.Sprintf("step/%s/%010d", runID, step))
}

func stepPrefix(runID string) []byte {
	return []byte("step/" + runID + "/")
}

// PutRun writes or overwrites the run's journal entry.
func (j *Journal) PutRun(ctx context.Context, rec RunRecord) error {
	if rec.RunID == "" {
		return ErrMissingRunID
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put run %s: %w", rec.RunID, err)
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", rec.RunID, err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(rec.RunID), val)
	})
	if err != nil {
		return fmt.Errorf("put run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun reads one run's journal entry.
func (j *Journal) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	if runID == "" {
		return rec, ErrMissingRunID
	}
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("get run %s: %w", runID, err)
	}

	err := j.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("get run %s: %w", runID, err)
	}
	return rec, nil
}

// Runs lists run entries in key order. A non-positive limit returns
// all of them.
func (j *Journal) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	var out []RunRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var rec RunRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// AppendStep writes one step's journal entry.
func (j *Journal) AppendStep(ctx context.Context, rec StepRecord) error {
	if rec.RunID == "" {
		return ErrMissingRunID
	}
	if rec.Step < 0 {
		return fmt.Errorf("append step %d of run %s: negative step", rec.Step, rec.RunID)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append step %d of run %s: %w", rec.Step, rec.RunID, err)
	}

	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode step %d of run %s: %w", rec.Step, rec.RunID, err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stepKey(rec.RunID, rec.Step), val)
	})
	if err != nil {
		return fmt.Errorf("append step %d of run %s: %w", rec.Step, rec.RunID, err)
	}
	return nil
}

// Steps lists a run's step entries in step order. A non-positive limit
// returns all of them.
func (j *Journal) Steps(ctx context.Context, runID string, limit int) ([]StepRecord, error) {
	if runID == "" {
		return nil, ErrMissingRunID
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list steps of run %s: %w", runID, err)
	}

	var out []StepRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = stepPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var rec StepRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list steps of run %s: %w", runID, err)
	}
	return out, nil
}
