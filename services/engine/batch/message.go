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

// Message is one agent-to-agent message row.
type Message struct {
	// From is the sending agent's id.
	From string `json:"from"`

	// To is the receiving agent's id.
	To string `json:"to"`

	// Kind tags the message for dispatch.
	Kind string `json:"kind"`

	// Payload is an opaque, behavior-defined body.
	Payload string `json:"payload"`
}

// messageColumns is the columnar payload persisted in the segment.
type messageColumns struct {
	From    []string `json:"from"`
	To      []string `json:"to"`
	Kind    []string `json:"kind"`
	Payload []string `json:"payload"`
}

// MessageBatch is one group's message outbox, cached in memory and
// persisted in a shared segment.
//
// The batch for group G holds the messages G's agents sent during the
// current step. The step driver drains it into next step's context.
//
// # Thread Safety
//
// MessageBatch is NOT synchronized; access goes through a BatchLock
// proxy like every other batch.
type MessageBatch struct {
	id      string
	segment *memory.Segment
	loaded  memory.Metaversion
	cols    messageColumns
}

// NewMessageBatch creates an empty message batch persisted as a fresh
// segment in dir.
func NewMessageBatch(dir string) (*MessageBatch, error) {
	b := &MessageBatch{id: uuid.NewString()}
	payload, err := json.Marshal(b.cols)
	if err != nil {
		return nil, fmt.Errorf("encode message batch: %w", err)
	}
	seg, err := memory.CreateSegment(dir, b.id, payload)
	if err != nil {
		return nil, err
	}
	b.segment = seg
	return b, nil
}

// OpenMessageBatch opens an existing message segment by id.
func OpenMessageBatch(dir, id string) (*MessageBatch, error) {
	seg, err := memory.OpenSegment(dir, id)
	if err != nil {
		return nil, err
	}
	b := &MessageBatch{id: id, segment: seg}
	if err := b.reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// BatchID returns the batch's stable identity.
func (b *MessageBatch) BatchID() string { return b.id }

// Rows returns the number of messages in the cached views.
func (b *MessageBatch) Rows() int { return len(b.cols.From) }

// LoadedVersion returns the version of the cached views.
func (b *MessageBatch) LoadedVersion() memory.Metaversion { return b.loaded }

// PersistedVersion re-reads the authoritative version from the segment.
func (b *MessageBatch) PersistedVersion() (memory.Metaversion, error) {
	return b.segment.PersistedVersion()
}

// MaybeReload refreshes the cached views if the persisted version is
// newer than the loaded one.
func (b *MessageBatch) MaybeReload() error {
	persisted, err := b.segment.PersistedVersion()
	if err != nil {
		return err
	}
	if !b.loaded.OlderThan(persisted) {
		return nil
	}
	return b.reload()
}

// Flush persists the cached views. See AgentBatch.Flush for the
// version-bump rules.
func (b *MessageBatch) Flush(change memory.BufferChange) error {
	if change.Resized() {
		b.loaded.Increment()
	} else {
		b.loaded.IncrementBatch()
	}
	payload, err := json.Marshal(b.cols)
	if err != nil {
		return fmt.Errorf("encode message batch %s: %w", b.id, err)
	}
	return b.segment.Flush(payload, b.loaded)
}

// reload replaces the cached views with the persisted payload.
func (b *MessageBatch) reload() error {
	payload, version, err := b.segment.Load()
	if err != nil {
		return err
	}
	var cols messageColumns
	if err := json.Unmarshal(payload, &cols); err != nil {
		return fmt.Errorf("decode message batch %s: %w", b.id, err)
	}
	b.cols = cols
	b.loaded = version
	return nil
}

// RemoveSegment deletes the batch's backing segment.
func (b *MessageBatch) RemoveSegment() error {
	return b.segment.Remove()
}

// ---------------------------------------------------------------------------
// Row access (callers hold the appropriate proxy)
// ---------------------------------------------------------------------------

// Append adds a message to the outbox. Requires a write proxy.
func (b *MessageBatch) Append(m Message) {
	b.cols.From = append(b.cols.From, m.From)
	b.cols.To = append(b.cols.To, m.To)
	b.cols.Kind = append(b.cols.Kind, m.Kind)
	b.cols.Payload = append(b.cols.Payload, m.Payload)
}

// Message returns the message at row i.
func (b *MessageBatch) Message(i int) Message {
	return Message{
		From:    b.cols.From[i],
		To:      b.cols.To[i],
		Kind:    b.cols.Kind[i],
		Payload: b.cols.Payload[i],
	}
}

// Messages snapshots all rows. Requires at least a read proxy.
func (b *MessageBatch) Messages() []Message {
	out := make([]Message, b.Rows())
	for i := range out {
		out[i] = b.Message(i)
	}
	return out
}

// Reset clears the outbox for the next step. Requires a write proxy.
func (b *MessageBatch) Reset() {
	b.cols.From = b.cols.From[:0]
	b.cols.To = b.cols.To[:0]
	b.cols.Kind = b.cols.Kind[:0]
	b.cols.Payload = b.cols.Payload[:0]
}
