// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package memory

import (
	"errors"
	"testing"
)

func TestNewMetaversion(t *testing.T) {
	tests := []struct {
		name    string
		memory  uint32
		batch   uint32
		wantErr error
	}{
		{name: "zero", memory: 0, batch: 0},
		{name: "equal", memory: 3, batch: 3},
		{name: "batch ahead", memory: 2, batch: 7},
		{name: "batch behind", memory: 5, batch: 4, wantErr: ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewMetaversion(tt.memory, tt.batch)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewMetaversion() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewMetaversion() error = %v", err)
			}
			if got.Memory() != tt.memory || got.Batch() != tt.batch {
				t.Errorf("NewMetaversion() = %v, want memory=%d batch=%d", got, tt.memory, tt.batch)
			}
		})
	}
}

func TestMetaversion_Encode_ByteOrder(t *testing.T) {
	v, err := NewMetaversion(1, 2)
	if err != nil {
		t.Fatalf("NewMetaversion() error = %v", err)
	}

	got := v.Encode()
	want := [8]byte{1, 0, 0, 0, 2, 0, 0, 0} // memory u32 LE, then batch u32 LE
	if got != want {
		t.Errorf("Encode() = %v, want %v", got, want)
	}
}

func TestDecodeMetaversion(t *testing.T) {
	tests := []struct {
		name       string
		buf        []byte
		wantMemory uint32
		wantBatch  uint32
		wantErr    error
	}{
		{name: "zero", buf: make([]byte, 8)},
		{name: "values", buf: []byte{3, 0, 0, 0, 9, 0, 0, 0}, wantMemory: 3, wantBatch: 9},
		{name: "extra bytes ignored", buf: []byte{1, 0, 0, 0, 1, 0, 0, 0, 0xff, 0xff}, wantMemory: 1, wantBatch: 1},
		{name: "short", buf: []byte{1, 2, 3}, wantErr: ErrShortBuffer},
		{name: "batch behind memory", buf: []byte{9, 0, 0, 0, 3, 0, 0, 0}, wantErr: ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMetaversion(tt.buf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeMetaversion() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeMetaversion() error = %v", err)
			}
			if got.Memory() != tt.wantMemory || got.Batch() != tt.wantBatch {
				t.Errorf("DecodeMetaversion() = %v, want memory=%d batch=%d", got, tt.wantMemory, tt.wantBatch)
			}
		})
	}
}

func TestMetaversion_Ordering(t *testing.T) {
	older, _ := NewMetaversion(1, 1)
	newer, _ := NewMetaversion(1, 2)

	if !older.OlderThan(newer) {
		t.Error("older.OlderThan(newer) = false, want true")
	}
	if older.NewerThan(newer) {
		t.Error("older.NewerThan(newer) = true, want false")
	}
	if !newer.NewerThan(older) {
		t.Error("newer.NewerThan(older) = false, want true")
	}
	if newer.OlderThan(newer) {
		t.Error("version should not be older than itself")
	}
	if newer.NewerThan(newer) {
		t.Error("version should not be newer than itself")
	}
}

func TestMetaversion_MaybeUpdate(t *testing.T) {
	t.Run("advances to newer", func(t *testing.T) {
		loaded, _ := NewMetaversion(0, 0)
		persisted, _ := NewMetaversion(1, 3)

		if !loaded.MaybeUpdate(persisted) {
			t.Fatal("MaybeUpdate() = false, want true")
		}
		if loaded.Memory() != 1 || loaded.Batch() != 3 {
			t.Errorf("after MaybeUpdate: %v, want memory=1 batch=3", loaded)
		}
	})

	t.Run("ignores older", func(t *testing.T) {
		loaded, _ := NewMetaversion(1, 3)
		persisted, _ := NewMetaversion(0, 0)

		if loaded.MaybeUpdate(persisted) {
			t.Fatal("MaybeUpdate() = true, want false")
		}
		if loaded.Memory() != 1 || loaded.Batch() != 3 {
			t.Errorf("after MaybeUpdate: %v, want unchanged memory=1 batch=3", loaded)
		}
	})

	t.Run("ignores equal", func(t *testing.T) {
		loaded, _ := NewMetaversion(2, 2)
		same, _ := NewMetaversion(2, 2)

		if loaded.MaybeUpdate(same) {
			t.Error("MaybeUpdate() = true for equal versions, want false")
		}
	})
}

func TestMetaversion_Increment(t *testing.T) {
	var v Metaversion

	v.Increment()
	if v.Memory() != 1 || v.Batch() != 1 {
		t.Errorf("after Increment: %v, want memory=1 batch=1", v)
	}

	v.IncrementBatch()
	if v.Memory() != 1 || v.Batch() != 2 {
		t.Errorf("after IncrementBatch: %v, want memory=1 batch=2", v)
	}
}

func TestMetaversion_IncrementWith(t *testing.T) {
	tests := []struct {
		name       string
		change     BufferChange
		wantMemory uint32
		wantBatch  uint32
	}{
		{name: "resized bumps both", change: NewBufferChange(true, true), wantMemory: 1, wantBatch: 1},
		{name: "resized alone bumps both", change: NewBufferChange(true, false), wantMemory: 1, wantBatch: 1},
		{name: "shifted bumps batch", change: NewBufferChange(false, true), wantMemory: 0, wantBatch: 1},
		{name: "unchanged bumps nothing", change: NewBufferChange(false, false), wantMemory: 0, wantBatch: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Metaversion
			v.IncrementWith(tt.change)
			if v.Memory() != tt.wantMemory || v.Batch() != tt.wantBatch {
				t.Errorf("IncrementWith(%+v): %v, want memory=%d batch=%d",
					tt.change, v, tt.wantMemory, tt.wantBatch)
			}
		})
	}
}

func TestMetaversion_String(t *testing.T) {
	v, _ := NewMetaversion(1, 2)
	if got := v.String(); got != "memory=1 batch=2" {
		t.Errorf("String() = %q", got)
	}
}
