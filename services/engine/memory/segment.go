// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Segment file layout:
//
//	offset 0:  magic "ASEG" (4 bytes)
//	offset 4:  persisted metaversion (8 bytes, little-endian)
//	offset 12: payload length (4 bytes, little-endian)
//	offset 16: payload
//
// The metaversion sits at a fixed offset near the start so it stays
// readable even while the payload behind it is being rewritten.

const (
	segmentMagic  = "ASEG"
	segmentSuffix = ".seg"
	headerSize    = 16

	// tmpSuffix marks in-flight flushes. Watchers skip these.
	tmpSuffix = ".tmp"
)

// Segment is a file-backed shared memory region holding one batch's
// persisted payload and metaversion.
//
// # Description
//
// Segment stands in for an OS shared-memory mapping: one file per
// batch under a shared data directory, openable by any engine
// component. Flushes are atomic (write-to-temp then rename), so a
// concurrent reader never observes a torn header, and PersistedVersion
// always reflects a complete write.
//
// # Thread Safety
//
// A Segment value itself holds only the id and path and is safe to
// share. Concurrent Flush calls from separate proxies are prevented by
// the batch locking layer above; concurrent PersistedVersion/Load with
// one writer are safe thanks to the atomic rename.
type Segment struct {
	id   string
	path string
}

// CreateSegment creates a new segment file in dir with the given
// payload and a zero metaversion.
//
// # Inputs
//
//   - dir: Data directory. Created with 0750 if missing.
//   - id: Segment id. Empty means generate a new UUID.
//   - payload: Initial payload. May be empty.
//
// # Outputs
//
//   - *Segment: Handle on the created segment.
//   - error: Non-nil if the directory or file could not be written.
func CreateSegment(dir, id string, payload []byte) (*Segment, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}
	s := &Segment{
		id:   id,
		path: filepath.Join(dir, id+segmentSuffix),
	}
	if err := s.write(payload, Metaversion{}); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSegment opens an existing segment file and validates its header.
//
// # Inputs
//
//   - dir: Data directory.
//   - id: Segment id.
//
// # Outputs
//
//   - *Segment: Handle on the segment.
//   - error: os.ErrNotExist wrapped if missing, ErrBadMagic or
//     ErrCorruptSegment if the header doesn't parse.
func OpenSegment(dir, id string) (*Segment, error) {
	s := &Segment{
		id:   id,
		path: filepath.Join(dir, id+segmentSuffix),
	}
	if _, err := s.PersistedVersion(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the segment id.
func (s *Segment) ID() string { return s.id }

// Path returns the segment file path.
func (s *Segment) Path() string { return s.path }

// PersistedVersion re-reads the authoritative metaversion from the
// segment header.
//
// This is the check other components race against: a writer that
// flushed out-of-band advanced this version, and readers holding an
// older loaded version must reload before trusting their cached data.
//
// # Outputs
//
//   - Metaversion: The persisted version.
//   - error: Non-nil on a missing file or malformed header.
func (s *Segment) PersistedVersion() (Metaversion, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Metaversion{}, fmt.Errorf("open segment %s: %w", s.id, err)
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return Metaversion{}, fmt.Errorf("segment %s header: %w", s.id, ErrCorruptSegment)
	}
	if string(header[0:4]) != segmentMagic {
		return Metaversion{}, fmt.Errorf("segment %s: %w", s.id, ErrBadMagic)
	}
	version, err := DecodeMetaversion(header[4:12])
	if err != nil {
		return Metaversion{}, fmt.Errorf("segment %s: %w", s.id, err)
	}
	return version, nil
}

// Load reads the whole segment: payload plus persisted version.
//
// # Outputs
//
//   - []byte: The payload (owned by the caller).
//   - Metaversion: The version the payload was persisted under.
//   - error: Non-nil on a missing file or malformed contents.
func (s *Segment) Load() ([]byte, Metaversion, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, Metaversion{}, fmt.Errorf("open segment %s: %w", s.id, err)
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, Metaversion{}, fmt.Errorf("segment %s header: %w", s.id, ErrCorruptSegment)
	}
	if string(header[0:4]) != segmentMagic {
		return nil, Metaversion{}, fmt.Errorf("segment %s: %w", s.id, ErrBadMagic)
	}
	version, err := DecodeMetaversion(header[4:12])
	if err != nil {
		return nil, Metaversion{}, fmt.Errorf("segment %s: %w", s.id, err)
	}

	length := binary.LittleEndian.Uint32(header[12:16])
	payload := make([]byte, length)
	if _, err := io.ReadFull(f, payload); err != nil {
		return nil, Metaversion{}, fmt.Errorf("segment %s payload: %w", s.id, ErrCorruptSegment)
	}
	return payload, version, nil
}

// Flush persists a new payload under the given version.
//
// The persisted header is re-read first: if another writer already
// persisted a newer version, the flush is refused with ErrStaleFlush
// and the caller must reload. The write itself goes to a temp file
// that is renamed into place, so concurrent readers never see a
// partial segment.
//
// # Inputs
//
//   - payload: New payload bytes.
//   - version: The version to persist. Must not be older than the
//     currently persisted version.
//
// # Outputs
//
//   - error: ErrStaleFlush on a lost write race, otherwise any I/O
//     failure wrapped.
func (s *Segment) Flush(payload []byte, version Metaversion) error {
	persisted, err := s.PersistedVersion()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err == nil && persisted.NewerThan(version) {
		return fmt.Errorf("segment %s persisted %s flushed %s: %w",
			s.id, persisted, version, ErrStaleFlush)
	}
	return s.write(payload, version)
}

// Remove deletes the segment file.
func (s *Segment) Remove() error {
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("remove segment %s: %w", s.id, err)
	}
	return nil
}

// write performs the atomic temp-then-rename write.
func (s *Segment) write(payload []byte, version Metaversion) error {
	var header [headerSize]byte
	copy(header[0:4], segmentMagic)
	encoded := version.Encode()
	copy(header[4:12], encoded[:])
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	tmp := s.path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("create segment temp %s: %w", s.id, err)
	}
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write segment header %s: %w", s.id, err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write segment payload %s: %w", s.id, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync segment %s: %w", s.id, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close segment temp %s: %w", s.id, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish segment %s: %w", s.id, err)
	}
	return nil
}
