// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package journal persists run and step records in an embedded
// BadgerDB so a run's history survives the process and the monitor can
// serve it.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the journal's BadgerDB instance.
type Config struct {
	// Path is the directory for the database files. Required unless
	// InMemory is true.
	Path string

	// InMemory keeps the journal off disk. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's own log output. If nil, that output
	// is discarded.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC. Ignored in memory.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before
	// GC rewrites a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns the production configuration: synchronous
// writes, GC every five minutes.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns the testing configuration: no disk I/O, no
// GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Journal is the run/step history store.
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger

	gcStop chan struct{}
	gcDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens the journal.
//
// # Description
//
// Opens a BadgerDB at the configured path, creating the directory if
// needed, or in memory when configured so. Starts a periodic value log
// GC goroutine for persistent journals with a GC interval.
//
// # Outputs
//
//   - *Journal: the opened journal. Caller must Close it.
//   - error: non-nil if the configuration is invalid or the database
//     cannot be opened.
func Open(cfg Config) (*Journal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrMissingPath
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		db:     db,
		logger: logger.With(slog.String("component", "journal")),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		j.gcStop = make(chan struct{})
		j.gcDone = make(chan struct{})
		go j.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return j, nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		if j.gcStop != nil {
			close(j.gcStop)
			<-j.gcDone
		}
		j.closeErr = j.db.Close()
	})
	return j.closeErr
}

func (j *Journal) runGC(interval time.Duration, ratio float64) {
	defer close(j.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.gcStop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing needed collecting.
			err := j.db.RunValueLogGC(ratio)
			switch {
			case err == nil:
				j.logger.Debug("journal value log GC completed")
			case err == badger.ErrNoRewrite:
			default:
				j.logger.Warn("journal value log GC failed",
					slog.String("error", err.Error()))
			}
		}
	}
}
