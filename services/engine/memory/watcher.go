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
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler is called with the ids of segments that changed on
// disk, after debouncing. Each id appears at most once per call.
type ChangeHandler func(segmentIDs []string)

// Watcher watches a segment directory for out-of-band flushes.
//
// # Description
//
// Another process (a language runner, an external tool) can flush a
// segment without going through this engine's locks. Watcher surfaces
// those flushes so the step driver knows which batches need a
// MaybeReload before the next step touches them.
//
// Write bursts are debounced: changes are collected into a buffer, and
// when the debounce window expires without new events the deduplicated
// segment ids are handed to the handler in one call.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single
// goroutine.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before
	// triggering. Default: 100ms
	DebounceWindow time.Duration

	// BufferSize is the size of the change buffer channel.
	// Default: 256
	BufferSize int
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 100 * time.Millisecond,
		BufferSize:     256,
	}
}

// NewWatcher creates a watcher over the given segment directory.
//
// # Inputs
//
//   - dir: The segment data directory.
//   - handler: Function called with debounced segment ids.
//   - logger: Structured logger. Nil uses slog.Default().
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *Watcher: Ready-to-use watcher (call Start to begin watching).
//   - error: Non-nil if the underlying watcher could not be created.
//
// # Example
//
//	watcher, err := memory.NewWatcher(dataDir, func(ids []string) {
//	    engine.MarkDirty(ids)
//	}, logger, nil)
//	if err != nil {
//	    return err
//	}
//	defer watcher.Stop()
//	if err := watcher.Start(ctx); err != nil {
//	    return err
//	}
func NewWatcher(dir string, handler ChangeHandler, logger *slog.Logger, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		watcher:  fw,
		handler:  handler,
		debounce: opts.DebounceWindow,
		logger:   logger,
		changes:  make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the segment directory.
//
// Spawns two goroutines: an event processor converting fsnotify events
// to segment ids, and a debouncer batching ids for the handler. Both
// exit when Stop() is called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil // Already watching
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// processEvents converts fsnotify events to segment ids and sends them
// to the debounce channel.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			id, relevant := segmentIDFromPath(event.Name)
			if !relevant {
				continue
			}
			// Flushes land as a rename, which fsnotify reports as a
			// Create for the target name. Direct writes count too.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			select {
			case w.changes <- id:
			default:
				// Buffer full; the debouncer will pick the id up from
				// a later event in the same burst.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("segment watcher error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches segment ids and calls the handler after the
// debounce window.
func (w *Watcher) debounceLoop(ctx context.Context) {
	seen := make(map[string]struct{})
	var order []string
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(order) > 0 && w.handler != nil {
			ids := make([]string, len(order))
			copy(ids, order)
			w.handler(ids)
		}
		order = order[:0]
		clear(seen)
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case id := <-w.changes:
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				order = append(order, id)
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}

// segmentIDFromPath extracts the segment id from an event path.
// In-flight temp files and foreign files are ignored.
func segmentIDFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(base, tmpSuffix) {
		return "", false
	}
	if !strings.HasSuffix(base, segmentSuffix) {
		return "", false
	}
	return strings.TrimSuffix(base, segmentSuffix), true
}
