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
	"errors"
	"fmt"
)

// Sentinel errors for the batch package.
var (
	// ErrProxySharedLock indicates a shared acquisition failed because
	// a writer holds the batch. Recoverable: retry after the writer
	// releases.
	ErrProxySharedLock = errors.New("failed to acquire shared batch lock")

	// ErrProxyExclusiveLock indicates an exclusive acquisition failed
	// because readers or a writer hold the batch. Recoverable: retry
	// after the holders release.
	ErrProxyExclusiveLock = errors.New("failed to acquire exclusive batch lock")
)

// LockError reports a failed lock acquisition with the identity of the
// batch that was contended.
//
// Use errors.Is with ErrProxySharedLock or ErrProxyExclusiveLock to
// classify, and errors.As with *LockError to recover the batch id.
type LockError struct {
	// BatchID identifies the contended batch.
	BatchID string

	// Err is the underlying sentinel (ErrProxySharedLock or
	// ErrProxyExclusiveLock).
	Err error
}

// Error implements the error interface.
func (e *LockError) Error() string {
	return fmt.Sprintf("batch %s: %v", e.BatchID, e.Err)
}

// Unwrap returns the underlying sentinel error.
func (e *LockError) Unwrap() error {
	return e.Err
}
