// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package journal

import "errors"

var (
	// ErrNotFound is returned when the requested run does not exist.
	ErrNotFound = errors.New("journal record not found")

	// ErrMissingRunID is returned when a record carries no run id.
	ErrMissingRunID = errors.New("journal record missing run id")

	// ErrMissingPath is returned when a persistent journal is opened
	// without a path.
	ErrMissingPath = errors.New("journal path is required unless in memory")
)
