// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for identifiers
// that cross a trust boundary.
//
// Run identifiers and topic prefixes arrive as URL parameters and end up
// in journal key lookups and structured log fields. Validating them here
// keeps malformed or hostile input out of storage keys and log output.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// runIDPattern matches valid run identifiers.
// Allows: lowercase letters, digits, hyphens (UUID strings and short names)
// Max length: 64 characters
var runIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,63}$`)

// ValidateRunID validates a run identifier before it reaches a journal
// key lookup.
//
// Valid run ids:
//   - 1-64 characters
//   - Lowercase letters a-z
//   - Digits 0-9
//   - Hyphens (-) as in UUID strings
//
// Returns an error if the run id is invalid.
//
// Example:
//
//	if err := validation.ValidateRunID(runID); err != nil {
//	    return nil, fmt.Errorf("invalid run id: %w", err)
//	}
//	// Safe to use in a journal key
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id format: %q (must be 1-64 lowercase alphanumeric chars or hyphens)", id)
	}

	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the lowercase run id if valid, or an error if invalid.
//
// Use this when accepting a run id from a flag or form field:
//
//	safeID, err := validation.SanitizeRunID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is lowercase and validated
func SanitizeRunID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateRunID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// topicPrefixPattern matches event topic prefixes: lowercase dotted
// segments such as "run.", "step.completed" or "task".
var topicPrefixPattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

// ValidateTopicPrefix validates an event topic prefix for a stream
// subscription. The empty prefix is valid and matches every topic.
func ValidateTopicPrefix(prefix string) error {
	if prefix == "" {
		return nil
	}

	if !topicPrefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid topic prefix: %q (must be lowercase segments separated by dots)", prefix)
	}

	return nil
}
