package models

import "errors"

// Sentinel errors used across all layers.
var (
	// ErrNoContactInfo is returned when neither email nor phone number is supplied.
	ErrNoContactInfo = errors.New("either email or phoneNumber must be provided")

	// ErrInconsistentState signals stored link-groups that break the
	// one-primary-per-group invariant, or a consolidation over nothing.
	ErrInconsistentState = errors.New("inconsistent contact state")

	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
