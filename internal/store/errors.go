package store

import "errors"

// Sentinel errors shared by every snapshot store implementation.
var (
	// ErrNotFound is returned when an instance does not exist.
	ErrNotFound = errors.New("instance not found")

	// ErrInstanceExists is returned by CreateInstance for a taken id.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrSeqConflict is returned by Commit when the instance's committed seq
	// is not the one the caller cycled from.
	ErrSeqConflict = errors.New("seq conflict")
)
