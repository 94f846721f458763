package model

import (
	"errors"
)

var (
	// ErrGeneration marks an unreadable word list, fatal before probing starts.
	ErrGeneration = errors.New("candidate generation failed")
	// ErrPersistence marks a failed store write. The run must stop rather
	// than keep probing with un-persisted outcomes.
	ErrPersistence = errors.New("persisting outcome failed")
)
