package models

import "errors"

var (
	// ErrInvalidIndex is returned when a node, edge or hyperedge id is out of range.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrCapacityExceeded is returned when node, edge or hyperedge storage is full.
	// The caller may grow the storage and retry.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidHyperedge is returned for an arity out of bounds or duplicate participants.
	ErrInvalidHyperedge = errors.New("invalid hyperedge")

	// ErrFormatMismatch is returned when a persisted topology was written with
	// different dimension, capacity or precision constants.
	ErrFormatMismatch = errors.New("format mismatch")
)
