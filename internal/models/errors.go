package models

import "errors"

// Ingestion errors.
var (
	// ErrMalformedRecord is returned when an upstream record has no stable identifier.
	ErrMalformedRecord = errors.New("malformed record")
)

// Job store errors.
var (
	// ErrItemNotFound is returned when no non-deleted item matches the id.
	ErrItemNotFound = errors.New("item not found")

	// ErrClaimRaceLost means the conditional claim matched zero rows. It is the
	// normal outcome for a losing worker and means "no work".
	ErrClaimRaceLost = errors.New("claim race lost")

	// ErrStaleTransition is returned when a conditional update found the item in a
	// different state than expected.
	ErrStaleTransition = errors.New("stale transition precondition")

	// ErrIllegalTransition is returned for moves outside the transition table.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrInvalidStatus is returned for status values outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid status")
)

// Generation errors.
var (
	// ErrInvalidForm is returned when a generation form is missing required input.
	ErrInvalidForm = errors.New("invalid generation form")

	// ErrDataIntegrity marks a claimed item that lacks its curated input.
	ErrDataIntegrity = errors.New("data integrity fault")

	// ErrPartialGeneration means one or more targets failed after retries.
	ErrPartialGeneration = errors.New("partial generation failure")

	// ErrUnknownTarget is returned for result keys outside the target set.
	ErrUnknownTarget = errors.New("unknown target")
)
