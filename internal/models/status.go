package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the lifecycle state of an Item.
type Status int

const (
	StatusNew Status = iota
	StatusQueuedForGeneration
	StatusGenerating
	StatusCompleted
	StatusFinished
)

var statusNames = map[Status]string{
	StatusNew:                 "new",
	StatusQueuedForGeneration: "queued_for_generation",
	StatusGenerating:          "generating",
	StatusCompleted:           "completed",
	StatusFinished:            "finished",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus accepts either the numeric value or the name of a status.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if s := Status(n); s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	for s, name := range statusNames {
		if strings.EqualFold(name, raw) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// AllStatuses lists states in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusNew,
		StatusQueuedForGeneration,
		StatusGenerating,
		StatusCompleted,
		StatusFinished,
	}
}

// transitions is the closed set of legal status moves. Finished is reachable from
// every other state and is terminal.
var transitions = map[Status][]Status{
	StatusNew:                 {StatusQueuedForGeneration, StatusFinished},
	StatusQueuedForGeneration: {StatusGenerating, StatusNew, StatusFinished},
	StatusGenerating:          {StatusCompleted, StatusQueuedForGeneration, StatusFinished},
	StatusCompleted:           {StatusFinished},
	StatusFinished:            {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesFor returns every state that may legally move to the given state.
func SourcesFor(to Status) []Status {
	var from []Status
	for _, s := range AllStatuses() {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// ValidateTransition returns ErrIllegalTransition when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
