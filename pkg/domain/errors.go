package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by Start when no document loaded successfully.
	ErrNotLoaded = errors.New("no successfully loaded state chart")

	// ErrNotRunning is returned when an event is fired at a stopped machine.
	ErrNotRunning = errors.New("state machine is not running")

	// ErrFatal marks unrecoverable orchestrator failures.
	ErrFatal = errors.New("fatal orchestrator error")

	// ErrSkillNotFound is returned by the registry for unknown skill names.
	ErrSkillNotFound = errors.New("skill not found")

	// ErrUnresolvedInclude is returned when an include key has no mapping.
	ErrUnresolvedInclude = errors.New("unresolved include")

	// ErrIncludeCycle is returned when a fragment includes itself transitively.
	ErrIncludeCycle = errors.New("include cycle")

	// ErrDuplicateState is returned when two states share an identifier.
	ErrDuplicateState = errors.New("duplicate state id")

	// ErrParentCycle is returned when a parent chain does not reach the root.
	ErrParentCycle = errors.New("parent cycle")

	// ErrInitFailed is returned by a runner whose skill refused to initialize.
	ErrInitFailed = errors.New("skill init failed")

	// ErrUnresponsive is returned when a runner ignores a forced end.
	ErrUnresponsive = errors.New("skill runner unresponsive")

	// ErrSlotEmpty is returned when reading a memory slot that holds no value.
	ErrSlotEmpty = errors.New("memory slot is empty")
)

// LoadingError is a fatal assembly or load failure.
type LoadingError struct {
	Op  string // "include", "parse", "duplicate", "datamodel", ...
	Key string // include key, state id or variable name
	Err error
}

func (e *LoadingError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("loading %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("loading %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *LoadingError) Unwrap() error {
	return e.Err
}
