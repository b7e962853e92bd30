package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventStateEnter EventType = "state_enter"
	EventStateExit  EventType = "state_exit"
	EventTransition EventType = "transition"
	EventSkillDone  EventType = "skill_done"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// StateEvent represents entry into or exit from a state.
type StateEvent struct {
	EventBase
	StateID string    `json:"state_id"`
	Kind    StateKind `json:"kind"`
}

// TransitionEvent represents a fired transition.
type TransitionEvent struct {
	EventBase
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Event string `json:"event"`
}

// SkillEvent represents the terminal outcome of a skill run.
type SkillEvent struct {
	EventBase
	StateID  string        `json:"state_id"`
	Skill    string        `json:"skill"`
	RunnerID string        `json:"runner_id"`
	Token    string        `json:"token"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStateEnter func(context.Context, *StateEvent)
	OnStateExit  func(context.Context, *StateEvent)
	OnTransition func(context.Context, *TransitionEvent)
	OnSkillDone  func(context.Context, *SkillEvent)
}

// StatusReport is the periodic heartbeat payload.
type StatusReport struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    MachineStatus `json:"status"`
	Active    []string      `json:"active"`
}

// StateChange is pushed whenever the set of active states changes.
type StateChange struct {
	Timestamp time.Time `json:"timestamp"`
	Active    []string  `json:"active"`
	Possible  []string  `json:"possible"`
}

// ExceptionEvent is a skill execution failure caught by a runner.
type ExceptionEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	StateID   string    `json:"state_id"`
	Skill     string    `json:"skill"`
	Message   string    `json:"message"`
}
