package dsl

import (
	"fmt"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
)

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	state    compiler.RawState
	children []*StateBuilder
	builder  *Builder
}

// On adds a transition taken on every event matching descriptor.
func (s *StateBuilder) On(descriptor, target string) *StateBuilder {
	return s.When(descriptor, "", target)
}

// When adds a guarded transition.
func (s *StateBuilder) When(descriptor, cond, target string) *StateBuilder {
	s.state.Transitions = append(s.state.Transitions, compiler.RawTransition{
		Event:  descriptor,
		Cond:   cond,
		Target: target,
	})
	return s
}

// Raise adds a transition that raises an internal event instead of moving.
func (s *StateBuilder) Raise(descriptor, event string) *StateBuilder {
	s.state.Transitions = append(s.state.Transitions, compiler.RawTransition{
		Event:   descriptor,
		Actions: []compiler.RawAction{{Raise: event}},
	})
	return s
}

// Send adds an entry action sending event to the external queue.
func (s *StateBuilder) Send(event string) *StateBuilder {
	s.state.OnEntry = append(s.state.OnEntry, compiler.RawAction{Send: event})
	return s
}

// Assign adds an entry action storing the value of expr at location.
func (s *StateBuilder) Assign(location, expr string) *StateBuilder {
	s.state.OnEntry = append(s.state.OnEntry, compiler.RawAction{
		Assign: &compiler.RawAssign{Location: location, Expr: expr},
	})
	return s
}

// Final marks the state as a final state of its parent.
func (s *StateBuilder) Final() *StateBuilder {
	s.state.Type = "final"
	return s
}

// Parallel makes the children of the state run as orthogonal regions.
func (s *StateBuilder) Parallel() *StateBuilder {
	s.state.Type = "parallel"
	return s
}

// Include replaces the children of the state with an included chart.
func (s *StateBuilder) Include(ref string) *StateBuilder {
	s.state.Include = ref
	return s
}

// Initial sets the initial child.
func (s *StateBuilder) Initial(id string) *StateBuilder {
	s.state.Initial = id
	return s
}

// Child creates a nested state. State ids are unique across the chart; an
// id that already exists elsewhere is reported by Build.
func (s *StateBuilder) Child(id string) *StateBuilder {
	if existing, ok := s.builder.ids[id]; ok {
		for _, c := range s.children {
			if c == existing {
				return c
			}
		}
		s.builder.errs = append(s.builder.errs, fmt.Errorf("state %q declared twice", id))
		return existing
	}
	child := s.builder.newState(id)
	s.children = append(s.children, child)
	return child
}

// Up returns the chart builder, to continue at the top level.
func (s *StateBuilder) Up() *Builder {
	return s.builder
}

func (s *StateBuilder) build() compiler.RawState {
	state := s.state
	state.States = nil
	for _, c := range s.children {
		state.States = append(state.States, c.build())
	}
	return state
}
