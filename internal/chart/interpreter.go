// Package chart is a minimal hierarchical state-chart interpreter: initial
// configuration, event-driven transitions with guards, compound, parallel
// and final states, and an internal event queue.
//
// An Interpreter is not safe for concurrent use.
package chart

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// DefaultMaxSteps bounds the microsteps of one macrostep.
const DefaultMaxSteps = 1000

// Internal event names.
const (
	EventDonePrefix     = "done.state."
	EventErrorExecution = "error.execution"
)

// ErrLivelock is returned when a macrostep exceeds the step budget.
var ErrLivelock = errors.New("state chart did not settle")

// Executor evaluates guards and executable content.
type Executor interface {
	EvalBool(cond string) (bool, error)
	Assign(location, expr string) error
	Eval(expr string) (any, error)
}

// Callbacks observe the interpreter. OnEntry and OnExit may abort the
// current step by returning an error.
type Callbacks struct {
	OnEntry      func(i domain.StateIndex) error
	OnExit       func(i domain.StateIndex) error
	OnTransition func(from, to domain.StateIndex, event string)
}

// Interpreter runs one document.
type Interpreter struct {
	doc      *domain.Document
	exec     Executor
	cb       Callbacks
	logger   *slog.Logger
	maxSteps int

	active  map[domain.StateIndex]bool
	queue   []string
	final   bool
	started bool
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Interpreter) {
		m.logger = logger
	}
}

// WithMaxSteps overrides the microstep budget of a macrostep.
func WithMaxSteps(n int) Option {
	return func(m *Interpreter) {
		m.maxSteps = n
	}
}

// New creates an interpreter for doc.
func New(doc *domain.Document, exec Executor, cb Callbacks, opts ...Option) *Interpreter {
	m := &Interpreter{
		doc:      doc,
		exec:     exec,
		cb:       cb,
		logger:   slog.New(slog.DiscardHandler),
		maxSteps: DefaultMaxSteps,
		active:   make(map[domain.StateIndex]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Document returns the interpreted document.
func (m *Interpreter) Document() *domain.Document { return m.doc }

// Start enters the initial configuration and settles the internal queue.
// It reports whether the chart reached a top-level final state.
func (m *Interpreter) Start() (bool, error) {
	m.Reset()
	m.started = true

	initial := m.doc.Roots[0]
	if m.doc.Initial != "" {
		idx, ok := m.doc.Lookup(m.doc.Initial)
		if !ok {
			return false, fmt.Errorf("initial state %q not found", m.doc.Initial)
		}
		initial = idx
	}
	if err := m.enter(domain.NoState, initial); err != nil {
		return m.final, err
	}
	return m.final, m.settle()
}

// Fire delivers an external event and settles the internal queue.
// Events fired before Start or after completion are ignored.
func (m *Interpreter) Fire(event string) (bool, error) {
	if !m.started || m.final {
		return m.final, nil
	}
	if err := m.microstep(event); err != nil {
		return m.final, err
	}
	return m.final, m.settle()
}

// Reset clears the configuration without running any callbacks.
func (m *Interpreter) Reset() {
	m.active = make(map[domain.StateIndex]bool)
	m.queue = nil
	m.final = false
	m.started = false
}

// IsFinal reports whether a top-level final state was reached.
func (m *Interpreter) IsFinal() bool { return m.final }

// IsActive reports whether the state with the given id is active.
func (m *Interpreter) IsActive(id string) bool {
	idx, ok := m.doc.Lookup(id)
	return ok && m.active[idx]
}

// Active returns the ids of all active states in document order.
func (m *Interpreter) Active() []string {
	out := make([]string, 0, len(m.active))
	for _, idx := range m.sortedActive() {
		out = append(out, m.doc.State(idx).ID)
	}
	return out
}

// ActiveLeaves returns the ids of the active atomic states in document order.
func (m *Interpreter) ActiveLeaves() []string {
	var out []string
	for _, idx := range m.atomicActive() {
		out = append(out, m.doc.State(idx).ID)
	}
	return out
}

// PossibleEvents lists the event descriptors the current configuration
// would react to, innermost first, without duplicates.
func (m *Interpreter) PossibleEvents() []string {
	seen := make(map[string]bool)
	var out []string
	for _, leaf := range m.atomicActive() {
		for _, s := range m.doc.Ancestors(leaf) {
			for _, t := range m.doc.State(s).Transitions {
				for _, d := range t.Descriptors() {
					if !seen[d] {
						seen[d] = true
						out = append(out, d)
					}
				}
			}
		}
	}
	return out
}

func (m *Interpreter) sortedActive() []domain.StateIndex {
	out := make([]domain.StateIndex, 0, len(m.active))
	for idx := range m.active {
		out = append(out, idx)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func (m *Interpreter) atomicActive() []domain.StateIndex {
	var out []domain.StateIndex
	for _, idx := range m.sortedActive() {
		atomic := true
		for _, c := range m.doc.State(idx).Children {
			if m.active[c] {
				atomic = false
				break
			}
		}
		if atomic {
			out = append(out, idx)
		}
	}
	return out
}

// settle processes internal events until the queue is empty.
func (m *Interpreter) settle() error {
	steps := 0
	for len(m.queue) > 0 && !m.final {
		steps++
		if steps > m.maxSteps {
			m.queue = nil
			return fmt.Errorf("%w after %d internal events", ErrLivelock, m.maxSteps)
		}
		event := m.queue[0]
		m.queue = m.queue[1:]
		if err := m.microstep(event); err != nil {
			return err
		}
	}
	return nil
}

type selected struct {
	source domain.StateIndex
	t      domain.Transition
}

// microstep selects and executes the transitions enabled by event.
func (m *Interpreter) microstep(event string) error {
	var enabled []selected
	chosen := make(map[domain.StateIndex]bool)

	for _, leaf := range m.atomicActive() {
	search:
		for _, s := range m.doc.Ancestors(leaf) {
			for _, t := range m.doc.State(s).Transitions {
				if !t.Matches(event) || !m.guard(t.Cond) {
					continue
				}
				if !chosen[s] {
					chosen[s] = true
					enabled = append(enabled, selected{source: s, t: t})
				}
				break search
			}
		}
	}

	if len(enabled) == 0 {
		m.logger.Debug("event discarded", "event", event)
		return nil
	}

	for _, sel := range enabled {
		if !m.active[sel.source] || m.final {
			// exited by an earlier transition of the same step
			continue
		}
		if err := m.take(sel, event); err != nil {
			return err
		}
	}
	return nil
}

func (m *Interpreter) guard(cond string) bool {
	if cond == "" {
		return true
	}
	ok, err := m.exec.EvalBool(cond)
	if err != nil {
		m.logger.Warn("guard evaluation failed", "cond", cond, "err", err)
		m.queue = append(m.queue, EventErrorExecution)
		return false
	}
	return ok
}

func (m *Interpreter) take(sel selected, event string) error {
	if sel.t.Target == "" {
		m.run(sel.t.Actions)
		if m.cb.OnTransition != nil {
			m.cb.OnTransition(sel.source, domain.NoState, event)
		}
		return nil
	}

	target, ok := m.doc.Lookup(sel.t.Target)
	if !ok {
		return fmt.Errorf("transition target %q not found", sel.t.Target)
	}
	scope := m.transitionDomain(sel.source, target)

	if err := m.exitDescendants(scope); err != nil {
		return err
	}
	m.run(sel.t.Actions)
	if m.cb.OnTransition != nil {
		m.cb.OnTransition(sel.source, target, event)
	}
	return m.enter(scope, target)
}

// transitionDomain is the least common compound ancestor of source and
// target, excluding source itself. NoState stands for the implicit root.
func (m *Interpreter) transitionDomain(source, target domain.StateIndex) domain.StateIndex {
	for _, anc := range m.doc.Ancestors(source)[1:] {
		s := m.doc.State(anc)
		if s.Kind == domain.KindState && len(s.Children) > 0 && m.doc.IsDescendant(target, anc) {
			return anc
		}
	}
	return domain.NoState
}

// exitDescendants exits every active state below scope, deepest first.
func (m *Interpreter) exitDescendants(scope domain.StateIndex) error {
	var exits []domain.StateIndex
	for idx := range m.active {
		if scope == domain.NoState || m.doc.IsDescendant(idx, scope) {
			exits = append(exits, idx)
		}
	}
	// preorder arena: a descendant always has a larger index than its ancestor
	sort.Slice(exits, func(a, b int) bool { return exits[a] > exits[b] })

	for _, idx := range exits {
		m.run(m.doc.State(idx).OnExit)
		delete(m.active, idx)
		if m.cb.OnExit != nil {
			if err := m.cb.OnExit(idx); err != nil {
				return fmt.Errorf("exit %s: %w", m.doc.State(idx).ID, err)
			}
		}
	}
	return nil
}

// enter activates target, its ancestors below scope, any sibling regions of
// parallel ancestors, and the default descendants of target.
func (m *Interpreter) enter(scope, target domain.StateIndex) error {
	set := make(map[domain.StateIndex]bool)
	m.addDefault(target, set)

	for _, anc := range m.doc.Ancestors(target)[1:] {
		if anc == scope {
			break
		}
		set[anc] = true
		if m.doc.State(anc).Kind != domain.KindParallel {
			continue
		}
		for _, region := range m.doc.State(anc).Children {
			if !m.active[region] && !set[region] {
				m.addDefault(region, set)
			}
		}
	}

	order := make([]domain.StateIndex, 0, len(set))
	for idx := range set {
		if !m.active[idx] {
			order = append(order, idx)
		}
	}
	sort.Slice(order, func(a, b int) bool { return order[a] < order[b] })

	for _, idx := range order {
		m.active[idx] = true
		state := m.doc.State(idx)
		m.run(state.OnEntry)
		if m.cb.OnEntry != nil {
			if err := m.cb.OnEntry(idx); err != nil {
				return fmt.Errorf("enter %s: %w", state.ID, err)
			}
		}
		if state.Kind == domain.KindFinal {
			m.reachedFinal(idx)
			if m.final {
				return nil
			}
		}
	}
	return nil
}

// addDefault adds idx and its default descendants to set.
func (m *Interpreter) addDefault(idx domain.StateIndex, set map[domain.StateIndex]bool) {
	set[idx] = true
	s := m.doc.State(idx)
	if len(s.Children) == 0 {
		return
	}
	if s.Kind == domain.KindParallel {
		for _, c := range s.Children {
			m.addDefault(c, set)
		}
		return
	}
	child := s.Children[0]
	if s.Initial != "" {
		if c, ok := m.doc.Lookup(s.Initial); ok {
			child = c
		}
	}
	m.addDefault(child, set)
}

func (m *Interpreter) reachedFinal(idx domain.StateIndex) {
	parent := m.doc.State(idx).Parent
	if parent == domain.NoState {
		m.final = true
		m.logger.Debug("chart finished", "state_id", m.doc.State(idx).ID)
		return
	}
	m.queue = append(m.queue, EventDonePrefix+m.doc.State(parent).ID)

	grand := m.doc.State(parent).Parent
	if grand == domain.NoState || m.doc.State(grand).Kind != domain.KindParallel {
		return
	}
	for _, region := range m.doc.State(grand).Children {
		if !m.regionDone(region) {
			return
		}
	}
	m.queue = append(m.queue, EventDonePrefix+m.doc.State(grand).ID)
}

// regionDone reports whether a parallel region has an active final child.
func (m *Interpreter) regionDone(region domain.StateIndex) bool {
	for _, c := range m.doc.State(region).Children {
		if m.active[c] && m.doc.State(c).Kind == domain.KindFinal {
			return true
		}
	}
	return false
}

// run executes actions. Failures raise error.execution and skip the rest.
func (m *Interpreter) run(actions []domain.Action) {
	for _, a := range actions {
		var err error
		switch a.Kind {
		case domain.ActionSend, domain.ActionRaise:
			m.queue = append(m.queue, a.Event)
		case domain.ActionAssign:
			err = m.exec.Assign(a.Location, a.Expr)
		case domain.ActionLog:
			var v any
			if v, err = m.exec.Eval(a.Expr); err == nil {
				m.logger.Info("chart log", "label", a.Label, "value", v)
			}
		}
		if err != nil {
			m.logger.Warn("action failed", "kind", a.Kind, "err", err)
			m.queue = append(m.queue, EventErrorExecution)
			return
		}
	}
}
