package domain

import (
	"fmt"
	"strings"
)

// StateKind distinguishes plain states from parallel regions and finals.
type StateKind string

const (
	// KindState is an atomic state (no children) or a compound state (with children).
	KindState StateKind = "state"
	// KindParallel activates all of its children simultaneously.
	KindParallel StateKind = "parallel"
	// KindFinal marks completion of its parent (or of the whole chart at the top level).
	KindFinal StateKind = "final"
)

// StateIndex addresses a state inside a Document arena.
type StateIndex int

// NoState is the parent of top-level states.
const NoState StateIndex = -1

// Reserved names shared by the assembler, the validator and the controller.
const (
	// StatePrefixVariable is the once-per-document sentinel holding the prefix
	// prepended to skill names before registry lookup.
	StatePrefixVariable = "#_STATE_PREFIX"

	// SkillEnd and SkillFatal are terminal pseudo-skills. They are never
	// instantiated and never validated.
	SkillEnd   = "End"
	SkillFatal = "Fatal"

	// InstanceSeparator splits a state id into skill name and instance suffix.
	InstanceSeparator = "#"
)

// ActionKind enumerates executable content.
type ActionKind string

const (
	ActionSend   ActionKind = "send"
	ActionRaise  ActionKind = "raise"
	ActionAssign ActionKind = "assign"
	ActionLog    ActionKind = "log"
)

// Action is one piece of executable content in onEntry, onExit or a transition.
type Action struct {
	Kind     ActionKind
	Event    string // send, raise
	Location string // assign
	Expr     string // assign, log
	Label    string // log
}

// Emits reports the internal event this action produces, if any.
func (a Action) Emits() (string, bool) {
	if (a.Kind == ActionSend || a.Kind == ActionRaise) && a.Event != "" {
		return a.Event, true
	}
	return "", false
}

// Data is a single datamodel variable declaration.
type Data struct {
	ID   string
	Expr string
}

// Transition is an outgoing edge of a state.
// Event may hold several space-separated descriptors.
type Transition struct {
	Event   string
	Cond    string
	Target  string
	Actions []Action
}

// Descriptors splits the event attribute into its individual patterns.
func (t Transition) Descriptors() []string {
	return strings.Fields(t.Event)
}

// Matches reports whether the transition's event attribute accepts event.
func (t Transition) Matches(event string) bool {
	for _, d := range t.Descriptors() {
		if MatchEvent(event, d) {
			return true
		}
	}
	return false
}

// StateNode is a single node of the document arena.
type StateNode struct {
	ID          string
	Kind        StateKind
	Parent      StateIndex
	Children    []StateIndex
	Initial     string
	Transitions []Transition
	OnEntry     []Action
	OnExit      []Action
}

// Document is a composed, flattened state chart. States live in an arena
// and refer to each other by index, so ancestor walks are index-following.
type Document struct {
	Name      string
	Initial   string
	Datamodel []Data
	States    []StateNode
	Roots     []StateIndex

	byID map[string]StateIndex
}

// Reindex rebuilds the id lookup table. It fails on the first duplicate id
// and on any parent chain that does not terminate at the root.
func (d *Document) Reindex() error {
	d.byID = make(map[string]StateIndex, len(d.States))
	for i := range d.States {
		id := d.States[i].ID
		if _, dup := d.byID[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateState, id)
		}
		d.byID[id] = StateIndex(i)
	}
	for i := range d.States {
		steps := 0
		for p := d.States[i].Parent; p != NoState; p = d.States[p].Parent {
			if int(p) < 0 || int(p) >= len(d.States) {
				return fmt.Errorf("state %q: parent index %d out of range", d.States[i].ID, p)
			}
			steps++
			if steps > len(d.States) {
				return fmt.Errorf("%w: at %q", ErrParentCycle, d.States[i].ID)
			}
		}
	}
	return nil
}

// Lookup returns the index of the state with the given id.
func (d *Document) Lookup(id string) (StateIndex, bool) {
	if d.byID == nil {
		_ = d.Reindex()
	}
	i, ok := d.byID[id]
	return i, ok
}

// State returns the node at index i.
func (d *Document) State(i StateIndex) *StateNode {
	return &d.States[i]
}

// IsSimple reports whether i is a leaf, non-parallel, non-final state:
// the only kind of state that runs a skill.
func (d *Document) IsSimple(i StateIndex) bool {
	s := &d.States[i]
	return s.Kind == KindState && len(s.Children) == 0
}

// Ancestors returns i followed by its ancestors up to the top level.
func (d *Document) Ancestors(i StateIndex) []StateIndex {
	chain := []StateIndex{i}
	for p := d.States[i].Parent; p != NoState; p = d.States[p].Parent {
		chain = append(chain, p)
	}
	return chain
}

// IsDescendant reports whether i lies strictly below ancestor.
func (d *Document) IsDescendant(i, ancestor StateIndex) bool {
	for p := d.States[i].Parent; p != NoState; p = d.States[p].Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// Variable returns the root datamodel declaration with the given id.
func (d *Document) Variable(id string) (Data, bool) {
	for _, v := range d.Datamodel {
		if v.ID == id {
			return v, true
		}
	}
	return Data{}, false
}

// SkillName strips the instance suffix from a state id: "Talk#greet" -> "Talk".
func SkillName(stateID string) string {
	if i := strings.Index(stateID, InstanceSeparator); i >= 0 {
		return stateID[:i]
	}
	return stateID
}

// IsTerminalSkill reports whether the skill is one of the terminal pseudo-skills.
func IsTerminalSkill(skill string) bool {
	return skill == SkillEnd || skill == SkillFatal
}
