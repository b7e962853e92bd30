package compiler

// RawChart is the source form of a chart document or included fragment.
// Field order is the canonical encoding order of composed output.
type RawChart struct {
	Name      string     `yaml:"name,omitempty" json:"name,omitempty"`
	Initial   string     `yaml:"initial,omitempty" json:"initial,omitempty"`
	Datamodel []RawData  `yaml:"datamodel,omitempty" json:"datamodel,omitempty"`
	States    []RawState `yaml:"states,omitempty" json:"states,omitempty"`
}

// RawData is a datamodel declaration.
type RawData struct {
	ID   string `yaml:"id" json:"id"`
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`
}

// RawState is a state, parallel region or final as written in the source.
type RawState struct {
	ID          string          `yaml:"id" json:"id"`
	Type        string          `yaml:"type,omitempty" json:"type,omitempty"`
	Initial     string          `yaml:"initial,omitempty" json:"initial,omitempty"`
	Include     string          `yaml:"include,omitempty" json:"include,omitempty"`
	Datamodel   []RawData       `yaml:"datamodel,omitempty" json:"datamodel,omitempty"`
	OnEntry     []RawAction     `yaml:"on_entry,omitempty" json:"on_entry,omitempty"`
	OnExit      []RawAction     `yaml:"on_exit,omitempty" json:"on_exit,omitempty"`
	Transitions []RawTransition `yaml:"transitions,omitempty" json:"transitions,omitempty"`
	States      []RawState      `yaml:"states,omitempty" json:"states,omitempty"`
}

// RawTransition is an outgoing edge as written in the source.
type RawTransition struct {
	Event   string      `yaml:"event,omitempty" json:"event,omitempty"`
	Cond    string      `yaml:"cond,omitempty" json:"cond,omitempty"`
	Target  string      `yaml:"target,omitempty" json:"target,omitempty"`
	Actions []RawAction `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// RawAction holds exactly one of its fields.
type RawAction struct {
	Send   string     `yaml:"send,omitempty" json:"send,omitempty"`
	Raise  string     `yaml:"raise,omitempty" json:"raise,omitempty"`
	Assign *RawAssign `yaml:"assign,omitempty" json:"assign,omitempty"`
	Log    *RawLog    `yaml:"log,omitempty" json:"log,omitempty"`
}

// RawAssign writes the value of Expr into Location.
type RawAssign struct {
	Location string `yaml:"location" json:"location"`
	Expr     string `yaml:"expr" json:"expr"`
}

// RawLog logs the value of Expr under Label.
type RawLog struct {
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Expr  string `yaml:"expr,omitempty" json:"expr,omitempty"`
}

// Walk visits every state depth-first in document order.
// Returning false from fn skips the state's children.
func (c *RawChart) Walk(fn func(s *RawState, parent *RawState) bool) {
	for i := range c.States {
		walkState(&c.States[i], nil, fn)
	}
}

func walkState(s *RawState, parent *RawState, fn func(*RawState, *RawState) bool) {
	if !fn(s, parent) {
		return
	}
	for i := range s.States {
		walkState(&s.States[i], s, fn)
	}
}
