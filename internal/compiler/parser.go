package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Parser converts raw bytes into chart trees and chart trees into documents.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a YAML (or JSON) chart source. Unknown fields are rejected.
func (p *Parser) Parse(data []byte) (*RawChart, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var chart RawChart
	if err := dec.Decode(&chart); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse chart: empty document")
		}
		return nil, fmt.Errorf("failed to parse chart: %w", err)
	}
	return &chart, nil
}

// Encode writes the canonical YAML form of a chart.
func (p *Parser) Encode(chart *RawChart) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(chart); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compile converts a composed chart into a document arena.
// The chart must be fully assembled: no includes and no nested datamodel blocks.
func (p *Parser) Compile(chart *RawChart) (*domain.Document, error) {
	doc := &domain.Document{
		Name:    chart.Name,
		Initial: chart.Initial,
	}
	for _, d := range chart.Datamodel {
		doc.Datamodel = append(doc.Datamodel, domain.Data{ID: d.ID, Expr: d.Expr})
	}
	for i := range chart.States {
		idx, err := p.compileState(doc, &chart.States[i], domain.NoState)
		if err != nil {
			return nil, err
		}
		doc.Roots = append(doc.Roots, idx)
	}
	if len(doc.Roots) == 0 {
		return nil, fmt.Errorf("chart %q has no states", chart.Name)
	}
	if err := doc.Reindex(); err != nil {
		return nil, err
	}
	if doc.Initial != "" {
		if _, ok := doc.Lookup(doc.Initial); !ok {
			return nil, fmt.Errorf("chart initial %q: no such state", doc.Initial)
		}
	}
	for i := range doc.States {
		if err := checkState(doc, domain.StateIndex(i)); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (p *Parser) compileState(doc *domain.Document, raw *RawState, parent domain.StateIndex) (domain.StateIndex, error) {
	if raw.ID == "" {
		return domain.NoState, fmt.Errorf("state without id")
	}
	if raw.Include != "" {
		return domain.NoState, fmt.Errorf("state %q: unresolved include %q", raw.ID, raw.Include)
	}
	if len(raw.Datamodel) > 0 {
		return domain.NoState, fmt.Errorf("state %q: nested datamodel was not flattened", raw.ID)
	}
	kind, err := parseKind(raw.Type)
	if err != nil {
		return domain.NoState, fmt.Errorf("state %q: %w", raw.ID, err)
	}
	node := domain.StateNode{
		ID:      raw.ID,
		Kind:    kind,
		Parent:  parent,
		Initial: raw.Initial,
	}
	if node.OnEntry, err = compileActions(raw.OnEntry); err != nil {
		return domain.NoState, fmt.Errorf("state %q on_entry: %w", raw.ID, err)
	}
	if node.OnExit, err = compileActions(raw.OnExit); err != nil {
		return domain.NoState, fmt.Errorf("state %q on_exit: %w", raw.ID, err)
	}
	for _, t := range raw.Transitions {
		actions, err := compileActions(t.Actions)
		if err != nil {
			return domain.NoState, fmt.Errorf("state %q transition %q: %w", raw.ID, t.Event, err)
		}
		if t.Event == "" {
			return domain.NoState, fmt.Errorf("state %q: transition without event", raw.ID)
		}
		node.Transitions = append(node.Transitions, domain.Transition{
			Event:   t.Event,
			Cond:    t.Cond,
			Target:  t.Target,
			Actions: actions,
		})
	}

	idx := domain.StateIndex(len(doc.States))
	doc.States = append(doc.States, node)
	for i := range raw.States {
		child, err := p.compileState(doc, &raw.States[i], idx)
		if err != nil {
			return domain.NoState, err
		}
		doc.States[idx].Children = append(doc.States[idx].Children, child)
	}
	return idx, nil
}

func checkState(doc *domain.Document, i domain.StateIndex) error {
	s := doc.State(i)
	if s.Kind == domain.KindFinal && len(s.Children) > 0 {
		return fmt.Errorf("final state %q cannot have children", s.ID)
	}
	if s.Kind == domain.KindParallel && len(s.Children) == 0 {
		return fmt.Errorf("parallel state %q has no regions", s.ID)
	}
	if s.Initial != "" {
		c, ok := doc.Lookup(s.Initial)
		if !ok || doc.State(c).Parent != i {
			return fmt.Errorf("state %q: initial %q is not a child", s.ID, s.Initial)
		}
	}
	for _, t := range s.Transitions {
		if t.Target == "" {
			continue
		}
		if _, ok := doc.Lookup(t.Target); !ok {
			return fmt.Errorf("state %q: transition %q targets unknown state %q", s.ID, t.Event, t.Target)
		}
	}
	return nil
}

func parseKind(v string) (domain.StateKind, error) {
	switch v {
	case "", string(domain.KindState):
		return domain.KindState, nil
	case string(domain.KindParallel):
		return domain.KindParallel, nil
	case string(domain.KindFinal):
		return domain.KindFinal, nil
	}
	return "", fmt.Errorf("unknown state type %q", v)
}

func compileActions(raw []RawAction) ([]domain.Action, error) {
	var out []domain.Action
	for _, a := range raw {
		var set []domain.Action
		if a.Send != "" {
			set = append(set, domain.Action{Kind: domain.ActionSend, Event: a.Send})
		}
		if a.Raise != "" {
			set = append(set, domain.Action{Kind: domain.ActionRaise, Event: a.Raise})
		}
		if a.Assign != nil {
			if a.Assign.Location == "" {
				return nil, fmt.Errorf("assign without location")
			}
			set = append(set, domain.Action{Kind: domain.ActionAssign, Location: a.Assign.Location, Expr: a.Assign.Expr})
		}
		if a.Log != nil {
			set = append(set, domain.Action{Kind: domain.ActionLog, Label: a.Log.Label, Expr: a.Log.Expr})
		}
		if len(set) != 1 {
			return nil, fmt.Errorf("action must set exactly one of send, raise, assign, log")
		}
		out = append(out, set[0])
	}
	return out, nil
}
