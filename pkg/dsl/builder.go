package dsl

import (
	"errors"
	"fmt"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Builder manages the chart construction.
type Builder struct {
	chart compiler.RawChart
	roots []*StateBuilder
	ids   map[string]*StateBuilder
	errs  []error
}

// New creates a new chart builder.
func New(name string) *Builder {
	return &Builder{
		chart: compiler.RawChart{Name: name},
		ids:   make(map[string]*StateBuilder),
	}
}

// Initial sets the initial top-level state. Without it the first added
// state is initial.
func (b *Builder) Initial(id string) *Builder {
	b.chart.Initial = id
	return b
}

// Prefix declares the skill name prefix of the chart.
func (b *Builder) Prefix(prefix string) *Builder {
	return b.Var(domain.StatePrefixVariable, quote(prefix))
}

// Var declares a root datamodel entry. expr is evaluated at load time.
func (b *Builder) Var(id, expr string) *Builder {
	b.chart.Datamodel = append(b.chart.Datamodel, compiler.RawData{ID: id, Expr: expr})
	return b
}

// Option declares the option key of a state, e.g. ("Wait#x", "duration", "'1s'").
func (b *Builder) Option(stateID, key, expr string) *Builder {
	return b.Var(stateID+"."+key, expr)
}

// Add creates a new top-level state.
// If the state already exists, it returns the existing builder.
func (b *Builder) Add(id string) *StateBuilder {
	if sb, ok := b.ids[id]; ok {
		return sb
	}
	sb := b.newState(id)
	b.roots = append(b.roots, sb)
	return sb
}

func (b *Builder) newState(id string) *StateBuilder {
	sb := &StateBuilder{state: compiler.RawState{ID: id}, builder: b}
	b.ids[id] = sb
	return sb
}

// Raw assembles the chart tree.
func (b *Builder) Raw() (*compiler.RawChart, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	chart := b.chart
	chart.States = make([]compiler.RawState, 0, len(b.roots))
	for _, sb := range b.roots {
		chart.States = append(chart.States, sb.build())
	}
	return &chart, nil
}

// Build encodes the chart as YAML.
func (b *Builder) Build() ([]byte, error) {
	chart, err := b.Raw()
	if err != nil {
		return nil, err
	}
	return compiler.NewParser().Encode(chart)
}

// Loader compiles the chart into a memory loader serving it at location.
func (b *Builder) Loader(location string) (*memory.Loader, error) {
	data, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build chart: %w", err)
	}
	return memory.NewLoader(map[string]string{location: string(data)}), nil
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
