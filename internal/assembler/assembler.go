// Package assembler composes a chart and its included fragments into one
// self-contained document.
package assembler

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

// SchemeSeparator splits an include reference into scheme and key.
const SchemeSeparator = "://"

// Result is a composed chart.
type Result struct {
	// Chart is the flattened source tree.
	Chart *compiler.RawChart
	// Document is the compiled arena.
	Document *domain.Document
	// Composed is the canonical YAML encoding of Chart.
	Composed []byte
	// Sources lists every location read, root first.
	Sources []string
}

// Assembler resolves includes, flattens scoped datamodels and rejects
// duplicate state ids. Assembly is all-or-nothing.
type Assembler struct {
	loader   ports.ChartLoader
	includes map[string]string
	parser   *compiler.Parser
	logger   *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// WithIncludes sets the include dictionary mapping keys to locations.
func WithIncludes(includes map[string]string) Option {
	return func(a *Assembler) {
		for k, v := range includes {
			a.includes[k] = v
		}
	}
}

// New creates an Assembler reading sources through loader.
func New(loader ports.ChartLoader, opts ...Option) *Assembler {
	a := &Assembler{
		loader:   loader,
		includes: make(map[string]string),
		parser:   compiler.NewParser(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble loads the chart at location and composes it.
// Every failure is a *domain.LoadingError.
func (a *Assembler) Assemble(location string) (*Result, error) {
	res := &Result{}

	chart, err := a.load(location, res)
	if err != nil {
		return nil, err
	}
	visiting := map[string]bool{location: true}
	for i := range chart.States {
		if err := a.expand(&chart.States[i], location, visiting, res); err != nil {
			return nil, err
		}
	}

	if err := CheckDuplicates(chart); err != nil {
		return nil, err
	}
	Flatten(chart)

	composed, err := a.parser.Encode(chart)
	if err != nil {
		return nil, &domain.LoadingError{Op: "encode", Err: err}
	}
	doc, err := a.parser.Compile(chart)
	if err != nil {
		return nil, &domain.LoadingError{Op: "compile", Key: location, Err: err}
	}

	res.Chart = chart
	res.Document = doc
	res.Composed = composed
	a.logger.Debug("chart assembled", "chart", chart.Name, "sources", len(res.Sources), "states", len(doc.States))
	return res, nil
}

func (a *Assembler) load(location string, res *Result) (*compiler.RawChart, error) {
	data, err := a.loader.Load(location)
	if err != nil {
		return nil, &domain.LoadingError{Op: "read", Key: location, Err: err}
	}
	chart, err := a.parser.Parse(data)
	if err != nil {
		return nil, &domain.LoadingError{Op: "parse", Key: location, Err: err}
	}
	res.Sources = append(res.Sources, location)
	return chart, nil
}

// expand splices the fragment referenced by s (if any), then recurses into
// the children. visiting holds the include chain for cycle detection.
func (a *Assembler) expand(s *compiler.RawState, base string, visiting map[string]bool, res *Result) error {
	if s.Include != "" {
		location, err := a.locate(base, s.Include)
		if err != nil {
			return err
		}
		if visiting[location] {
			return &domain.LoadingError{Op: "include", Key: s.Include, Err: domain.ErrIncludeCycle}
		}

		frag, err := a.load(location, res)
		if err != nil {
			return err
		}
		a.logger.Debug("include resolved", "state_id", s.ID, "include", s.Include, "location", location)

		visiting[location] = true
		for i := range frag.States {
			if err := a.expand(&frag.States[i], location, visiting, res); err != nil {
				return err
			}
		}
		delete(visiting, location)

		s.Include = ""
		s.States = append(s.States, frag.States...)
		if s.Initial == "" {
			s.Initial = frag.Initial
		}
		s.Datamodel = append(s.Datamodel, frag.Datamodel...)
		return nil
	}

	for i := range s.States {
		if err := a.expand(&s.States[i], base, visiting, res); err != nil {
			return err
		}
	}
	return nil
}

// locate maps an include reference to a loader location.
// "scheme://KEY/sub/path" goes through the include dictionary; a reference
// without a scheme is a path relative to the including source.
func (a *Assembler) locate(base, ref string) (string, error) {
	_, rest, ok := strings.Cut(ref, SchemeSeparator)
	if !ok {
		return a.loader.Resolve(base, ref), nil
	}
	key, sub, _ := strings.Cut(rest, "/")
	mapped, ok := a.includes[key]
	if !ok || key == "" {
		return "", &domain.LoadingError{Op: "include", Key: key, Err: domain.ErrUnresolvedInclude}
	}
	if sub == "" {
		return mapped, nil
	}
	return path.Join(mapped, sub), nil
}

// CheckDuplicates fails on the first state id seen twice.
func CheckDuplicates(chart *compiler.RawChart) error {
	seen := make(map[string]bool)
	var dup string
	chart.Walk(func(s, _ *compiler.RawState) bool {
		if dup != "" {
			return false
		}
		if seen[s.ID] {
			dup = s.ID
			return false
		}
		seen[s.ID] = true
		return true
	})
	if dup != "" {
		return &domain.LoadingError{Op: "duplicate", Key: dup, Err: fmt.Errorf("%w: %q", domain.ErrDuplicateState, dup)}
	}
	return nil
}

// Flatten hoists every nested datamodel block into the root block in
// document order. Only the first declaration of the state-prefix sentinel
// survives.
func Flatten(chart *compiler.RawChart) {
	var out []compiler.RawData
	sentinel := false
	keep := func(d compiler.RawData) {
		if d.ID == domain.StatePrefixVariable {
			if sentinel {
				return
			}
			sentinel = true
		}
		out = append(out, d)
	}

	for _, d := range chart.Datamodel {
		keep(d)
	}
	chart.Walk(func(s, _ *compiler.RawState) bool {
		for _, d := range s.Datamodel {
			keep(d)
		}
		s.Datamodel = nil
		return true
	})
	chart.Datamodel = out
}
