package assembler

import (
	"errors"
	"strings"
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rootChart = `
name: main
initial: Greet
datamodel:
  - id: "#_STATE_PREFIX"
    expr: "''"
  - id: robot
    expr: "'tiago'"
states:
  - id: Greet
    include: src://greet
    transitions:
      - event: Greet.done
        target: Fetch
  - id: Fetch
    include: src://lib/fetch.yaml
    transitions:
      - event: Fetch.*
        target: End
  - id: End
    type: final
`

const greetFragment = `
name: greet
initial: Talk#hello
datamodel:
  - id: "#_STATE_PREFIX"
    expr: "'x'"
  - id: Talk#hello.text
    expr: "'hello'"
states:
  - id: Talk#hello
    transitions:
      - event: Talk.SUCCESS
        target: Done
  - id: Done
    type: final
`

const fetchFragment = `
name: fetch
states:
  - id: Nav#fetch
    datamodel:
      - id: Nav#fetch.goal
        expr: "'kitchen'"
    include: nested.yaml
`

const nestedFragment = `
name: nested
states:
  - id: Grasp
`

func newTestLoader() *memory.Loader {
	return memory.NewLoader(map[string]string{
		"charts/main.yaml":      rootChart,
		"frags/greet.yaml":      greetFragment,
		"lib/fetch.yaml":        fetchFragment,
		"lib/nested.yaml":       nestedFragment,
		"cycle/a.yaml":          "states: [{id: A, include: b.yaml}]",
		"cycle/b.yaml":          "states: [{id: B, include: a.yaml}]",
		"cycle/root.yaml":       "states: [{id: R, include: a.yaml}]",
		"dup/root.yaml":         "states: [{id: Talk#hello}, {id: G, include: src://greet}]",
		"missing/root.yaml":     "states: [{id: G, include: src://nope}]",
		"broken/root.yaml":      "states: [{id: G, include: src://broken}]",
		"broken/fragment.yaml":  "states: [ {id: ",
		"missingfile/root.yaml": "states: [{id: G, include: gone.yaml}]",
		"selfinclude/root.yaml": "states: [{id: G, include: root.yaml}]",
		"prefix/root.yaml":      "states: [{id: A, include: ../frags/greet.yaml}, {id: B, datamodel: [{id: '#_STATE_PREFIX', expr: \"'y'\"}]}]",
	})
}

func newTestAssembler() *Assembler {
	return New(newTestLoader(), WithIncludes(map[string]string{
		"greet":  "frags/greet.yaml",
		"src":    ".",
		"broken": "broken/fragment.yaml",
	}))
}

func TestAssembleResolvesIncludes(t *testing.T) {
	res, err := newTestAssembler().Assemble("charts/main.yaml")
	require.NoError(t, err)

	doc := res.Document
	greet, ok := doc.Lookup("Greet")
	require.True(t, ok)
	assert.Equal(t, "Talk#hello", doc.State(greet).Initial)

	talk, ok := doc.Lookup("Talk#hello")
	require.True(t, ok)
	assert.Equal(t, greet, doc.State(talk).Parent)

	grasp, ok := doc.Lookup("Grasp")
	require.True(t, ok)
	nav, _ := doc.Lookup("Nav#fetch")
	assert.Equal(t, nav, doc.State(grasp).Parent)

	assert.Equal(t, []string{"charts/main.yaml", "frags/greet.yaml", "lib/fetch.yaml", "lib/nested.yaml"}, res.Sources)
	assert.NotContains(t, string(res.Composed), "include:")
}

func TestAssembleFlattensDatamodel(t *testing.T) {
	res, err := newTestAssembler().Assemble("charts/main.yaml")
	require.NoError(t, err)

	var ids []string
	sentinels := 0
	for _, d := range res.Document.Datamodel {
		ids = append(ids, d.ID)
		if d.ID == domain.StatePrefixVariable {
			sentinels++
			assert.Equal(t, "''", d.Expr, "first sentinel wins")
		}
	}
	assert.Equal(t, 1, sentinels)
	assert.Equal(t, []string{domain.StatePrefixVariable, "robot", "Talk#hello.text", "Nav#fetch.goal"}, ids)

	res.Chart.Walk(func(s, _ *compiler.RawState) bool {
		assert.Empty(t, s.Datamodel, s.ID)
		return true
	})
}

func TestAssembleIsIdempotent(t *testing.T) {
	first, err := newTestAssembler().Assemble("charts/main.yaml")
	require.NoError(t, err)
	second, err := newTestAssembler().Assemble("charts/main.yaml")
	require.NoError(t, err)
	assert.Equal(t, first.Composed, second.Composed)
}

func TestAssembleFailures(t *testing.T) {
	tests := []struct {
		name   string
		root   string
		op     string
		target error
		key    string
	}{
		{"missing key", "missing/root.yaml", "include", domain.ErrUnresolvedInclude, "nope"},
		{"cycle", "cycle/root.yaml", "include", domain.ErrIncludeCycle, ""},
		{"self include", "selfinclude/root.yaml", "include", domain.ErrIncludeCycle, ""},
		{"duplicate", "dup/root.yaml", "duplicate", domain.ErrDuplicateState, "Talk#hello"},
		{"parse", "broken/root.yaml", "parse", nil, "broken/fragment.yaml"},
		{"read", "missingfile/root.yaml", "read", nil, "missingfile/gone.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAssembler().Assemble(tt.root)
			require.Error(t, err)

			var le *domain.LoadingError
			require.True(t, errors.As(err, &le), "expected LoadingError, got %T", err)
			assert.Equal(t, tt.op, le.Op)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.key != "" {
				assert.Equal(t, tt.key, le.Key)
			}
		})
	}
}

func TestAssembleKeepsFirstSentinelAcrossSiblings(t *testing.T) {
	res, err := newTestAssembler().Assemble("prefix/root.yaml")
	require.NoError(t, err)

	v, ok := res.Document.Variable(domain.StatePrefixVariable)
	require.True(t, ok)
	assert.Equal(t, "'x'", v.Expr)
	assert.Equal(t, 1, strings.Count(string(res.Composed), domain.StatePrefixVariable))
}
