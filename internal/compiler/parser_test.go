package compiler

import (
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleChart = `
name: fetch
initial: Wait#start
datamodel:
  - id: "#_STATE_PREFIX"
    expr: "''"
states:
  - id: Wait#start
    on_entry:
      - log: {label: enter, expr: "'start'"}
    transitions:
      - event: Wait.SUCCESS
        target: Work
      - event: Wait.*
        target: Fatal
  - id: Work
    type: parallel
    states:
      - id: Talk
        transitions:
          - event: Talk.SUCCESS
            actions:
              - send: Work.talked
      - id: Nav
    transitions:
      - event: Work.talked
        cond: "true"
        target: End
        actions:
          - assign: {location: done, expr: "true"}
  - id: End
    type: final
  - id: Fatal
    type: final
`

func TestParseAndCompile(t *testing.T) {
	p := NewParser()
	raw, err := p.Parse([]byte(sampleChart))
	require.NoError(t, err)
	assert.Equal(t, "fetch", raw.Name)
	require.Len(t, raw.States, 4)

	doc, err := p.Compile(raw)
	require.NoError(t, err)
	assert.Equal(t, "Wait#start", doc.Initial)
	assert.Len(t, doc.Roots, 4)

	work, ok := doc.Lookup("Work")
	require.True(t, ok)
	assert.Equal(t, domain.KindParallel, doc.State(work).Kind)
	assert.Len(t, doc.State(work).Children, 2)

	talk, _ := doc.Lookup("Talk")
	assert.Equal(t, work, doc.State(talk).Parent)
	assert.True(t, doc.IsSimple(talk))

	ev, ok := doc.State(talk).Transitions[0].Actions[0].Emits()
	assert.True(t, ok)
	assert.Equal(t, "Work.talked", ev)

	start, _ := doc.Lookup("Wait#start")
	assert.Equal(t, domain.ActionLog, doc.State(start).OnEntry[0].Kind)

	v, ok := doc.Variable(domain.StatePrefixVariable)
	require.True(t, ok)
	assert.Equal(t, "''", v.Expr)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := NewParser().Parse([]byte("name: x\nstatez: []\n"))
	assert.Error(t, err)

	_, err = NewParser().Parse([]byte(""))
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"duplicate", "states: [{id: A}, {id: A}]", "duplicate state id"},
		{"include left", "states: [{id: A, include: 'src://x'}]", "unresolved include"},
		{"nested datamodel", "states: [{id: A, datamodel: [{id: x}]}]", "not flattened"},
		{"bad type", "states: [{id: A, type: history}]", "unknown state type"},
		{"bad target", "states: [{id: A, transitions: [{event: e, target: B}]}]", "unknown state"},
		{"bad initial", "initial: B\nstates: [{id: A}]", "no such state"},
		{"no event", "states: [{id: A, transitions: [{target: A}]}]", "without event"},
		{"two actions", "states: [{id: A, on_entry: [{send: x, raise: y}]}]", "exactly one"},
		{"empty", "name: x", "no states"},
		{"empty parallel", "states: [{id: P, type: parallel}]", "no regions"},
		{"initial not child", "states: [{id: A, initial: B, states: [{id: C}]}, {id: B}]", "not a child"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := p.Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = p.Compile(raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncodeIsStable(t *testing.T) {
	p := NewParser()
	raw, err := p.Parse([]byte(sampleChart))
	require.NoError(t, err)

	first, err := p.Encode(raw)
	require.NoError(t, err)

	again, err := p.Parse(first)
	require.NoError(t, err)
	second, err := p.Encode(again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
