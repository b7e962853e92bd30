package chart

import (
	"errors"
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/expr"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	doc     *domain.Document
	entered []string
	exited  []string
	fired   []string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnEntry: func(i domain.StateIndex) error {
			r.entered = append(r.entered, r.doc.State(i).ID)
			return nil
		},
		OnExit: func(i domain.StateIndex) error {
			r.exited = append(r.exited, r.doc.State(i).ID)
			return nil
		},
		OnTransition: func(from, to domain.StateIndex, event string) {
			r.fired = append(r.fired, event)
		},
	}
}

func load(t *testing.T, src string) (*Interpreter, *recorder, *expr.Evaluator) {
	t.Helper()
	p := compiler.NewParser()
	raw, err := p.Parse([]byte(src))
	require.NoError(t, err)
	doc, err := p.Compile(raw)
	require.NoError(t, err)

	rec := &recorder{doc: doc}
	ev := expr.New()
	return New(doc, ev, rec.callbacks()), rec, ev
}

const nestedChart = `
initial: Outer
states:
  - id: Outer
    initial: B
    transitions:
      - event: "Any.*"
        target: Done
    states:
      - id: A
        transitions:
          - event: A.SUCCESS
            target: B
      - id: B
        transitions:
          - event: B.SUCCESS
            target: A
          - event: B.ERROR
            target: Done
  - id: Done
    type: final
`

func TestStartEntersInitialConfiguration(t *testing.T) {
	m, rec, _ := load(t, nestedChart)
	final, err := m.Start()
	require.NoError(t, err)
	assert.False(t, final)
	assert.Equal(t, []string{"Outer", "B"}, rec.entered)
	assert.Equal(t, []string{"Outer", "B"}, m.Active())
	assert.Equal(t, []string{"B"}, m.ActiveLeaves())
	assert.Equal(t, []string{"B.SUCCESS", "B.ERROR", "Any.*"}, m.PossibleEvents())
}

func TestFireTransitions(t *testing.T) {
	m, rec, _ := load(t, nestedChart)
	_, err := m.Start()
	require.NoError(t, err)

	final, err := m.Fire("B.SUCCESS")
	require.NoError(t, err)
	assert.False(t, final)
	assert.Equal(t, []string{"B"}, rec.exited)
	assert.True(t, m.IsActive("A"))
	assert.True(t, m.IsActive("Outer"), "sibling transition keeps the parent")

	final, err = m.Fire("Unknown")
	require.NoError(t, err)
	assert.False(t, final)
	assert.True(t, m.IsActive("A"))

	final, err = m.Fire("Any.thing")
	require.NoError(t, err)
	assert.True(t, final)
	assert.Equal(t, []string{"B", "A", "Outer"}, rec.exited)
	assert.Equal(t, []string{"Done"}, m.Active())

	final, err = m.Fire("A.SUCCESS")
	require.NoError(t, err)
	assert.True(t, final, "finished charts ignore events")
}

const parallelChart = `
states:
  - id: Both
    type: parallel
    transitions:
      - event: done.state.Both
        target: End
      - event: Abort
        target: End
    states:
      - id: Left
        states:
          - id: Talk
            transitions:
              - event: Talk.SUCCESS
                target: LeftDone
          - id: LeftDone
            type: final
      - id: Right
        states:
          - id: Nav
            transitions:
              - event: Nav.SUCCESS
                target: RightDone
          - id: RightDone
            type: final
  - id: End
    type: final
`

func TestParallelRegionsAndDoneEvents(t *testing.T) {
	m, rec, _ := load(t, parallelChart)
	_, err := m.Start()
	require.NoError(t, err)
	assert.Equal(t, []string{"Talk", "Nav"}, m.ActiveLeaves())
	assert.Equal(t, []string{"Both", "Left", "Talk", "Right", "Nav"}, rec.entered)

	final, err := m.Fire("Talk.SUCCESS")
	require.NoError(t, err)
	assert.False(t, final)
	assert.Equal(t, []string{"LeftDone", "Nav"}, m.ActiveLeaves())

	final, err = m.Fire("Nav.SUCCESS")
	require.NoError(t, err)
	assert.True(t, final, "done.state.Both moves to End")
	assert.Equal(t, []string{"End"}, m.Active())
}

func TestParallelExitOrder(t *testing.T) {
	m, rec, _ := load(t, parallelChart)
	_, err := m.Start()
	require.NoError(t, err)

	_, err = m.Fire("Abort")
	require.NoError(t, err)
	assert.Equal(t, []string{"Nav", "Right", "Talk", "Left", "Both"}, rec.exited)
}

const actionsChart = `
datamodel: []
states:
  - id: Idle
    on_entry:
      - assign: {location: count, expr: "0"}
    transitions:
      - event: tick
        actions:
          - assign: {location: count, expr: "count + 1"}
      - event: go
        cond: "count >= 2"
        target: Busy
        actions:
          - raise: internal.ready
      - event: go
        target: Idle
      - event: bad
        cond: "nope.nope"
        target: Busy
      - event: error.execution
        target: Failed
  - id: Busy
    transitions:
      - event: internal.ready
        target: Ready
  - id: Ready
    type: final
  - id: Failed
`

func TestGuardsAssignAndInternalEvents(t *testing.T) {
	m, rec, ev := load(t, actionsChart)
	_, err := m.Start()
	require.NoError(t, err)

	_, err = m.Fire("tick")
	require.NoError(t, err)
	assert.True(t, m.IsActive("Idle"), "targetless transitions do not exit")
	assert.Empty(t, rec.exited)

	_, err = m.Fire("go")
	require.NoError(t, err)
	assert.True(t, m.IsActive("Idle"), "guard false falls through to the re-entering transition")
	v, _ := ev.Get("count")
	assert.EqualValues(t, 0, v, "re-entry ran on_entry again")

	_, _ = m.Fire("tick")
	_, _ = m.Fire("tick")
	final, err := m.Fire("go")
	require.NoError(t, err)
	assert.True(t, final, "raised event processed in the same macrostep")
}

func TestGuardErrorRaisesErrorExecution(t *testing.T) {
	m, _, _ := load(t, actionsChart)
	_, err := m.Start()
	require.NoError(t, err)

	_, err = m.Fire("bad")
	require.NoError(t, err)
	assert.Equal(t, []string{"Failed"}, m.Active())
}

func TestCallbackErrorAbortsStep(t *testing.T) {
	m, rec, _ := load(t, nestedChart)
	boom := errors.New("boom")
	m.cb.OnEntry = func(i domain.StateIndex) error {
		if rec.doc.State(i).ID == "A" {
			return boom
		}
		return nil
	}
	_, err := m.Start()
	require.NoError(t, err)

	_, err = m.Fire("B.SUCCESS")
	assert.ErrorIs(t, err, boom)
}

func TestLivelockIsBounded(t *testing.T) {
	p := compiler.NewParser()
	raw, err := p.Parse([]byte(`states: [{id: A, on_entry: [{raise: loop}], transitions: [{event: loop, target: A}]}]`))
	require.NoError(t, err)
	doc, err := p.Compile(raw)
	require.NoError(t, err)

	m := New(doc, expr.New(), Callbacks{}, WithMaxSteps(10))
	_, err = m.Start()
	assert.ErrorIs(t, err, ErrLivelock)
}

func TestResetClearsConfiguration(t *testing.T) {
	m, rec, _ := load(t, nestedChart)
	_, err := m.Start()
	require.NoError(t, err)

	m.Reset()
	assert.Empty(t, m.Active())
	assert.Empty(t, rec.exited, "reset runs no callbacks")

	final, err := m.Fire("B.SUCCESS")
	require.NoError(t, err)
	assert.False(t, final)
	assert.Empty(t, m.Active(), "events before start are ignored")
}
