package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSkill loops `loops` times and then returns `exit`.
type scriptedSkill struct {
	loops     int
	delay     time.Duration
	exit      domain.ExitStatus
	initOK    bool
	panicAt   int
	block     chan struct{}
	configErr error

	steps   atomic.Int32
	ended   atomic.Bool
	endedBy atomic.Value
	stepped chan struct{}
}

func newScripted(loops int) *scriptedSkill {
	return &scriptedSkill{loops: loops, exit: domain.Success(), initOK: true, stepped: make(chan struct{}, 100)}
}

func (s *scriptedSkill) Configure(c ports.Configurator) error {
	c.RequestExitToken(s.exit)
	return s.configErr
}

func (s *scriptedSkill) Init(context.Context) bool { return s.initOK }

func (s *scriptedSkill) Execute(ctx context.Context) domain.ExitToken {
	n := int(s.steps.Add(1))
	s.stepped <- struct{}{}
	if s.panicAt == n {
		panic("sensor exploded")
	}
	if s.block != nil {
		<-s.block
	}
	if n <= s.loops {
		return domain.Loop(s.delay)
	}
	return domain.Exit(s.exit)
}

func (s *scriptedSkill) End(_ context.Context, t domain.ExitToken) domain.ExitToken {
	s.ended.Store(true)
	s.endedBy.Store(t.String())
	return t
}

func config(stateID string) Configurator {
	return resource.NewCatalog(nil).Configurator(stateID, nil)
}

func runToCompletion(t *testing.T, r *Runner) Result {
	t.Helper()
	r.Start(context.Background())
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not finish")
	}
	return r.Result()
}

func TestRunnerLoopsThenExits(t *testing.T) {
	skill := newScripted(3)
	got := make(chan Result, 1)
	r := New("Talk#hi", skill, config("Talk#hi"), WithOnDone(func(res Result) { got <- res }))

	res := runToCompletion(t, r)
	assert.NoError(t, res.Err)
	assert.Equal(t, 4, res.Steps, "three loops plus the terminal step")
	assert.Equal(t, "Talk.SUCCESS", res.Event())
	assert.False(t, res.Forced)
	assert.True(t, skill.ended.Load())
	assert.Equal(t, PhaseTerminal, r.Phase())
	assert.Equal(t, res, <-got)
}

func TestRunnerFailures(t *testing.T) {
	t.Run("configure error", func(t *testing.T) {
		skill := newScripted(0)
		skill.configErr = errors.New("no arm")
		res := runToCompletion(t, New("Grasp", skill, config("Grasp")))
		assert.ErrorContains(t, res.Err, "no arm")
		assert.True(t, res.Failed)
		assert.Equal(t, domain.StatusFatal, res.Token.ExitStatus().Status)
		assert.Zero(t, skill.steps.Load())
		assert.False(t, skill.ended.Load())
	})

	t.Run("resource error", func(t *testing.T) {
		cfg := resource.NewCatalog(nil).Configurator("Grasp", nil)
		cfg.RequestSensor("missing")
		r := New("Grasp", newScripted(0), cfg)
		res := runToCompletion(t, r)
		assert.ErrorIs(t, res.Err, resource.ErrUnknownResource)
		assert.Equal(t, PhaseFailed, r.Phase())
	})

	t.Run("init refused", func(t *testing.T) {
		skill := newScripted(0)
		skill.initOK = false
		res := runToCompletion(t, New("Grasp", skill, config("Grasp")))
		assert.ErrorIs(t, res.Err, domain.ErrInitFailed)
		assert.True(t, res.Failed)
		assert.Equal(t, "Grasp.FATAL", res.Event())
	})

	t.Run("panic in execute", func(t *testing.T) {
		skill := newScripted(5)
		skill.panicAt = 2
		res := runToCompletion(t, New("Grasp", skill, config("Grasp")))
		assert.ErrorContains(t, res.Err, "sensor exploded")
		assert.False(t, res.Failed, "execute had started")
		assert.Equal(t, "Grasp.FATAL", res.Event())
		assert.True(t, skill.ended.Load(), "end still runs")
	})
}

func TestRunnerPauseStopsNextStep(t *testing.T) {
	skill := newScripted(1000)
	skill.delay = time.Millisecond
	r := New("Wait", skill, config("Wait"))
	r.Start(context.Background())

	<-skill.stepped
	r.Pause()
	// drain a step that may have started before the pause took effect
	time.Sleep(20 * time.Millisecond)
	for len(skill.stepped) > 0 {
		<-skill.stepped
	}
	paused := skill.steps.Load()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, skill.steps.Load(), "no step starts while paused")
	assert.True(t, r.Paused())

	r.Resume()
	select {
	case <-skill.stepped:
	case <-time.After(time.Second):
		t.Fatal("no step after resume")
	}
	require.NoError(t, r.End())
}

func TestRunnerForcedEnd(t *testing.T) {
	skill := newScripted(1000)
	skill.delay = time.Hour
	r := New("Nav", skill, config("Nav"))
	r.Start(context.Background())
	<-skill.stepped

	require.NoError(t, r.End())
	res := r.Result()
	assert.True(t, res.Forced)
	assert.Equal(t, "FATAL", skill.endedBy.Load())
	assert.Equal(t, "Nav.FATAL", res.Event())
}

func TestRunnerForcedEndWhilePaused(t *testing.T) {
	skill := newScripted(1000)
	r := New("Nav", skill, config("Nav"), WithPaused(true))
	r.Start(context.Background())

	require.NoError(t, r.End())
	assert.Zero(t, skill.steps.Load())
	assert.True(t, skill.ended.Load())
}

func TestRunnerUnresponsive(t *testing.T) {
	skill := newScripted(0)
	skill.block = make(chan struct{})
	defer close(skill.block)

	r := New("Stuck", skill, config("Stuck"), WithEndTimeout(30*time.Millisecond))
	r.Start(context.Background())
	<-skill.stepped

	start := time.Now()
	err := r.End()
	assert.ErrorIs(t, err, domain.ErrUnresponsive)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEndBeforeStart(t *testing.T) {
	r := New("Idle", newScripted(0), config("Idle"))
	assert.NoError(t, r.End())
	assert.Equal(t, PhaseCreated, r.Phase())
}

func TestPauseGate(t *testing.T) {
	var g PauseGate
	require.NoError(t, g.Wait(context.Background()))

	g.Pause()
	g.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	released := make(chan error, 1)
	go func() { released <- g.Wait(context.Background()) }()
	g.Resume()
	assert.NoError(t, <-released)
	assert.False(t, g.Paused())
}
