package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase is the lifecycle position of a runner.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhaseConfiguring
	PhaseInitialized
	PhaseExecuting
	PhaseEnding
	PhaseTerminal
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseConfiguring:
		return "configuring"
	case PhaseInitialized:
		return "initialized"
	case PhaseExecuting:
		return "executing"
	case PhaseEnding:
		return "ending"
	case PhaseTerminal:
		return "terminal"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Configurator is the resource catalogue a runner configures its skill
// against; Err reports resolution failures recorded during Configure.
type Configurator interface {
	ports.Configurator
	Err() error
}

// Result is the single outcome of a runner.
type Result struct {
	RunnerID string
	StateID  string
	Skill    string
	Token    domain.ExitToken
	Steps    int
	Duration time.Duration
	// Forced is set when the run ended through End rather than by itself.
	Forced bool
	// Err is set when the skill failed to configure, refused to init or panicked.
	Err error
	// Failed is set when the run never reached its execute loop.
	Failed bool
}

// Event is the chart event the result produces.
func (r Result) Event() string {
	return r.Token.ExitStatus().Event(r.Skill)
}

// Runner drives one skill instance bound to one active state through
// configure, init, the execute loop and end.
type Runner struct {
	id         string
	stateID    string
	skillName  string
	skill      ports.Skill
	config     Configurator
	gate       PauseGate
	logger     *slog.Logger
	tracer     trace.Tracer
	endTimeout time.Duration
	onDone     func(Result)

	phase   atomic.Int32
	forced  atomic.Bool
	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	result Result
}

// New creates a runner for skill bound to stateID.
func New(stateID string, skill ports.Skill, config Configurator, opts ...Option) *Runner {
	r := &Runner{
		id:         uuid.NewString(),
		stateID:    stateID,
		skillName:  domain.SkillName(stateID),
		skill:      skill,
		config:     config,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("github.com/CentralLabFacilities/bonsai-sub000/pkg/runner"),
		endTimeout: DefaultEndTimeout,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("state_id", stateID, "skill", r.skillName, "runner_id", r.id)
	return r
}

// ID returns the unique runner id.
func (r *Runner) ID() string { return r.id }

// StateID returns the bound state.
func (r *Runner) StateID() string { return r.stateID }

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase { return Phase(r.phase.Load()) }

// Done is closed once the runner produced its result.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Result returns the outcome. Only meaningful after Done is closed.
func (r *Runner) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Pause stops the execute loop before its next step.
func (r *Runner) Pause() { r.gate.Pause() }

// Resume releases a paused execute loop.
func (r *Runner) Resume() { r.gate.Resume() }

// Paused reports whether the runner is paused.
func (r *Runner) Paused() bool { return r.gate.Paused() }

// Start launches the lifecycle in its own goroutine. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

// End forces termination: the execute loop stops before its next step and
// the skill's End runs with a fatal token. End waits at most the end timeout
// and returns domain.ErrUnresponsive if the skill did not finish in time.
func (r *Runner) End() error {
	r.forced.Store(true)
	if !r.started.Load() {
		return nil
	}
	r.cancel()

	timer := time.NewTimer(r.endTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
		r.logger.Warn("skill did not end in time", "timeout", r.endTimeout, "phase", r.Phase().String())
		return fmt.Errorf("%s: %w", r.stateID, domain.ErrUnresponsive)
	}
}

func (r *Runner) run(ctx context.Context) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "skill "+r.skillName, trace.WithAttributes(
		attribute.String("bonsai.state_id", r.stateID),
		attribute.String("bonsai.skill", r.skillName),
		attribute.String("bonsai.runner_id", r.id),
	))

	res := r.lifecycle(ctx)
	res.RunnerID = r.id
	res.StateID = r.stateID
	res.Skill = r.skillName
	res.Duration = time.Since(start)
	res.Forced = r.forced.Load()

	span.SetAttributes(attribute.String("bonsai.token", res.Token.String()), attribute.Int("bonsai.steps", res.Steps))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	span.End()

	r.mu.Lock()
	r.result = res
	r.mu.Unlock()
	close(r.done)

	r.logger.Debug("skill finished", "token", res.Token.String(), "steps", res.Steps, "forced", res.Forced, "duration", res.Duration)
	if r.onDone != nil {
		r.onDone(res)
	}
}

func (r *Runner) lifecycle(ctx context.Context) Result {
	var res Result

	r.phase.Store(int32(PhaseConfiguring))
	err := guard(func() error { return r.skill.Configure(r.config) })
	if err == nil && r.config != nil {
		err = r.config.Err()
	}
	if err != nil {
		r.phase.Store(int32(PhaseFailed))
		res.Token = domain.FatalToken()
		res.Err = fmt.Errorf("configure: %w", err)
		res.Failed = true
		return res
	}

	var ok bool
	err = guard(func() error {
		ok = r.skill.Init(ctx)
		return nil
	})
	if err == nil && !ok {
		err = domain.ErrInitFailed
	}
	if err != nil {
		r.phase.Store(int32(PhaseFailed))
		res.Token = domain.FatalToken()
		res.Err = fmt.Errorf("init: %w", err)
		res.Failed = true
		return res
	}
	r.phase.Store(int32(PhaseInitialized))

	r.phase.Store(int32(PhaseExecuting))
	token, steps, err := r.loop(ctx)
	res.Steps = steps
	if err != nil {
		res.Err = fmt.Errorf("execute: %w", err)
	}

	r.phase.Store(int32(PhaseEnding))
	endCtx := context.WithoutCancel(ctx)
	final := token
	if err := guard(func() error {
		final = r.skill.End(endCtx, token)
		return nil
	}); err != nil {
		final = domain.FatalToken()
		res.Err = errors.Join(res.Err, fmt.Errorf("end: %w", err))
	}
	if final.IsLoop() {
		// End must resolve the run.
		final = token
	}
	res.Token = final
	r.phase.Store(int32(PhaseTerminal))
	return res
}

// loop invokes Execute until it returns a terminal token or the run is
// forced to end. It never starts a step while the gate is closed.
func (r *Runner) loop(ctx context.Context) (domain.ExitToken, int, error) {
	steps := 0
	for {
		if err := r.gate.Wait(ctx); err != nil {
			return domain.FatalToken(), steps, nil
		}

		var token domain.ExitToken
		err := guard(func() error {
			token = r.skill.Execute(ctx)
			return nil
		})
		steps++
		if err != nil {
			return domain.FatalToken(), steps, err
		}
		if ctx.Err() != nil {
			return domain.FatalToken(), steps, nil
		}
		if !token.IsLoop() {
			return token, steps, nil
		}
		if d := token.Delay(); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return domain.FatalToken(), steps, nil
			}
		}
	}
}

// guard converts a panic inside skill code into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn()
}
