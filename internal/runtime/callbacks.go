package runtime

import (
	"errors"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/chart"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/runner"
)

func (c *Controller) callbacks() chart.Callbacks {
	return chart.Callbacks{
		OnEntry:      c.onEntry,
		OnExit:       c.onExit,
		OnTransition: c.onTransition,
	}
}

// onEntry starts the skill bound to a simple state. Compound and parallel
// states have no skill; terminal states finish the machine. A state whose
// skill is not registered is a placeholder.
func (c *Controller) onEntry(i domain.StateIndex) error {
	doc := c.chart.doc
	state := doc.State(i)
	if c.hooks.OnStateEnter != nil {
		c.hooks.OnStateEnter(c.stepCtx, &domain.StateEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateEnter},
			StateID:   state.ID,
			Kind:      state.Kind,
		})
	}
	if !doc.IsSimple(i) {
		return nil
	}

	skill := domain.SkillName(state.ID)
	if domain.IsTerminalSkill(skill) {
		c.finishing = true
		c.logger.Debug("terminal state entered", "state_id", state.ID)
		return nil
	}

	key := c.chart.prefix + skill
	instance, err := c.registry.New(key)
	if errors.Is(err, domain.ErrSkillNotFound) {
		c.logger.Debug("no skill registered, state is a placeholder", "state_id", state.ID, "skill", key)
		return nil
	}
	if err != nil {
		c.fatal = fatalf("state %s: %v", state.ID, err)
		return c.fatal
	}

	r := runner.New(state.ID, instance, c.catalog.Configurator(state.ID, c.chart.options[i]),
		runner.WithLogger(c.logger),
		runner.WithTracer(c.tracer),
		runner.WithEndTimeout(c.endTimeout),
		runner.WithPaused(c.paused.Load()),
		runner.WithOnDone(c.onRunnerDone),
	)
	c.table.put(state.ID, r)
	c.notifyStatus()
	r.Start(c.ctx)
	return nil
}

// onExit terminates the skill bound to the state. Leaving a parallel state
// pauses the whole machine, terminates every runner below it and then
// resumes the remaining runners unless the machine was already paused.
func (c *Controller) onExit(i domain.StateIndex) error {
	doc := c.chart.doc
	state := doc.State(i)

	if state.Kind == domain.KindParallel {
		for _, r := range c.table.snapshot() {
			r.Pause()
		}
		var below []*runner.Runner
		for _, id := range c.table.stateIDs() {
			if j, ok := doc.Lookup(id); ok && doc.IsDescendant(j, i) {
				if r := c.table.take(id); r != nil {
					below = append(below, r)
				}
			}
		}
		c.endRunners(below)
		if !c.paused.Load() {
			for _, r := range c.table.snapshot() {
				r.Resume()
			}
		}
	} else if r := c.table.take(state.ID); r != nil {
		c.endRunner(r)
	}

	if c.hooks.OnStateExit != nil {
		c.hooks.OnStateExit(c.stepCtx, &domain.StateEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventStateExit},
			StateID:   state.ID,
			Kind:      state.Kind,
		})
	}
	return nil
}

// onTransition only observes.
func (c *Controller) onTransition(from, to domain.StateIndex, event string) {
	doc := c.chart.doc
	ev := &domain.TransitionEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTransition},
		Event:     event,
	}
	if from != domain.NoState {
		ev.From = doc.State(from).ID
	}
	if to != domain.NoState {
		ev.To = doc.State(to).ID
	}
	c.logger.Debug("transition", "from", ev.From, "to", ev.To, "event", event)
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(c.stepCtx, ev)
	}
}
