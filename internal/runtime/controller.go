// Package runtime implements the skill orchestrator: it loads a chart, drives
// the chart interpreter and runs one skill per active simple state.
//
// Every chart-mutating operation (Load, Start, Pause, Resume, Stop, FireEvent
// and runner completion) holds a single lock, so the interpreter is only ever
// touched by one goroutine at a time. Skills run concurrently in their own
// runner goroutines and report back asynchronously.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/chart"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/expr"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/resource"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/runner"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var _ ports.Orchestrator = (*Controller)(nil)

// loaded is a successfully loaded chart.
type loaded struct {
	doc     *domain.Document
	interp  *chart.Interpreter
	eval    *expr.Evaluator
	prefix  string
	options map[domain.StateIndex]map[string]string
}

// snapshot is the published view of the configuration, readable without the lock.
type snapshot struct {
	active   []string
	possible []string
}

// Controller is the skill orchestrator. Create it with New and release it with Close.
type Controller struct {
	loader           ports.ChartLoader
	registry         *registry.Registry
	catalog          *resource.Catalog
	logger           *slog.Logger
	tracer           trace.Tracer
	hooks            domain.LifecycleHooks
	heartbeat        time.Duration
	endTimeout       time.Duration
	includes         map[string]string
	contextValues    map[string]any
	allowUnknown     bool
	warningsAsErrors bool
	onFatal          func(error)

	// mu is the serialization point for every chart mutation.
	mu        sync.Mutex
	chart     *loaded
	source    string
	overrides map[string]string
	stepCtx   context.Context
	fatal     error
	finishing bool

	loading atomic.Bool
	ready   atomic.Bool
	running atomic.Bool
	paused  atomic.Bool
	result  atomic.Pointer[domain.LoadingResult]
	view    atomic.Pointer[snapshot]

	table      *table
	listeners  *listeners
	exceptions *ring
	dispatch   *dispatcher

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a controller reading chart sources through loader and
// starts its heartbeat and listener dispatcher.
func New(loader ports.ChartLoader, opts ...Option) *Controller {
	c := &Controller{
		loader:        loader,
		registry:      registry.NewRegistry(),
		catalog:       resource.NewCatalog(nil),
		logger:        slog.New(slog.DiscardHandler),
		tracer:        otel.Tracer("github.com/CentralLabFacilities/bonsai-sub000/internal/runtime"),
		heartbeat:     DefaultHeartbeat,
		endTimeout:    runner.DefaultEndTimeout,
		includes:      make(map[string]string),
		contextValues: make(map[string]any),
		table:         newTable(),
		listeners:     &listeners{},
		exceptions:    newRing(DefaultExceptionCapacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.view.Store(&snapshot{})
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.stepCtx = c.ctx
	c.dispatch = newDispatcher(c.logger)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch.run(c.ctx)
	}()
	if c.heartbeat > 0 {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.beat(c.ctx)
		}()
	}
	return c
}

// Close stops the machine, the heartbeat and the listener dispatcher.
// Pending notifications are delivered before Close returns.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.Stop()
		c.cancel()
		c.wg.Wait()
		c.dispatch.drain(context.Background())
	})
	return nil
}

// Start enters the initial configuration of the loaded chart. A running
// machine is stopped first. Returns domain.ErrNotLoaded without a successful load.
func (c *Controller) Start(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "bonsai.start")
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chart == nil {
		return domain.ErrNotLoaded
	}
	if c.running.Load() {
		c.stopLocked()
	}
	c.stepCtx = ctx
	defer func() { c.stepCtx = c.ctx }()

	c.paused.Store(false)
	c.running.Store(true)
	c.table.forgetCorrupt()
	c.logger.Info("machine started", "chart", c.chart.doc.Name)

	final, err := c.chart.interp.Start()
	return c.settleLocked(final, err)
}

// FireEvent delivers an external event. It reports whether the chart finished.
func (c *Controller) FireEvent(ctx context.Context, name string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "bonsai.event", trace.WithAttributes(attribute.String("bonsai.event", name)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fireLocked(ctx, name)
}

func (c *Controller) fireLocked(ctx context.Context, name string) (bool, error) {
	if c.chart == nil {
		return false, domain.ErrNotLoaded
	}
	if !c.running.Load() {
		return c.chart.interp.IsFinal(), domain.ErrNotRunning
	}
	c.stepCtx = ctx
	defer func() { c.stepCtx = c.ctx }()

	c.logger.Debug("event fired", "event", name)
	final, err := c.chart.interp.Fire(name)
	done := c.finished(final)
	return done, c.settleLocked(final, err)
}

// settleLocked applies the consequences of one interpreter macrostep:
// fatal escalation, completion, and publication of the new configuration.
func (c *Controller) settleLocked(final bool, err error) error {
	if fatal := c.fatal; fatal != nil {
		c.fatal = nil
		c.logger.Error("fatal orchestrator error, stopping", "err", fatal)
		if c.onFatal != nil {
			c.onFatal(fatal)
		}
		c.stopLocked()
		return fatal
	}
	if err != nil {
		c.logger.Error("chart step failed", "err", err)
		c.publishLocked()
		return err
	}
	if c.finished(final) {
		c.logger.Info("machine finished", "active", c.chart.interp.Active())
		c.publishLocked()
		c.endAllLocked()
		c.running.Store(false)
		c.finishing = false
		c.notifyStatus()
		return nil
	}
	c.publishLocked()
	return nil
}

func (c *Controller) finished(final bool) bool {
	return final || c.finishing
}

// Pause stops every active skill before its next step.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused.Store(true)
	for _, r := range c.table.snapshot() {
		r.Pause()
	}
	c.logger.Info("machine paused")
	c.notifyStatus()
}

// Resume releases every paused skill.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused.Store(false)
	for _, r := range c.table.snapshot() {
		r.Resume()
	}
	c.logger.Info("machine resumed")
	c.notifyStatus()
}

// Stop terminates every active skill and resets the interpreter so the
// next Start begins from the initial configuration. Safe to call at any time.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	wasRunning := c.running.Swap(false)
	c.endAllLocked()
	c.finishing = false
	if c.chart != nil {
		c.chart.interp.Reset()
	}
	c.publishLocked()
	if wasRunning {
		c.logger.Info("machine stopped")
		c.notifyStatus()
	}
}

// endAllLocked forcibly terminates every runner and empties the table.
func (c *Controller) endAllLocked() {
	c.endRunners(c.table.clear())
}

// endRunners terminates runners in parallel; the wait is bounded by the end timeout.
func (c *Controller) endRunners(runners []*runner.Runner) {
	var g errgroup.Group
	for _, r := range runners {
		g.Go(func() error {
			c.endRunner(r)
			return nil
		})
	}
	_ = g.Wait()
}

// endRunner forces r to end. The runner of a corrupt state is dropped
// without waiting; an unresponsive runner is abandoned, its state marked
// corrupt and reported.
func (c *Controller) endRunner(r *runner.Runner) {
	if c.table.isCorrupt(r.StateID()) {
		c.logger.Debug("corrupt skill dropped", "state_id", r.StateID(), "runner_id", r.ID())
		return
	}
	err := r.End()
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrUnresponsive) {
		c.table.markCorrupt(r.StateID())
	}
	c.logger.Warn("skill abandoned", "state_id", r.StateID(), "runner_id", r.ID(), "err", err)
	c.recordException(domain.ExceptionEvent{
		StateID: r.StateID(),
		Skill:   domain.SkillName(r.StateID()),
		Message: err.Error(),
	})
}

// onRunnerDone is the completion callback of every runner. It runs on the
// runner goroutine and funnels the outcome event through the lock.
func (c *Controller) onRunnerDone(res runner.Result) {
	if c.hooks.OnSkillDone != nil {
		ev := &domain.SkillEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventSkillDone},
			StateID:   res.StateID,
			Skill:     res.Skill,
			RunnerID:  res.RunnerID,
			Token:     res.Token.String(),
			Duration:  res.Duration,
		}
		if res.Err != nil {
			ev.Err = res.Err.Error()
		}
		c.hooks.OnSkillDone(c.ctx, ev)
	}
	if res.Err != nil {
		c.logger.Warn("skill failed", "state_id", res.StateID, "skill", res.Skill, "err", res.Err)
		c.recordException(domain.ExceptionEvent{StateID: res.StateID, Skill: res.Skill, Message: res.Err.Error()})
	}
	if res.Forced {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() || !c.table.owns(res.StateID, res.RunnerID) {
		c.logger.Debug("stale skill result ignored", "state_id", res.StateID, "runner_id", res.RunnerID)
		return
	}
	if res.Failed {
		c.table.markCorrupt(res.StateID)
	}
	event := res.Event()
	c.logger.Debug("skill finished", "state_id", res.StateID, "event", event, "steps", res.Steps)
	if _, err := c.fireLocked(c.ctx, event); err != nil && !errors.Is(err, domain.ErrNotRunning) {
		c.logger.Error("skill outcome not processed", "state_id", res.StateID, "event", event, "err", err)
	}
}

// Status returns the coarse machine status.
func (c *Controller) Status() domain.MachineStatus {
	return domain.ComputeStatus(c.loading.Load(), c.ready.Load(), c.running.Load(), c.paused.Load())
}

// ActiveStates returns the active state ids in document order.
func (c *Controller) ActiveStates() []string {
	return append([]string(nil), c.view.Load().active...)
}

// PossibleEvents returns the event descriptors accepted by the active configuration.
func (c *Controller) PossibleEvents() []string {
	return append([]string(nil), c.view.Load().possible...)
}

// Running reports whether the machine is running.
func (c *Controller) Running() bool { return c.running.Load() }

// ActiveSkills returns the state ids that currently have a runner.
func (c *Controller) ActiveSkills() []string { return c.table.stateIDs() }

// CorruptStates returns the states whose runner failed to start or did not
// end when forced, since the last Start.
func (c *Controller) CorruptStates() []string { return c.table.corruptIDs() }

// LastResult returns the result of the most recent load, or nil.
func (c *Controller) LastResult() *domain.LoadingResult { return c.result.Load() }

// Composed returns the composed document of the most recent load.
func (c *Controller) Composed() []byte {
	if res := c.result.Load(); res != nil {
		return res.Composed
	}
	return nil
}

// publishLocked refreshes the lock-free view and notifies listeners when
// the active configuration changed.
func (c *Controller) publishLocked() {
	next := &snapshot{}
	if c.chart != nil {
		next.active = c.chart.interp.Active()
		next.possible = c.chart.interp.PossibleEvents()
	}
	prev := c.view.Swap(next)
	if slices.Equal(prev.active, next.active) && slices.Equal(prev.possible, next.possible) {
		return
	}
	c.notifyStates(domain.StateChange{Timestamp: time.Now(), Active: next.active, Possible: next.possible})
}

func fatalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrFatal, fmt.Sprintf(format, args...))
}
