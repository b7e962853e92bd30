package bonsai

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/runtime"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/file"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/resource"
	"go.opentelemetry.io/otel/trace"
)

// Engine is the high-level entry point for the bonsai library.
// It wraps the skill orchestrator and provides a simplified API for consumers.
type Engine struct {
	controller  *runtime.Controller
	loader      ports.ChartLoader
	registry    *registry.Registry
	catalog     *resource.Catalog
	logger      *slog.Logger
	runtimeOpts []runtime.Option
	source      string
	Name        string
}

var _ ports.Orchestrator = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom ChartLoader instead of the filesystem loader.
func WithLoader(l ports.ChartLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegistry sets the skill registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithCatalog sets the sensors, actuators and slot store available to skills.
func WithCatalog(catalog *resource.Catalog) Option {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithSlotStore sets the backend of memory slots on the engine's catalog.
func WithSlotStore(store ports.SlotStore) Option {
	return func(e *Engine) {
		if e.catalog == nil {
			e.catalog = resource.NewCatalog(store)
			return
		}
		e.catalog.SetStore(store)
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithLifecycleHooks(hooks))
	}
}

// WithHeartbeat sets the status broadcast interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithHeartbeat(d))
	}
}

// WithEndTimeout bounds the wait for a forcibly terminated skill.
func WithEndTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithEndTimeout(d))
	}
}

// WithExceptionCapacity bounds the retained exception history.
func WithExceptionCapacity(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithExceptionCapacity(n))
	}
}

// WithFatalHandler is called on a fatal error before the machine stops.
// It must not call back into the engine.
func WithFatalHandler(fn func(error)) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithFatalHandler(fn))
	}
}

// WithContextValues seeds the chart expression context.
func WithContextValues(values map[string]any) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithContextValues(values))
	}
}

// WithIncludes sets the include dictionary mapping keys to fragment locations.
func WithIncludes(includes map[string]string) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithIncludes(includes))
	}
}

// WithAllowUnknownSkills runs states without a registered skill as placeholders.
func WithAllowUnknownSkills(allow bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithAllowUnknownSkills(allow))
	}
}

// WithWarningsAsErrors makes validation warnings block Start.
func WithWarningsAsErrors(strict bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithWarningsAsErrors(strict))
	}
}

// WithTracer records spans for loads, events and skill runs.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithTracer(tracer))
	}
}

// New creates an Engine for the chart at source.
// By default source is a file path read from disk.
func New(source string, opts ...Option) (*Engine, error) {
	if source == "" {
		return nil, fmt.Errorf("chart source is required")
	}
	eng := &Engine{source: source}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.DiscardHandler)
	}
	eng.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	eng.logger = eng.logger.With("chart", eng.Name)

	if eng.loader == nil {
		eng.loader = file.NewLoader(eng.logger)
	}
	if eng.registry == nil {
		eng.registry = registry.NewRegistry()
	}
	if eng.catalog == nil {
		eng.catalog = resource.NewCatalog(memory.NewStore())
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithRegistry(eng.registry),
		runtime.WithCatalog(eng.catalog),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.controller = runtime.New(eng.loader, runtimeOpts...)
	return eng, nil
}

// Register adds a skill factory under its canonical name.
func (e *Engine) Register(name string, factory registry.Factory) {
	e.registry.Register(name, factory)
}

// Registry returns the skill registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Catalog returns the resource catalog.
func (e *Engine) Catalog() *resource.Catalog { return e.catalog }

// Load assembles, configures and validates the chart with the given
// parameter overrides. Start is refused until a load succeeds.
func (e *Engine) Load(ctx context.Context, overrides map[string]string) *domain.LoadingResult {
	return e.controller.Load(ctx, e.source, overrides)
}

// Reload repeats the last load and restarts the machine if it was running.
func (e *Engine) Reload(ctx context.Context) *domain.LoadingResult {
	return e.controller.Reload(ctx)
}

// Start enters the initial configuration.
func (e *Engine) Start(ctx context.Context) error { return e.controller.Start(ctx) }

// Stop terminates every skill and resets the machine.
func (e *Engine) Stop() { e.controller.Stop() }

// Pause suspends every skill between steps.
func (e *Engine) Pause() { e.controller.Pause() }

// Resume releases paused skills.
func (e *Engine) Resume() { e.controller.Resume() }

// FireEvent delivers an external event and reports whether the chart finished.
func (e *Engine) FireEvent(ctx context.Context, name string) (bool, error) {
	return e.controller.FireEvent(ctx, name)
}

// Status returns the coarse machine status.
func (e *Engine) Status() domain.MachineStatus { return e.controller.Status() }

// Running reports whether the machine is running.
func (e *Engine) Running() bool { return e.controller.Running() }

// ActiveStates returns the active state ids.
func (e *Engine) ActiveStates() []string { return e.controller.ActiveStates() }

// PossibleEvents returns the events the active configuration reacts to.
func (e *Engine) PossibleEvents() []string { return e.controller.PossibleEvents() }

// Exceptions returns the retained skill failures, oldest first.
func (e *Engine) Exceptions() []domain.ExceptionEvent { return e.controller.Exceptions() }

// CorruptStates returns the states whose skill failed to start or ignored a
// forced end since the last Start.
func (e *Engine) CorruptStates() []string { return e.controller.CorruptStates() }

// Composed returns the composed chart of the last load.
func (e *Engine) Composed() []byte { return e.controller.Composed() }

// LastResult returns the result of the last load, or nil.
func (e *Engine) LastResult() *domain.LoadingResult { return e.controller.LastResult() }

// StatusReport returns the current heartbeat payload.
func (e *Engine) StatusReport() domain.StatusReport { return e.controller.StatusReport() }

// AddStatusListener registers a status listener.
func (e *Engine) AddStatusListener(l ports.StatusListener) { e.controller.AddStatusListener(l) }

// RemoveStatusListener unregisters a status listener.
func (e *Engine) RemoveStatusListener(l ports.StatusListener) { e.controller.RemoveStatusListener(l) }

// AddExceptionListener registers an exception listener.
func (e *Engine) AddExceptionListener(l ports.ExceptionListener) {
	e.controller.AddExceptionListener(l)
}

// RemoveExceptionListener unregisters an exception listener.
func (e *Engine) RemoveExceptionListener(l ports.ExceptionListener) {
	e.controller.RemoveExceptionListener(l)
}

// Watch returns a channel that signals when any source of the last load changes.
// Returns an error if the loader does not support watching.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, ok := e.loader.(ports.Watchable)
	if !ok {
		return nil, fmt.Errorf("current loader does not support watching")
	}
	sources := []string{e.source}
	if res := e.controller.LastResult(); res != nil && len(res.Sources) > 0 {
		sources = res.Sources
	}
	return w.Watch(ctx, sources...)
}

// Loader returns the underlying ChartLoader used by the engine.
func (e *Engine) Loader() ports.ChartLoader { return e.loader }

// Close stops the machine and releases background goroutines.
func (e *Engine) Close() error { return e.controller.Close() }
