// Package expr evaluates datamodel expressions, guards and assignments with an
// embedded ECMAScript runtime.
package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/dop251/goja"
)

// ParameterPrefix marks a datamodel expression resolved by name: "@target".
const ParameterPrefix = "@"

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = time.Second

var (
	// ErrInterrupted is returned when an evaluation exceeds its timeout.
	ErrInterrupted = errors.New("expression timeout")
)

// Evaluator is a goja runtime holding the chart context.
// Safe for concurrent use; evaluations are serialized.
type Evaluator struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	seed    map[string]any
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds each evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithValues seeds the context with engine-level values.
func WithValues(values map[string]any) Option {
	return func(e *Evaluator) {
		for k, v := range values {
			e.seed[k] = v
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		seed:    make(map[string]any),
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.vm = e.newRuntime()
	return e
}

func (e *Evaluator) newRuntime() *goja.Runtime {
	vm := goja.New()
	for k, v := range e.seed {
		_ = vm.GlobalObject().Set(k, v)
	}
	return vm
}

// Reset discards every assignment and restores the seeded context.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vm = e.newRuntime()
}

// Set stores a value in the context. Names need not be identifiers;
// non-identifier names are reachable as this["name"].
func (e *Evaluator) Set(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vm.GlobalObject().Set(name, value)
}

// Get reads a value from the context.
func (e *Evaluator) Get(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := e.vm.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	return v.Export(), true
}

// Eval evaluates src and returns the exported result.
func (e *Evaluator) Eval(src string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.run(src)
	if err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}

// EvalBool evaluates a guard. Truthiness follows ECMAScript rules.
func (e *Evaluator) EvalBool(src string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.run(src)
	if err != nil {
		return false, err
	}
	return v.ToBoolean(), nil
}

// Assign evaluates src and stores the result under location.
func (e *Evaluator) Assign(location, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.run(src)
	if err != nil {
		return err
	}
	return e.vm.GlobalObject().Set(location, v)
}

// run executes src under the interrupt timer. Callers hold mu.
func (e *Evaluator) run(src string) (goja.Value, error) {
	if strings.TrimSpace(src) == "" {
		return goja.Undefined(), nil
	}
	prog, err := goja.Compile("expr", src, true)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			e.vm.Interrupt(ErrInterrupted)
		})
		defer func() {
			timer.Stop()
			e.vm.ClearInterrupt()
		}()
	}

	v, err := e.vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("eval %q: %w", src, ErrInterrupted)
		}
		return nil, fmt.Errorf("eval %q: %w", src, err)
	}
	return v, nil
}

// EvalDatamodel evaluates root datamodel entries in order and returns their
// string forms. "@name" takes overrides[name] when present and otherwise
// evaluates name in the context. Each value is stored back into the context,
// so later entries may refer to earlier ones. All failures are returned joined.
func (e *Evaluator) EvalDatamodel(data []domain.Data, overrides map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(data))
	var errs []error
	for _, d := range data {
		src := strings.TrimSpace(d.Expr)

		if name, ok := strings.CutPrefix(src, ParameterPrefix); ok {
			if v, ok := overrides[name]; ok {
				e.logger.Info("parameter override", "var", d.ID, "param", name, "value", v)
				if err := e.Set(d.ID, v); err != nil {
					errs = append(errs, &domain.LoadingError{Op: "datamodel", Key: d.ID, Err: err})
					continue
				}
				out[d.ID] = v
				continue
			}
			src = name
		}

		v, err := e.Eval(src)
		if err != nil {
			errs = append(errs, &domain.LoadingError{Op: "datamodel", Key: d.ID, Err: err})
			continue
		}
		if err := e.Set(d.ID, v); err != nil {
			errs = append(errs, &domain.LoadingError{Op: "datamodel", Key: d.ID, Err: err})
			continue
		}
		out[d.ID] = Stringify(v)
	}
	return out, errors.Join(errs...)
}

// Stringify renders an exported value as a skill option string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
