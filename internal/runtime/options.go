package runtime

import (
	"log/slog"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/resource"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for the controller.
const (
	DefaultHeartbeat         = time.Second
	DefaultExceptionCapacity = 100
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRegistry sets the skill registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(c *Controller) {
		c.registry = reg
	}
}

// WithCatalog sets the resource catalog skills are configured against.
func WithCatalog(catalog *resource.Catalog) Option {
	return func(c *Controller) {
		c.catalog = catalog
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithHeartbeat sets the status broadcast interval. Zero disables it.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Controller) {
		c.heartbeat = d
	}
}

// WithEndTimeout bounds the wait for a forcibly terminated skill.
func WithEndTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.endTimeout = d
	}
}

// WithExceptionCapacity bounds the retained exception history.
func WithExceptionCapacity(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.exceptions = newRing(n)
		}
	}
}

// WithIncludes sets the include dictionary used by Load.
func WithIncludes(includes map[string]string) Option {
	return func(c *Controller) {
		for k, v := range includes {
			c.includes[k] = v
		}
	}
}

// WithContextValues seeds the expression context of every loaded chart.
func WithContextValues(values map[string]any) Option {
	return func(c *Controller) {
		for k, v := range values {
			c.contextValues[k] = v
		}
	}
}

// WithAllowUnknownSkills turns unknown-skill findings into warnings.
// States without a registered skill then run as placeholders.
func WithAllowUnknownSkills(allow bool) Option {
	return func(c *Controller) {
		c.allowUnknown = allow
	}
}

// WithWarningsAsErrors makes validation warnings block Start.
func WithWarningsAsErrors(strict bool) Option {
	return func(c *Controller) {
		c.warningsAsErrors = strict
	}
}

// WithFatalHandler is invoked on a fatal error, just before the machine is
// stopped. It runs under the controller lock and must not call back into it.
func WithFatalHandler(fn func(error)) Option {
	return func(c *Controller) {
		c.onFatal = fn
	}
}

// WithTracer records spans for loads, starts and events.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = tracer
	}
}
