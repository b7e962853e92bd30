package runner

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultEndTimeout is how long a forced end waits for the skill to finish.
const DefaultEndTimeout = 2 * time.Second

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithEndTimeout bounds the wait of a forced end.
func WithEndTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.endTimeout = d
	}
}

// WithOnDone registers the completion callback. It is invoked once, from
// the runner goroutine, after Done is closed.
func WithOnDone(fn func(Result)) Option {
	return func(r *Runner) {
		r.onDone = fn
	}
}

// WithPaused starts the runner with its gate closed.
func WithPaused(paused bool) Option {
	return func(r *Runner) {
		if paused {
			r.gate.Pause()
		}
	}
}

// WithTracer records one span per skill run.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithSkillName overrides the skill name used in results and logs.
func WithSkillName(name string) Option {
	return func(r *Runner) {
		r.skillName = name
	}
}
