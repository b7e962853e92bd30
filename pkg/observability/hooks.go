package observability

import (
	"context"
	"log/slog"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Chain combines hook sets; each callback runs the non-nil callbacks of
// every set in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnStateEnter = chain(out.OnStateEnter, h.OnStateEnter)
		out.OnStateExit = chain(out.OnStateExit, h.OnStateExit)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnSkillDone = chain(out.OnSkillDone, h.OnSkillDone)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LogHooks logs every lifecycle event at debug level, failed skills at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_enter", "state_id", e.StateID, "kind", e.Kind)
		},
		OnStateExit: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state_exit", "state_id", e.StateID)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.DebugContext(ctx, "transition", "from", e.From, "to", e.To, "event", e.Event)
		},
		OnSkillDone: func(ctx context.Context, e *domain.SkillEvent) {
			if e.Err != "" {
				logger.WarnContext(ctx, "skill_done", "state_id", e.StateID, "skill", e.Skill, "token", e.Token, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "skill_done", "state_id", e.StateID, "skill", e.Skill, "token", e.Token, "duration", e.Duration)
		},
	}
}
