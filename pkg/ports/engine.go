package ports

import (
	"context"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// StatusListener receives the heartbeat status and active-state changes.
// A returned error is logged by the controller and does not affect other listeners.
type StatusListener interface {
	OnStatus(ctx context.Context, report domain.StatusReport) error
	OnStatesChanged(ctx context.Context, change domain.StateChange) error
}

// ExceptionListener receives every skill failure caught by a runner.
type ExceptionListener interface {
	OnException(ctx context.Context, ev domain.ExceptionEvent) error
}

// Orchestrator is the control surface exposed to adapters (HTTP, MQTT, MCP).
type Orchestrator interface {
	// Reload re-runs the last load with the same chart and overrides.
	Reload(ctx context.Context) *domain.LoadingResult

	Start(ctx context.Context) error
	Stop()
	Pause()
	Resume()

	// FireEvent delivers an external event; it reports whether the chart finished.
	FireEvent(ctx context.Context, name string) (bool, error)

	Status() domain.MachineStatus
	ActiveStates() []string
	PossibleEvents() []string
	Exceptions() []domain.ExceptionEvent
	Composed() []byte

	AddStatusListener(l StatusListener)
	RemoveStatusListener(l StatusListener)
	AddExceptionListener(l ExceptionListener)
	RemoveExceptionListener(l ExceptionListener)
}
