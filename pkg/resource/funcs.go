package resource

import (
	"context"
	"fmt"
)

// SensorFunc adapts a function to ports.Sensor.
type SensorFunc struct {
	ID string
	Fn func(ctx context.Context) (any, error)
}

func (s SensorFunc) Name() string                          { return s.ID }
func (s SensorFunc) Read(ctx context.Context) (any, error) { return s.Fn(ctx) }

// ActuatorFunc adapts a function to ports.Actuator.
type ActuatorFunc struct {
	ID string
	Fn func(ctx context.Context, value any) error
}

func (a ActuatorFunc) Name() string                               { return a.ID }
func (a ActuatorFunc) Write(ctx context.Context, value any) error { return a.Fn(ctx, value) }

// missing stands in for an unresolved resource so Configure can keep going.
type missing struct{ name string }

func (m missing) Name() string { return m.name }

func (m missing) Read(context.Context) (any, error) {
	return nil, fmt.Errorf("%s: %w", m.name, ErrUnknownResource)
}

func (m missing) Write(context.Context, any) error {
	return fmt.Errorf("%s: %w", m.name, ErrUnknownResource)
}

func (m missing) Load(context.Context, any) error {
	return fmt.Errorf("%s: %w", m.name, ErrNoSlotStore)
}

func (m missing) Store(context.Context, any) error {
	return fmt.Errorf("%s: %w", m.name, ErrNoSlotStore)
}

func (m missing) Clear(context.Context) error {
	return fmt.Errorf("%s: %w", m.name, ErrNoSlotStore)
}
