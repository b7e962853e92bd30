package ports

import (
	"context"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Skill is one unit of robot behavior bound to a simple state.
//
// A fresh instance is created for every entry into the state. Configure is
// called first and must only declare resources and outcomes; Init runs once;
// Execute is called repeatedly until it returns a terminal token; End runs
// exactly once with that token and returns the token actually delivered.
type Skill interface {
	Configure(c Configurator) error
	Init(ctx context.Context) bool
	Execute(ctx context.Context) domain.ExitToken
	End(ctx context.Context, token domain.ExitToken) domain.ExitToken
}

// Configurator is the resource catalogue handed to Skill.Configure.
// Resolution failures are recorded and reported after Configure returns,
// so skills may request everything without checking each call.
type Configurator interface {
	// StateID is the id of the state the skill is configured for.
	StateID() string

	// RequestExitToken declares an outcome the skill may produce.
	RequestExitToken(status domain.ExitStatus) domain.ExitToken

	RequestSensor(name string) Sensor
	RequestActuator(name string) Actuator
	RequestSlot(name string) MemorySlot

	// RequestValue returns a required option; a missing key is an error.
	RequestValue(key string) string
	RequestOptionalValue(key, def string) string
	RequestOptionalInt(key string, def int) int
	RequestOptionalBool(key string, def bool) bool
	RequestOptionalDuration(key string, def time.Duration) time.Duration

	// DecodeOptions decodes all options of the state into target.
	DecodeOptions(target any) error
}

// Sensor reads a value from the robot.
type Sensor interface {
	Name() string
	Read(ctx context.Context) (any, error)
}

// Actuator commands the robot.
type Actuator interface {
	Name() string
	Write(ctx context.Context, value any) error
}

// MemorySlot is a named, typed read/write value shared between skills.
type MemorySlot interface {
	Name() string
	// Load decodes the stored value into target. Returns domain.ErrSlotEmpty if unset.
	Load(ctx context.Context, target any) error
	Store(ctx context.Context, value any) error
	Clear(ctx context.Context) error
}

// SlotStore is the raw backend behind memory slots.
type SlotStore interface {
	// Get returns domain.ErrSlotEmpty when the slot holds no value.
	Get(ctx context.Context, name string) ([]byte, error)
	Set(ctx context.Context, name string, value []byte) error
	Delete(ctx context.Context, name string) error
	Keys(ctx context.Context) ([]string, error)
}
