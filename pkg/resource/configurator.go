package resource

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/mitchellh/mapstructure"
)

// RequestKind names the kind of resource a skill asked for.
type RequestKind string

const (
	RequestSensor   RequestKind = "sensor"
	RequestActuator RequestKind = "actuator"
	RequestSlot     RequestKind = "slot"
	RequestOption   RequestKind = "option"
)

// Request is one resource binding made during Configure.
type Request struct {
	Kind RequestKind
	Name string
}

// Configurator implements ports.Configurator for one state.
// It is used by a single goroutine during Skill.Configure.
type Configurator struct {
	catalog  *Catalog
	stateID  string
	options  map[string]string
	outcomes []domain.ExitStatus
	requests []Request
	errs     []error
}

var _ ports.Configurator = (*Configurator)(nil)

// StateID returns the id of the configured state.
func (c *Configurator) StateID() string { return c.stateID }

// RequestExitToken declares an outcome; declaring the same status twice is a no-op.
func (c *Configurator) RequestExitToken(status domain.ExitStatus) domain.ExitToken {
	for _, s := range c.outcomes {
		if s == status {
			return domain.Exit(status)
		}
	}
	c.outcomes = append(c.outcomes, status)
	return domain.Exit(status)
}

// RequestSensor binds a registered sensor.
func (c *Configurator) RequestSensor(name string) ports.Sensor {
	c.requests = append(c.requests, Request{Kind: RequestSensor, Name: name})
	if s, ok := c.catalog.sensor(name); ok {
		return s
	}
	c.fail(fmt.Errorf("sensor %q: %w", name, ErrUnknownResource))
	return missing{name: name}
}

// RequestActuator binds a registered actuator.
func (c *Configurator) RequestActuator(name string) ports.Actuator {
	c.requests = append(c.requests, Request{Kind: RequestActuator, Name: name})
	if a, ok := c.catalog.actuator(name); ok {
		return a
	}
	c.fail(fmt.Errorf("actuator %q: %w", name, ErrUnknownResource))
	return missing{name: name}
}

// RequestSlot binds a memory slot. Any name is valid while a store is configured.
func (c *Configurator) RequestSlot(name string) ports.MemorySlot {
	c.requests = append(c.requests, Request{Kind: RequestSlot, Name: name})
	store := c.catalog.Store()
	if store == nil {
		c.fail(fmt.Errorf("slot %q: %w", name, ErrNoSlotStore))
		return missing{name: name}
	}
	return NewSlot(name, store)
}

// RequestValue returns a required option.
func (c *Configurator) RequestValue(key string) string {
	c.requests = append(c.requests, Request{Kind: RequestOption, Name: key})
	v, ok := c.options[key]
	if !ok {
		c.fail(fmt.Errorf("option %q: %w", key, ErrMissingOption))
	}
	return v
}

// RequestOptionalValue returns an option or def.
func (c *Configurator) RequestOptionalValue(key, def string) string {
	c.requests = append(c.requests, Request{Kind: RequestOption, Name: key})
	if v, ok := c.options[key]; ok {
		return v
	}
	return def
}

// RequestOptionalInt returns an integer option or def. A malformed value is an error.
func (c *Configurator) RequestOptionalInt(key string, def int) int {
	raw, ok := c.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.fail(fmt.Errorf("option %q: %w", key, err))
		return def
	}
	return v
}

// RequestOptionalBool returns a boolean option or def. A malformed value is an error.
func (c *Configurator) RequestOptionalBool(key string, def bool) bool {
	raw, ok := c.lookup(key)
	if !ok {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.fail(fmt.Errorf("option %q: %w", key, err))
		return def
	}
	return v
}

// RequestOptionalDuration returns a duration option or def.
// Bare integers are read as milliseconds.
func (c *Configurator) RequestOptionalDuration(key string, def time.Duration) time.Duration {
	raw, ok := c.lookup(key)
	if !ok {
		return def
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		c.fail(fmt.Errorf("option %q: %w", key, err))
		return def
	}
	return v
}

// DecodeOptions decodes the options into target using `option` struct tags.
func (c *Configurator) DecodeOptions(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "option",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			millisecondsHook,
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	input := make(map[string]any, len(c.options))
	for k, v := range c.options {
		input[k] = v
	}
	if err := decoder.Decode(input); err != nil {
		err = fmt.Errorf("decode options: %w", err)
		c.fail(err)
		return err
	}
	return nil
}

// Outcomes returns the declared outcomes in declaration order.
func (c *Configurator) Outcomes() []domain.ExitStatus {
	return append([]domain.ExitStatus(nil), c.outcomes...)
}

// Requests returns the resource bindings made so far.
func (c *Configurator) Requests() []Request {
	return append([]Request(nil), c.requests...)
}

// Err joins every resolution failure, or returns nil.
func (c *Configurator) Err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return fmt.Errorf("configure %s: %w", c.stateID, errors.Join(c.errs...))
}

func (c *Configurator) lookup(key string) (string, bool) {
	c.requests = append(c.requests, Request{Kind: RequestOption, Name: key})
	v, ok := c.options[key]
	return v, ok
}

func (c *Configurator) fail(err error) {
	c.errs = append(c.errs, err)
}

// millisecondsHook reads bare integers as milliseconds when decoding into a time.Duration.
func millisecondsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	if ms, err := strconv.Atoi(data.(string)); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return data, nil
}
