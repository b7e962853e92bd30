package resource

import (
	"errors"
	"sort"
	"sync"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

var (
	// ErrUnknownResource is recorded when a skill requests an unregistered sensor or actuator.
	ErrUnknownResource = errors.New("unknown resource")

	// ErrMissingOption is recorded when a required option is absent.
	ErrMissingOption = errors.New("missing required option")

	// ErrNoSlotStore is recorded when a slot is requested but no store is configured.
	ErrNoSlotStore = errors.New("no slot store configured")
)

// Catalog is the set of resources available to skills.
// Safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	sensors   map[string]ports.Sensor
	actuators map[string]ports.Actuator
	store     ports.SlotStore
}

// NewCatalog creates a catalog backed by the given slot store (may be nil).
func NewCatalog(store ports.SlotStore) *Catalog {
	return &Catalog{
		sensors:   make(map[string]ports.Sensor),
		actuators: make(map[string]ports.Actuator),
		store:     store,
	}
}

// AddSensor registers a sensor under its name.
func (c *Catalog) AddSensor(s ports.Sensor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sensors[s.Name()] = s
}

// AddActuator registers an actuator under its name.
func (c *Catalog) AddActuator(a ports.Actuator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actuators[a.Name()] = a
}

// SetStore replaces the slot store.
func (c *Catalog) SetStore(store ports.SlotStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = store
}

// Store returns the slot store, or nil.
func (c *Catalog) Store() ports.SlotStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// Sensors lists registered sensor names, sorted.
func (c *Catalog) Sensors() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.sensors)
}

// Actuators lists registered actuator names, sorted.
func (c *Catalog) Actuators() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.actuators)
}

// Configurator returns a fresh configurator for one state and its options.
func (c *Catalog) Configurator(stateID string, options map[string]string) *Configurator {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}
	return &Configurator{
		catalog: c,
		stateID: stateID,
		options: opts,
	}
}

func (c *Catalog) sensor(name string) (ports.Sensor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sensors[name]
	return s, ok
}

func (c *Catalog) actuator(name string) (ports.Actuator, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actuators[name]
	return a, ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
