package resource

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

// Slot is a memory slot storing JSON-encoded values in a SlotStore.
type Slot struct {
	name  string
	store ports.SlotStore
}

// NewSlot binds a slot name to a store.
func NewSlot(name string, store ports.SlotStore) *Slot {
	return &Slot{name: name, store: store}
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Load decodes the stored value into target.
func (s *Slot) Load(ctx context.Context, target any) error {
	raw, err := s.store.Get(ctx, s.name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("slot %s: %w", s.name, err)
	}
	return nil
}

// Store encodes value and writes it.
func (s *Slot) Store(ctx context.Context, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("slot %s: %w", s.name, err)
	}
	return s.store.Set(ctx, s.name, raw)
}

// Clear empties the slot.
func (s *Slot) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, s.name)
}
