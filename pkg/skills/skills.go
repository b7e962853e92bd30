package skills

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
)

// Register adds the built-in skills to reg under the given name prefix.
func Register(reg *registry.Registry, prefix string) {
	reg.Register(prefix+"Wait", func() (ports.Skill, error) { return &Wait{}, nil })
	reg.Register(prefix+"WriteSlot", func() (ports.Skill, error) { return &WriteSlot{}, nil })
	reg.Register(prefix+"ReadSlot", func() (ports.Skill, error) { return &ReadSlot{}, nil })
}

// Wait succeeds once the configured duration has elapsed.
//
// Options: duration (default 1s; bare integers are milliseconds).
type Wait struct {
	duration time.Duration
	deadline time.Time
	success  domain.ExitToken
}

func (s *Wait) Configure(c ports.Configurator) error {
	s.duration = c.RequestOptionalDuration("duration", time.Second)
	if s.duration < 0 {
		return fmt.Errorf("negative duration %s", s.duration)
	}
	s.success = c.RequestExitToken(domain.Success())
	return nil
}

func (s *Wait) Init(context.Context) bool {
	s.deadline = time.Now().Add(s.duration)
	return true
}

func (s *Wait) Execute(context.Context) domain.ExitToken {
	remaining := time.Until(s.deadline)
	if remaining <= 0 {
		return s.success
	}
	return domain.Loop(remaining)
}

func (s *Wait) End(_ context.Context, t domain.ExitToken) domain.ExitToken { return t }

// WriteSlot stores a string value in a memory slot.
//
// Options: slot (required), value.
type WriteSlot struct {
	slot    ports.MemorySlot
	value   string
	success domain.ExitToken
	failure domain.ExitToken
}

func (s *WriteSlot) Configure(c ports.Configurator) error {
	s.slot = c.RequestSlot(c.RequestValue("slot"))
	s.value = c.RequestOptionalValue("value", "")
	s.success = c.RequestExitToken(domain.Success())
	s.failure = c.RequestExitToken(domain.Error())
	return nil
}

func (s *WriteSlot) Init(context.Context) bool { return true }

func (s *WriteSlot) Execute(ctx context.Context) domain.ExitToken {
	if err := s.slot.Store(ctx, s.value); err != nil {
		return s.failure
	}
	return s.success
}

func (s *WriteSlot) End(_ context.Context, t domain.ExitToken) domain.ExitToken { return t }

// ReadSlot succeeds when a memory slot holds a value.
// An empty slot yields ERROR.empty, a store failure ERROR.read.
//
// Options: slot (required).
type ReadSlot struct {
	slot    ports.MemorySlot
	Value   string
	success domain.ExitToken
	empty   domain.ExitToken
	failure domain.ExitToken
}

func (s *ReadSlot) Configure(c ports.Configurator) error {
	s.slot = c.RequestSlot(c.RequestValue("slot"))
	s.success = c.RequestExitToken(domain.Success())
	s.empty = c.RequestExitToken(domain.Error().WithProcessingStatus("empty"))
	s.failure = c.RequestExitToken(domain.Error().WithProcessingStatus("read"))
	return nil
}

func (s *ReadSlot) Init(context.Context) bool { return true }

func (s *ReadSlot) Execute(ctx context.Context) domain.ExitToken {
	err := s.slot.Load(ctx, &s.Value)
	switch {
	case err == nil:
		return s.success
	case errors.Is(err, domain.ErrSlotEmpty):
		return s.empty
	default:
		return s.failure
	}
}

func (s *ReadSlot) End(_ context.Context, t domain.ExitToken) domain.ExitToken { return t }
