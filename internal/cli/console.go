package cli

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// console prints state changes and exceptions and reports when a started
// machine is no longer running.
type console struct {
	mu       sync.Mutex
	w        io.Writer
	quiet    bool
	started  bool
	finished chan struct{}
}

func newConsole(w io.Writer, quiet bool) *console {
	return &console{w: w, quiet: quiet, finished: make(chan struct{}, 1)}
}

// arm resets completion tracking before a new start.
func (c *console) arm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	select {
	case <-c.finished:
	default:
	}
}

func (c *console) OnStatus(_ context.Context, report domain.StatusReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch report.Status {
	case domain.MachineRunning, domain.MachinePaused:
		c.started = true
	case domain.MachineLoading:
	default:
		if c.started {
			c.started = false
			select {
			case c.finished <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

func (c *console) OnStatesChanged(_ context.Context, change domain.StateChange) error {
	if c.quiet || len(change.Active) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	printSystemMessage(c.w, "Active: %s", strings.Join(change.Active, ", "))
	return nil
}

func (c *console) OnException(_ context.Context, ev domain.ExceptionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	printSystemMessage(c.w, "Exception in '%s' (%s): %s", ev.StateID, ev.Skill, ev.Message)
	return nil
}
