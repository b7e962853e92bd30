package runtime

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

// listeners holds the registered listeners. Delivery iterates a copy, so
// registration during a broadcast is safe.
type listeners struct {
	mu         sync.RWMutex
	status     []ports.StatusListener
	exceptions []ports.ExceptionListener
}

func (l *listeners) statusSnapshot() []ports.StatusListener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.status)
}

func (l *listeners) exceptionSnapshot() []ports.ExceptionListener {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.exceptions)
}

// AddStatusListener registers l for heartbeat and state-change notifications.
func (c *Controller) AddStatusListener(l ports.StatusListener) {
	c.listeners.mu.Lock()
	defer c.listeners.mu.Unlock()
	c.listeners.status = append(c.listeners.status, l)
}

// RemoveStatusListener unregisters l.
func (c *Controller) RemoveStatusListener(l ports.StatusListener) {
	c.listeners.mu.Lock()
	defer c.listeners.mu.Unlock()
	c.listeners.status = slices.DeleteFunc(c.listeners.status, func(x ports.StatusListener) bool { return x == l })
}

// AddExceptionListener registers l for skill failures.
func (c *Controller) AddExceptionListener(l ports.ExceptionListener) {
	c.listeners.mu.Lock()
	defer c.listeners.mu.Unlock()
	c.listeners.exceptions = append(c.listeners.exceptions, l)
}

// RemoveExceptionListener unregisters l.
func (c *Controller) RemoveExceptionListener(l ports.ExceptionListener) {
	c.listeners.mu.Lock()
	defer c.listeners.mu.Unlock()
	c.listeners.exceptions = slices.DeleteFunc(c.listeners.exceptions, func(x ports.ExceptionListener) bool { return x == l })
}

// StatusReport builds the current heartbeat payload.
func (c *Controller) StatusReport() domain.StatusReport {
	return domain.StatusReport{
		Timestamp: time.Now(),
		Status:    c.Status(),
		Active:    c.ActiveStates(),
	}
}

func (c *Controller) notifyStatus() {
	report := c.StatusReport()
	c.dispatch.push(func(ctx context.Context) {
		for _, l := range c.listeners.statusSnapshot() {
			c.deliver("status", func() error { return l.OnStatus(ctx, report) })
		}
	})
}

func (c *Controller) notifyStates(change domain.StateChange) {
	c.dispatch.push(func(ctx context.Context) {
		for _, l := range c.listeners.statusSnapshot() {
			c.deliver("status", func() error { return l.OnStatesChanged(ctx, change) })
		}
	})
}

func (c *Controller) notifyException(ev domain.ExceptionEvent) {
	c.dispatch.push(func(ctx context.Context) {
		for _, l := range c.listeners.exceptionSnapshot() {
			c.deliver("exception", func() error { return l.OnException(ctx, ev) })
		}
	})
}

// deliver calls one listener. A failing or panicking listener is logged and
// never keeps the notification from the listeners after it.
func (c *Controller) deliver(kind string, call func() error) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error(kind+" listener panicked", "panic", p)
		}
	}()
	if err := call(); err != nil {
		c.logger.Warn(kind+" listener failed", "err", err)
	}
}

// beat broadcasts the status at every heartbeat tick until ctx is done.
func (c *Controller) beat(ctx context.Context) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.notifyStatus()
		}
	}
}

// dispatcher delivers notifications in order on its own goroutine so the
// control path never waits on a listener.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func(context.Context)
	wake   chan struct{}
	logger *slog.Logger
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1), logger: logger}
}

func (d *dispatcher) push(fn func(context.Context)) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			d.drain(ctx)
		}
	}
}

// drain delivers everything queued so far.
func (d *dispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			d.deliver(ctx, fn)
		}
	}
}

func (d *dispatcher) deliver(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("listener panicked", "panic", p)
		}
	}()
	fn(ctx)
}
