package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/runtime"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/memory"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu         sync.Mutex
	fail       bool
	statuses   []domain.MachineStatus
	changes    []domain.StateChange
	exceptions []domain.ExceptionEvent
}

func (r *recorder) OnStatus(_ context.Context, report domain.StatusReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, report.Status)
	if r.fail {
		return errors.New("listener offline")
	}
	return nil
}

func (r *recorder) OnStatesChanged(_ context.Context, change domain.StateChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
	if r.fail {
		return errors.New("listener offline")
	}
	return nil
}

func (r *recorder) OnException(_ context.Context, ev domain.ExceptionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, ev)
	if r.fail {
		return errors.New("listener offline")
	}
	return nil
}

func (r *recorder) count() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses), len(r.changes), len(r.exceptions)
}

func TestHeartbeatReachesEveryListener(t *testing.T) {
	c := runtime.New(memory.NewLoader(nil), runtime.WithHeartbeat(5*time.Millisecond))
	defer c.Close()

	broken := &recorder{fail: true}
	healthy := &recorder{}
	c.AddStatusListener(broken)
	c.AddStatusListener(healthy)

	require.Eventually(t, func() bool {
		n, _, _ := healthy.count()
		return n >= 3
	}, time.Second, 5*time.Millisecond)

	c.RemoveStatusListener(healthy)
	_ = c.Close()
	n, _, _ := healthy.count()
	time.Sleep(20 * time.Millisecond)
	after, _, _ := healthy.count()
	assert.Equal(t, n, after, "no delivery after removal and close")

	broken.mu.Lock()
	defer broken.mu.Unlock()
	assert.Contains(t, broken.statuses, domain.MachineUnknown)
}

func TestStateChangesAndExceptionsAreBroadcast(t *testing.T) {
	reg := registry.NewRegistry()
	register(reg, "Count", &skillStats{}, testSkill{initOK: false})
	c := runtime.New(memory.NewLoader(map[string]string{"loop.yaml": loopChart}),
		runtime.WithRegistry(reg), runtime.WithHeartbeat(0))

	rec := &recorder{}
	c.AddStatusListener(rec)
	c.AddExceptionListener(&recorder{fail: true})
	c.AddExceptionListener(rec)

	require.NoError(t, c.Load(context.Background(), "loop.yaml", nil).Err())
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return !c.Running() }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.exceptions, 1)
	assert.Equal(t, "Count", rec.exceptions[0].Skill)

	require.GreaterOrEqual(t, len(rec.changes), 2)
	assert.Equal(t, []string{"Count"}, rec.changes[0].Active)
	assert.Equal(t, []string{"Count.SUCCESS", "Count.*"}, rec.changes[0].Possible)
	var reachedFailed bool
	for _, ch := range rec.changes {
		reachedFailed = reachedFailed || assert.ObjectsAreEqual([]string{"Failed"}, ch.Active)
	}
	assert.True(t, reachedFailed)
	assert.Contains(t, rec.statuses, domain.MachineRunning)
}

type panicking struct{}

func (panicking) OnStatus(context.Context, domain.StatusReport) error { panic("display detached") }

func (panicking) OnStatesChanged(context.Context, domain.StateChange) error {
	panic("display detached")
}

func (panicking) OnException(context.Context, domain.ExceptionEvent) error {
	panic("display detached")
}

func TestPanickingListenerDoesNotStarveOthers(t *testing.T) {
	reg := registry.NewRegistry()
	register(reg, "Count", &skillStats{}, testSkill{initOK: false})
	c := runtime.New(memory.NewLoader(map[string]string{"loop.yaml": loopChart}),
		runtime.WithRegistry(reg), runtime.WithHeartbeat(5*time.Millisecond))
	defer c.Close()

	healthy := &recorder{}
	c.AddStatusListener(panicking{})
	c.AddStatusListener(healthy)
	c.AddExceptionListener(panicking{})
	c.AddExceptionListener(healthy)

	require.Eventually(t, func() bool {
		n, _, _ := healthy.count()
		return n >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Load(context.Background(), "loop.yaml", nil).Err())
	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		_, changes, exceptions := healthy.count()
		return changes >= 2 && exceptions == 1
	}, time.Second, 5*time.Millisecond)
}
