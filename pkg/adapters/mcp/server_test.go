package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	ports.Orchestrator
	running bool
	fired   []string
	reload  *domain.LoadingResult
	chart   []byte
}

func (f *fakeOrchestrator) Start(context.Context) error {
	if f.chart == nil {
		return domain.ErrNotLoaded
	}
	f.running = true
	return nil
}

func (f *fakeOrchestrator) Stop() { f.running = false }

func (f *fakeOrchestrator) Status() domain.MachineStatus {
	return domain.ComputeStatus(false, f.chart != nil, f.running, false)
}

func (f *fakeOrchestrator) ActiveStates() []string {
	if f.running {
		return []string{"Wait"}
	}
	return nil
}

func (f *fakeOrchestrator) PossibleEvents() []string { return nil }

func (f *fakeOrchestrator) FireEvent(_ context.Context, name string) (bool, error) {
	if !f.running {
		return false, domain.ErrNotRunning
	}
	f.fired = append(f.fired, name)
	return false, nil
}

func (f *fakeOrchestrator) Reload(context.Context) *domain.LoadingResult { return f.reload }
func (f *fakeOrchestrator) Composed() []byte                             { return f.chart }

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestControlTools(t *testing.T) {
	orch := &fakeOrchestrator{chart: []byte("name: demo\n")}
	s := NewServer(orch, "test", nil)
	ctx := context.Background()

	start := s.controlHandler("start", orch.Start)
	resp, err := start(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MachineRunning, resp.Status)
	assert.Equal(t, []string{"Wait"}, resp.Active)

	resp, err = s.handleFireEvent(ctx, mcp.CallToolRequest{}, map[string]any{"event": "Wait.SUCCESS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Wait.SUCCESS"}, orch.fired)

	_, err = s.handleFireEvent(ctx, mcp.CallToolRequest{}, map[string]any{})
	assert.Error(t, err)

	orch.Stop()
	_, err = s.handleFireEvent(ctx, mcp.CallToolRequest{}, map[string]any{"event": "x"})
	assert.ErrorIs(t, err, domain.ErrNotRunning)

	resp, err = s.handleStatus(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MachineInitialized, resp.Status)
}

func TestStartWithoutChart(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := NewServer(orch, "test", nil)
	_, err := s.controlHandler("start", orch.Start)(context.Background(), mcp.CallToolRequest{}, nil)
	assert.ErrorIs(t, err, domain.ErrNotLoaded)
}

func TestReloadTool(t *testing.T) {
	orch := &fakeOrchestrator{reload: &domain.LoadingResult{}}
	s := NewServer(orch, "test", nil)

	res, err := s.handleReload(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "reloaded, 0 warning(s)", textOf(t, res))

	orch.reload = &domain.LoadingResult{LoadErrors: []error{errors.New("missing include")}}
	res, err = s.handleReload(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "missing include")
}

func TestChartResource(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := NewServer(orch, "test", nil)

	_, err := s.readChart(context.Background(), mcp.ReadResourceRequest{})
	assert.ErrorIs(t, err, domain.ErrNotLoaded)

	orch.chart = []byte("name: demo\n")
	contents, err := s.readChart(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, ChartURI, text.URI)
	assert.Equal(t, "name: demo\n", text.Text)
}
