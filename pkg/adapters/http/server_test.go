package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	bhttp "github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/http"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	running  bool
	loaded   bool
	fired    []string
	status   []ports.StatusListener
	excs     []ports.ExceptionListener
	reloadOK bool
}

func (f *fakeOrchestrator) Reload(context.Context) *domain.LoadingResult {
	if !f.reloadOK {
		return &domain.LoadingResult{LoadErrors: []error{errors.New("broken include")}}
	}
	return &domain.LoadingResult{}
}

func (f *fakeOrchestrator) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return domain.ErrNotLoaded
	}
	f.running = true
	return nil
}

func (f *fakeOrchestrator) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeOrchestrator) Pause()  {}
func (f *fakeOrchestrator) Resume() {}

func (f *fakeOrchestrator) FireEvent(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return false, domain.ErrNotRunning
	}
	f.fired = append(f.fired, name)
	return name == "done", nil
}

func (f *fakeOrchestrator) Status() domain.MachineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ComputeStatus(false, f.loaded, f.running, false)
}

func (f *fakeOrchestrator) ActiveStates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	return []string{"Wait"}
}

func (f *fakeOrchestrator) PossibleEvents() []string { return []string{"Wait.SUCCESS"} }

func (f *fakeOrchestrator) Exceptions() []domain.ExceptionEvent {
	return []domain.ExceptionEvent{{ID: "1", StateID: "Wait", Skill: "Wait", Message: "boom"}}
}

func (f *fakeOrchestrator) Composed() []byte {
	if !f.loaded {
		return nil
	}
	return []byte("name: demo\n")
}

func (f *fakeOrchestrator) AddStatusListener(l ports.StatusListener)  { f.status = append(f.status, l) }
func (f *fakeOrchestrator) RemoveStatusListener(ports.StatusListener) {}
func (f *fakeOrchestrator) AddExceptionListener(l ports.ExceptionListener) {
	f.excs = append(f.excs, l)
}
func (f *fakeOrchestrator) RemoveExceptionListener(ports.ExceptionListener) {}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestControlEndpoints(t *testing.T) {
	orch := &fakeOrchestrator{loaded: true}
	h := bhttp.NewHandler(orch)

	rec := do(t, h, http.MethodPost, "/start")
	require.Equal(t, http.StatusOK, rec.Code)
	var st bhttp.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, domain.MachineRunning, st.Status)
	assert.Equal(t, []string{"Wait"}, st.Active)

	rec = do(t, h, http.MethodPost, "/events/Wait.SUCCESS")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev bhttp.EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "Wait.SUCCESS", ev.Event)
	assert.False(t, ev.Final)

	rec = do(t, h, http.MethodGet, "/states")
	require.Equal(t, http.StatusOK, rec.Code)
	var states bhttp.StatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	assert.Equal(t, []string{"Wait.SUCCESS"}, states.Possible)

	rec = do(t, h, http.MethodPost, "/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Empty(t, st.Active)

	assert.Equal(t, []string{"Wait.SUCCESS"}, orch.fired)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"start without chart", http.MethodPost, "/start", http.StatusConflict},
		{"event while stopped", http.MethodPost, "/events/go", http.StatusConflict},
		{"chart without load", http.MethodGet, "/chart", http.StatusConflict},
		{"failed reload", http.MethodPost, "/reload", http.StatusUnprocessableEntity},
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := bhttp.NewHandler(&fakeOrchestrator{})
			rec := do(t, h, tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestReloadReportsErrors(t *testing.T) {
	h := bhttp.NewHandler(&fakeOrchestrator{})
	rec := do(t, h, http.MethodPost, "/reload")
	var resp bhttp.ReloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, []string{"broken include"}, resp.Errors)
}

func TestChartAndExceptions(t *testing.T) {
	h := bhttp.NewHandler(&fakeOrchestrator{loaded: true})

	rec := do(t, h, http.MethodGet, "/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "name: demo\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/exceptions")
	require.Equal(t, http.StatusOK, rec.Code)
	var excs []domain.ExceptionEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &excs))
	require.Len(t, excs, 1)
	assert.Equal(t, "boom", excs[0].Message)
}

func TestCORSPreflight(t *testing.T) {
	h := bhttp.NewHandler(&fakeOrchestrator{})
	rec := do(t, h, http.MethodOptions, "/start")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "bonsai_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	rec := do(t, bhttp.NewHandler(&fakeOrchestrator{}, bhttp.WithMetrics(reg)), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bonsai_test_total 1")

	rec = do(t, bhttp.NewHandler(&fakeOrchestrator{}), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebsocketStream(t *testing.T) {
	orch := &fakeOrchestrator{loaded: true}
	srv := bhttp.NewServer(orch)
	require.Len(t, orch.status, 1)
	require.Len(t, orch.excs, 1)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return srv.Streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, orch.status[0].OnStatesChanged(ctx, domain.StateChange{Active: []string{"Wait"}}))
	require.NoError(t, orch.excs[0].OnException(ctx, domain.ExceptionEvent{StateID: "Wait", Message: "boom"}))

	var first, second struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, bhttp.MessageStates, first.Type)
	var change domain.StateChange
	require.NoError(t, json.Unmarshal(first.Data, &change))
	assert.Equal(t, []string{"Wait"}, change.Active)

	assert.Equal(t, bhttp.MessageException, second.Type)
	var exc domain.ExceptionEvent
	require.NoError(t, json.Unmarshal(second.Data, &exc))
	assert.Equal(t, "boom", exc.Message)
}

func TestSlowSubscriberDropsMessages(t *testing.T) {
	sm := bhttp.NewStreamManager(discard())
	msgs, cancel := sm.Subscribe()
	defer cancel()

	for range 100 {
		require.NoError(t, sm.Broadcast(bhttp.MessageStatus, domain.StatusReport{}))
	}
	assert.Equal(t, 32, len(msgs))

	cancel()
	cancel()
	assert.Equal(t, 0, sm.Subscribers())
}
