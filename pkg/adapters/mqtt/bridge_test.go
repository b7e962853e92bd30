package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/mqtt"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type token struct {
	paho.Token
	err error
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	paho.Client
	mu           sync.Mutex
	published    []published
	handlers     map[string]paho.MessageHandler
	unsubscribed []string
	publishErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, retained, payload.([]byte)})
	return &token{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return &token{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &token{}
}

func (c *fakeClient) deliver(topic, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()
	h(c, &message{topic: topic, payload: []byte(payload)})
}

type message struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *message) Topic() string   { return m.topic }
func (m *message) Payload() []byte { return m.payload }

type fakeOrchestrator struct {
	ports.Orchestrator
	mu    sync.Mutex
	fired []string
}

func (f *fakeOrchestrator) FireEvent(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "reject" {
		return false, domain.ErrNotRunning
	}
	f.fired = append(f.fired, name)
	return false, nil
}

func TestBridgePublishesNotifications(t *testing.T) {
	client := newFakeClient()
	b := mqtt.New(client, "robot/bonsai/")
	ctx := context.Background()

	require.NoError(t, b.OnStatus(ctx, domain.StatusReport{Status: domain.MachineRunning, Active: []string{"Wait"}}))
	require.NoError(t, b.OnStatesChanged(ctx, domain.StateChange{Active: []string{"Wait"}}))
	require.NoError(t, b.OnException(ctx, domain.ExceptionEvent{StateID: "Wait", Message: "boom"}))

	require.Len(t, client.published, 3)
	assert.Equal(t, "robot/bonsai/status", client.published[0].topic)
	assert.True(t, client.published[0].retained)
	assert.Equal(t, "robot/bonsai/states", client.published[1].topic)
	assert.Equal(t, "robot/bonsai/exceptions", client.published[2].topic)
	assert.False(t, client.published[2].retained)

	var report domain.StatusReport
	require.NoError(t, json.Unmarshal(client.published[0].payload, &report))
	assert.Equal(t, domain.MachineRunning, report.Status)
}

func TestBridgePublishError(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("not connected")
	b := mqtt.New(client, "r")

	err := b.OnException(context.Background(), domain.ExceptionEvent{})
	assert.ErrorContains(t, err, "publish r/exceptions")
	assert.ErrorContains(t, err, "not connected")
}

func TestBridgeForwardsEvents(t *testing.T) {
	client := newFakeClient()
	orch := &fakeOrchestrator{}
	b := mqtt.New(client, "r")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Subscribe(ctx, orch))

	client.deliver("r/events", " Wait.SUCCESS\n")
	client.deliver("r/events", "")
	client.deliver("r/events", "reject")
	client.deliver("r/events", "go")
	assert.Equal(t, []string{"Wait.SUCCESS", "go"}, orch.fired)

	cancel()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.unsubscribed) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "r/events", client.unsubscribed[0])
}
