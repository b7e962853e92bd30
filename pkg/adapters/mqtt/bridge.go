package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes below the bridge prefix.
const (
	TopicStatus     = "status"
	TopicStates     = "states"
	TopicExceptions = "exceptions"
	TopicEvents     = "events"
)

// DefaultTimeout bounds every broker round trip.
const DefaultTimeout = 5 * time.Second

// Bridge publishes listener notifications and forwards remote events.
type Bridge struct {
	client  paho.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithQoS sets the quality of service for publish and subscribe.
func WithQoS(qos byte) Option {
	return func(b *Bridge) {
		b.qos = qos
	}
}

// WithTimeout bounds broker round trips.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// New creates a bridge over a connected client. prefix is the topic root,
// e.g. "robot/bonsai".
func New(client paho.Client, prefix string, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		prefix:  strings.TrimSuffix(prefix, "/"),
		qos:     1,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dial connects a client to broker, e.g. "tcp://localhost:1883".
func Dial(broker, clientID string, timeout time.Duration) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

// Topic returns the full topic for suffix.
func (b *Bridge) Topic(suffix string) string {
	return b.prefix + "/" + suffix
}

func (b *Bridge) publish(suffix string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := b.Topic(suffix)
	return b.wait(b.client.Publish(topic, b.qos, retained, payload), "publish "+topic)
}

func (b *Bridge) wait(token paho.Token, op string) error {
	if !token.WaitTimeout(b.timeout) {
		return fmt.Errorf("mqtt %s: timeout after %s", op, b.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}

// OnStatus publishes the heartbeat as a retained message.
func (b *Bridge) OnStatus(_ context.Context, report domain.StatusReport) error {
	return b.publish(TopicStatus, true, report)
}

func (b *Bridge) OnStatesChanged(_ context.Context, change domain.StateChange) error {
	return b.publish(TopicStates, true, change)
}

func (b *Bridge) OnException(_ context.Context, ev domain.ExceptionEvent) error {
	return b.publish(TopicExceptions, false, ev)
}

// Subscribe fires every payload received on <prefix>/events into orch
// until ctx is done. Payloads are event names; surrounding whitespace is
// ignored and empty payloads are dropped.
func (b *Bridge) Subscribe(ctx context.Context, orch ports.Orchestrator) error {
	topic := b.Topic(TopicEvents)
	handler := func(_ paho.Client, msg paho.Message) {
		event := strings.TrimSpace(string(msg.Payload()))
		if event == "" {
			return
		}
		if _, err := orch.FireEvent(ctx, event); err != nil {
			b.logger.Warn("remote event rejected", "event", event, "err", err)
			return
		}
		b.logger.Debug("remote event fired", "event", event, "topic", msg.Topic())
	}
	if err := b.wait(b.client.Subscribe(topic, b.qos, handler), "subscribe "+topic); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := b.wait(b.client.Unsubscribe(topic), "unsubscribe "+topic); err != nil {
			b.logger.Warn("mqtt unsubscribe failed", "err", err)
		}
	}()
	return nil
}
