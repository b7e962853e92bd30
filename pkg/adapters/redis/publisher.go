package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Channel suffixes used by Publisher.
const (
	ChannelStatus     = "status"
	ChannelStates     = "states"
	ChannelExceptions = "exceptions"
)

// Publisher forwards status, state changes and exceptions to Redis pub/sub
// channels as JSON. The latest status report is also kept under <prefix>status.
type Publisher struct {
	client *backend.Client
	prefix string
}

var (
	_ ports.StatusListener    = (*Publisher)(nil)
	_ ports.ExceptionListener = (*Publisher)(nil)
)

// NewPublisher creates a publisher writing to channels under prefix.
func NewPublisher(client *backend.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Channel returns the full channel name for a suffix.
func (p *Publisher) Channel(suffix string) string {
	return p.prefix + suffix
}

func (p *Publisher) OnStatus(ctx context.Context, report domain.StatusReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.Channel(ChannelStatus), raw, 0)
	pipe.Publish(ctx, p.Channel(ChannelStatus), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

func (p *Publisher) OnStatesChanged(ctx context.Context, change domain.StateChange) error {
	return p.publish(ctx, ChannelStates, change)
}

func (p *Publisher) OnException(ctx context.Context, ev domain.ExceptionEvent) error {
	return p.publish(ctx, ChannelExceptions, ev)
}

func (p *Publisher) publish(ctx context.Context, suffix string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.Channel(suffix), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", suffix, err)
	}
	return nil
}
