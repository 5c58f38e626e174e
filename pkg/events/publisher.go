package events

import (
	"context"
	"errors"

	"cargoride/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, event *models.DomainEvent) error
}

// Fanout delivers every event to each publisher; one failing sink does not starve the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event *models.DomainEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcaster is the slice of the Redis cache the pub/sub publisher needs.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// RedisPublisher fans committed domain events out on a Redis pub/sub channel.
type RedisPublisher struct {
	broadcaster Broadcaster
	channel     string
}

func NewRedisPublisher(broadcaster Broadcaster, channel string) *RedisPublisher {
	return &RedisPublisher{broadcaster: broadcaster, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *models.DomainEvent) error {
	return p.broadcaster.Publish(ctx, p.channel, event)
}

func (p *RedisPublisher) Close() error {
	return nil
}

// NoopPublisher drops every event. Used when events.backend is "none".
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, *models.DomainEvent) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
