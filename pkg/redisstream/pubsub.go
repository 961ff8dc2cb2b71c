package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PubSub is a watermill publisher/subscriber pair plus whatever must be closed with it.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Client is set when the pair runs on Redis Streams.
	Client *redis.Client

	closers []func() error
}

func (p *PubSub) Close() error {
	var first error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build returns a Redis Streams backed pair when enabled, and an in-memory go channel
// otherwise.
func Build(s Settings) (*PubSub, error) {
	logger := NewWatermillLogger(log.With().Str("component", "watermill").Logger())

	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}

	return &PubSub{
		Publisher:  pub,
		Subscriber: sub,
		Client:     client,
		closers:    []func() error{client.Close, pub.Close, sub.Close},
	}, nil
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($) if it doesn't
// exist, so a new group does not replay history.
func EnsureGroupAtTail(ctx context.Context, client *redis.Client, stream, group string) error {
	if client == nil {
		return nil
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "create group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
