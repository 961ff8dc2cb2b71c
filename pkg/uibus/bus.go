// Package uibus mirrors observable client state onto watermill topics so a UI can follow it
// without holding references to the components.
package uibus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/notify"
	"github.com/go-go-golems/lenin/pkg/realtime"
	"github.com/go-go-golems/lenin/pkg/redisstream"
)

const (
	TopicConnection = "lenin.chat.connection"
	TopicMessage    = "lenin.chat.message"
	TopicRoster     = "lenin.chat.roster"
	TopicNotice     = "lenin.notice"
)

var Topics = []string{TopicConnection, TopicMessage, TopicRoster, TopicNotice}

type ConnectionEvent struct {
	Connected bool `json:"connected"`
}

type MessageEvent struct {
	Message realtime.ChatMessage `json:"message"`
}

type RosterEvent struct {
	Users []string `json:"users"`
}

// NoticeEvent carries the visible notice; nil means the slot was cleared.
type NoticeEvent struct {
	Notice *notify.Notice `json:"notice"`
}

type Bus struct {
	ps     *redisstream.PubSub
	logger zerolog.Logger
}

func New(ctx context.Context, s redisstream.Settings) (*Bus, error) {
	ps, err := redisstream.Build(s)
	if err != nil {
		return nil, err
	}
	b := &Bus{ps: ps, logger: log.With().Str("component", "uibus").Logger()}
	if ps.Client != nil {
		for _, topic := range Topics {
			if err := redisstream.EnsureGroupAtTail(ctx, ps.Client, topic, s.Group); err != nil {
				_ = ps.Close()
				return nil, err
			}
		}
	}
	return b, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.ps.Close()
}

// Publish sends v as a JSON message on topic.
func (b *Bus) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s event", topic)
	}
	return b.ps.Publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), payload))
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.ps.Subscriber.Subscribe(ctx, topic)
}

func (b *Bus) publishOrWarn(topic string, v any) {
	if err := b.Publish(topic, v); err != nil {
		b.logger.Warn().Err(err).Str("topic", topic).Msg("bus publish failed")
	}
}

// MirrorChat publishes chat connection, message and roster changes. The returned function
// stops mirroring.
func (b *Bus) MirrorChat(chat *realtime.ChatService) func() {
	seen := len(chat.Messages.Get())
	unsubs := []func(){
		chat.Connected.Subscribe(func(v bool) {
			b.publishOrWarn(TopicConnection, ConnectionEvent{Connected: v})
		}),
		chat.Messages.Subscribe(func(msgs []realtime.ChatMessage) {
			for ; seen < len(msgs); seen++ {
				b.publishOrWarn(TopicMessage, MessageEvent{Message: msgs[seen]})
			}
		}),
		chat.OnlineUsers.Subscribe(func(users []string) {
			b.publishOrWarn(TopicRoster, RosterEvent{Users: users})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// MirrorNotices publishes every change of the notice slot.
func (b *Bus) MirrorNotices(ch *notify.Channel) func() {
	return ch.NoticeValue().Subscribe(func(n *notify.Notice) {
		b.publishOrWarn(TopicNotice, NoticeEvent{Notice: n})
	})
}
