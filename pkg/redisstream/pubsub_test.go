package redisstream

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBuild_InMemoryRoundTrip(t *testing.T) {
	ps, err := Build(DefaultSettings())
	require.NoError(t, err)
	require.Nil(t, ps.Client)
	defer func() { require.NoError(t, ps.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := ps.Subscriber.Subscribe(ctx, "lenin.test")
	require.NoError(t, err)

	require.NoError(t, ps.Publisher.Publish("lenin.test", message.NewMessage(watermill.NewUUID(), []byte(`{"ok":true}`))))

	select {
	case m := <-msgs:
		require.JSONEq(t, `{"ok":true}`, string(m.Payload))
		m.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}
}

func TestEnsureGroupAtTail_NilClient(t *testing.T) {
	require.NoError(t, EnsureGroupAtTail(context.Background(), nil, "s", "g"))
}

func TestWatermillLogger_WithKeepsFields(t *testing.T) {
	l := NewWatermillLogger(zerolog.Nop())
	child := l.With(watermill.LogFields{"topic": "x"})
	require.NotNil(t, child)
	child.Info("hello", watermill.LogFields{"n": 1})
	child.Error("boom", nil, nil)
}
