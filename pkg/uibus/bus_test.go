package uibus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/lenin/pkg/notify"
	"github.com/go-go-golems/lenin/pkg/realtime"
	"github.com/go-go-golems/lenin/pkg/redisstream"
)

func newBus(t *testing.T) *Bus {
	t.Helper()
	b, err := New(context.Background(), redisstream.DefaultSettings())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func next[T any](t *testing.T, ch <-chan *message.Message) T {
	t.Helper()
	var v T
	select {
	case m := <-ch:
		require.NoError(t, json.Unmarshal(m.Payload, &v))
		m.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return v
}

func TestMirrorChat_PublishesOnlyNewMessages(t *testing.T) {
	b := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chat := realtime.NewChatService("ws://x", nil, func() string { return "" })
	chat.Messages.Set([]realtime.ChatMessage{{From: "old", To: "ana", Content: "antes"}})

	msgs, err := b.Subscribe(ctx, TopicMessage)
	require.NoError(t, err)
	conn, err := b.Subscribe(ctx, TopicConnection)
	require.NoError(t, err)
	roster, err := b.Subscribe(ctx, TopicRoster)
	require.NoError(t, err)

	stop := b.MirrorChat(chat)
	defer stop()

	chat.Messages.Update(func(cur []realtime.ChatMessage) []realtime.ChatMessage {
		return append(cur, realtime.ChatMessage{From: "luis", To: "ana", Content: "hola"})
	})
	ev := next[MessageEvent](t, msgs)
	require.Equal(t, "hola", ev.Message.Content)

	chat.Connected.Set(true)
	require.True(t, next[ConnectionEvent](t, conn).Connected)

	chat.OnlineUsers.Set([]string{"ana", "luis"})
	require.Equal(t, []string{"ana", "luis"}, next[RosterEvent](t, roster).Users)
}

func TestMirrorNotices_PublishesSetAndClear(t *testing.T) {
	b := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := notify.NewChannel("ws://x", nil)
	events, err := b.Subscribe(ctx, TopicNotice)
	require.NoError(t, err)
	stop := b.MirrorNotices(ch)
	defer stop()

	ch.Show(notify.Notice{Tipo: "INFO", Mensaje: "hola"})
	require.Equal(t, "hola", next[NoticeEvent](t, events).Notice.Mensaje)

	ch.Disconnect()
	require.Nil(t, next[NoticeEvent](t, events).Notice)
}
