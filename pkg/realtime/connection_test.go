package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	body  []byte
}

type fakeSub struct {
	t     *fakeTransport
	topic string
}

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.subs, s.topic)
	return nil
}

type fakeTransport struct {
	mu          sync.Mutex
	opts        TransportOptions
	h           TransportHandler
	activated   int
	deactivated int
	subs        map[string]func([]byte)
	subscribed  []string
	published   []published
	publishErr  error
}

func (f *fakeTransport) Activate(h TransportHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = h
	f.activated++
	return nil
}

func (f *fakeTransport) Deactivate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated++
	return nil
}

func (f *fakeTransport) Subscribe(topic string, deliver func([]byte)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = map[string]func([]byte){}
	}
	f.subs[topic] = deliver
	f.subscribed = append(f.subscribed, topic)
	return &fakeSub{t: f, topic: topic}, nil
}

func (f *fakeTransport) Publish(topic string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{topic: topic, body: body})
	return nil
}

func (f *fakeTransport) handler() TransportHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

// connect simulates a successful (re)connection.
func (f *fakeTransport) connect() {
	h := f.handler()
	h.OnConnecting()
	h.OnConnect()
}

// drop simulates the server closing the session.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.subs = nil
	h := f.h
	f.mu.Unlock()
	h.OnDisconnect()
}

func (f *fakeTransport) deliver(topic string, body string) {
	f.mu.Lock()
	fn := f.subs[topic]
	f.mu.Unlock()
	if fn != nil {
		fn([]byte(body))
	}
}

type fakeFactory struct {
	mu    sync.Mutex
	built []*fakeTransport
}

func (ff *fakeFactory) factory(opts TransportOptions) (Transport, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	t := &fakeTransport{opts: opts}
	ff.built = append(ff.built, t)
	return t, nil
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.built)
}

func (ff *fakeFactory) last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.built[len(ff.built)-1]
}

func staticToken(tok string) func() string { return func() string { return tok } }

func TestChat_ConnectWithoutTokenIsNoop(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x/ws/websocket", ff.factory, staticToken(""))

	require.NoError(t, s.Connect())
	require.Equal(t, 0, ff.count())
	require.Equal(t, Disconnected, s.Connection().State())
}

func TestChat_ConnectSendsBearerAndFixedDelay(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x/ws/websocket", ff.factory, staticToken("T1"))

	require.NoError(t, s.Connect())
	require.NoError(t, s.Connect())
	require.Equal(t, 1, ff.count())

	ft := ff.last()
	require.Equal(t, "Bearer T1", ft.opts.ConnectHeaders["Authorization"])
	require.Equal(t, DefaultReconnectDelay, ft.opts.ReconnectDelay)
	require.Equal(t, "ws://x/ws/websocket", ft.opts.URL)
	require.Equal(t, 1, ft.activated)
}

func TestChat_ResubscribesOnEveryConnect(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x", ff.factory, staticToken("T1"))
	require.NoError(t, s.Connect())
	ft := ff.last()

	ft.connect()
	require.True(t, s.Connected.Get())
	require.Equal(t, 2, s.Connection().Subscriptions())

	ft.drop()
	require.False(t, s.Connected.Get())
	require.Equal(t, 0, s.Connection().Subscriptions())
	require.False(t, s.SendPrivateMessage("luis", "mientras tanto"))

	ft.connect()
	require.True(t, s.Connected.Get())
	require.Equal(t, 2, s.Connection().Subscriptions())
	require.Equal(t, []string{
		TopicOnlineUsers, TopicPrivateMessages,
		TopicOnlineUsers, TopicPrivateMessages,
	}, ft.subscribed)

	// nothing sent while down is replayed after the reconnect
	ft.mu.Lock()
	require.Empty(t, ft.published)
	ft.mu.Unlock()
}

func TestChat_PublishRequiresConnected(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x", ff.factory, staticToken("T1"))

	require.False(t, s.SendPrivateMessage("luis", "hola"))

	require.NoError(t, s.Connect())
	ft := ff.last()
	require.False(t, s.SendPrivateMessage("luis", "hola"))

	ft.connect()
	require.True(t, s.SendPrivateMessage("luis", "hola"))
	require.Len(t, ft.published, 1)
	require.Equal(t, DestinationPrivate, ft.published[0].topic)
	require.JSONEq(t, `{"to":"luis","content":"hola"}`, string(ft.published[0].body))

	// no local echo
	require.Empty(t, s.Messages.Get())
}

func TestChat_PublishTransportFailureIsDropped(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x", ff.factory, staticToken("T1"))
	require.NoError(t, s.Connect())
	ft := ff.last()
	ft.connect()

	ft.publishErr = errors.New("broken pipe")
	require.False(t, s.SendPrivateMessage("luis", "hola"))
	require.Equal(t, Connected, s.Connection().State())
}

func TestChat_DecodeFaultKeepsSubscription(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x", ff.factory, staticToken("T1"))
	require.NoError(t, s.Connect())
	ft := ff.last()
	ft.connect()

	ft.deliver(TopicPrivateMessages, `{not json`)
	ft.deliver(TopicPrivateMessages, `{"from":"luis","to":"ana","content":"hola"}`)
	ft.deliver(TopicPrivateMessages, `{"to":"luis","content":"qué tal"}`)
	ft.deliver(TopicOnlineUsers, `["ana","luis"]`)

	require.Equal(t, []ChatMessage{
		{From: "luis", To: "ana", Content: "hola"},
		{To: "luis", Content: "qué tal"},
	}, s.Messages.Get())
	require.Equal(t, []string{"ana", "luis"}, s.OnlineUsers.Get())
	require.Equal(t, 2, s.Connection().Subscriptions())
}

func TestChat_TransportErrorOnlyLogs(t *testing.T) {
	ff := &fakeFactory{}
	s := NewChatService("ws://x", ff.factory, staticToken("T1"))
	require.NoError(t, s.Connect())
	ft := ff.last()
	ft.connect()

	ft.handler().OnError(errors.New("STOMP ERROR frame"))
	require.Equal(t, Connected, s.Connection().State())
	require.Equal(t, 2, s.Connection().Subscriptions())
}

func TestConnection_DisconnectIsIdempotentAndIgnoresStaleCallbacks(t *testing.T) {
	ff := &fakeFactory{}
	c := NewConnection("ws://x", ff.factory, WithRoute(TopicNotifications, func([]byte) error { return nil }))

	c.Disconnect()
	require.Equal(t, Disconnected, c.State())

	require.NoError(t, c.Connect())
	ft := ff.last()
	ft.connect()
	require.Equal(t, Connected, c.State())

	c.Disconnect()
	c.Disconnect()
	require.Equal(t, 1, ft.deactivated)
	require.Equal(t, Disconnected, c.State())

	ft.connect()
	require.Equal(t, Disconnected, c.State())
	require.Equal(t, 0, c.Subscriptions())

	// a fresh Connect builds a new transport
	require.NoError(t, c.Connect())
	require.Equal(t, 2, ff.count())
	require.Empty(t, ff.last().opts.ConnectHeaders)
}

func TestConnection_LateConnectNeverOverridesDisconnect(t *testing.T) {
	ff := &fakeFactory{}
	c := NewConnection("ws://x", ff.factory, WithRoute(TopicNotifications, func([]byte) error { return nil }))

	for i := 0; i < 500; i++ {
		require.NoError(t, c.Connect())
		h := ff.last().handler()
		h.OnConnecting()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.OnConnect()
		}()
		go func() {
			defer wg.Done()
			c.Disconnect()
		}()
		wg.Wait()

		require.Equal(t, Disconnected, c.State(), "iteration %d", i)
		require.Equal(t, 0, c.Subscriptions(), "iteration %d", i)
	}
}

func TestConnection_DeliveriesPreserveOrder(t *testing.T) {
	ff := &fakeFactory{}
	var mu sync.Mutex
	var got []int
	c := NewConnection("ws://x", ff.factory, WithRoute("/topic/n", func(body []byte) error {
		var n int
		if err := json.Unmarshal(body, &n); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, c.Connect())
	ft := ff.last()
	ft.connect()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			ft.deliver("/topic/n", string(rune('0'+i%10)))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delivery stalled")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 20)
	for i := range got {
		require.Equal(t, i%10, got[i])
	}
}
