package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/lenin/pkg/realtime"
)

type stubTransport struct {
	mu      sync.Mutex
	opts    realtime.TransportOptions
	h       realtime.TransportHandler
	deliver map[string]func([]byte)
}

type stubSub struct{}

func (stubSub) Unsubscribe() error { return nil }

func (s *stubTransport) Activate(h realtime.TransportHandler) error {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
	return nil
}

func (s *stubTransport) Deactivate() error { return nil }

func (s *stubTransport) Subscribe(topic string, deliver func([]byte)) (realtime.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliver == nil {
		s.deliver = map[string]func([]byte){}
	}
	s.deliver[topic] = deliver
	return stubSub{}, nil
}

func (s *stubTransport) Publish(string, []byte) error { return nil }

func (s *stubTransport) push(topic, body string) {
	s.mu.Lock()
	fn := s.deliver[topic]
	s.mu.Unlock()
	fn([]byte(body))
}

func newTestChannel(t *testing.T) (*Channel, *stubTransport, *clockwork.FakeClock) {
	t.Helper()
	st := &stubTransport{}
	clock := clockwork.NewFakeClock()
	ch := NewChannel("ws://x", func(opts realtime.TransportOptions) (realtime.Transport, error) {
		st.opts = opts
		return st, nil
	}, WithClock(clock))
	require.NoError(t, ch.Connect())
	st.h.OnConnect()
	return ch, st, clock
}

func TestChannel_ConnectsWithoutToken(t *testing.T) {
	_, st, _ := newTestChannel(t)
	require.Empty(t, st.opts.ConnectHeaders)
	require.Contains(t, st.deliver, realtime.TopicNotifications)
}

func TestChannel_NoticeClearsAfterTTL(t *testing.T) {
	ch, st, clock := newTestChannel(t)

	st.push(realtime.TopicNotifications, `{"tipo":"INFO","mensaje":"hola","timestamp":"2024-01-01T10:00:00"}`)
	require.Equal(t, &Notice{Tipo: "INFO", Mensaje: "hola", Timestamp: "2024-01-01T10:00:00"}, ch.Notice())

	clock.Advance(1900 * time.Millisecond)
	require.NotNil(t, ch.Notice())

	clock.Advance(200 * time.Millisecond)
	require.Eventually(t, func() bool { return ch.Notice() == nil }, time.Second, 5*time.Millisecond)
}

func TestChannel_NewerNoticeRestartsWindow(t *testing.T) {
	ch, st, clock := newTestChannel(t)

	st.push(realtime.TopicNotifications, `{"tipo":"INFO","mensaje":"uno","timestamp":"t1"}`)
	clock.Advance(1500 * time.Millisecond)
	st.push(realtime.TopicNotifications, `{"tipo":"WARN","mensaje":"dos","timestamp":"t2"}`)

	// the first notice's timer would have fired here
	clock.Advance(1000 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.NotNil(t, ch.Notice())
	require.Equal(t, "dos", ch.Notice().Mensaje)

	clock.Advance(1100 * time.Millisecond)
	require.Eventually(t, func() bool { return ch.Notice() == nil }, time.Second, 5*time.Millisecond)
}

func TestChannel_BadBodyIsIgnored(t *testing.T) {
	ch, st, _ := newTestChannel(t)

	st.push(realtime.TopicNotifications, `not json`)
	require.Nil(t, ch.Notice())

	st.push(realtime.TopicNotifications, `{"tipo":"INFO","mensaje":"ok","timestamp":"t"}`)
	require.Equal(t, "ok", ch.Notice().Mensaje)
}

func TestChannel_DisconnectDropsNotice(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	ch.Show(Notice{Tipo: "INFO", Mensaje: "x"})
	ch.Disconnect()
	require.Nil(t, ch.Notice())
	require.Equal(t, realtime.Disconnected, ch.Connection().State())

	ch.Show(Notice{Tipo: "INFO", Mensaje: "y"})
	clock.Advance(DefaultTTL)
	require.Eventually(t, func() bool { return ch.Notice() == nil }, time.Second, 5*time.Millisecond)
}
