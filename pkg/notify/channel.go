// Package notify shows the latest broadcast notice for a short while and then clears it.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/observable"
	"github.com/go-go-golems/lenin/pkg/realtime"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 2 * time.Second

type Notice struct {
	Tipo      string `json:"tipo"`
	Mensaje   string `json:"mensaje"`
	Timestamp string `json:"timestamp"`
}

// Channel holds at most one notice. Every arrival replaces the slot and restarts the clear
// window; there is no queue.
type Channel struct {
	conn  *realtime.Connection
	clock clockwork.Clock
	ttl   time.Duration

	notice *observable.Value[*Notice]

	connOpts []realtime.ConnectionOption

	// mu also orders writes to notice
	mu    sync.Mutex
	timer clockwork.Timer
	gen   uint64
}

type Option func(*Channel)

func WithClock(c clockwork.Clock) Option {
	return func(ch *Channel) {
		if c != nil {
			ch.clock = c
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(ch *Channel) {
		if d > 0 {
			ch.ttl = d
		}
	}
}

// WithConnectionOptions forwards options to the underlying connection.
func WithConnectionOptions(opts ...realtime.ConnectionOption) Option {
	return func(ch *Channel) {
		ch.connOpts = append(ch.connOpts, opts...)
	}
}

// NewChannel builds the notice listener on its own connection. No token is needed.
func NewChannel(url string, factory realtime.TransportFactory, opts ...Option) *Channel {
	ch := &Channel{
		clock:  clockwork.NewRealClock(),
		ttl:    DefaultTTL,
		notice: observable.NewValue[*Notice](nil),
	}
	for _, o := range opts {
		o(ch)
	}
	connOpts := append([]realtime.ConnectionOption{
		realtime.WithName("notify"),
		realtime.WithRoute(realtime.TopicNotifications, ch.handle),
	}, ch.connOpts...)
	ch.conn = realtime.NewConnection(url, factory, connOpts...)
	return ch
}

func (ch *Channel) Connect() error { return ch.conn.Connect() }

// Disconnect closes the connection and drops any visible notice.
func (ch *Channel) Disconnect() {
	ch.conn.Disconnect()
	ch.mu.Lock()
	ch.stopTimerLocked()
	ch.notice.Set(nil)
	ch.mu.Unlock()
}

func (ch *Channel) Connection() *realtime.Connection { return ch.conn }

// Notice returns the visible notice or nil.
func (ch *Channel) Notice() *Notice { return ch.notice.Get() }

// NoticeValue exposes the slot for observers.
func (ch *Channel) NoticeValue() *observable.Value[*Notice] { return ch.notice }

func (ch *Channel) handle(body []byte) error {
	var n Notice
	if err := json.Unmarshal(body, &n); err != nil {
		return errors.Wrap(err, "notice")
	}
	ch.Show(n)
	return nil
}

// Show places n in the slot and arms its clear timer, cancelling the previous one.
func (ch *Channel) Show(n Notice) {
	ch.mu.Lock()
	ch.stopTimerLocked()
	gen := ch.gen
	ch.timer = ch.clock.AfterFunc(ch.ttl, func() { ch.expire(gen) })
	ch.notice.Set(&n)
	ch.mu.Unlock()

	log.Debug().Str("component", "notify").Str("tipo", n.Tipo).Msg("notice received")
}

func (ch *Channel) expire(gen uint64) {
	ch.mu.Lock()
	if gen != ch.gen {
		ch.mu.Unlock()
		return
	}
	ch.timer = nil
	ch.notice.Set(nil)
	ch.mu.Unlock()
}

func (ch *Channel) stopTimerLocked() {
	if ch.timer != nil {
		ch.timer.Stop()
		ch.timer = nil
	}
	ch.gen++
}
