// Package realtime keeps one logical publish/subscribe connection per Connection and
// re-establishes its topic subscriptions every time the transport (re)connects.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/observable"
)

// DefaultReconnectDelay is the fixed pause between reconnect attempts.
const DefaultReconnectDelay = 5 * time.Second

// Route binds a topic to the handler that decodes and applies its bodies. A handler error
// is reported as a DecodeFault for that one message.
type Route struct {
	Topic  string
	Handle func(body []byte) error
}

type Connection struct {
	name           string
	url            string
	factory        TransportFactory
	token          func() string
	requireToken   bool
	reconnectDelay time.Duration
	routes         []Route
	logger         zerolog.Logger

	state *observable.Value[ConnectionState]

	mu        sync.Mutex
	transport Transport
	subs      []Subscription
	gen       uint64
}

type ConnectionOption func(*Connection)

// WithToken sets the source of the bearer token put into the connect headers.
func WithToken(fn func() string) ConnectionOption {
	return func(c *Connection) {
		c.token = fn
	}
}

// WithRequireToken makes Connect a no-op while the token source returns "".
func WithRequireToken(v bool) ConnectionOption {
	return func(c *Connection) {
		c.requireToken = v
	}
}

func WithReconnectDelay(d time.Duration) ConnectionOption {
	return func(c *Connection) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

func WithRoute(topic string, handle func(body []byte) error) ConnectionOption {
	return func(c *Connection) {
		c.routes = append(c.routes, Route{Topic: topic, Handle: handle})
	}
}

func WithName(name string) ConnectionOption {
	return func(c *Connection) {
		if name != "" {
			c.name = name
		}
	}
}

func NewConnection(url string, factory TransportFactory, opts ...ConnectionOption) *Connection {
	c := &Connection{
		name:           "realtime",
		url:            url,
		factory:        factory,
		reconnectDelay: DefaultReconnectDelay,
		state:          observable.NewValue(Disconnected),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = log.With().Str("component", "realtime").Str("connection", c.name).Logger()
	return c
}

func (c *Connection) State() ConnectionState { return c.state.Get() }

// StateValue exposes the connection state for observers.
func (c *Connection) StateValue() *observable.Value[ConnectionState] { return c.state }

// Connect activates a transport unless one is already active or a required token is
// missing. Activation errors are returned; later connection failures are retried by the
// transport.
func (c *Connection) Connect() error {
	if c == nil {
		return nil
	}
	token := ""
	if c.token != nil {
		token = c.token()
	}
	if c.requireToken && token == "" {
		c.logger.Debug().Msg("connect skipped: no access token")
		return nil
	}

	c.mu.Lock()
	if c.transport != nil {
		c.mu.Unlock()
		return nil
	}
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	t, err := c.factory(TransportOptions{
		URL:            c.url,
		ConnectHeaders: headers,
		ReconnectDelay: c.reconnectDelay,
	})
	if err != nil {
		c.mu.Unlock()
		return errors.Wrap(err, "build transport")
	}
	c.gen++
	gen := c.gen
	c.transport = t
	c.subs = nil
	c.mu.Unlock()

	err = t.Activate(TransportHandler{
		OnConnecting: func() { c.onConnecting(gen) },
		OnConnect:    func() { c.onConnect(gen) },
		OnDisconnect: func() { c.onDisconnect(gen) },
		OnError:      func(err error) { c.onError(gen, err) },
	})
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.transport = nil
			c.gen++
		}
		c.mu.Unlock()
		c.state.Set(Disconnected)
		return errors.Wrap(err, "activate transport")
	}
	return nil
}

// Disconnect deactivates the transport. It is safe to call when already disconnected.
func (c *Connection) Disconnect() {
	if c == nil {
		return
	}
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.subs = nil
	c.gen++
	c.mu.Unlock()

	if t != nil {
		if err := t.Deactivate(); err != nil {
			c.logger.Warn().Err(err).Msg("deactivate failed")
		}
	}
	c.state.Set(Disconnected)
}

// Publish sends payload as JSON to topic. It returns false and drops the message when the
// connection is not Connected or the transport refuses it.
func (c *Connection) Publish(topic string, payload any) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil || c.state.Get() != Connected {
		c.logger.Warn().Str("topic", topic).Msg("publish dropped: not connected")
		return false
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", topic).Msg("publish dropped: encode failed")
		return false
	}
	if err := t.Publish(topic, body); err != nil {
		c.logger.Warn().Err(&TransportFault{Err: err}).Str("topic", topic).Msg("publish failed")
		return false
	}
	return true
}

func (c *Connection) current(gen uint64) (Transport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.transport == nil {
		return nil, false
	}
	return c.transport, true
}

// setLive writes s only while gen is the live transport. The generation check and the
// write share the state lock, so a Disconnect that bumps the generation is never
// overwritten by a late callback of the transport it replaced.
func (c *Connection) setLive(gen uint64, s ConnectionState, locked func()) bool {
	return c.state.UpdateIf(func(cur ConnectionState) (ConnectionState, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen != gen || c.transport == nil {
			return cur, false
		}
		if locked != nil {
			locked()
		}
		return s, true
	})
}

func (c *Connection) onConnecting(gen uint64) {
	c.setLive(gen, Connecting, nil)
}

func (c *Connection) onConnect(gen uint64) {
	t, ok := c.current(gen)
	if !ok {
		return
	}

	subs := make([]Subscription, 0, len(c.routes))
	for _, r := range c.routes {
		sub, err := t.Subscribe(r.Topic, c.deliverer(r))
		if err != nil {
			c.logger.Warn().Err(&TransportFault{Err: err}).Str("topic", r.Topic).Msg("subscribe failed")
			continue
		}
		subs = append(subs, sub)
	}

	if !c.setLive(gen, Connected, func() { c.subs = subs }) {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		return
	}
	c.logger.Info().Int("subscriptions", len(subs)).Msg("connected")
}

func (c *Connection) onDisconnect(gen uint64) {
	if c.setLive(gen, Disconnected, func() { c.subs = nil }) {
		c.logger.Info().Msg("disconnected")
	}
}

func (c *Connection) onError(gen uint64, err error) {
	if _, ok := c.current(gen); !ok {
		return
	}
	c.logger.Warn().Err(&TransportFault{Err: err}).Msg("transport error")
}

func (c *Connection) deliverer(r Route) func([]byte) {
	return func(body []byte) {
		if r.Handle == nil {
			return
		}
		if err := r.Handle(body); err != nil {
			c.logger.Warn().Err(&DecodeFault{Topic: r.Topic, Err: err}).Str("topic", r.Topic).Msg("dropping inbound message")
		}
	}
}

// Subscriptions reports how many topic subscriptions are live.
func (c *Connection) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}
