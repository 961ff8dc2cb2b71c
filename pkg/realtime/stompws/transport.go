// Package stompws is a realtime.Transport speaking STOMP over a WebSocket.
package stompws

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/realtime"
)

// DefaultPath is the raw WebSocket leg of a SockJS endpoint mounted at /ws.
const DefaultPath = "/ws/websocket"

const DefaultHeartBeat = 10 * time.Second

// DefaultHandshakeTimeout bounds the wait for the broker's CONNECTED frame.
const DefaultHandshakeTimeout = 10 * time.Second

var (
	ErrNotConnected  = errors.New("stomp session not connected")
	ErrAlreadyActive = errors.New("transport already active")
)

var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// WebSocketURL turns an http(s) API base into the ws(s) URL of the STOMP endpoint.
func WebSocketURL(apiURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiURL))
	if err != nil {
		return "", errors.Wrap(err, "parse api url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	if path == "" {
		path = DefaultPath
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}

type session struct {
	ws   *wsConn
	conn *stomp.Conn
}

func (s *session) close() {
	_ = s.conn.MustDisconnect()
	_ = s.ws.Close()
}

type Transport struct {
	opts      realtime.TransportOptions
	backoff   backoff.BackOff
	dialer    *websocket.Dialer
	heartBeat time.Duration
	handshake time.Duration
	logger    zerolog.Logger

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	done   chan struct{}
	sess   *session
}

type Option func(*Transport)

func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithHeartBeat sets both the send and receive heart-beat intervals. Zero disables them.
func WithHeartBeat(d time.Duration) Option {
	return func(t *Transport) {
		if d >= 0 {
			t.heartBeat = d
		}
	}
}

// WithHandshakeTimeout bounds the STOMP CONNECT/CONNECTED exchange. An attempt that runs
// out of time counts as a failed attempt and is retried.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.handshake = d
		}
	}
}

func New(opts realtime.TransportOptions, options ...Option) (*Transport, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("stomp websocket url is empty")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = realtime.DefaultReconnectDelay
	}
	t := &Transport{
		opts:    opts,
		backoff: backoff.NewConstantBackOff(opts.ReconnectDelay),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     subprotocols,
		},
		heartBeat: DefaultHeartBeat,
		handshake: DefaultHandshakeTimeout,
		logger:    log.With().Str("component", "stompws").Str("url", opts.URL).Logger(),
	}
	for _, o := range options {
		o(t)
	}
	return t, nil
}

// Factory adapts New to realtime.TransportFactory.
func Factory(options ...Option) realtime.TransportFactory {
	return func(opts realtime.TransportOptions) (realtime.Transport, error) {
		return New(opts, options...)
	}
}

// Activate starts the connect loop in the background. The loop reconnects after a fixed
// delay until Deactivate is called.
func (t *Transport) Activate(h realtime.TransportHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.active = true
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, h, t.done)
	return nil
}

// Deactivate stops reconnecting, closes the live session and waits for the loop to exit.
func (t *Transport) Deactivate() error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil
	}
	t.active = false
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (t *Transport) run(ctx context.Context, h realtime.TransportHandler, done chan struct{}) {
	defer close(done)
	for {
		if h.OnConnecting != nil {
			h.OnConnecting()
		}
		sess, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Debug().Err(err).Msg("connect attempt failed")
			if h.OnError != nil {
				h.OnError(err)
			}
		} else {
			t.setSession(sess)
			if h.OnConnect != nil {
				h.OnConnect()
			}
			stopped := false
			select {
			case <-sess.ws.Done():
			case <-ctx.Done():
				stopped = true
			}
			t.setSession(nil)
			sess.close()
			if h.OnDisconnect != nil {
				h.OnDisconnect()
			}
			if stopped {
				return
			}
		}

		timer := time.NewTimer(t.backoff.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*session, error) {
	c, _, err := t.dialer.DialContext(ctx, t.opts.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket")
	}
	ws := newWSConn(c)
	// go-stomp reads CONNECTED without a deadline and knows nothing of ctx
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()
	if err := c.SetReadDeadline(time.Now().Add(t.handshake)); err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "set handshake deadline")
	}

	connOpts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(t.heartBeat, t.heartBeat),
	}
	for k, v := range t.opts.ConnectHeaders {
		connOpts = append(connOpts, stomp.ConnOpt.Header(k, v))
	}
	conn, err := stomp.Connect(ws, connOpts...)
	if err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "stomp connect")
	}
	if err := c.SetReadDeadline(time.Time{}); err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "clear handshake deadline")
	}
	if ctx.Err() != nil {
		_ = ws.Close()
		return nil, ctx.Err()
	}
	t.logger.Debug().Msg("stomp session established")
	return &session{ws: ws, conn: conn}, nil
}

func (t *Transport) setSession(s *session) {
	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()
}

func (t *Transport) current() *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess
}

type subscription struct {
	sub *stomp.Subscription
}

func (s *subscription) Unsubscribe() error {
	if !s.sub.Active() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Subscribe registers deliver on the live session. Deliveries for one subscription run on a
// single goroutine in arrival order.
func (t *Transport) Subscribe(topic string, deliver func(body []byte)) (realtime.Subscription, error) {
	sess := t.current()
	if sess == nil {
		return nil, ErrNotConnected
	}
	sub, err := sess.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	go func() {
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if msg.Err != nil {
					t.logger.Debug().Err(msg.Err).Str("topic", topic).Msg("subscription ended")
					return
				}
				deliver(msg.Body)
			case <-sess.ws.Done():
				return
			}
		}
	}()
	return &subscription{sub: sub}, nil
}

func (t *Transport) Publish(topic string, body []byte) error {
	sess := t.current()
	if sess == nil {
		return ErrNotConnected
	}
	if err := sess.conn.Send(topic, "application/json", body); err != nil {
		return errors.Wrapf(err, "send %s", topic)
	}
	return nil
}
