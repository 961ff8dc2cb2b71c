// Package app wires the session, realtime and conversation components from a Config.
package app

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/backend"
	"github.com/go-go-golems/lenin/pkg/claims"
	"github.com/go-go-golems/lenin/pkg/config"
	"github.com/go-go-golems/lenin/pkg/conversation"
	"github.com/go-go-golems/lenin/pkg/notify"
	"github.com/go-go-golems/lenin/pkg/realtime"
	"github.com/go-go-golems/lenin/pkg/realtime/stompws"
	"github.com/go-go-golems/lenin/pkg/session"
	"github.com/go-go-golems/lenin/pkg/tokenstore"
	"github.com/go-go-golems/lenin/pkg/uibus"
)

// App is the one Session aggregate of a process: a single token store shared by every
// component that needs credentials.
type App struct {
	Config  config.Config
	Store   *tokenstore.Store
	Backend *backend.Client
	Session *session.Manager
	Chat    *realtime.ChatService
	Notices *notify.Channel
	View    *conversation.ViewModel
	Bus     *uibus.Bus

	closers []func() error
	cancel  context.CancelFunc
}

type Option func(*options)

type options struct {
	factory realtime.TransportFactory
	kv      tokenstore.KV
}

// WithTransportFactory replaces the STOMP transport, mostly for tests.
func WithTransportFactory(f realtime.TransportFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithKV replaces the token storage backend chosen from the config.
func WithKV(kv tokenstore.KV) Option {
	return func(o *options) {
		o.kv = kv
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := &options{factory: stompws.Factory()}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg}
	ctx, a.cancel = context.WithCancel(ctx)

	kv := o.kv
	if kv == nil {
		var err error
		kv, err = openKV(cfg.StorePath)
		if err != nil {
			a.cancel()
			return nil, err
		}
		if c, ok := kv.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	a.Store = tokenstore.New(kv)

	client, err := backend.NewClient(cfg.APIURL, backend.WithTokenSource(a.Store.AccessToken))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Backend = client

	a.Session = session.NewManager(a.Store, client,
		session.WithMargin(cfg.RefreshMargin),
		session.WithTimerContext(ctx),
	)
	a.closers = append(a.closers, func() error { a.Session.Close(); return nil })

	wsURL, err := stompws.WebSocketURL(cfg.APIURL, cfg.WSPath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Chat = realtime.NewChatService(wsURL, o.factory, a.Store.AccessToken,
		realtime.WithReconnectDelay(cfg.ReconnectDelay))
	a.closers = append(a.closers, func() error { a.Chat.Disconnect(); return nil })

	a.Notices = notify.NewChannel(wsURL, o.factory,
		notify.WithTTL(cfg.NoticeTTL),
		notify.WithConnectionOptions(realtime.WithReconnectDelay(cfg.ReconnectDelay)),
	)
	a.closers = append(a.closers, func() error { a.Notices.Disconnect(); return nil })

	a.View = conversation.NewViewModel(client, client, a.Chat,
		conversation.WithPageSize(cfg.ContactsPageSize),
		conversation.WithScrollThreshold(cfg.ScrollThreshold),
		conversation.WithSelf(a.selfUsername),
	)

	bus, err := uibus.New(ctx, cfg.Redis)
	if err != nil {
		_ = a.Close()
		return nil, errors.Wrap(err, "ui bus")
	}
	a.Bus = bus
	stopChat := bus.MirrorChat(a.Chat)
	stopNotices := bus.MirrorNotices(a.Notices)
	a.closers = append(a.closers, bus.Close, func() error { stopChat(); stopNotices(); return nil })

	return a, nil
}

func openKV(path string) (tokenstore.KV, error) {
	if path == "" {
		return tokenstore.NewMemoryKV(), nil
	}
	dsn, err := tokenstore.SQLiteDSNForFile(path)
	if err != nil {
		return nil, err
	}
	return tokenstore.NewSQLiteKV(dsn)
}

// selfUsername is the stored username, else the one inside the access token.
func (a *App) selfUsername() string {
	if u := a.Store.Get(tokenstore.KeyUsername); u != "" {
		return u
	}
	return claims.Username(a.Store.AccessToken())
}

// Start connects the realtime channels once the session check passes. The notice channel
// connects regardless since it needs no token.
func (a *App) Start(ctx context.Context) (bool, error) {
	if err := a.Notices.Connect(); err != nil {
		log.Warn().Err(err).Str("component", "app").Msg("notice channel did not start")
	}
	if !a.Session.Check(ctx) {
		return false, nil
	}
	if err := a.Chat.Connect(); err != nil {
		return true, errors.Wrap(err, "connect chat")
	}
	return true, nil
}

// Close tears the components down in reverse order. It does not sign out.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	if a.cancel != nil {
		a.cancel()
	}
	return first
}

// SignOut drops the chat connection and forgets the session.
func (a *App) SignOut() {
	a.Chat.Disconnect()
	a.Session.SignOut()
}
