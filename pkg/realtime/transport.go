package realtime

import (
	"time"
)

// TransportHandler receives lifecycle callbacks from a Transport. Callbacks may run on any
// goroutine; nil fields are skipped.
type TransportHandler struct {
	OnConnecting func()
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
}

// Subscription is a live topic subscription on the current transport session.
type Subscription interface {
	Unsubscribe() error
}

// Transport is a publish/subscribe session with automatic reconnection. Activate starts
// connecting in the background; Deactivate stops reconnecting and closes the session.
// Deliveries for one subscription arrive in order on a single goroutine.
type Transport interface {
	Activate(h TransportHandler) error
	Deactivate() error
	Subscribe(topic string, deliver func(body []byte)) (Subscription, error)
	Publish(topic string, body []byte) error
}

type TransportOptions struct {
	URL            string
	ConnectHeaders map[string]string
	ReconnectDelay time.Duration
}

type TransportFactory func(opts TransportOptions) (Transport, error)
