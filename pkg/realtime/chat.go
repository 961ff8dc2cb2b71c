package realtime

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-go-golems/lenin/pkg/observable"
)

const (
	TopicOnlineUsers     = "/topic/usuarios"
	TopicPrivateMessages = "/user/queue/messages"
	TopicNotifications   = "/topic/notificaciones"
	DestinationPrivate   = "/app/chat/private"
)

// ChatMessage is a private message pushed by the server. From is absent on some echoes.
type ChatMessage struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Content string `json:"content"`
}

type privateMessage struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

// ChatService is the chat connection: an append-only message log, the online roster and a
// connected flag, all kept current from the server's pushes.
type ChatService struct {
	conn *Connection

	Connected   *observable.Value[bool]
	Messages    *observable.Value[[]ChatMessage]
	OnlineUsers *observable.Value[[]string]
}

// NewChatService builds the chat connection. token is read on every Connect and the
// connection stays idle while it is empty.
func NewChatService(url string, factory TransportFactory, token func() string, opts ...ConnectionOption) *ChatService {
	s := &ChatService{
		Connected:   observable.NewValue(false),
		Messages:    observable.NewValue[[]ChatMessage](nil),
		OnlineUsers: observable.NewValue[[]string](nil),
	}
	base := []ConnectionOption{
		WithName("chat"),
		WithToken(token),
		WithRequireToken(true),
		WithRoute(TopicOnlineUsers, s.handleRoster),
		WithRoute(TopicPrivateMessages, s.handleMessage),
	}
	s.conn = NewConnection(url, factory, append(base, opts...)...)
	s.conn.StateValue().Subscribe(func(st ConnectionState) {
		s.Connected.Set(st == Connected)
	})
	return s
}

func (s *ChatService) Connection() *Connection { return s.conn }

func (s *ChatService) Connect() error { return s.conn.Connect() }

func (s *ChatService) Disconnect() { s.conn.Disconnect() }

// SendPrivateMessage publishes to the private destination. The message log is not touched;
// the server's push is the only source of chat lines.
func (s *ChatService) SendPrivateMessage(to, content string) bool {
	return s.conn.Publish(DestinationPrivate, privateMessage{To: to, Content: content})
}

func (s *ChatService) handleRoster(body []byte) error {
	var users []string
	if err := json.Unmarshal(body, &users); err != nil {
		return errors.Wrap(err, "online users")
	}
	s.OnlineUsers.Set(users)
	return nil
}

func (s *ChatService) handleMessage(body []byte) error {
	var m ChatMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return errors.Wrap(err, "chat message")
	}
	s.Messages.Update(func(cur []ChatMessage) []ChatMessage {
		next := make([]ChatMessage, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, m)
	})
	return nil
}

// History returns a snapshot of the message log.
func (s *ChatService) History() []ChatMessage { return s.Messages.Get() }
