// Package conversation merges the chat message log, a local assistant transcript and a paged
// contact directory into the conversation a user is looking at.
package conversation

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/backend"
	"github.com/go-go-golems/lenin/pkg/observable"
	"github.com/go-go-golems/lenin/pkg/realtime"
)

const (
	DefaultPageSize        = 10
	DefaultScrollThreshold = 50

	AIGreeting     = "Hola 👋 ¿En qué te ayudo?"
	UserGreeting   = "💬 Chat con "
	AssistantError = "⚠️ Error de conexión."
)

type Kind string

const (
	KindAI   Kind = "AI"
	KindUser Kind = "USER"
)

// Contact is an entry in the directory. The AI contact has no ID or username.
type Contact struct {
	ID          int64
	Username    string
	DisplayName string
	Kind        Kind
}

// AIContact is the synthetic assistant entry, always first in the list.
var AIContact = Contact{DisplayName: "Agente AI", Kind: KindAI}

type Role string

const (
	RoleSelf Role = "self"
	RolePeer Role = "peer"
)

type Line struct {
	Role Role
	Text string
}

// ScrollPosition is the geometry of the scrollable contact list.
type ScrollPosition struct {
	Top          float64
	ClientHeight float64
	ScrollHeight float64
}

type Directory interface {
	ListUsers(ctx context.Context, page, size int) (*backend.UserPage, error)
}

type Assistant interface {
	Chat(ctx context.Context, conversationID, text string) (string, error)
}

// Chat is the private-message side of the realtime connection.
type Chat interface {
	SendPrivateMessage(to, content string) bool
	History() []realtime.ChatMessage
}

type ViewModel struct {
	dir       Directory
	assistant Assistant
	chat      Chat
	self      func() string
	newID     func() string

	pageSize        int
	scrollThreshold float64
	logger          zerolog.Logger

	// Changed is bumped after every state change visible through the accessors.
	Changed *observable.Value[uint64]

	mu             sync.Mutex
	contacts       []Contact
	page           int
	lastPage       bool
	loading        bool
	active         *Contact
	transcript     []Line
	conversationID string
	sending        bool
}

type Option func(*ViewModel)

func WithPageSize(n int) Option {
	return func(vm *ViewModel) {
		if n > 0 {
			vm.pageSize = n
		}
	}
}

func WithScrollThreshold(px float64) Option {
	return func(vm *ViewModel) {
		if px >= 0 {
			vm.scrollThreshold = px
		}
	}
}

// WithSelf sets the source of the signed-in username, filtered out of the directory.
func WithSelf(fn func() string) Option {
	return func(vm *ViewModel) {
		vm.self = fn
	}
}

// WithIDGenerator replaces the correlation id generator.
func WithIDGenerator(fn func() string) Option {
	return func(vm *ViewModel) {
		if fn != nil {
			vm.newID = fn
		}
	}
}

func NewViewModel(dir Directory, assistant Assistant, chat Chat, opts ...Option) *ViewModel {
	vm := &ViewModel{
		dir:             dir,
		assistant:       assistant,
		chat:            chat,
		self:            func() string { return "" },
		newID:           uuid.NewString,
		pageSize:        DefaultPageSize,
		scrollThreshold: DefaultScrollThreshold,
		logger:          log.With().Str("component", "conversation").Logger(),
		Changed:         observable.NewValue[uint64](0),
		contacts:        []Contact{AIContact},
	}
	for _, o := range opts {
		o(vm)
	}
	vm.conversationID = vm.newID()
	return vm
}

func (vm *ViewModel) changed() {
	vm.Changed.Update(func(n uint64) uint64 { return n + 1 })
}

// Contacts returns a copy of the contact list, AI contact first.
func (vm *ViewModel) Contacts() []Contact {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]Contact, len(vm.contacts))
	copy(out, vm.contacts)
	return out
}

// Active returns the selected contact, if any.
func (vm *ViewModel) Active() (Contact, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active == nil {
		return Contact{}, false
	}
	return *vm.active, true
}

func (vm *ViewModel) Sending() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.sending
}

func (vm *ViewModel) ConversationID() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.conversationID
}

// SelectContact opens c. Selecting the AI contact always starts a fresh assistant thread.
func (vm *ViewModel) SelectContact(c Contact) {
	vm.mu.Lock()
	sel := c
	vm.active = &sel
	if c.Kind == KindAI {
		vm.transcript = nil
		vm.conversationID = vm.newID()
	}
	vm.mu.Unlock()
	vm.changed()
}

// Back returns to the contact list.
func (vm *ViewModel) Back() {
	vm.mu.Lock()
	vm.active = nil
	vm.mu.Unlock()
	vm.changed()
}

// ActiveConversation is recomputed on every call from the selection, the chat log and the
// assistant transcript.
func (vm *ViewModel) ActiveConversation() []Line {
	vm.mu.Lock()
	if vm.active == nil {
		vm.mu.Unlock()
		return nil
	}
	c := *vm.active
	transcript := make([]Line, len(vm.transcript))
	copy(transcript, vm.transcript)
	vm.mu.Unlock()

	var history []realtime.ChatMessage
	if c.Kind != KindAI && vm.chat != nil {
		history = vm.chat.History()
	}
	return BuildConversation(c, history, transcript)
}

// BuildConversation derives the lines shown for contact c.
func BuildConversation(c Contact, history []realtime.ChatMessage, transcript []Line) []Line {
	if c.Kind == KindAI {
		lines := make([]Line, 0, len(transcript)+1)
		lines = append(lines, Line{Role: RolePeer, Text: AIGreeting})
		return append(lines, transcript...)
	}

	lines := []Line{{Role: RolePeer, Text: UserGreeting + c.DisplayName}}
	for _, m := range history {
		if m.From != c.Username && m.To != c.Username {
			continue
		}
		role := RoleSelf
		if m.From == c.Username {
			role = RolePeer
		}
		lines = append(lines, Line{Role: role, Text: m.Content})
	}
	return lines
}

// SendMessage sends text to the active contact. Blank text, no selection or an assistant
// call in flight make it a no-op. Assistant failures end up as an error line in the thread.
func (vm *ViewModel) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	vm.mu.Lock()
	if text == "" || vm.active == nil || vm.sending {
		vm.mu.Unlock()
		return
	}
	c := *vm.active
	if c.Kind != KindAI {
		vm.mu.Unlock()
		if !vm.chat.SendPrivateMessage(c.Username, text) {
			vm.logger.Warn().Str("to", c.Username).Msg("private message not sent")
		}
		return
	}

	vm.transcript = append(vm.transcript, Line{Role: RoleSelf, Text: text})
	vm.sending = true
	convID := vm.conversationID
	vm.mu.Unlock()
	vm.changed()

	reply, err := vm.assistant.Chat(ctx, convID, text)
	line := Line{Role: RolePeer}
	if err != nil {
		vm.logger.Warn().Err(err).Str("conversation_id", convID).Msg("assistant call failed")
		line.Text = AssistantError
	} else {
		line.Text = FormatAssistantReply(reply)
	}

	vm.mu.Lock()
	vm.sending = false
	if vm.conversationID == convID {
		vm.transcript = append(vm.transcript, line)
	}
	vm.mu.Unlock()
	vm.changed()
}

// LoadMoreContacts fetches the next directory page. It returns nil without fetching while
// another fetch is running or once the last page was seen.
func (vm *ViewModel) LoadMoreContacts(ctx context.Context) error {
	vm.mu.Lock()
	if vm.loading || vm.lastPage {
		vm.mu.Unlock()
		return nil
	}
	vm.loading = true
	page := vm.page
	vm.mu.Unlock()

	resp, err := vm.dir.ListUsers(ctx, page, vm.pageSize)

	vm.mu.Lock()
	vm.loading = false
	if err != nil {
		vm.mu.Unlock()
		vm.logger.Warn().Err(err).Int("page", page).Msg("loading contacts failed")
		return err
	}

	self := ""
	if vm.self != nil {
		self = vm.self()
	}
	seen := make(map[int64]struct{}, len(vm.contacts))
	for _, c := range vm.contacts {
		if c.Kind == KindUser {
			seen[c.ID] = struct{}{}
		}
	}
	added := 0
	for _, u := range resp.Content {
		if self != "" && strings.EqualFold(u.Username, self) {
			continue
		}
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		vm.contacts = append(vm.contacts, Contact{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.FullName(),
			Kind:        KindUser,
		})
		added++
	}
	vm.lastPage = resp.Last
	if !resp.Last {
		vm.page++
	}
	vm.mu.Unlock()

	vm.logger.Debug().Int("page", page).Int("added", added).Bool("last", resp.Last).Msg("contacts loaded")
	vm.changed()
	return nil
}

// OnScroll loads the next page once the viewport is within the threshold of the end.
func (vm *ViewModel) OnScroll(ctx context.Context, pos ScrollPosition) error {
	if pos.Top+pos.ClientHeight < pos.ScrollHeight-vm.scrollThreshold {
		return nil
	}
	return vm.LoadMoreContacts(ctx)
}
