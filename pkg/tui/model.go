// Package tui is a bubbletea front end for the conversation view model.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/lenin/pkg/conversation"
	"github.com/go-go-golems/lenin/pkg/notify"
)

// Status is the connection side of the screen, read on every refresh.
type Status struct {
	Connected bool
	Online    []string
	Notice    *notify.Notice
}

// RefreshMsg asks the model to re-read the view model and the status.
type RefreshMsg struct{}

type sentMsg struct{}

type contactsLoadedMsg struct {
	err error
}

type focusArea int

const (
	focusContacts focusArea = iota
	focusInput
)

type keyMap struct {
	Open key.Binding
	Send key.Binding
	Back key.Binding
	Quit key.Binding
}

var keys = keyMap{
	Open: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Send: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
	Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "contacts")),
	Quit: key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

type contactItem struct {
	c conversation.Contact
}

func (i contactItem) Title() string { return i.c.DisplayName }
func (i contactItem) Description() string {
	if i.c.Kind == conversation.KindAI {
		return "assistant"
	}
	return "@" + i.c.Username
}
func (i contactItem) FilterValue() string { return i.c.DisplayName + " " + i.c.Username }

type Model struct {
	ctx    context.Context
	vm     *conversation.ViewModel
	status func() Status

	contacts     list.Model
	conversation viewport.Model
	input        textinput.Model
	help         help.Model

	focus  focusArea
	last   Status
	err    error
	width  int
	height int
	ready  bool
}

func New(ctx context.Context, vm *conversation.ViewModel, status func() Status) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.NormalTitle = normalTitleStyle
	delegate.Styles.NormalDesc = normalDescStyle
	delegate.Styles.SelectedTitle = selectedTitleStyle
	delegate.Styles.SelectedDesc = selectedDescStyle

	l := list.New(nil, delegate, listWidth, 0)
	l.Title = "Contactos"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	ti := textinput.New()
	ti.Placeholder = "Escribe un mensaje"
	ti.Prompt = "> "

	if status == nil {
		status = func() Status { return Status{} }
	}
	m := Model{
		ctx:          ctx,
		vm:           vm,
		status:       status,
		contacts:     l,
		conversation: viewport.New(0, 0),
		input:        ti,
		help:         help.New(),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return m.loadContacts()
}

func (m Model) loadContacts() tea.Cmd {
	return func() tea.Msg {
		return contactsLoadedMsg{err: m.vm.LoadMoreContacts(m.ctx)}
	}
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		m.vm.SendMessage(m.ctx, text)
		return sentMsg{}
	}
}

// refresh copies the view model and status into the widgets.
func (m *Model) refresh() tea.Cmd {
	m.last = m.status()

	contacts := m.vm.Contacts()
	items := make([]list.Item, len(contacts))
	for i, c := range contacts {
		items[i] = contactItem{c: c}
	}
	cmd := m.contacts.SetItems(items)

	m.conversation.SetContent(m.renderConversation())
	m.conversation.GotoBottom()
	return cmd
}

func (m Model) renderConversation() string {
	lines := m.vm.ActiveConversation()
	if lines == nil {
		return ""
	}
	width := m.conversation.Width - 2
	if width < 10 {
		width = 10
	}
	var sb strings.Builder
	for _, l := range lines {
		var bubble string
		if l.Role == conversation.RoleSelf {
			bubble = lipgloss.PlaceHorizontal(width, lipgloss.Right, selfStyle.MaxWidth(width).Render(l.Text))
		} else {
			bubble = peerStyle.MaxWidth(width).Render(l.Text)
		}
		sb.WriteString(bubble)
		sb.WriteString("\n\n")
	}
	if m.vm.Sending() {
		sb.WriteString(statusStyle.Render("…"))
	}
	return sb.String()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		cmds = append(cmds, m.refresh())

	case RefreshMsg, sentMsg:
		cmds = append(cmds, m.refresh())

	case contactsLoadedMsg:
		m.err = msg.err
		if msg.err != nil {
			log.Warn().Err(msg.err).Str("component", "tui").Msg("contacts not loaded")
		}
		cmds = append(cmds, m.refresh())

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		switch m.focus {
		case focusContacts:
			if key.Matches(msg, keys.Open) {
				if it, ok := m.contacts.SelectedItem().(contactItem); ok {
					m.vm.SelectContact(it.c)
					m.focus = focusInput
					cmds = append(cmds, m.input.Focus(), m.refresh())
				}
				return m, tea.Batch(cmds...)
			}
			if msg.String() == "q" {
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.contacts, cmd = m.contacts.Update(msg)
			cmds = append(cmds, cmd)
			if m.contacts.Paginator.OnLastPage() {
				cmds = append(cmds, m.loadContacts())
			}

		case focusInput:
			switch {
			case key.Matches(msg, keys.Back):
				m.vm.Back()
				m.input.Blur()
				m.focus = focusContacts
				return m, m.refresh()
			case key.Matches(msg, keys.Send):
				text := m.input.Value()
				if strings.TrimSpace(text) == "" {
					return m, nil
				}
				m.input.SetValue("")
				return m, m.send(text)
			case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
				var cmd tea.Cmd
				m.conversation, cmd = m.conversation.Update(msg)
				return m, cmd
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) resize() {
	bodyHeight := m.height - 4
	if bodyHeight < 3 {
		bodyHeight = 3
	}
	m.contacts.SetSize(listWidth, bodyHeight-2)
	right := m.width - listWidth - 4
	if right < 10 {
		right = 10
	}
	m.conversation.Width = right - 2
	m.conversation.Height = bodyHeight - 5
	m.input.Width = right - 4
}

func (m Model) statusLine() string {
	var parts []string
	if m.last.Connected {
		parts = append(parts, onlineStyle.Render("●")+" conectado")
	} else {
		parts = append(parts, offlineStyle.Render("●")+" desconectado")
	}
	parts = append(parts, fmt.Sprintf("%d en línea", len(m.last.Online)))
	if m.err != nil {
		parts = append(parts, offlineStyle.Render(m.err.Error()))
	}
	line := statusStyle.Render(strings.Join(parts, " · "))
	if n := m.last.Notice; n != nil {
		line = lipgloss.JoinHorizontal(lipgloss.Top, line,
			noticeStyle.Foreground(noticeColour(n.Tipo)).Render(n.Mensaje))
	}
	return line
}

func (m Model) View() string {
	if !m.ready {
		return "Cargando..."
	}

	listStyle, rightStyle := focusedPane, pane
	if m.focus == focusInput {
		listStyle, rightStyle = pane, focusedPane
	}
	left := listStyle.Render(m.contacts.View())

	var right string
	if _, ok := m.vm.Active(); ok {
		right = rightStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			m.conversation.View(),
			m.input.View(),
		))
	} else {
		right = rightStyle.
			Width(m.conversation.Width + 2).
			Height(m.conversation.Height + 1).
			Render(noSelectionStyle.Render("Selecciona un contacto"))
	}

	var bindings []key.Binding
	if m.focus == focusContacts {
		bindings = []key.Binding{keys.Open, keys.Quit}
	} else {
		bindings = []key.Binding{keys.Send, keys.Back, keys.Quit}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		m.help.ShortHelpView(bindings),
	)
}
