package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/go-go-golems/lenin/pkg/app"
	"github.com/go-go-golems/lenin/pkg/notify"
	"github.com/go-go-golems/lenin/pkg/realtime"
)

// Run shows the chat screen for a started App until the user quits or ctx ends.
func Run(ctx context.Context, a *app.App, opts ...tea.ProgramOption) error {
	status := func() Status {
		return Status{
			Connected: a.Chat.Connected.Get(),
			Online:    a.Chat.OnlineUsers.Get(),
			Notice:    a.Notices.Notice(),
		}
	}
	m := New(ctx, a.View, status)

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)

	// Observable callbacks can fire on the program's own goroutine, so they only poke a
	// one-slot channel and a forwarder delivers the refresh.
	poke := make(chan struct{}, 1)
	wake := func() {
		select {
		case poke <- struct{}{}:
		default:
		}
	}
	unsubs := []func(){
		a.View.Changed.Subscribe(func(uint64) { wake() }),
		a.Chat.Messages.Subscribe(func([]realtime.ChatMessage) { wake() }),
		a.Chat.Connected.Subscribe(func(bool) { wake() }),
		a.Chat.OnlineUsers.Subscribe(func([]string) { wake() }),
		a.Notices.NoticeValue().Subscribe(func(*notify.Notice) { wake() }),
	}
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-poke:
				p.Send(RefreshMsg{})
			}
		}
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "run chat screen")
	}
	return nil
}
