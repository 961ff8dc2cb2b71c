package cmds

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/lenin/pkg/app"
	"github.com/go-go-golems/lenin/pkg/conversation"
	"github.com/go-go-golems/lenin/pkg/uibus"
)

const chatHelp = `commands:
  /contacts      list contacts
  /more          load the next page of contacts
  /open N        open contact N
  /ai            open a fresh assistant thread
  /back          close the conversation
  /who           list online users
  /quit          leave
anything else is sent to the open conversation`

// printer serializes writes coming from the bus goroutines and the prompt loop.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func newChatCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with other users and the assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := f.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			p := &printer{out: cmd.OutOrStdout()}
			eg, ctx := errgroup.WithContext(ctx)
			// subscribe before connecting so the first connection event is seen
			if err := followBus(ctx, eg, a.Bus, p, uibus.TopicConnection, uibus.TopicMessage, uibus.TopicNotice); err != nil {
				return err
			}

			ok, err := a.Start(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Wrap(errNotAuthenticated, "run lenin login first")
			}

			if err := a.View.LoadMoreContacts(ctx); err != nil {
				p.Printf("could not load contacts: %v\n", err)
			}
			p.Printf("%s\n", chatHelp)

			lines := readLines(os.Stdin)
			eg.Go(func() error {
				return chatLoop(ctx, a, p, lines)
			})

			err = eg.Wait()
			if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

var errQuit = errors.New("quit")

// readLines feeds stdin lines to a channel closed at EOF. The reader goroutine is left
// blocked on stdin when the command returns first.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func chatLoop(ctx context.Context, a *app.App, p *printer, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := handleChatLine(ctx, a, p, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
	}
}

func handleChatLine(ctx context.Context, a *app.App, p *printer, line string) error {
	if !strings.HasPrefix(line, "/") {
		sendChatText(ctx, a, p, line)
		return nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		p.Printf("%s\n", chatHelp)
	case "/contacts":
		for i, c := range a.View.Contacts() {
			p.Printf("%3d  %s\n", i, c.DisplayName)
		}
	case "/more":
		before := len(a.View.Contacts())
		if err := a.View.LoadMoreContacts(ctx); err != nil {
			p.Printf("could not load contacts: %v\n", err)
			return nil
		}
		p.Printf("%d new contacts\n", len(a.View.Contacts())-before)
	case "/open":
		contacts := a.View.Contacts()
		if len(fields) != 2 {
			p.Printf("usage: /open N\n")
			return nil
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 || n >= len(contacts) {
			p.Printf("no contact %q\n", fields[1])
			return nil
		}
		a.View.SelectContact(contacts[n])
		printConversation(p, a.View.ActiveConversation())
	case "/ai":
		a.View.SelectContact(conversation.AIContact)
		printConversation(p, a.View.ActiveConversation())
	case "/back":
		a.View.Back()
	case "/who":
		p.Printf("online: %s\n", strings.Join(a.Chat.OnlineUsers.Get(), ", "))
	default:
		p.Printf("unknown command %s, try /help\n", fields[0])
	}
	return nil
}

func sendChatText(ctx context.Context, a *app.App, p *printer, text string) {
	c, ok := a.View.Active()
	if !ok {
		p.Printf("open a conversation first (/contacts, /open N, /ai)\n")
		return
	}
	before := len(a.View.ActiveConversation())
	a.View.SendMessage(ctx, text)
	if c.Kind != conversation.KindAI {
		// the echo comes back through the message topic
		return
	}
	lines := a.View.ActiveConversation()
	for _, l := range lines[min(before+1, len(lines)):] {
		printLine(p, l)
	}
}

func printConversation(p *printer, lines []conversation.Line) {
	for _, l := range lines {
		printLine(p, l)
	}
}

func printLine(p *printer, l conversation.Line) {
	prefix := "<"
	if l.Role == conversation.RoleSelf {
		prefix = ">"
	}
	for _, s := range strings.Split(l.Text, "\n") {
		p.Printf("%s %s\n", prefix, s)
	}
}

// followBus prints the events of topics until ctx ends.
func followBus(ctx context.Context, eg *errgroup.Group, bus *uibus.Bus, p *printer, topics ...string) error {
	for _, topic := range topics {
		msgs, err := bus.Subscribe(ctx, topic)
		if err != nil {
			return errors.Wrapf(err, "subscribe %s", topic)
		}
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						return nil
					}
					printEvent(p, topic, msg)
					msg.Ack()
				}
			}
		})
	}
	return nil
}

func printEvent(p *printer, topic string, msg *message.Message) {
	logger := log.With().Str("component", "cli").Str("topic", topic).Logger()
	switch topic {
	case uibus.TopicConnection:
		var ev uibus.ConnectionEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Warn().Err(err).Msg("bad event")
			return
		}
		if ev.Connected {
			p.Printf("[connected]\n")
		} else {
			p.Printf("[disconnected]\n")
		}
	case uibus.TopicMessage:
		var ev uibus.MessageEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Warn().Err(err).Msg("bad event")
			return
		}
		p.Printf("%s -> %s: %s\n", ev.Message.From, ev.Message.To, ev.Message.Content)
	case uibus.TopicRoster:
		var ev uibus.RosterEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Warn().Err(err).Msg("bad event")
			return
		}
		p.Printf("online: %s\n", strings.Join(ev.Users, ", "))
	case uibus.TopicNotice:
		var ev uibus.NoticeEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Warn().Err(err).Msg("bad event")
			return
		}
		if ev.Notice != nil {
			p.Printf("[%s] %s\n", ev.Notice.Tipo, ev.Notice.Mensaje)
		}
	}
}

func newNoticesCommand(f *rootFlags) *cobra.Command {
	var withRoster bool
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "Print broadcast notices until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := f.newApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			p := &printer{out: cmd.OutOrStdout()}
			eg, ctx := errgroup.WithContext(ctx)
			topics := []string{uibus.TopicNotice}
			if withRoster {
				topics = append(topics, uibus.TopicRoster)
			}
			if err := followBus(ctx, eg, a.Bus, p, topics...); err != nil {
				return err
			}

			if withRoster {
				if _, err := a.Start(ctx); err != nil {
					return err
				}
			} else if err := a.Notices.Connect(); err != nil {
				return err
			}
			return eg.Wait()
		},
	}
	cmd.Flags().BoolVar(&withRoster, "roster", false, "also print online users (needs a session)")
	return cmd
}
