package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/twinsync/internal/client"
	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/sched"
)

// errQuit ends a chat without an error.
var errQuit = errors.New("quit")

const chatHelp = `Type a message and press enter to send it.
  /buzz           buzz the open conversation
  /open <id|name> open a conversation
  /leave          close the conversation
  /contacts       show the contact list
  /up [rows]      scroll back (default 20 rows)
  /down           jump to the newest message
  /away, /here    leave or return to the window
  /sound          toggle notification sound
  /quit           exit`

func addChat(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "chat [contact-id|name]",
		Short: "Open a conversation and poll for messages.",
		Long:  chatHelp,
		Example: `
twin chat 4
twin chat Zed
twin chat          # resume the last conversation
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := load(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			target := ""
			if len(args) == 1 {
				target = args[0]
			}
			return runChat(cmd.Context(), rt, cmd.InOrStdin(), target)
		},
	}
	topLevel.AddCommand(cmd)
}

type chat struct {
	rt  *runtime
	app *client.App
	d   sched.Scheduler
}

func runChat(ctx context.Context, rt *runtime, in io.Reader, target string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := sched.NewDispatcher(rt.logger)
	c := &chat{rt: rt, app: rt.app(d), d: d}
	rt.transport.OnUnauthorized(func() {
		c.app.Unauthorized()
		stop()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(d.Run(gctx)) })

	if err := c.start(gctx, target); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	lines := make(chan string)
	go scanLines(in, lines)

	g.Go(func() error {
		defer c.app.Stop()
		for {
			c.rt.presenter.Prompt(c.rt.presenter.TakeRestored())
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				if err := c.handle(gctx, line); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

// scanLines forwards lines from in until EOF. It is abandoned, not
// stopped, when the chat ends first.
func scanLines(in io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// start opens the first conversation, then starts contact polling. The
// one-off contact fetch runs before the contact loop owns the list.
func (c *chat) start(ctx context.Context, target string) error {
	var err error
	if target == "" {
		err = c.app.ResumeConversation(ctx)
	} else {
		var contacts []domain.Contact
		if contacts, err = c.app.ListContacts(ctx); err != nil {
			return err
		}
		err = c.open(ctx, contacts, target)
	}
	if errors.Is(err, client.ErrNoConversation) {
		c.rt.presenter.ShowInfo("Pick a conversation with /open <id|name>.")
	} else if err != nil {
		return err
	}
	return c.app.StartContacts(ctx)
}

func (c *chat) open(ctx context.Context, contacts []domain.Contact, target string) error {
	contact, ok := findContact(contacts, target)
	if !ok {
		c.rt.presenter.ShowError(fmt.Sprintf("No contact matches %q.", target))
		return client.ErrNoConversation
	}
	return c.app.OpenConversation(ctx, domain.Selection{ContactID: contact.ID, Name: contact.Name})
}

// contacts reads the latest snapshot on the loop.
func (c *chat) contacts(ctx context.Context) ([]domain.Contact, error) {
	ch := make(chan []domain.Contact, 1)
	c.d.Post(func() { ch <- c.app.Contacts() })
	select {
	case snapshot := <-ch:
		return snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// parseLine splits a slash command from its argument. Plain text has an
// empty command.
func parseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// handle runs one line of input. Failures the user has already been shown
// are not returned.
func (c *chat) handle(ctx context.Context, line string) error {
	cmd, arg := parseLine(line)
	p := c.rt.presenter

	switch cmd {
	case "":
		if arg == "" {
			return nil
		}
		err := c.app.SendMessage(ctx, arg)
		if errors.Is(err, client.ErrNoConversation) {
			p.ShowError("Open a conversation first: /open <id|name>")
		}
	case "buzz":
		err := c.app.SendBuzz(ctx)
		if errors.Is(err, client.ErrNoConversation) {
			p.ShowError("Open a conversation first: /open <id|name>")
		}
	case "open":
		contacts, err := c.contacts(ctx)
		if err != nil {
			return nil
		}
		_ = c.open(ctx, contacts, arg)
	case "leave", "back":
		if err := c.app.LeaveConversation(ctx); err != nil {
			return err
		}
		c.showContacts(ctx)
	case "contacts":
		c.showContacts(ctx)
	case "up":
		rows := 20
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			rows = n
		}
		p.ScrollBack(rows)
	case "down":
		p.ScrollToBottom()
	case "away":
		c.app.SetForeground(false)
		p.ShowInfo("Away: new messages will notify you.")
	case "here":
		c.app.SetForeground(true)
	case "sound":
		enabled, err := c.app.ToggleSound(ctx)
		if err != nil {
			return err
		}
		p.ShowInfo("Sound " + onOff(enabled))
	case "help", "?":
		p.ShowInfo(chatHelp)
	case "quit", "exit", "q":
		return errQuit
	default:
		p.ShowError(fmt.Sprintf("Unknown command /%s. Type /help.", cmd))
	}
	return nil
}

func (c *chat) showContacts(ctx context.Context) {
	contacts, err := c.contacts(ctx)
	if err != nil {
		return
	}
	c.rt.presenter.ShowContacts(contacts)
}
