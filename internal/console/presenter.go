// Package console renders the client in a terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/ashureev/twinsync/internal/client"
	"github.com/ashureev/twinsync/internal/domain"
)

// Presenter writes the client's output to a terminal. It is safe for use
// from several goroutines.
type Presenter struct {
	mu     sync.Mutex
	out    io.Writer
	offset int

	title *color.Color
	faint *color.Color
	mine  *color.Color
	buzz  *color.Color
	err   *color.Color
	info  *color.Color
	badge *color.Color
	on    *color.Color

	restored string
	route    client.Route
	// shown is the last contact snapshot printed, to skip unchanged polls.
	shown string
}

// NewPresenter creates a presenter writing to out, or color.Output when nil.
func NewPresenter(out io.Writer) *Presenter {
	if out == nil {
		out = color.Output
	}
	return &Presenter{
		out:   out,
		title: color.New(color.Bold, color.Underline),
		faint: color.New(color.Faint),
		mine:  color.New(color.FgGreen),
		buzz:  color.New(color.FgHiRed, color.Bold),
		err:   color.New(color.FgRed),
		info:  color.New(color.FgCyan),
		badge: color.New(color.FgHiWhite, color.BgRed, color.Bold),
		on:    color.New(color.FgGreen),
	}
}

var _ client.Presenter = (*Presenter)(nil)

// DistanceFromBottom reports how many rows the user has scrolled back.
func (p *Presenter) DistanceFromBottom() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// ScrollBack records that the user paged up by rows.
func (p *Presenter) ScrollBack(rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset += rows
	if p.offset < 0 {
		p.offset = 0
	}
}

// ScrollToBottom pins the view to the newest message.
func (p *Presenter) ScrollToBottom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = 0
}

// ClearMessages starts a fresh conversation view.
func (p *Presenter) ClearMessages() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = 0
	_, _ = fmt.Fprintln(p.out)
}

// AppendMessage prints one message bubble.
func (p *Presenter) AppendMessage(m domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	header := p.faint.Sprintf("%s · %s", m.SenderName, m.Clock())
	indent := ""
	if m.IsMine {
		indent = "    "
	}
	_, _ = fmt.Fprintf(p.out, "%s%s\n", indent, header)

	switch {
	case m.IsBuzz:
		_, _ = fmt.Fprintf(p.out, "%s%s\n", indent, p.buzz.Sprint("BUZZ!"))
	case m.IsMine:
		_, _ = fmt.Fprintf(p.out, "%s%s\n", indent, p.mine.Sprint(m.Text()))
	default:
		_, _ = fmt.Fprintf(p.out, "%s%s\n", indent, m.Text())
	}
	if p.offset > 0 {
		_, _ = fmt.Fprintln(p.out, p.faint.Sprint("  (new message below)"))
	}
}

// RenderContacts prints the contact table when it changed since the last
// print. It stays quiet while a conversation is open.
func (p *Presenter) RenderContacts(contacts []domain.Contact) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.route == client.RouteConversation {
		return
	}
	sig := fmt.Sprint(contacts)
	if sig == p.shown {
		return
	}
	p.shown = sig
	p.renderContacts(contacts)
}

// ShowContacts prints the contact table unconditionally.
func (p *Presenter) ShowContacts(contacts []domain.Contact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = fmt.Sprint(contacts)
	p.renderContacts(contacts)
}

func (p *Presenter) renderContacts(contacts []domain.Contact) {
	if len(contacts) == 0 {
		_, _ = fmt.Fprintln(p.out, p.faint.Sprint("No contacts yet. Add one with: twin add-contact <email>"))
		return
	}

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow("", p.title.Sprint("ID"), p.title.Sprint("Name"), p.title.Sprint("Status"), "")
	for _, c := range contacts {
		dot := p.faint.Sprint("○")
		status := p.faint.Sprint(string(c.Presence))
		if c.Online() {
			dot = p.on.Sprint("●")
			status = p.on.Sprint(string(c.Presence))
		}
		name := c.Name
		badge := ""
		if c.HasUnread() {
			name = color.New(color.Bold).Sprint(c.Name)
			badge = p.badge.Sprintf(" %d ", c.UnreadCount)
		}
		tbl.AddRow(dot, c.ID, name, status, badge)
	}
	tbl.RightAlign(1)
	_, _ = fmt.Fprintln(p.out, tbl)
}

// ShowError prints an error line.
func (p *Presenter) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, p.err.Sprint("! "+msg))
}

// ShowInfo prints an informational line.
func (p *Presenter) ShowInfo(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, p.info.Sprint(msg))
}

// Navigate prints the heading of the screen the client moved to.
func (p *Presenter) Navigate(r client.Route, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.route = r
	p.shown = ""

	var heading string
	switch r {
	case client.RouteLogin:
		heading = "Logged out. Log in with: twin login <email>"
	case client.RouteContacts:
		heading = "Contacts"
		if title != "" {
			heading = fmt.Sprintf("Contacts · %s (online)", title)
		}
	case client.RouteConversation:
		heading = "Chat with " + title
	}
	_, _ = fmt.Fprintln(p.out, p.title.Sprint(heading))
}

// RestoreInput keeps text so the compose prompt can offer it again.
func (p *Presenter) RestoreInput(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restored = text
	_, _ = fmt.Fprintln(p.out, p.faint.Sprint("unsent: "+text))
}

// TakeRestored returns and forgets the last unsent text.
func (p *Presenter) TakeRestored() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.restored
	p.restored = ""
	return s
}

// Prompt prints the compose prompt.
func (p *Presenter) Prompt(draft string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprint(p.out, "> "+strings.TrimSpace(draft))
}
