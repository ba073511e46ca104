// Package client ties the session, transport, polling loops, notification
// engine and buzz gate together behind the user-facing operations.
//
// Methods may be called from any goroutine. Anything that touches loop state
// is posted onto the scheduler; network calls run on the caller.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/gate"
	"github.com/ashureev/twinsync/internal/notify"
	"github.com/ashureev/twinsync/internal/poller"
	"github.com/ashureev/twinsync/internal/render"
	"github.com/ashureev/twinsync/internal/sched"
	"github.com/ashureev/twinsync/internal/session"
	"github.com/ashureev/twinsync/internal/transport"
)

var (
	// ErrNoConversation is returned when an operation needs an open
	// conversation and none is selected.
	ErrNoConversation = errors.New("no conversation selected")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// CooldownError reports a buzz denied by the rate limit.
type CooldownError struct {
	Remaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("buzz cooling down, %ds left", e.Remaining)
}

// Route is a screen of the client.
type Route int

const (
	RouteLogin Route = iota
	RouteContacts
	RouteConversation
)

func (r Route) String() string {
	switch r {
	case RouteLogin:
		return "login"
	case RouteContacts:
		return "contacts"
	case RouteConversation:
		return "conversation"
	default:
		return "unknown"
	}
}

// Remote is the remote store as seen by the client.
type Remote interface {
	Login(ctx context.Context, email, password string) (domain.Session, error)
	Register(ctx context.Context, name, email, password string) (string, error)
	Logout(ctx context.Context) error
	Contacts(ctx context.Context) ([]domain.Contact, error)
	AddContact(ctx context.Context, email string) (string, error)
	Messages(ctx context.Context, contactID, afterID int64) ([]domain.Message, error)
	SendMessage(ctx context.Context, receiverID int64, text string) error
	SendBuzz(ctx context.Context, receiverID int64) error
}

// Presenter is the user-facing surface.
type Presenter interface {
	render.Viewport
	render.ContactSurface
	ShowError(msg string)
	ShowInfo(msg string)
	Navigate(r Route, title string)
	// RestoreInput puts text back into the compose field after a failed send.
	RestoreInput(text string)
}

// Config wires an App.
type Config struct {
	Scheduler           sched.Scheduler
	Remote              Remote
	Session             *session.Context
	Presenter           Presenter
	Alerter             notify.Alerter
	PollInterval        time.Duration
	ContactPollInterval time.Duration
	BuzzCooldown        time.Duration
	NearBottom          int
	Logger              *slog.Logger
}

// App is the client.
type App struct {
	sched     sched.Scheduler
	remote    Remote
	sess      *session.Context
	presenter Presenter
	logger    *slog.Logger

	engine   *notify.Engine
	gate     *gate.Gate
	log      *render.MessageLog
	list     *render.ContactList
	messages *poller.MessageLoop
	contacts *poller.ContactLoop
}

// New builds an App. Nothing polls until StartContacts or OpenConversation.
func New(cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		sched:     cfg.Scheduler,
		remote:    cfg.Remote,
		sess:      cfg.Session,
		presenter: cfg.Presenter,
		logger:    logger,
	}
	a.engine = notify.NewEngine(cfg.Alerter, cfg.Session, logger)
	a.gate = gate.New(cfg.Session, cfg.BuzzCooldown)
	a.log = render.NewMessageLog(cfg.Presenter, cfg.NearBottom)
	a.list = render.NewContactList(cfg.Presenter)

	a.messages = poller.NewMessageLoop(poller.MessageLoopConfig{
		Scheduler: cfg.Scheduler,
		Source:    cfg.Remote,
		Log:       a.log,
		Interval:  cfg.PollInterval,
		OnArrival: a.engine.Arrived,
		OnError:   a.reportLoopError,
		Logger:    logger,
	})
	a.contacts = poller.NewContactLoop(poller.ContactLoopConfig{
		Scheduler: cfg.Scheduler,
		Source:    cfg.Remote,
		List:      a.list,
		Interval:  cfg.ContactPollInterval,
		Viewing:   a.messages.Active,
		OnUnread:  a.engine.UnreadIncrease,
		OnError:   a.reportLoopError,
		Logger:    logger,
	})
	return a
}

func (a *App) reportLoopError(err error) {
	a.presenter.ShowError(transport.UserMessage(err))
}

// report shows err to the user unless the call was aborted by an expired
// session, which has already navigated to login.
func (a *App) report(err error) {
	if errors.Is(err, transport.ErrAborted) {
		return
	}
	a.presenter.ShowError(transport.UserMessage(err))
}

// Unauthorized tears the client down after the remote store rejected the
// session. The store has already been cleared by the transport.
func (a *App) Unauthorized() {
	a.logger.Info("session rejected by remote store")
	a.stopLoops()
	a.presenter.Navigate(RouteLogin, "")
}

func (a *App) stopLoops() {
	a.sched.Post(func() {
		a.messages.Stop()
		a.contacts.Stop()
	})
}

// Guard returns the live session. Without one it wipes the store and
// navigates to login.
func (a *App) Guard(ctx context.Context) (*domain.Session, error) {
	s, err := a.sess.Require(ctx)
	if err == nil {
		return s, nil
	}
	if clearErr := a.sess.Clear(ctx); clearErr != nil {
		a.logger.Warn("failed to clear session store", "error", clearErr)
	}
	a.presenter.Navigate(RouteLogin, "")
	return nil, err
}

// Login authenticates, stores the session and asks once for OS
// notification permission.
func (a *App) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		a.presenter.ShowError("Email and password are required.")
		return errors.New("missing credentials")
	}
	s, err := a.remote.Login(ctx, email, password)
	if err != nil {
		a.report(err)
		return fmt.Errorf("login: %w", err)
	}
	if err := a.sess.Set(ctx, s); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.logger.Info("logged in", "user_id", s.UserID)
	a.engine.RequestPermission(ctx)
	a.presenter.Navigate(RouteContacts, s.UserName)
	return nil
}

// Register creates an account and returns to the login screen.
func (a *App) Register(ctx context.Context, name, email, password string) error {
	msg, err := a.remote.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		a.report(err)
		return fmt.Errorf("register: %w", err)
	}
	if msg == "" {
		msg = "Registration complete. You can log in now."
	}
	a.presenter.ShowInfo(msg)
	a.presenter.Navigate(RouteLogin, "")
	return nil
}

// Logout ends the session on the remote store, stops both loops and wipes
// the local store.
func (a *App) Logout(ctx context.Context) error {
	a.stopLoops()
	if err := a.remote.Logout(ctx); err != nil && !errors.Is(err, transport.ErrAborted) {
		a.logger.Warn("remote logout failed", "error", err)
	}
	if err := a.sess.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	a.presenter.Navigate(RouteLogin, "")
	return nil
}

// ListContacts fetches and renders the contact list once.
func (a *App) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	if _, err := a.Guard(ctx); err != nil {
		return nil, err
	}
	snapshot, err := a.remote.Contacts(ctx)
	if err != nil {
		a.report(err)
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	a.list.Replace(snapshot)
	return a.list.Contacts(), nil
}

// StartContacts begins contact polling.
func (a *App) StartContacts(ctx context.Context) error {
	if _, err := a.Guard(ctx); err != nil {
		return err
	}
	a.sched.Post(func() { a.contacts.Start(ctx) })
	return nil
}

// AddContact adds a contact by email and refreshes the list.
func (a *App) AddContact(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		a.presenter.ShowError("Enter an email address.")
		return errors.New("missing email")
	}
	msg, err := a.remote.AddContact(ctx, email)
	if err != nil {
		a.report(err)
		return fmt.Errorf("add contact: %w", err)
	}
	if msg == "" {
		msg = "Contact added."
	}
	a.presenter.ShowInfo(msg)
	a.sched.Post(a.contacts.Refresh)
	return nil
}

// OpenConversation selects a contact and starts polling its messages.
func (a *App) OpenConversation(ctx context.Context, sel domain.Selection) error {
	if _, err := a.Guard(ctx); err != nil {
		return err
	}
	if sel.ContactID == 0 {
		a.presenter.Navigate(RouteContacts, "")
		return ErrNoConversation
	}
	if err := a.sess.SetConversation(ctx, sel); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	a.engine.SetForeground(true)
	a.presenter.Navigate(RouteConversation, sel.Name)
	a.sched.Post(func() { a.messages.Enter(ctx, sel.ContactID) })
	return nil
}

// ResumeConversation reopens the conversation recorded in the session.
func (a *App) ResumeConversation(ctx context.Context) error {
	if _, err := a.Guard(ctx); err != nil {
		return err
	}
	sel, ok, err := a.sess.Conversation(ctx)
	if err != nil {
		return fmt.Errorf("resume conversation: %w", err)
	}
	if !ok {
		a.presenter.Navigate(RouteContacts, "")
		return ErrNoConversation
	}
	return a.OpenConversation(ctx, sel)
}

// LeaveConversation stops message polling and returns to the contact list.
func (a *App) LeaveConversation(ctx context.Context) error {
	a.sched.Post(a.messages.Stop)
	a.engine.SetForeground(false)
	if err := a.sess.ClearConversation(ctx); err != nil {
		return fmt.Errorf("leave conversation: %w", err)
	}
	a.presenter.Navigate(RouteContacts, "")
	return nil
}

// SetForeground tells the notification engine whether the open
// conversation is in front of the user.
func (a *App) SetForeground(fg bool) {
	a.engine.SetForeground(fg)
}

func (a *App) selection(ctx context.Context) (domain.Selection, error) {
	sel, ok, err := a.sess.Conversation(ctx)
	if err != nil {
		return domain.Selection{}, err
	}
	if !ok {
		return domain.Selection{}, ErrNoConversation
	}
	return sel, nil
}

// SendMessage sends text to the open conversation. On failure the text is
// handed back to the compose field.
func (a *App) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	sel, err := a.selection(ctx)
	if err != nil {
		a.presenter.RestoreInput(text)
		return err
	}
	if err := a.remote.SendMessage(ctx, sel.ContactID, text); err != nil {
		if !errors.Is(err, transport.ErrAborted) {
			a.presenter.ShowError("Could not send the message.")
			a.presenter.RestoreInput(text)
		}
		return err
	}
	a.sched.Post(a.messages.Refresh)
	return nil
}

// SendBuzz buzzes the open conversation, subject to the cooldown. Only a
// successful send starts the cooldown.
func (a *App) SendBuzz(ctx context.Context) error {
	sel, err := a.selection(ctx)
	if err != nil {
		return err
	}
	d, err := a.gate.TryFire(ctx, a.sched.Now())
	if err != nil {
		return fmt.Errorf("buzz: %w", err)
	}
	if !d.Allowed {
		a.presenter.ShowError(fmt.Sprintf("Wait %ds before sending another buzz.", d.Remaining))
		return &CooldownError{Remaining: d.Remaining}
	}

	if err := a.remote.SendBuzz(ctx, sel.ContactID); err != nil {
		if rbErr := a.gate.Rollback(ctx, d); rbErr != nil {
			a.logger.Warn("failed to roll back buzz cooldown", "error", rbErr)
		}
		if !errors.Is(err, transport.ErrAborted) {
			a.presenter.ShowError("Could not send the buzz.")
		}
		return err
	}
	a.engine.OwnBuzzSent()
	a.sched.Post(a.messages.Refresh)
	return nil
}

// ToggleSound flips the notification preference and returns the new value.
func (a *App) ToggleSound(ctx context.Context) (bool, error) {
	enabled := !a.sess.SoundEnabled(ctx)
	if err := a.sess.SetSoundEnabled(ctx, enabled); err != nil {
		return false, fmt.Errorf("toggle sound: %w", err)
	}
	a.engine.SoundToggled(ctx, enabled)
	return enabled, nil
}

// Stop halts both loops.
func (a *App) Stop() {
	a.stopLoops()
}

// Contacts returns the last rendered contact list. Call on the loop.
func (a *App) Contacts() []domain.Contact {
	return a.list.Contacts()
}
