package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/notify"
	"github.com/ashureev/twinsync/internal/sched"
	"github.com/ashureev/twinsync/internal/session"
	"github.com/ashureev/twinsync/internal/store"
	"github.com/ashureev/twinsync/internal/transport"
)

var epoch = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

type fakeRemote struct {
	session     domain.Session
	loginErr    error
	logoutCalls int
	contacts    [][]domain.Contact
	contactN    int
	messages    []domain.Message
	messageN    int
	sendErr     error
	sent        []string
	buzzErr     error
	buzzes      int
	addMsg      string
}

func (f *fakeRemote) Login(context.Context, string, string) (domain.Session, error) {
	return f.session, f.loginErr
}

func (f *fakeRemote) Register(context.Context, string, string, string) (string, error) {
	return "Welcome", nil
}

func (f *fakeRemote) Logout(context.Context) error {
	f.logoutCalls++
	return nil
}

func (f *fakeRemote) Contacts(context.Context) ([]domain.Contact, error) {
	i := f.contactN
	f.contactN++
	if len(f.contacts) == 0 {
		return nil, nil
	}
	if i >= len(f.contacts) {
		i = len(f.contacts) - 1
	}
	return f.contacts[i], nil
}

func (f *fakeRemote) AddContact(context.Context, string) (string, error) {
	return f.addMsg, nil
}

func (f *fakeRemote) Messages(context.Context, int64, int64) ([]domain.Message, error) {
	f.messageN++
	return f.messages, nil
}

func (f *fakeRemote) SendMessage(_ context.Context, _ int64, text string) error {
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeRemote) SendBuzz(context.Context, int64) error {
	f.buzzes++
	return f.buzzErr
}

type fakePresenter struct {
	routes   []Route
	errors   []string
	infos    []string
	restored []string
	rendered [][]domain.Contact
	appended []int64
}

func (f *fakePresenter) DistanceFromBottom() int            { return 0 }
func (f *fakePresenter) AppendMessage(m domain.Message)     { f.appended = append(f.appended, m.ID) }
func (f *fakePresenter) ScrollToBottom()                    {}
func (f *fakePresenter) ClearMessages()                     { f.appended = nil }
func (f *fakePresenter) RenderContacts(cs []domain.Contact) { f.rendered = append(f.rendered, cs) }
func (f *fakePresenter) ShowError(msg string)               { f.errors = append(f.errors, msg) }
func (f *fakePresenter) ShowInfo(msg string)                { f.infos = append(f.infos, msg) }
func (f *fakePresenter) Navigate(r Route, _ string)         { f.routes = append(f.routes, r) }
func (f *fakePresenter) RestoreInput(text string)           { f.restored = append(f.restored, text) }

func (f *fakePresenter) lastRoute() Route {
	if len(f.routes) == 0 {
		return -1
	}
	return f.routes[len(f.routes)-1]
}

type fakeAlerter struct {
	tones  []notify.Tone
	shakes []notify.Shake
	notes  []notify.Notification
	asked  int
}

func (f *fakeAlerter) PlayTone(t notify.Tone)          { f.tones = append(f.tones, t) }
func (f *fakeAlerter) Vibrate([]time.Duration)         {}
func (f *fakeAlerter) Shake(s notify.Shake)            { f.shakes = append(f.shakes, s) }
func (f *fakeAlerter) Notify(n notify.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakeAlerter) RequestPermission(context.Context) (domain.Permission, error) {
	f.asked++
	return domain.PermissionGranted, nil
}

type harness struct {
	m         *sched.Manual
	sess      *session.Context
	presenter *fakePresenter
	alerter   *fakeAlerter
	app       *App
}

func newHarness(t *testing.T, remote Remote) *harness {
	t.Helper()
	h := &harness{
		m:         sched.NewManual(epoch),
		sess:      session.New(store.NewMemory()),
		presenter: &fakePresenter{},
		alerter:   &fakeAlerter{},
	}
	h.app = New(Config{
		Scheduler:           h.m,
		Remote:              remote,
		Session:             h.sess,
		Presenter:           h.presenter,
		Alerter:             h.alerter,
		PollInterval:        2 * time.Second,
		ContactPollInterval: 6 * time.Second,
		BuzzCooldown:        5 * time.Second,
	})
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if err := h.sess.Set(context.Background(), domain.Session{Token: "tok", UserID: "1", UserName: "Ann"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
}

func TestLoginStoresSessionAndAsksPermissionOnce(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{session: domain.Session{Token: "s1", UserID: "9", UserName: "Ann", UserEmail: "a@x.io"}}
	h := newHarness(t, remote)

	if err := h.app.Login(ctx, " a@x.io ", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := h.app.Login(ctx, "a@x.io", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	s, _ := h.sess.Get(ctx)
	if s == nil || s.Token != "s1" || s.UserID != "9" {
		t.Fatalf("unexpected session %+v", s)
	}
	if h.alerter.asked != 1 {
		t.Fatalf("expected permission asked once, got %d", h.alerter.asked)
	}
	if h.presenter.lastRoute() != RouteContacts {
		t.Fatalf("expected contacts route, got %v", h.presenter.lastRoute())
	}
}

func TestLoginRejectedShowsRemoteMessage(t *testing.T) {
	remote := &fakeRemote{loginErr: &transport.Failure{Kind: transport.Rejected, Message: "Wrong password"}}
	h := newHarness(t, remote)

	if err := h.app.Login(context.Background(), "a@x.io", "bad"); err == nil {
		t.Fatal("expected error")
	}
	if diff := cmp.Diff([]string{"Wrong password"}, h.presenter.errors); diff != "" {
		t.Fatalf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestGuardWithoutSession(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	_ = h.sess.SetConversation(context.Background(), domain.Selection{ContactID: 3, Name: "Zed"})

	if err := h.app.StartContacts(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if h.presenter.lastRoute() != RouteLogin {
		t.Fatalf("expected login route, got %v", h.presenter.lastRoute())
	}
	if _, ok, _ := h.sess.Conversation(context.Background()); ok {
		t.Fatal("guard must wipe the store")
	}
}

func TestResumeWithoutSelection(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	h.login(t)

	if err := h.app.ResumeConversation(context.Background()); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("expected ErrNoConversation, got %v", err)
	}
	if h.presenter.lastRoute() != RouteContacts {
		t.Fatalf("expected contacts route, got %v", h.presenter.lastRoute())
	}
}

func TestUnreadIncreaseWhileOnContactList(t *testing.T) {
	remote := &fakeRemote{contacts: [][]domain.Contact{
		{{ID: 1, Name: "Zed", UnreadCount: 3}},
		{{ID: 1, Name: "Zed", UnreadCount: 7}},
	}}
	h := newHarness(t, remote)
	h.login(t)
	_ = h.sess.SetPermission(context.Background(), domain.PermissionGranted)

	if err := h.app.StartContacts(context.Background()); err != nil {
		t.Fatalf("StartContacts failed: %v", err)
	}
	h.m.RunReady()
	h.m.Advance(6 * time.Second)

	if len(h.alerter.notes) != 1 || h.alerter.notes[0].Body != "You have 4 new message(s)." {
		t.Fatalf("expected one notification for delta 4, got %+v", h.alerter.notes)
	}
}

func TestSendMessageFailureRestoresInput(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{sendErr: &transport.Failure{Kind: transport.Unreachable}}
	h := newHarness(t, remote)
	h.login(t)
	if err := h.app.OpenConversation(ctx, domain.Selection{ContactID: 2, Name: "Zed"}); err != nil {
		t.Fatalf("OpenConversation failed: %v", err)
	}
	h.m.RunReady()

	if err := h.app.SendMessage(ctx, "  hello  "); err == nil {
		t.Fatal("expected send error")
	}
	if diff := cmp.Diff([]string{"hello"}, h.presenter.restored); diff != "" {
		t.Fatalf("restored mismatch (-want +got):\n%s", diff)
	}

	if err := h.app.SendMessage(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSendMessageRefreshesImmediately(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	h := newHarness(t, remote)
	h.login(t)
	_ = h.app.OpenConversation(ctx, domain.Selection{ContactID: 2, Name: "Zed"})
	h.m.RunReady()
	before := remote.messageN

	if err := h.app.SendMessage(ctx, "hi"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	h.m.RunReady()

	if remote.messageN != before+1 {
		t.Fatalf("expected an immediate fetch after send, got %d -> %d", before, remote.messageN)
	}
	if h.m.PendingTimers() != 1 {
		t.Fatalf("expected one message timer, got %d", h.m.PendingTimers())
	}
}

func TestSendBuzzCooldownAndRollback(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	h := newHarness(t, remote)
	h.login(t)
	_ = h.app.OpenConversation(ctx, domain.Selection{ContactID: 2, Name: "Zed"})
	h.m.RunReady()

	if err := h.app.SendBuzz(ctx); err != nil {
		t.Fatalf("SendBuzz failed: %v", err)
	}
	if diff := cmp.Diff([]notify.Shake{notify.LightShake}, h.alerter.shakes); diff != "" {
		t.Fatalf("shakes mismatch (-want +got):\n%s", diff)
	}

	h.m.Advance(2 * time.Second)
	var cool *CooldownError
	if err := h.app.SendBuzz(ctx); !errors.As(err, &cool) || cool.Remaining != 3 {
		t.Fatalf("expected cooldown with 3s left, got %v", err)
	}
	if !strings.Contains(h.presenter.errors[len(h.presenter.errors)-1], "3s") {
		t.Fatalf("unexpected message %q", h.presenter.errors)
	}

	h.m.Advance(3 * time.Second)
	remote.buzzErr = &transport.Failure{Kind: transport.Rejected}
	if err := h.app.SendBuzz(ctx); err == nil {
		t.Fatal("expected buzz failure")
	}
	remote.buzzErr = nil
	if err := h.app.SendBuzz(ctx); err != nil {
		t.Fatalf("failed buzz must not start a cooldown: %v", err)
	}
	if remote.buzzes != 3 {
		t.Fatalf("expected 3 buzz sends, got %d", remote.buzzes)
	}
}

func TestAddContactRefreshesList(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{addMsg: "Contact added", contacts: [][]domain.Contact{{{ID: 1, Name: "Zed"}}}}
	h := newHarness(t, remote)
	h.login(t)
	_ = h.app.StartContacts(ctx)
	h.m.RunReady()

	if err := h.app.AddContact(ctx, "zed@x.io"); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	h.m.RunReady()

	if remote.contactN != 2 {
		t.Fatalf("expected refresh after add, got %d fetches", remote.contactN)
	}
	if diff := cmp.Diff([]string{"Contact added"}, h.presenter.infos); diff != "" {
		t.Fatalf("infos mismatch (-want +got):\n%s", diff)
	}
}

func TestLogoutStopsLoopsAndClears(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{}
	h := newHarness(t, remote)
	h.login(t)
	_ = h.app.StartContacts(ctx)
	_ = h.app.OpenConversation(ctx, domain.Selection{ContactID: 2, Name: "Zed"})
	h.m.RunReady()

	if err := h.app.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	h.m.RunReady()
	h.m.Advance(time.Minute)

	if remote.logoutCalls != 1 {
		t.Fatalf("expected remote logout, got %d", remote.logoutCalls)
	}
	if s, _ := h.sess.Get(ctx); s != nil {
		t.Fatalf("session survived logout: %+v", s)
	}
	if remote.contactN != 1 || remote.messageN != 1 {
		t.Fatalf("loops kept polling after logout: contacts=%d messages=%d", remote.contactN, remote.messageN)
	}
	if h.m.PendingTimers() != 0 {
		t.Fatalf("timers left after logout: %d", h.m.PendingTimers())
	}
}

func TestToggleSound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeRemote{})

	on, err := h.app.ToggleSound(ctx)
	if err != nil || on {
		t.Fatalf("expected sound off from default on, got %v err=%v", on, err)
	}
	on, _ = h.app.ToggleSound(ctx)
	if !on {
		t.Fatal("expected sound back on")
	}
	if diff := cmp.Diff([]notify.Tone{notify.ToneA}, h.alerter.tones); diff != "" {
		t.Fatalf("tones mismatch (-want +got):\n%s", diff)
	}
}
