package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/twinsync/internal/client"
	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/notify"
)

func init() {
	color.NoColor = true
}

func strPtr(s string) *string { return &s }

func TestAppendMessage(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)
	at := time.Date(2024, 1, 2, 15, 4, 0, 0, time.Local)

	p.AppendMessage(domain.Message{ID: 1, SenderName: "Zed", Body: strPtr("hi there"), CreatedAt: at})
	p.AppendMessage(domain.Message{ID: 2, SenderName: "Ann", IsMine: true, IsBuzz: true, CreatedAt: at})

	out := buf.String()
	for _, want := range []string{"Zed · 3:04 PM", "hi there", "    Ann · 3:04 PM", "BUZZ!"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestScrollOffset(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)

	p.ScrollBack(200)
	if p.DistanceFromBottom() != 200 {
		t.Fatalf("expected 200, got %d", p.DistanceFromBottom())
	}
	p.AppendMessage(domain.Message{ID: 1, SenderName: "Zed", Body: strPtr("x")})
	if !strings.Contains(buf.String(), "new message below") {
		t.Fatalf("expected below hint, got:\n%s", buf.String())
	}
	p.ScrollToBottom()
	if p.DistanceFromBottom() != 0 {
		t.Fatal("expected pinned to bottom")
	}
}

func TestRenderContacts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)

	p.RenderContacts(nil)
	if !strings.Contains(buf.String(), "add-contact") {
		t.Fatalf("expected add-contact hint, got %q", buf.String())
	}

	buf.Reset()
	p.RenderContacts([]domain.Contact{
		{ID: 4, Name: "Zed", Presence: domain.PresenceOnline, UnreadCount: 2},
		{ID: 7, Name: "Ann", Presence: domain.PresenceOffline},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "Zed") || !strings.Contains(lines[1], " 2 ") {
		t.Fatalf("unexpected row %q", lines[1])
	}
}

func TestRenderContactsQuietInConversation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)
	contacts := []domain.Contact{{ID: 4, Name: "Zed", Presence: domain.PresenceOnline}}

	p.RenderContacts(contacts)
	first := buf.Len()
	p.RenderContacts(contacts)
	if buf.Len() != first {
		t.Fatal("unchanged snapshot must not be printed again")
	}

	p.Navigate(client.RouteConversation, "Zed")
	buf.Reset()
	p.RenderContacts([]domain.Contact{{ID: 4, Name: "Zed", UnreadCount: 1}})
	if buf.Len() != 0 {
		t.Fatalf("contacts printed during a conversation:\n%s", buf.String())
	}

	p.ShowContacts(contacts)
	if !strings.Contains(buf.String(), "Zed") {
		t.Fatal("ShowContacts must always print")
	}
}

func TestNavigateAndRestore(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)

	p.Navigate(client.RouteConversation, "Zed")
	p.RestoreInput("hello")

	if !strings.Contains(buf.String(), "Chat with Zed") {
		t.Fatalf("unexpected heading:\n%s", buf.String())
	}
	if got := p.TakeRestored(); got != "hello" {
		t.Fatalf("expected restored text, got %q", got)
	}
	if got := p.TakeRestored(); got != "" {
		t.Fatalf("restored text must be taken once, got %q", got)
	}
}

func TestAlerterTones(t *testing.T) {
	var buf bytes.Buffer
	a := NewAlerter(&buf, nil)

	a.PlayTone(notify.ToneA)
	a.PlayTone(notify.ToneB)

	if buf.String() != "\a\a\a" {
		t.Fatalf("expected three bells, got %q", buf.String())
	}
}

func TestAlerterShakePacesFrames(t *testing.T) {
	var (
		buf   bytes.Buffer
		naps  []time.Duration
		drawn []int
	)
	a := NewAlerter(&buf, nil)
	a.sleep = func(d time.Duration) {
		naps = append(naps, d)
		drawn = append(drawn, strings.Count(buf.String(), "~ BUZZ ~"))
	}

	a.Shake(notify.StrongShake)
	a.Wait()

	steps := notify.StrongShake.Steps
	want := make([]time.Duration, steps)
	wantDrawn := make([]int, steps)
	for i := range want {
		want[i] = notify.ShakeInterval
		wantDrawn[i] = i + 1
	}
	if diff := cmp.Diff(want, naps); diff != "" {
		t.Fatalf("frame spacing mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantDrawn, drawn); diff != "" {
		t.Fatalf("each frame must stay up for one interval (-want +got):\n%s", diff)
	}
	if !strings.HasSuffix(buf.String(), "\r\033[K") {
		t.Fatalf("shake must clear its line afterwards, got %q", buf.String())
	}
}

func TestAlerterShakeDoesNotBlock(t *testing.T) {
	var buf bytes.Buffer
	release := make(chan struct{})
	a := NewAlerter(&buf, nil, WithSleep(func(time.Duration) { <-release }))

	done := make(chan struct{})
	go func() {
		a.Shake(notify.LightShake)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shake blocked while frames were pending")
	}

	close(release)
	a.Wait()
	if n := strings.Count(buf.String(), "~ BUZZ ~"); n != notify.LightShake.Steps {
		t.Fatalf("expected %d frames, got %d", notify.LightShake.Steps, n)
	}
}

func TestAlerterShakeRealTime(t *testing.T) {
	a := NewAlerter(&bytes.Buffer{}, nil)

	start := time.Now()
	a.Shake(notify.LightShake)
	a.Wait()

	least := time.Duration(notify.LightShake.Steps) * notify.ShakeInterval
	if elapsed := time.Since(start); elapsed < least {
		t.Fatalf("shake finished in %v, want at least %v", elapsed, least)
	}
}

func TestAlerterNotify(t *testing.T) {
	var got []string
	a := NewAlerter(&bytes.Buffer{}, nil,
		WithLookPath(func(string) (string, error) { return "/usr/bin/notify-send", nil }),
		WithRunner(func(_ context.Context, name string, args ...string) error {
			got = append([]string{name}, args...)
			return nil
		}),
	)

	err := a.Notify(notify.Notification{Title: "Twin Messenger", Body: "You have 1 new message(s).", Icon: "images/user.png", Tag: "new-message"})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	want := []string{
		"/usr/bin/notify-send",
		"--app-name", "Twin Messenger",
		"--icon", "images/user.png",
		"--hint", "string:x-canonical-private-synchronous:new-message",
		"Twin Messenger", "You have 1 new message(s).",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestAlerterWithoutNotifier(t *testing.T) {
	a := NewAlerter(&bytes.Buffer{}, nil,
		WithLookPath(func(string) (string, error) { return "", errors.New("missing") }),
	)

	if err := a.Notify(notify.Notification{Title: "t"}); !errors.Is(err, ErrNoNotifier) {
		t.Fatalf("expected ErrNoNotifier, got %v", err)
	}
	perm, err := a.RequestPermission(context.Background())
	if err != nil || perm != domain.PermissionDenied {
		t.Fatalf("expected denied, got %v err=%v", perm, err)
	}
}
