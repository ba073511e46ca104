package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/twinsync/internal/domain"
)

func newAccounts(t *testing.T) *AccountsSQLite {
	t.Helper()
	a, err := NewAccountsSQLite(filepath.Join(t.TempDir(), "remote.db"))
	if err != nil {
		t.Fatalf("NewAccountsSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func mustUser(t *testing.T, a *AccountsSQLite, name, email string) int64 {
	t.Helper()
	id, err := a.CreateUser(context.Background(), name, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return id
}

func TestAccountsDuplicateEmail(t *testing.T) {
	a := newAccounts(t)
	mustUser(t, a, "Ann", "ann@example.com")

	_, err := a.CreateUser(context.Background(), "Other", "ANN@example.com", "hash")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAccountsSessions(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	id := mustUser(t, a, "Ann", "ann@example.com")

	if err := a.CreateSession(ctx, "tok", id); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	u, err := a.SessionUser(ctx, "tok")
	if err != nil || u == nil || u.ID != id {
		t.Fatalf("expected user %d, got %+v err=%v", id, u, err)
	}
	if err := a.DeleteSession(ctx, "tok"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if u, err := a.SessionUser(ctx, "tok"); err != nil || u != nil {
		t.Fatalf("expected no user after delete, got %+v err=%v", u, err)
	}
}

func TestAccountsContactsAndUnread(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	ann := mustUser(t, a, "Ann", "ann@example.com")
	zed := mustUser(t, a, "Zed", "zed@example.com")

	if err := a.AddContact(ctx, ann, zed); err != nil {
		t.Fatalf("AddContact failed: %v", err)
	}
	if err := a.AddContact(ctx, ann, zed); !errors.Is(err, ErrContactExists) {
		t.Fatalf("expected ErrContactExists, got %v", err)
	}
	if ok, _ := a.IsContact(ctx, zed, ann); !ok {
		t.Fatal("contacts must be mutual")
	}

	hi := "hi"
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := a.InsertMessage(ctx, zed, ann, &hi, false, now); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}
	if _, err := a.InsertMessage(ctx, zed, ann, nil, true, now); err != nil {
		t.Fatalf("InsertMessage buzz failed: %v", err)
	}
	if err := a.Touch(ctx, zed, now); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	got, err := a.Contacts(ctx, ann)
	if err != nil {
		t.Fatalf("Contacts failed: %v", err)
	}
	want := []domain.Contact{{ID: zed, Name: "Zed", Presence: domain.PresenceOnline, UnreadCount: 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("contacts mismatch (-want +got):\n%s", diff)
	}
}

func TestAccountsMessagesMarkRead(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	ann := mustUser(t, a, "Ann", "ann@example.com")
	zed := mustUser(t, a, "Zed", "zed@example.com")

	hello, reply := "hello", "hey"
	first, _ := a.InsertMessage(ctx, zed, ann, &hello, false, time.Now())
	if _, err := a.InsertMessage(ctx, ann, zed, &reply, false, time.Now()); err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if _, err := a.InsertMessage(ctx, zed, ann, nil, true, time.Now()); err != nil {
		t.Fatalf("InsertMessage buzz failed: %v", err)
	}

	msgs, err := a.Messages(ctx, ann, zed, 0)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].ID != first || msgs[0].IsMine || msgs[0].IsRead || msgs[0].Text() != "hello" {
		t.Fatalf("unexpected first message %+v", msgs[0])
	}
	if !msgs[1].IsMine || msgs[1].SenderName != "Ann" {
		t.Fatalf("expected own message second, got %+v", msgs[1])
	}
	if !msgs[2].IsBuzz || msgs[2].Body != nil {
		t.Fatalf("expected body-less buzz, got %+v", msgs[2])
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Fatalf("timestamp %q did not parse", msgs[0].CreatedRaw)
	}

	again, err := a.Messages(ctx, ann, zed, 0)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if !again[0].IsRead || !again[2].IsRead {
		t.Fatal("incoming messages must be read after the first fetch")
	}

	tail, err := a.Messages(ctx, ann, zed, first)
	if err != nil || len(tail) != 2 {
		t.Fatalf("expected 2 messages after %d, got %d err=%v", first, len(tail), err)
	}

	contacts, _ := a.Contacts(ctx, ann)
	if len(contacts) != 0 {
		t.Fatalf("no contact link was made, got %+v", contacts)
	}
}

func TestAccountsExpirePresence(t *testing.T) {
	ctx := context.Background()
	a := newAccounts(t)
	ann := mustUser(t, a, "Ann", "ann@example.com")
	zed := mustUser(t, a, "Zed", "zed@example.com")

	now := time.Now()
	_ = a.Touch(ctx, ann, now.Add(-time.Minute))
	_ = a.Touch(ctx, zed, now)

	n, err := a.ExpirePresence(ctx, now.Add(-30*time.Second))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 expired, got %d err=%v", n, err)
	}
	u, _ := a.UserByEmail(ctx, "ann@example.com")
	if u.Online {
		t.Fatal("Ann should be offline")
	}
	u, _ = a.UserByEmail(ctx, "ZED@example.com")
	if !u.Online {
		t.Fatal("Zed should still be online")
	}
}
