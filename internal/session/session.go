// Package session holds the active session and the small amount of
// per-session state (sound preference, buzz cooldown, open conversation)
// kept in the session-scoped store.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/store"
)

// Keys in the session store.
const (
	KeyToken        = "php_session_id"
	KeyUserID       = "user_id"
	KeyUserName     = "user_name"
	KeyUserEmail    = "user_email"
	KeySoundEnabled = "twin_sound_enabled"
	KeyLastBuzz     = "twin_last_buzz_time"
	KeyContactID    = "current_contact_id"
	KeyContactName  = "current_contact_name"
	KeyPermission   = "twin_notify_permission"
)

// ErrNoSession is returned by Require when nobody is logged in.
var ErrNoSession = errors.New("no active session")

// Context is the process-wide holder of the live session. Reads are served
// from memory after the first load; writes go through to the store.
type Context struct {
	repo store.Repository

	mu     sync.RWMutex
	loaded bool
	cur    *domain.Session
}

// New creates a session context over repo.
func New(repo store.Repository) *Context {
	return &Context{repo: repo}
}

// Get returns the live session, or nil when none is held.
func (c *Context) Get(ctx context.Context) (*domain.Session, error) {
	c.mu.RLock()
	if c.loaded {
		cur := c.cur
		c.mu.RUnlock()
		return cur, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.cur, nil
	}

	s := &domain.Session{}
	fields := []struct {
		key string
		dst *string
	}{
		{KeyToken, &s.Token},
		{KeyUserID, &s.UserID},
		{KeyUserName, &s.UserName},
		{KeyUserEmail, &s.UserEmail},
	}
	for _, f := range fields {
		v, _, err := c.repo.Get(ctx, f.key)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		*f.dst = v
	}

	c.loaded = true
	if s.Valid() {
		c.cur = s
	}
	return c.cur, nil
}

// Require returns the live session or ErrNoSession.
func (c *Context) Require(ctx context.Context) (*domain.Session, error) {
	s, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// Token returns the current session token, or "" when none is held or the
// store cannot be read.
func (c *Context) Token(ctx context.Context) string {
	s, err := c.Get(ctx)
	if err != nil || s == nil {
		return ""
	}
	return s.Token
}

// Set replaces the live session.
func (c *Context) Set(ctx context.Context, s domain.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, value := range map[string]string{
		KeyToken:     s.Token,
		KeyUserID:    s.UserID,
		KeyUserName:  s.UserName,
		KeyUserEmail: s.UserEmail,
	} {
		if err := c.repo.Set(ctx, key, value); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
	}
	cp := s
	c.cur = &cp
	c.loaded = true
	return nil
}

// Clear drops the session and everything else in the session store.
func (c *Context) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = nil
	c.loaded = true
	if err := c.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clear session store: %w", err)
	}
	return nil
}

// SoundEnabled returns the notification preference. It defaults to true.
func (c *Context) SoundEnabled(ctx context.Context) bool {
	v, ok, err := c.repo.Get(ctx, KeySoundEnabled)
	if err != nil || !ok {
		return true
	}
	return v == "true"
}

// SetSoundEnabled persists the notification preference.
func (c *Context) SetSoundEnabled(ctx context.Context, enabled bool) error {
	return c.repo.Set(ctx, KeySoundEnabled, strconv.FormatBool(enabled))
}

// LastBuzz returns when the last buzz was successfully sent, or the zero time.
func (c *Context) LastBuzz(ctx context.Context) (time.Time, error) {
	v, ok, err := c.repo.Get(ctx, KeyLastBuzz)
	if err != nil {
		return time.Time{}, fmt.Errorf("load last buzz: %w", err)
	}
	if !ok || v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// SetLastBuzz persists the last buzz time. The zero time removes it.
func (c *Context) SetLastBuzz(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return c.repo.Delete(ctx, KeyLastBuzz)
	}
	return c.repo.Set(ctx, KeyLastBuzz, strconv.FormatInt(t.UnixMilli(), 10))
}

// Conversation returns the currently selected contact, if any.
func (c *Context) Conversation(ctx context.Context) (domain.Selection, bool, error) {
	idStr, ok, err := c.repo.Get(ctx, KeyContactID)
	if err != nil {
		return domain.Selection{}, false, fmt.Errorf("load conversation: %w", err)
	}
	if !ok || idStr == "" {
		return domain.Selection{}, false, nil
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return domain.Selection{}, false, nil
	}
	name, _, err := c.repo.Get(ctx, KeyContactName)
	if err != nil {
		return domain.Selection{}, false, fmt.Errorf("load conversation: %w", err)
	}
	return domain.Selection{ContactID: id, Name: name}, true, nil
}

// SetConversation records the selected contact.
func (c *Context) SetConversation(ctx context.Context, sel domain.Selection) error {
	if err := c.repo.Set(ctx, KeyContactID, strconv.FormatInt(sel.ContactID, 10)); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	if err := c.repo.Set(ctx, KeyContactName, sel.Name); err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	return nil
}

// ClearConversation forgets the selected contact.
func (c *Context) ClearConversation(ctx context.Context) error {
	if err := c.repo.Delete(ctx, KeyContactID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	if err := c.repo.Delete(ctx, KeyContactName); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Permission returns the recorded OS notification permission.
func (c *Context) Permission(ctx context.Context) domain.Permission {
	v, ok, err := c.repo.Get(ctx, KeyPermission)
	if err != nil || !ok {
		return domain.PermissionDefault
	}
	return domain.Permission(v)
}

// SetPermission records the OS notification permission.
func (c *Context) SetPermission(ctx context.Context, p domain.Permission) error {
	return c.repo.Set(ctx, KeyPermission, string(p))
}
