package domain

import "time"

// User is an account on the development remote store.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Online       bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
}

// AsContact renders u as a row of someone else's contact list.
func (u *User) AsContact(unread int) Contact {
	p := PresenceOffline
	if u.Online {
		p = PresenceOnline
	}
	return Contact{ID: u.ID, Name: u.Name, Presence: p, UnreadCount: unread}
}
