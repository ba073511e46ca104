package domain

import (
	"encoding/json"
	"fmt"
)

// Presence is a contact's online state as reported by the remote store.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// Contact is one row of the contact list. Rows are replaced wholesale on
// every contact poll.
type Contact struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Presence    Presence `json:"status"`
	UnreadCount int      `json:"unread_count"`
}

// Online reports whether the contact is currently online.
func (c Contact) Online() bool {
	return c.Presence == PresenceOnline
}

// HasUnread reports whether the contact has unread messages.
func (c Contact) HasUnread() bool {
	return c.UnreadCount > 0
}

// UnmarshalJSON accepts the loose encodings the remote store emits
// (numeric strings for ids and counts).
func (c *Contact) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          flexInt  `json:"id"`
		Name        string   `json:"name"`
		Status      Presence `json:"status"`
		UnreadCount flexInt  `json:"unread_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode contact: %w", err)
	}
	c.ID = int64(raw.ID)
	c.Name = raw.Name
	c.Presence = raw.Status
	if c.Presence != PresenceOnline {
		c.Presence = PresenceOffline
	}
	c.UnreadCount = int(raw.UnreadCount)
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	return nil
}

// TotalUnread sums unread counts across a contact snapshot.
func TotalUnread(contacts []Contact) int {
	total := 0
	for _, c := range contacts {
		total += c.UnreadCount
	}
	return total
}
