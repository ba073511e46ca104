package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout the remote store uses for created_at.
const TimestampLayout = "2006-01-02 15:04:05"

// Message is an immutable conversation entry. Identity is ID, which the
// remote store assigns in strictly increasing order.
type Message struct {
	ID         int64
	SenderName string
	Body       *string
	CreatedAt  time.Time
	// CreatedRaw keeps the timestamp as sent, for display when it does not parse.
	CreatedRaw string
	IsMine     bool
	IsBuzz     bool
	IsRead     bool
}

// Text returns the body or an empty string for body-less messages (buzzes).
func (m Message) Text() string {
	if m.Body == nil {
		return ""
	}
	return *m.Body
}

// Clock renders the creation time as "3:04 PM". Unparseable timestamps are
// returned as received.
func (m Message) Clock() string {
	if m.CreatedAt.IsZero() {
		return m.CreatedRaw
	}
	return m.CreatedAt.Format("3:04 PM")
}

// UnmarshalJSON decodes the remote store's message row.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         flexInt  `json:"id"`
		SenderName string   `json:"sender_name"`
		Message    *string  `json:"message"`
		CreatedAt  string   `json:"created_at"`
		IsMine     flexBool `json:"is_mine"`
		IsBuzz     flexBool `json:"is_buzz"`
		IsRead     flexBool `json:"is_read"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	m.ID = int64(raw.ID)
	m.SenderName = raw.SenderName
	m.Body = raw.Message
	m.CreatedRaw = raw.CreatedAt
	m.CreatedAt = ParseTimestamp(raw.CreatedAt)
	m.IsMine = bool(raw.IsMine)
	m.IsBuzz = bool(raw.IsBuzz)
	m.IsRead = bool(raw.IsRead)
	return nil
}

// MarshalJSON encodes the message in the remote store's row format.
func (m Message) MarshalJSON() ([]byte, error) {
	created := m.CreatedRaw
	if created == "" && !m.CreatedAt.IsZero() {
		created = m.CreatedAt.Format(TimestampLayout)
	}
	return json.Marshal(struct {
		ID         int64   `json:"id"`
		SenderName string  `json:"sender_name"`
		Message    *string `json:"message"`
		CreatedAt  string  `json:"created_at"`
		IsMine     bool    `json:"is_mine"`
		IsBuzz     bool    `json:"is_buzz"`
		IsRead     bool    `json:"is_read"`
	}{m.ID, m.SenderName, m.Body, created, m.IsMine, m.IsBuzz, m.IsRead})
}

// ParseTimestamp parses created_at values, accepting "-" or "/" as the date
// separator and RFC 3339. It returns the zero time when nothing matches.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	s = strings.ReplaceAll(s, "/", "-")
	for _, layout := range []string{TimestampLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MaxID returns the highest id in the batch, or 0 for an empty batch.
func MaxID(msgs []Message) int64 {
	var maxID int64
	for _, m := range msgs {
		if m.ID > maxID {
			maxID = m.ID
		}
	}
	return maxID
}
