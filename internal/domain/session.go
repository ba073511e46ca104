// Package domain contains core domain types for the twinsync client.
package domain

// Session is the authenticated identity held for the process lifetime.
// The token is opaque; its freshness is only ever judged by the remote store.
type Session struct {
	Token     string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// Valid reports whether the session carries enough to make authenticated calls.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != ""
}
