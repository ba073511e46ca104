// Package identity resolves the session token carried on dev remote store
// requests into the calling user.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
)

// DefaultParam is the request parameter that carries the session token.
const DefaultParam = "PHPSESSID"

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
	tokenKey
)

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Sessions resolves tokens and records activity.
type Sessions interface {
	SessionUser(ctx context.Context, token string) (*domain.User, error)
	Touch(ctx context.Context, userID int64, at time.Time) error
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(userIDKey).(int64); ok {
		return v
	}
	return 0
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// TokenFromContext extracts the session token from the request context.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey).(string); ok {
		return v
	}
	return ""
}

// WithUser returns ctx carrying u and token, as Middleware would.
func WithUser(ctx context.Context, u *domain.User, token string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, u.ID)
	ctx = context.WithValue(ctx, usernameKey, u.Name)
	return context.WithValue(ctx, tokenKey, token)
}

func sanitizeToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if !tokenPattern.MatchString(tok) {
		return ""
	}
	return tok
}

// TokenFromRequest reads the token from the param query value, falling back
// to a cookie of the same name.
func TokenFromRequest(r *http.Request, param string) string {
	tok := r.URL.Query().Get(param)
	if tok == "" {
		if c, err := r.Cookie(param); err == nil {
			tok = c.Value
		}
	}
	return sanitizeToken(tok)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"Not authenticated"}` + "\n"))
}

// Middleware rejects requests without a live session with 401 and injects
// the caller's identity otherwise. Every authenticated request counts as
// activity for presence.
func Middleware(sessions Sessions, param string) func(http.Handler) http.Handler {
	if param == "" {
		param = DefaultParam
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := TokenFromRequest(r, param)
			if tok == "" {
				unauthorized(w)
				return
			}

			user, err := sessions.SessionUser(r.Context(), tok)
			if err != nil {
				slog.Error("session lookup failed", "error", err, "ip", IPFromRequest(r))
				http.Error(w, `{"success":false,"message":"failed to resolve session"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				unauthorized(w)
				return
			}

			if err := sessions.Touch(r.Context(), user.ID, time.Now()); err != nil {
				slog.Warn("failed to record activity", "user_id", user.ID, "error", err)
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, tok)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
