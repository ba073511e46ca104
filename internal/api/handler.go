// Package api provides HTTP handlers for the development remote store that
// `twin serve` runs: the endpoints the client polls, backed by SQLite.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ashureev/twinsync/internal/store"
)

// Handler provides common handler utilities.
type Handler struct {
	db       store.Accounts
	logger   *slog.Logger
	now      func() time.Time
	hashCost int
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(db store.Accounts, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		db:       db,
		logger:   logger,
		now:      time.Now,
		hashCost: bcrypt.DefaultCost,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"message":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a failed envelope: {"success": false, "message": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"success": false, "message": message})
}

// OK writes a successful envelope with message and the fields of extra.
func OK(w http.ResponseWriter, message string, extra map[string]any) {
	body := map[string]any{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range extra {
		body[k] = v
	}
	JSON(w, http.StatusOK, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
