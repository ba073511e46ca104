package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashureev/twinsync/internal/identity"
	"github.com/ashureev/twinsync/internal/store"
)

const minPasswordLen = 6

// RemoteHandler serves the remote store endpoints.
type RemoteHandler struct {
	*Handler
}

// NewRemoteHandler creates a new remote store handler.
func NewRemoteHandler(h *Handler) *RemoteHandler {
	return &RemoteHandler{Handler: h}
}

// RegisterRoutes registers the endpoints under /api. Everything except
// login and registration goes through auth.
func (h *RemoteHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/login.php", h.Login)
		r.Post("/register.php", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/logout.php", h.Logout)
			r.Get("/contacts.php", h.Contacts)
			r.Post("/add_contact.php", h.AddContact)
			r.Get("/get_messages.php", h.Messages)
			r.Post("/send_message.php", h.SendMessage)
			r.Post("/send_buzz.php", h.SendBuzz)
		})
	})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Login exchanges credentials for a session token.
func (h *RemoteHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		Error(w, http.StatusOK, "Email and password are required")
		return
	}

	user, err := h.db.UserByEmail(r.Context(), email)
	if err != nil {
		h.logger.Error("login lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.logger.Info("rejected login", "email", email, "ip", identity.IPFromRequest(r))
		Error(w, http.StatusOK, "Invalid email or password")
		return
	}

	token := uuid.NewString()
	if err := h.db.CreateSession(r.Context(), token, user.ID); err != nil {
		h.logger.Error("failed to create session", "user_id", user.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if err := h.db.Touch(r.Context(), user.ID, h.now()); err != nil {
		h.logger.Warn("failed to record login activity", "user_id", user.ID, "error", err)
	}

	h.logger.Info("user logged in", "user_id", user.ID)
	OK(w, "Login successful", map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
		"session_id": token,
	})
}

// Register creates an account.
func (h *RemoteHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	switch {
	case name == "" || email == "" || req.Password == "":
		Error(w, http.StatusOK, "All fields are required")
		return
	case !validEmail(email):
		Error(w, http.StatusOK, "Invalid email address")
		return
	case len(req.Password) < minPasswordLen:
		Error(w, http.StatusOK, "Password must be at least "+strconv.Itoa(minPasswordLen)+" characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.hashCost)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	id, err := h.db.CreateUser(r.Context(), name, email, string(hash))
	if errors.Is(err, store.ErrEmailTaken) {
		Error(w, http.StatusOK, "Email already registered")
		return
	}
	if err != nil {
		h.logger.Error("failed to create user", "error", err)
		Error(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	h.logger.Info("user registered", "user_id", id)
	OK(w, "Registration successful. You can now log in.", nil)
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Logout ends the caller's session and marks them offline.
func (h *RemoteHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)

	if err := h.db.DeleteSession(ctx, identity.TokenFromContext(ctx)); err != nil {
		h.logger.Error("failed to delete session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	if err := h.db.SetOffline(ctx, userID); err != nil {
		h.logger.Warn("failed to mark user offline", "user_id", userID, "error", err)
	}
	OK(w, "Logged out", nil)
}

// Contacts returns the caller's contact list with presence and unread counts.
func (h *RemoteHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	contacts, err := h.db.Contacts(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list contacts", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load contacts")
		return
	}
	OK(w, "", map[string]any{"contacts": contacts})
}

// AddContact links the caller with the account registered under email.
func (h *RemoteHandler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)
	email := normalizeEmail(req.Email)
	if email == "" {
		Error(w, http.StatusOK, "Email is required")
		return
	}

	other, err := h.db.UserByEmail(ctx, email)
	if err != nil {
		h.logger.Error("contact lookup failed", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to add contact")
		return
	}
	switch {
	case other == nil:
		Error(w, http.StatusOK, "User not found")
		return
	case other.ID == userID:
		Error(w, http.StatusOK, "You cannot add yourself")
		return
	}

	err = h.db.AddContact(ctx, userID, other.ID)
	if errors.Is(err, store.ErrContactExists) {
		Error(w, http.StatusOK, "Contact already added")
		return
	}
	if err != nil {
		h.logger.Error("failed to add contact", "user_id", userID, "contact_id", other.ID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to add contact")
		return
	}
	OK(w, other.Name+" added to your contacts", nil)
}

// Messages returns the conversation with contact_id after last_id.
func (h *RemoteHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)

	contactID, err := strconv.ParseInt(r.URL.Query().Get("contact_id"), 10, 64)
	if err != nil || contactID <= 0 {
		Error(w, http.StatusBadRequest, "Invalid contact_id")
		return
	}
	var afterID int64
	if v := r.URL.Query().Get("last_id"); v != "" {
		if afterID, err = strconv.ParseInt(v, 10, 64); err != nil || afterID < 0 {
			Error(w, http.StatusBadRequest, "Invalid last_id")
			return
		}
	}

	if !h.requireContact(w, r, userID, contactID) {
		return
	}

	msgs, err := h.db.Messages(ctx, userID, contactID, afterID)
	if err != nil {
		h.logger.Error("failed to load messages", "user_id", userID, "contact_id", contactID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	OK(w, "", map[string]any{"messages": msgs})
}

type sendRequest struct {
	ReceiverID json.Number `json:"receiver_id"`
	Message    string      `json:"message"`
}

func (h *RemoteHandler) decodeSend(w http.ResponseWriter, r *http.Request) (sendRequest, int64, bool) {
	var req sendRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return req, 0, false
	}
	receiverID, err := req.ReceiverID.Int64()
	if err != nil || receiverID <= 0 {
		Error(w, http.StatusBadRequest, "Invalid receiver_id")
		return req, 0, false
	}
	return req, receiverID, true
}

// SendMessage stores a text message from the caller.
func (h *RemoteHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, receiverID, ok := h.decodeSend(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		Error(w, http.StatusOK, "Message cannot be empty")
		return
	}
	h.send(w, r, receiverID, &text, false)
}

// SendBuzz stores a buzz from the caller.
func (h *RemoteHandler) SendBuzz(w http.ResponseWriter, r *http.Request) {
	_, receiverID, ok := h.decodeSend(w, r)
	if !ok {
		return
	}
	h.send(w, r, receiverID, nil, true)
}

func (h *RemoteHandler) send(w http.ResponseWriter, r *http.Request, receiverID int64, body *string, buzz bool) {
	ctx := r.Context()
	userID := identity.UserIDFromContext(ctx)
	if !h.requireContact(w, r, userID, receiverID) {
		return
	}

	id, err := h.db.InsertMessage(ctx, userID, receiverID, body, buzz, h.now())
	if err != nil {
		h.logger.Error("failed to store message", "user_id", userID, "receiver_id", receiverID, "buzz", buzz, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to send")
		return
	}
	msg := "Message sent"
	if buzz {
		msg = "Buzz sent"
	}
	OK(w, msg, map[string]any{"id": id})
}

// requireContact answers 403 when contactID is not on userID's list.
func (h *RemoteHandler) requireContact(w http.ResponseWriter, r *http.Request, userID, contactID int64) bool {
	ok, err := h.db.IsContact(r.Context(), userID, contactID)
	if err != nil {
		h.logger.Error("contact check failed", "user_id", userID, "contact_id", contactID, "error", err)
		Error(w, http.StatusInternalServerError, "Failed to verify contact")
		return false
	}
	if !ok {
		Error(w, http.StatusForbidden, "Not a contact")
		return false
	}
	return true
}
