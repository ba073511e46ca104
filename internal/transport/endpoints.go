package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ashureev/twinsync/internal/domain"
)

// Endpoint names on the remote store.
const (
	EndpointLogin       = "login.php"
	EndpointRegister    = "register.php"
	EndpointLogout      = "logout.php"
	EndpointContacts    = "contacts.php"
	EndpointAddContact  = "add_contact.php"
	EndpointMessages    = "get_messages.php"
	EndpointSendMessage = "send_message.php"
	EndpointSendBuzz    = "send_buzz.php"
)

// Caller is the raw request contract implemented by Client.
type Caller interface {
	Call(ctx context.Context, endpoint, method string, body any) (json.RawMessage, error)
}

// envelope is the shape shared by every remote store response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Decode checks the success flag of raw and unmarshals it into out (when
// non-nil). A success=false response becomes a Rejected failure.
func Decode(endpoint string, raw json.RawMessage, out any) (string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &Failure{Kind: MalformedResponse, Endpoint: endpoint, Err: err}
	}
	if !env.Success {
		return env.Message, &Failure{Kind: Rejected, Endpoint: endpoint, Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return env.Message, &Failure{Kind: MalformedResponse, Endpoint: endpoint, Err: err}
		}
	}
	return env.Message, nil
}

// API exposes the remote store endpoints as typed calls.
type API struct {
	c Caller
}

// NewAPI wraps c.
func NewAPI(c Caller) *API {
	return &API{c: c}
}

func (a *API) do(ctx context.Context, endpoint, method string, body, out any) (string, error) {
	raw, err := a.c.Call(ctx, endpoint, method, body)
	if err != nil {
		return "", err
	}
	return Decode(endpoint, raw, out)
}

// Login exchanges credentials for a session.
func (a *API) Login(ctx context.Context, email, password string) (domain.Session, error) {
	var resp struct {
		User struct {
			ID    json.Number `json:"id"`
			Name  string      `json:"name"`
			Email string      `json:"email"`
		} `json:"user"`
		SessionID string `json:"session_id"`
	}
	if _, err := a.do(ctx, EndpointLogin, http.MethodPost, map[string]string{
		"email":    email,
		"password": password,
	}, &resp); err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		Token:     resp.SessionID,
		UserID:    resp.User.ID.String(),
		UserName:  resp.User.Name,
		UserEmail: resp.User.Email,
	}, nil
}

// Register creates an account. It returns the remote store's message.
func (a *API) Register(ctx context.Context, name, email, password string) (string, error) {
	return a.do(ctx, EndpointRegister, http.MethodPost, map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, nil)
}

// Logout ends the session on the remote store.
func (a *API) Logout(ctx context.Context) error {
	_, err := a.do(ctx, EndpointLogout, http.MethodPost, nil, nil)
	return err
}

// Contacts fetches the full contact snapshot.
func (a *API) Contacts(ctx context.Context) ([]domain.Contact, error) {
	var resp struct {
		Contacts []domain.Contact `json:"contacts"`
	}
	if _, err := a.do(ctx, EndpointContacts, http.MethodGet, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

// AddContact adds a contact by email and returns the remote store's message.
func (a *API) AddContact(ctx context.Context, email string) (string, error) {
	return a.do(ctx, EndpointAddContact, http.MethodPost, map[string]string{"email": email}, nil)
}

// Messages fetches the conversation with contactID. When afterID > 0 only
// messages with a greater id are requested.
func (a *API) Messages(ctx context.Context, contactID, afterID int64) ([]domain.Message, error) {
	q := url.Values{}
	q.Set("contact_id", strconv.FormatInt(contactID, 10))
	if afterID > 0 {
		q.Set("last_id", strconv.FormatInt(afterID, 10))
	}
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	endpoint := EndpointMessages + "?" + q.Encode()
	if _, err := a.do(ctx, endpoint, http.MethodGet, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage posts a text message to receiverID.
func (a *API) SendMessage(ctx context.Context, receiverID int64, text string) error {
	_, err := a.do(ctx, EndpointSendMessage, http.MethodPost, map[string]any{
		"receiver_id": receiverID,
		"message":     text,
	}, nil)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendBuzz posts a buzz to receiverID.
func (a *API) SendBuzz(ctx context.Context, receiverID int64) error {
	_, err := a.do(ctx, EndpointSendBuzz, http.MethodPost, map[string]any{
		"receiver_id": receiverID,
	}, nil)
	if err != nil {
		return fmt.Errorf("send buzz: %w", err)
	}
	return nil
}
