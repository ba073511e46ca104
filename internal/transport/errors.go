package transport

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when the remote store rejected the session. The
// session has already been cleared; callers abort the operation silently.
var ErrAborted = errors.New("session rejected by remote store")

// Kind classifies a transport failure.
type Kind int

const (
	// Forbidden is a 403. No recovery is attempted.
	Forbidden Kind = iota + 1
	// EndpointMissing is a 404.
	EndpointMissing
	// ServerError is a markup (non-JSON) body, usually a server error page.
	ServerError
	// MalformedResponse is a body that is not valid JSON.
	MalformedResponse
	// Unreachable is a network-level failure.
	Unreachable
	// Rejected is a well-formed response with success=false.
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Forbidden:
		return "forbidden"
	case EndpointMissing:
		return "endpoint_missing"
	case ServerError:
		return "server_error"
	case MalformedResponse:
		return "malformed_response"
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Failure is a classified transport failure.
type Failure struct {
	Kind     Kind
	Endpoint string
	Status   int
	// Message is the remote store's message for Rejected failures.
	Message string
	Err     error
}

func (f *Failure) Error() string {
	switch {
	case f.Message != "":
		return fmt.Sprintf("%s %s: %s", f.Endpoint, f.Kind, f.Message)
	case f.Err != nil:
		return fmt.Sprintf("%s %s: %v", f.Endpoint, f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s %s (status %d)", f.Endpoint, f.Kind, f.Status)
	}
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, or 0 when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}

// UserMessage turns err into the text shown to the user.
func UserMessage(err error) string {
	var f *Failure
	if !errors.As(err, &f) {
		return "Something went wrong."
	}
	switch f.Kind {
	case Forbidden:
		return "Access forbidden. Check the server permissions."
	case EndpointMissing:
		return "Endpoint not found: " + f.Endpoint
	case ServerError:
		return "Server error. Check the server logs."
	case MalformedResponse:
		return "Invalid response from the server."
	case Unreachable:
		return "Could not reach the server. Check the URL and your connection."
	case Rejected:
		if f.Message != "" {
			return f.Message
		}
		return "The server rejected the request."
	default:
		return "Something went wrong."
	}
}
