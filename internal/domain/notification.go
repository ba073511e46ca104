package domain

// Permission is the platform's OS-notification permission state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Selection identifies the conversation the user has open.
type Selection struct {
	ContactID int64
	Name      string
}
