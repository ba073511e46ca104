// Package notify turns newly accepted messages and unread increases into
// sound, haptic, visual and OS-level alerts.
package notify

import (
	"time"

	"github.com/ashureev/twinsync/internal/domain"
)

// Arrival is the classification of one newly accepted message.
type Arrival int

const (
	// OwnEcho is a message the user sent, coming back from the store.
	OwnEcho Arrival = iota
	// IncomingBuzz is an unread buzz from the other party.
	IncomingBuzz
	// IncomingText is everything else.
	IncomingText
)

func (a Arrival) String() string {
	switch a {
	case OwnEcho:
		return "own_echo"
	case IncomingBuzz:
		return "incoming_buzz"
	default:
		return "incoming_text"
	}
}

// Classify decides how m should be announced. IsRead is taken as fetched:
// a buzz the store already marked read is announced as text.
func Classify(m domain.Message) Arrival {
	switch {
	case m.IsMine:
		return OwnEcho
	case m.IsBuzz && !m.IsRead:
		return IncomingBuzz
	default:
		return IncomingText
	}
}

// Tone selects one of the two alert sounds.
type Tone int

const (
	// ToneA is the short notification beep.
	ToneA Tone = iota
	// ToneB is the falling buzz sweep.
	ToneB
)

// Shake describes a visual shake of the conversation surface.
type Shake struct {
	Steps     int
	Amplitude int
	Flash     bool
	// Interval is how long each step stays on screen.
	Interval time.Duration
}

// ShakeInterval is the frame time of the predefined shakes.
const ShakeInterval = 50 * time.Millisecond

var (
	// StrongShake is played for an incoming buzz.
	StrongShake = Shake{Steps: 10, Amplitude: 8, Flash: true, Interval: ShakeInterval}
	// LightShake confirms the user's own buzz went out.
	LightShake = Shake{Steps: 5, Amplitude: 3, Interval: ShakeInterval}
)

// BuzzVibration is the haptic pattern: on, off, on.
var BuzzVibration = []time.Duration{200 * time.Millisecond, 50 * time.Millisecond, 200 * time.Millisecond}

// Notification is an OS-level notification.
type Notification struct {
	Title string
	Body  string
	Icon  string
	// Tag groups notifications so a new one replaces the previous.
	Tag string
}

const (
	notificationTitle = "Twin Messenger"
	notificationIcon  = "images/user.png"
	notificationTag   = "new-message"
)
