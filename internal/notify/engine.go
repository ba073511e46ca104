package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
)

// Alerter performs the side effects. Implementations must not block for
// long; they are called from the polling loop.
type Alerter interface {
	PlayTone(t Tone)
	Vibrate(pattern []time.Duration)
	Shake(s Shake)
	Notify(n Notification) error
	RequestPermission(ctx context.Context) (domain.Permission, error)
}

// Preferences is the persisted state the engine consults.
type Preferences interface {
	SoundEnabled(ctx context.Context) bool
	Permission(ctx context.Context) domain.Permission
	SetPermission(ctx context.Context, p domain.Permission) error
}

// Engine dispatches alerts.
type Engine struct {
	alerter Alerter
	prefs   Preferences
	logger  *slog.Logger

	mu         sync.Mutex
	foreground bool
	pending    int
}

// NewEngine creates an engine. The conversation view starts in the
// background.
func NewEngine(alerter Alerter, prefs Preferences, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{alerter: alerter, prefs: prefs, logger: logger}
}

// SetForeground records whether the conversation view is what the user is
// looking at. Bringing it forward clears the pending count.
func (e *Engine) SetForeground(fg bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.foreground = fg
	if fg {
		e.pending = 0
	}
}

// Pending returns how many incoming texts arrived while in the background.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Arrived announces newly accepted messages, one at a time, in order.
func (e *Engine) Arrived(ctx context.Context, msgs []domain.Message) {
	for _, m := range msgs {
		switch Classify(m) {
		case OwnEcho:
		case IncomingBuzz:
			e.buzz(ctx)
		case IncomingText:
			e.text(ctx)
		}
	}
}

func (e *Engine) buzz(ctx context.Context) {
	if e.prefs.SoundEnabled(ctx) {
		e.alerter.PlayTone(ToneB)
		e.alerter.Vibrate(BuzzVibration)
	}
	e.alerter.Shake(StrongShake)
}

func (e *Engine) text(ctx context.Context) {
	e.mu.Lock()
	background := !e.foreground
	if background {
		e.pending++
	}
	n := e.pending
	e.mu.Unlock()

	if !e.prefs.SoundEnabled(ctx) {
		return
	}
	e.alerter.PlayTone(ToneA)
	if background {
		e.notify(ctx, n)
	}
}

// UnreadIncrease announces that the total unread count grew by delta while
// no conversation was open.
func (e *Engine) UnreadIncrease(ctx context.Context, delta int) {
	if delta <= 0 || !e.prefs.SoundEnabled(ctx) {
		return
	}
	e.alerter.PlayTone(ToneA)
	e.notify(ctx, delta)
}

func (e *Engine) notify(ctx context.Context, count int) {
	if e.prefs.Permission(ctx) != domain.PermissionGranted {
		return
	}
	n := Notification{
		Title: notificationTitle,
		Body:  fmt.Sprintf("You have %d new message(s).", count),
		Icon:  notificationIcon,
		Tag:   notificationTag,
	}
	if err := e.alerter.Notify(n); err != nil {
		e.logger.Warn("os notification failed", "error", err)
	}
}

// OwnBuzzSent confirms a successfully sent buzz.
func (e *Engine) OwnBuzzSent() {
	e.alerter.Shake(LightShake)
}

// SoundToggled plays a sample tone when sound was just enabled.
func (e *Engine) SoundToggled(ctx context.Context, enabled bool) {
	if enabled && e.prefs.SoundEnabled(ctx) {
		e.alerter.PlayTone(ToneA)
	}
}

// RequestPermission asks the platform for notification permission if it has
// never been asked. A recorded grant or denial is final.
func (e *Engine) RequestPermission(ctx context.Context) domain.Permission {
	cur := e.prefs.Permission(ctx)
	if cur != domain.PermissionDefault {
		return cur
	}
	got, err := e.alerter.RequestPermission(ctx)
	if err != nil {
		e.logger.Warn("notification permission request failed", "error", err)
		return cur
	}
	if err := e.prefs.SetPermission(ctx, got); err != nil {
		e.logger.Warn("failed to persist notification permission", "error", err)
	}
	return got
}
