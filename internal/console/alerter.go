package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/notify"
)

// ErrNoNotifier is returned when no desktop notifier is installed.
var ErrNoNotifier = errors.New("notify-send not found")

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Alerter plays terminal bells, prints buzz shakes and raises desktop
// notifications through notify-send.
type Alerter struct {
	mu       sync.Mutex
	out      io.Writer
	run      Runner
	lookPath func(string) (string, error)
	sleep    func(time.Duration)
	logger   *slog.Logger
	buzz     *color.Color

	// shakeMu keeps concurrent shakes from interleaving frames.
	shakeMu sync.Mutex
	shaking sync.WaitGroup
}

// AlerterOption configures an Alerter.
type AlerterOption func(*Alerter)

// WithRunner replaces the command runner.
func WithRunner(r Runner) AlerterOption {
	return func(a *Alerter) { a.run = r }
}

// WithLookPath replaces how the notifier binary is located.
func WithLookPath(fn func(string) (string, error)) AlerterOption {
	return func(a *Alerter) { a.lookPath = fn }
}

// WithSleep replaces how a shake waits between frames.
func WithSleep(fn func(time.Duration)) AlerterOption {
	return func(a *Alerter) { a.sleep = fn }
}

// NewAlerter creates an alerter writing bells and shakes to out.
func NewAlerter(out io.Writer, logger *slog.Logger, opts ...AlerterOption) *Alerter {
	if out == nil {
		out = color.Output
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Alerter{
		out:      out,
		run:      execRunner,
		lookPath: exec.LookPath,
		sleep:    time.Sleep,
		logger:   logger,
		buzz:     color.New(color.FgHiRed, color.Bold),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ notify.Alerter = (*Alerter)(nil)

// PlayTone rings the terminal bell: once for tone A, twice for tone B.
func (a *Alerter) PlayTone(t notify.Tone) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bells := "\a"
	if t == notify.ToneB {
		bells = "\a\a"
	}
	_, _ = io.WriteString(a.out, bells)
}

// Vibrate has no terminal equivalent.
func (a *Alerter) Vibrate(pattern []time.Duration) {
	a.logger.Debug("vibration requested", "pattern", pattern)
}

// Shake draws a jittered buzz banner in place, one frame per interval, and
// clears it. Frames are drawn on their own goroutine; Shake does not block.
func (a *Alerter) Shake(s notify.Shake) {
	interval := s.Interval
	if interval <= 0 {
		interval = notify.ShakeInterval
	}
	a.shaking.Add(1)
	go func() {
		defer a.shaking.Done()
		a.shakeMu.Lock()
		defer a.shakeMu.Unlock()

		for i := 0; i < s.Steps; i++ {
			pad := 0
			if s.Amplitude > 0 {
				pad = rand.IntN(2*s.Amplitude + 1)
			}
			text := "~ BUZZ ~"
			if s.Flash && i%2 == 0 {
				text = a.buzz.Sprint(text)
			}
			a.write(fmt.Sprintf("\r%s%s\033[K", strings.Repeat(" ", pad), text))
			a.sleep(interval)
		}
		a.write("\r\033[K")
	}()
}

// Wait blocks until every shake in progress has finished drawing.
func (a *Alerter) Wait() {
	a.shaking.Wait()
}

func (a *Alerter) write(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = io.WriteString(a.out, s)
}

// Notify raises a desktop notification. Notifications sharing a tag
// replace each other.
func (a *Alerter) Notify(n notify.Notification) error {
	bin, err := a.lookPath("notify-send")
	if err != nil {
		return ErrNoNotifier
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	args := []string{"--app-name", n.Title}
	if n.Icon != "" {
		args = append(args, "--icon", n.Icon)
	}
	if n.Tag != "" {
		args = append(args, "--hint", "string:x-canonical-private-synchronous:"+n.Tag)
	}
	args = append(args, n.Title, n.Body)
	return a.run(ctx, bin, args...)
}

// RequestPermission grants notifications when a notifier is installed.
func (a *Alerter) RequestPermission(context.Context) (domain.Permission, error) {
	if _, err := a.lookPath("notify-send"); err != nil {
		return domain.PermissionDenied, nil
	}
	return domain.PermissionGranted, nil
}
