// Package poller runs the two polling loops: the cursor-based message loop
// for the open conversation and the snapshot-based contact loop.
//
// Every exported method must be called on the scheduler's loop. Fetches run
// through Scheduler.Await and their results come back on the loop, tagged
// with the generation they were started in; a result from an older
// generation is dropped.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/sched"
	"github.com/ashureev/twinsync/internal/transport"
)

// State is a loop's position in its cycle.
type State int

const (
	Idle State = iota
	Fetching
	Reconciling
	Scheduled
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Reconciling:
		return "reconciling"
	case Scheduled:
		return "scheduled"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MessageSource fetches a conversation. afterID 0 means the full history.
type MessageSource interface {
	Messages(ctx context.Context, contactID, afterID int64) ([]domain.Message, error)
}

// ContactSource fetches the contact snapshot.
type ContactSource interface {
	Contacts(ctx context.Context) ([]domain.Contact, error)
}

// ErrorFunc receives fetch failures the user should see. Aborted calls are
// never reported.
type ErrorFunc func(err error)

// timer holds at most one pending callback.
type timer struct {
	s     sched.Scheduler
	tok   sched.Token
	armed bool
}

func (t *timer) arm(d time.Duration, fn func()) {
	t.disarm()
	t.tok = t.s.Schedule(d, func() {
		t.armed = false
		fn()
	})
	t.armed = true
}

func (t *timer) disarm() {
	if t.armed {
		t.s.Cancel(t.tok)
		t.armed = false
	}
}

func aborted(err error) bool {
	return errors.Is(err, transport.ErrAborted) || errors.Is(err, context.Canceled)
}

// forbidden failures are not retried.
func forbidden(err error) bool {
	return transport.KindOf(err) == transport.Forbidden
}
