package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/render"
	"github.com/ashureev/twinsync/internal/sched"
)

// ArrivalFunc receives the messages a cycle newly accepted.
type ArrivalFunc func(ctx context.Context, msgs []domain.Message)

// MessageLoopConfig wires a MessageLoop.
type MessageLoopConfig struct {
	Scheduler sched.Scheduler
	Source    MessageSource
	Log       *render.MessageLog
	Interval  time.Duration
	OnArrival ArrivalFunc
	OnError   ErrorFunc
	Logger    *slog.Logger
}

// MessageLoop polls one conversation incrementally.
type MessageLoop struct {
	cfg    MessageLoopConfig
	logger *slog.Logger
	timer  timer

	ctx       context.Context
	state     State
	contactID int64
	cursor    int64
	gen       uint64
	inflight  bool
	refresh   bool
	// loaded is set by the first successful fetch of a conversation.
	loaded bool
}

// NewMessageLoop creates an idle loop.
func NewMessageLoop(cfg MessageLoopConfig) *MessageLoop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OnArrival == nil {
		cfg.OnArrival = func(context.Context, []domain.Message) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &MessageLoop{
		cfg:    cfg,
		logger: logger.With("loop", "messages"),
		timer:  timer{s: cfg.Scheduler},
		ctx:    context.Background(),
	}
}

// Enter opens the conversation with contactID: the view and cursor are
// reset and fetches load the full history until one succeeds, then poll
// incrementally.
func (l *MessageLoop) Enter(ctx context.Context, contactID int64) {
	l.gen++
	l.timer.disarm()
	l.ctx = ctx
	l.contactID = contactID
	l.cursor = 0
	l.loaded = false
	l.inflight = false
	l.refresh = false
	l.cfg.Log.Reset()
	l.logger.Debug("entering conversation", "contact_id", contactID)
	l.fetch()
}

// Refresh fetches immediately instead of waiting for the timer. A refresh
// requested while a fetch is in flight runs as soon as it completes.
func (l *MessageLoop) Refresh() {
	if l.state == Stopped || l.state == Idle {
		return
	}
	if l.inflight {
		l.refresh = true
		return
	}
	l.timer.disarm()
	l.fetch()
}

// Stop cancels the pending timer and forgets the conversation. A fetch in
// flight is not interrupted but its result is dropped.
func (l *MessageLoop) Stop() {
	if l.state == Idle || l.state == Stopped {
		l.state = Stopped
		return
	}
	l.gen++
	l.timer.disarm()
	l.contactID = 0
	l.cursor = 0
	l.loaded = false
	l.inflight = false
	l.refresh = false
	l.cfg.Log.Reset()
	l.state = Stopped
	l.logger.Debug("message loop stopped")
}

// State returns the loop state.
func (l *MessageLoop) State() State { return l.state }

// Cursor returns the highest accepted message id.
func (l *MessageLoop) Cursor() int64 { return l.cursor }

// ContactID returns the open conversation, or 0.
func (l *MessageLoop) ContactID() int64 { return l.contactID }

// Active reports whether a conversation is open.
func (l *MessageLoop) Active() bool {
	return l.contactID != 0 && l.state != Stopped && l.state != Idle
}

func (l *MessageLoop) fetch() {
	l.state = Fetching
	l.inflight = true

	gen := l.gen
	ctx := l.ctx
	contactID := l.contactID
	initial := !l.loaded
	after := l.cursor
	if initial {
		after = 0
	}

	var (
		batch []domain.Message
		err   error
	)
	l.cfg.Scheduler.Await(func() {
		batch, err = l.cfg.Source.Messages(ctx, contactID, after)
	}, func() {
		l.complete(gen, initial, batch, err)
	})
}

func (l *MessageLoop) complete(gen uint64, initial bool, batch []domain.Message, err error) {
	if gen != l.gen {
		l.logger.Debug("dropping stale result", "gen", gen, "current", l.gen)
		return
	}
	l.inflight = false

	if err != nil {
		if aborted(err) {
			l.logger.Debug("fetch aborted", "contact_id", l.contactID)
			l.state = Idle
			return
		}
		l.logger.Warn("message fetch failed", "contact_id", l.contactID, "error", err)
		l.cfg.OnError(err)
		if forbidden(err) {
			l.state = Stopped
			return
		}
		l.next()
		return
	}

	l.state = Reconciling
	l.loaded = true
	accepted := l.cfg.Log.Accept(batch, initial)
	if top := domain.MaxID(batch); top > l.cursor {
		l.cursor = top
	}
	if initial {
		// History the store already marked read is not news.
		accepted = unreadOnly(accepted)
	}
	if len(accepted) > 0 {
		l.cfg.OnArrival(l.ctx, accepted)
	}
	l.next()
}

func (l *MessageLoop) next() {
	if l.gen == 0 || l.state == Stopped {
		return
	}
	if l.refresh {
		l.refresh = false
		l.fetch()
		return
	}
	gen := l.gen
	l.state = Scheduled
	l.timer.arm(l.cfg.Interval, func() {
		if gen != l.gen {
			return
		}
		l.fetch()
	})
}

func unreadOnly(msgs []domain.Message) []domain.Message {
	var out []domain.Message
	for _, m := range msgs {
		if !m.IsRead {
			out = append(out, m)
		}
	}
	return out
}
