package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/twinsync/internal/domain"
	"github.com/ashureev/twinsync/internal/render"
	"github.com/ashureev/twinsync/internal/sched"
)

// UnreadFunc receives a positive change of the total unread count.
type UnreadFunc func(ctx context.Context, delta int)

// ContactLoopConfig wires a ContactLoop.
type ContactLoopConfig struct {
	Scheduler sched.Scheduler
	Source    ContactSource
	List      *render.ContactList
	Interval  time.Duration
	// Viewing reports whether a conversation is open. Unread increases
	// are only forwarded while it returns false.
	Viewing  func() bool
	OnUnread UnreadFunc
	OnError  ErrorFunc
	Logger   *slog.Logger
}

// ContactLoop polls the full contact snapshot.
type ContactLoop struct {
	cfg    ContactLoopConfig
	logger *slog.Logger
	timer  timer

	ctx      context.Context
	state    State
	gen      uint64
	inflight bool
	refresh  bool

	total       int
	hasBaseline bool
}

// NewContactLoop creates an idle loop.
func NewContactLoop(cfg ContactLoopConfig) *ContactLoop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Viewing == nil {
		cfg.Viewing = func() bool { return false }
	}
	if cfg.OnUnread == nil {
		cfg.OnUnread = func(context.Context, int) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &ContactLoop{
		cfg:    cfg,
		logger: logger.With("loop", "contacts"),
		timer:  timer{s: cfg.Scheduler},
		ctx:    context.Background(),
	}
}

// Start begins polling. Starting a running loop is a no-op.
func (l *ContactLoop) Start(ctx context.Context) {
	if l.state != Idle && l.state != Stopped {
		return
	}
	l.gen++
	l.ctx = ctx
	l.hasBaseline = false
	l.total = 0
	l.fetch()
}

// Refresh fetches immediately, or right after the fetch in flight.
func (l *ContactLoop) Refresh() {
	if l.state == Idle || l.state == Stopped {
		return
	}
	if l.inflight {
		l.refresh = true
		return
	}
	l.timer.disarm()
	l.fetch()
}

// Stop cancels the pending timer. A fetch in flight completes unobserved.
func (l *ContactLoop) Stop() {
	if l.state == Idle || l.state == Stopped {
		l.state = Stopped
		return
	}
	l.gen++
	l.timer.disarm()
	l.inflight = false
	l.refresh = false
	l.state = Stopped
	l.logger.Debug("contact loop stopped")
}

// State returns the loop state.
func (l *ContactLoop) State() State { return l.state }

// TotalUnread returns the unread total of the last snapshot.
func (l *ContactLoop) TotalUnread() int { return l.total }

func (l *ContactLoop) fetch() {
	l.state = Fetching
	l.inflight = true

	gen := l.gen
	ctx := l.ctx
	var (
		snapshot []domain.Contact
		err      error
	)
	l.cfg.Scheduler.Await(func() {
		snapshot, err = l.cfg.Source.Contacts(ctx)
	}, func() {
		l.complete(gen, snapshot, err)
	})
}

func (l *ContactLoop) complete(gen uint64, snapshot []domain.Contact, err error) {
	if gen != l.gen {
		l.logger.Debug("dropping stale result", "gen", gen, "current", l.gen)
		return
	}
	l.inflight = false

	if err != nil {
		if aborted(err) {
			l.logger.Debug("fetch aborted")
			return
		}
		l.logger.Warn("contact fetch failed", "error", err)
		l.cfg.OnError(err)
		if forbidden(err) {
			l.state = Stopped
			return
		}
		l.next()
		return
	}

	l.state = Reconciling
	total := l.cfg.List.Replace(snapshot)
	if l.hasBaseline && total > l.total && !l.cfg.Viewing() {
		l.cfg.OnUnread(l.ctx, total-l.total)
	}
	l.total = total
	l.hasBaseline = true
	l.next()
}

func (l *ContactLoop) next() {
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
