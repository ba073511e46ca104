package sched

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Dispatcher is the production Scheduler: a single goroutine draining a
// task queue, with timers and awaited work feeding back into it.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	queue  []func()
	timers map[Token]*time.Timer
	next   Token
	closed bool

	wake     chan struct{}
	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Nothing runs until Run is called.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		timers: make(map[Token]*time.Timer),
		wake:   make(chan struct{}, 1),
	}
}

// Run drains the queue until ctx is done. Pending timers are stopped and
// in-flight work is waited for before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, fn := range batch {
			d.safeRun(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-ctx.Done():
			d.shutdown()
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.closed = true
	for tok, t := range d.timers {
		t.Stop()
		delete(d.timers, tok)
	}
	d.queue = nil
	d.mu.Unlock()

	d.inflight.Wait()
	d.logger.Debug("dispatcher stopped")
}

func (d *Dispatcher) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatcher task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Post queues fn. Posts after shutdown are dropped.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Schedule runs fn on the loop after delay.
func (d *Dispatcher) Schedule(delay time.Duration, fn func()) Token {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.next++
	tok := d.next
	if d.closed {
		return tok
	}
	d.timers[tok] = time.AfterFunc(delay, func() {
		d.Post(func() {
			// The timer may have been cancelled after it fired but before
			// this callback reached the front of the queue.
			d.mu.Lock()
			_, live := d.timers[tok]
			delete(d.timers, tok)
			d.mu.Unlock()
			if live {
				fn()
			}
		})
	})
	return tok
}

// Cancel stops a scheduled callback.
func (d *Dispatcher) Cancel(tok Token) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.timers[tok]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.timers, tok)
	return true
}

// Await runs work on its own goroutine and posts done back to the loop.
func (d *Dispatcher) Await(work func(), done func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.inflight.Done()
		work()
		d.Post(done)
	}()
}

// Now returns the wall clock.
func (d *Dispatcher) Now() time.Time {
	return time.Now()
}
