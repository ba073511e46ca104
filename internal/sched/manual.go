package sched

import (
	"sort"
	"sync"
	"time"
)

type manualTask struct {
	at    time.Time
	seq   uint64
	tok   Token
	timer bool
	fn    func()
}

// Manual is a virtual-time Scheduler. Nothing runs until the owner calls
// RunReady or Advance, which makes loop behavior deterministic in tests.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	next  Token
	tasks []*manualTask
}

// NewManual returns a Manual whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) add(at time.Time, timer bool, fn func()) Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.next++
	m.tasks = append(m.tasks, &manualTask{at: at, seq: m.seq, tok: m.next, timer: timer, fn: fn})
	return m.next
}

// Schedule queues fn at now+delay.
func (m *Manual) Schedule(delay time.Duration, fn func()) Token {
	return m.add(m.Now().Add(delay), true, fn)
}

// Cancel removes a pending timer.
func (m *Manual) Cancel(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tasks {
		if t.tok == tok && t.timer {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// Post queues fn at the current virtual time.
func (m *Manual) Post(fn func()) {
	m.add(m.Now(), false, fn)
}

// Await runs work immediately on the caller and queues done.
func (m *Manual) Await(work func(), done func()) {
	work()
	m.Post(done)
}

// Now returns the virtual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// popDue removes and returns the earliest task due at or before limit.
func (m *Manual) popDue(limit time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	sort.SliceStable(m.tasks, func(i, j int) bool {
		if !m.tasks[i].at.Equal(m.tasks[j].at) {
			return m.tasks[i].at.Before(m.tasks[j].at)
		}
		return m.tasks[i].seq < m.tasks[j].seq
	})
	t := m.tasks[0]
	if t.at.After(limit) {
		return nil
	}
	m.tasks = m.tasks[1:]
	if t.at.After(m.now) {
		m.now = t.at
	}
	return t
}

// RunReady runs every task due at the current time, including tasks those
// callbacks queue for the same instant. It returns how many ran.
func (m *Manual) RunReady() int {
	n := 0
	for {
		t := m.popDue(m.Now())
		if t == nil {
			return n
		}
		t.fn()
		n++
	}
}

// Advance moves the clock forward by d, running due tasks in time order.
func (m *Manual) Advance(d time.Duration) int {
	target := m.Now().Add(d)
	n := 0
	for {
		t := m.popDue(target)
		if t == nil {
			break
		}
		t.fn()
		n++
	}
	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
	return n
}

// PendingTimers reports how many scheduled timers have not yet run.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.timer {
			n++
		}
	}
	return n
}
