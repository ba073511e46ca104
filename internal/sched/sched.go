// Package sched provides the single logical thread the polling loops run on.
//
// All loop state is mutated only inside callbacks run by a Scheduler.
// Network calls leave the loop through Await and come back as a callback,
// so two loops interleave only at those boundaries.
package sched

import "time"

// Token identifies a scheduled callback so it can be cancelled.
type Token uint64

// Scheduler runs callbacks one at a time.
type Scheduler interface {
	// Schedule runs fn on the loop after delay.
	Schedule(delay time.Duration, fn func()) Token

	// Cancel prevents a scheduled callback from running. It reports whether
	// the callback was still pending.
	Cancel(tok Token) bool

	// Post runs fn on the loop as soon as possible.
	Post(fn func())

	// Await runs work off the loop, then runs done on the loop.
	Await(work func(), done func())

	// Now returns the scheduler's current time.
	Now() time.Time
}
