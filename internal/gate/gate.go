// Package gate rate-limits the buzz action.
package gate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultCooldown is the minimum spacing between two buzzes.
const DefaultCooldown = 5 * time.Second

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed bool
	// Remaining is the wait in whole seconds, rounded up. Zero when allowed.
	Remaining int

	prev time.Time
	at   time.Time
}

// Decide is the pure rule: an attempt at now is denied while less than
// cooldown has passed since last.
func Decide(last, now time.Time, cooldown time.Duration) Decision {
	if last.IsZero() {
		return Decision{Allowed: true}
	}
	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return Decision{Allowed: true}
	}
	wait := cooldown - elapsed
	return Decision{Remaining: int(math.Ceil(wait.Seconds()))}
}

// State persists the last successful fire.
type State interface {
	LastBuzz(ctx context.Context) (time.Time, error)
	SetLastBuzz(ctx context.Context, t time.Time) error
}

// Gate serializes attempts so two calls cannot both pass the check.
type Gate struct {
	state    State
	cooldown time.Duration

	mu sync.Mutex
}

// New creates a gate. A cooldown <= 0 uses DefaultCooldown.
func New(state State, cooldown time.Duration) *Gate {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Gate{state: state, cooldown: cooldown}
}

// Cooldown returns the configured spacing.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}

// TryFire checks the cooldown and, when allowed, records now as the last
// fire in the same critical section. A denied attempt changes nothing.
func (g *Gate) TryFire(ctx context.Context, now time.Time) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, err := g.state.LastBuzz(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("read buzz state: %w", err)
	}
	d := Decide(last, now, g.cooldown)
	if !d.Allowed {
		return d, nil
	}
	if err := g.state.SetLastBuzz(ctx, now); err != nil {
		return Decision{}, fmt.Errorf("record buzz: %w", err)
	}
	d.prev = last
	d.at = now
	return d, nil
}

// Rollback undoes an allowed decision whose action did not go through, so
// only successful sends start a cooldown. It is a no-op if another fire was
// recorded since.
func (g *Gate) Rollback(ctx context.Context, d Decision) error {
	if !d.Allowed || d.at.IsZero() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, err := g.state.LastBuzz(ctx)
	if err != nil {
		return fmt.Errorf("read buzz state: %w", err)
	}
	if cur.UnixMilli() != d.at.UnixMilli() {
		return nil
	}
	if err := g.state.SetLastBuzz(ctx, d.prev); err != nil {
		return fmt.Errorf("restore buzz state: %w", err)
	}
	return nil
}
