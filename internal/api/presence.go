package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/twinsync/internal/store"
)

// PresenceInterval returns how often the presence worker sweeps for a ttl:
// half the ttl, but not more often than once a second.
func PresenceInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

// StartPresenceWorker runs a background goroutine that periodically marks
// users offline once they have not polled for ttl.
func StartPresenceWorker(ctx context.Context, db store.Accounts, ttl time.Duration) {
	interval := PresenceInterval(ttl)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Presence worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				expirePresence(ctx, db, now, ttl)
			case <-ctx.Done():
				slog.Info("Presence worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func expirePresence(ctx context.Context, db store.Accounts, now time.Time, ttl time.Duration) int64 {
	n, err := db.ExpirePresence(ctx, now.Add(-ttl))
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Presence worker: context canceled during sweep", "error", err)
			return 0
		}
		slog.Error("Presence worker failed to expire users", "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Presence worker marked users offline", "count", n)
	}
	return n
}
