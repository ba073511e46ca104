package store

import (
	"fmt"

	"github.com/ashureev/twinsync/internal/config"
)

// Open returns the repository selected by cfg.Store.
func Open(cfg *config.Config) (Repository, error) {
	switch cfg.Store {
	case config.StoreDiskv:
		return NewDiskv(cfg.StatePath())
	case config.StoreSQLite:
		return NewSQLite(cfg.StatePath())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
