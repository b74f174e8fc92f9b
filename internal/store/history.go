package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/logging"
)

// PruneInterval is how often RunPruner removes expired records.
const PruneInterval = time.Hour

// OpenHistory builds the run store selected by cfg. dbPath is used for the
// sqlite backend.
func OpenHistory(cfg config.HistoryConfig, dbPath string, log *logging.Logger) (RunStore, error) {
	switch cfg.Store {
	case "sqlite":
		db, err := Open(dbPath, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteRunStore(db, cfg.MaxEntries), nil
	case "memory", "":
		return NewMemoryRunStore(cfg.MaxEntries), nil
	case "none":
		return NopRunStore{}, nil
	default:
		return nil, fmt.Errorf("unknown history store %q", cfg.Store)
	}
}

// RunPruner deletes records older than retention every interval until ctx
// is done. A non-positive retention disables pruning.
func RunPruner(ctx context.Context, s RunStore, retention, interval time.Duration, log *logging.Logger) error {
	if retention <= 0 {
		return nil
	}
	log = log.Sub("history")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				log.Warn().Err(err).Msg("pruning run history failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("pruned run history")
			}
		}
	}
}
