package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lumina/internal/config"
	"github.com/dokzlo13/lumina/internal/ledger"
)

// expirer is implemented by caches that keep expired rows until swept.
type expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// runCleanup periodically deletes ledger entries past retention and
// expired cache rows.
func runCleanup(ctx context.Context, l *ledger.Ledger, cache any, cfg config.LedgerConfig) {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	interval := cfg.CleanupInterval.Duration()
	exp, _ := cache.(expirer)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := l.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}

			if exp == nil {
				continue
			}
			if n, err := exp.DeleteExpired(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup expired classifications")
			} else if n > 0 {
				log.Debug().Int64("deleted", n).Msg("Cleaned up expired classifications")
			}
		}
	}
}
