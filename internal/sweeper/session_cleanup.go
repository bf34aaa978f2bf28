package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/store"
)

// NewSessionCleanup builds the sweeper described in §4.B: deletes
// sessions past expires_at in batches, plus sessions older than an
// absolute retention window regardless of expiry, independent of the
// identity cache (the cache's own TTL handles its own staleness).
func NewSessionCleanup(db *store.DB, cfg *config.Config) *Sweeper {
	interval := time.Duration(cfg.SessionCleanupInterval) * time.Second
	batch := cfg.SessionCleanupBatchSize
	retain := time.Duration(cfg.SessionCleanupRetainDays) * 24 * time.Hour

	return New("session-cleanup", interval, func(ctx context.Context) error {
		now := time.Now()
		n, err := db.Sessions.DeleteExpired(ctx, now, batch)
		if err != nil {
			return err
		}
		total := n
		if retain > 0 {
			m, err := db.Sessions.DeleteCreatedBefore(ctx, now.Add(-retain), batch)
			if err != nil {
				return err
			}
			total += m
		}
		if total > 0 {
			log.Printf("[sweeper:session-cleanup] removed %d sessions (%d expired, %d retention)", total, n, total-n)
		}
		return nil
	})
}
