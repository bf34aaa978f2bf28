package sweeper

import (
	"context"
	"time"

	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/dicomcache"
)

// NewCacheCleanup builds the sweeper described in §4.D/§4.I: each pass
// removes disk-cached series past their TTL, then evicts the oldest
// series until the cache tree is back under its size cap.
func NewCacheCleanup(cache *dicomcache.Cache, cfg *config.Config) *Sweeper {
	interval := time.Duration(cfg.DicomwebCacheCleanupInterval) * time.Second

	return New("cache-cleanup", interval, func(ctx context.Context) error {
		if err := cache.EvictExpired(); err != nil {
			return err
		}
		return cache.EvictBySize()
	})
}
