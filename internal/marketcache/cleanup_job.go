package marketcache

import (
	"github.com/rs/zerolog"
)

// CleanupJob sweeps expired snapshots so idle keys do not pin memory.
// Reads already evict lazily; the sweep only bounds the size of the map.
type CleanupJob struct {
	cache *Cache
	log   zerolog.Logger
}

// NewCleanupJob creates a new cache cleanup job.
func NewCleanupJob(cache *Cache, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		cache: cache,
		log:   log.With().Str("job", "market_cache_cleanup").Logger(),
	}
}

// Run removes every expired entry.
func (j *CleanupJob) Run() error {
	removed := j.cache.ClearExpired()
	if removed > 0 {
		j.log.Info().
			Int("removed", removed).
			Int("remaining", j.cache.Len()).
			Msg("Cleaned up expired snapshots")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "market_cache_cleanup"
}
