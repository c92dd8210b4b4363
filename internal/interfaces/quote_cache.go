package interfaces

import (
	"context"

	"github.com/ternarybob/pretium/internal/models"
)

// QuoteCache is the disk-backed store mapping fingerprints to tabular
// payloads, bounded by entry count with LRU eviction and capability-specific
// staleness rules. The cache exclusively owns its directory and in-memory
// index; no other component touches the files.
type QuoteCache interface {
	// Get returns the cached payload for the fingerprint. A hit requires
	// both presence and passing the staleness check for the entry's
	// capability; a hit refreshes the entry's last-access. Stale or corrupt
	// entries report a miss.
	Get(ctx context.Context, fp *models.Fingerprint) (*models.Table, bool)

	// Put persists the payload for the fingerprint, overwriting any existing
	// entry, then evicts least-recently-used entries while the index exceeds
	// its capacity.
	Put(ctx context.Context, fp *models.Fingerprint, table *models.Table) error

	// LatestStoredPath returns the payload path of the most recently created
	// entry, empty when the cache holds nothing. Diagnostic use only.
	LatestStoredPath() string

	// Stats reports entry count, byte size and hit/miss/eviction counters.
	Stats() models.CacheStats

	// Sweep removes stale entries and orphaned files, returning the number
	// of entries removed.
	Sweep(ctx context.Context) (int, error)
}
