// Package quotecache persists fetched quote tables on disk, one payload and
// metadata sidecar per request fingerprint, with an in-memory LRU index and
// calendar-aware staleness rules.
package quotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

const (
	payloadSuffix  = ".json"
	metadataSuffix = ".meta.json"
	tempSuffix     = ".tmp"

	// DefaultMaxEntries bounds the cache when the configured value is
	// missing or nonsensical.
	DefaultMaxEntries = 50

	// tempFileMaxAge protects in-flight writes from the orphan sweep.
	tempFileMaxAge = time.Hour
)

// indexEntry is one in-memory index record.
type indexEntry struct {
	hash string
	meta models.EntryMetadata
}

// Service implements the QuoteCache interface.
type Service struct {
	dir        string
	maxEntries int
	policy     *common.StalenessPolicy
	logger     arbor.ILogger

	mu        sync.Mutex
	index     map[string]*indexEntry
	hits      uint64
	misses    uint64
	evictions uint64
}

var _ interfaces.QuoteCache = (*Service)(nil)

// NewService opens the cache directory and rebuilds the index from the entry
// files found there. Rebuilding is deterministic and idempotent; a restart
// with a smaller bound shrinks the cache immediately.
func NewService(cfg common.CacheConfig, calendar *common.Calendar, logger arbor.ILogger) (*Service, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	maxEntries := cfg.MaxEntries
	if maxEntries < 1 {
		logger.Warn().
			Int("max_entries", cfg.MaxEntries).
			Int("default", DefaultMaxEntries).
			Msg("Invalid cache bound, using default")
		maxEntries = DefaultMaxEntries
	}

	s := &Service{
		dir:        dir,
		maxEntries: maxEntries,
		policy:     common.NewStalenessPolicy(cfg.Staleness, calendar),
		logger:     logger,
		index:      make(map[string]*indexEntry),
	}

	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	victims := s.evictLocked()
	entries := len(s.index)
	s.mu.Unlock()
	for _, victim := range victims {
		s.removeFiles(victim)
	}

	s.logger.Info().
		Str("dir", dir).
		Int("entries", entries).
		Int("max_entries", maxEntries).
		Msg("Quote cache initialized")

	return s, nil
}

// rebuildIndex scans the cache directory and loads every readable metadata
// sidecar. Corrupt sidecars and sidecars without payloads are removed.
func (s *Service) rebuildIndex() error {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}

	for _, dirent := range dirents {
		if dirent.IsDir() || !strings.HasSuffix(dirent.Name(), metadataSuffix) {
			continue
		}
		hash := strings.TrimSuffix(dirent.Name(), metadataSuffix)

		data, err := os.ReadFile(s.metadataPath(hash))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", dirent.Name()).Msg("Removing unreadable cache metadata")
			s.removeFiles(hash)
			continue
		}
		var meta models.EntryMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			s.logger.Warn().Err(err).Str("file", dirent.Name()).Msg("Removing corrupt cache metadata")
			s.removeFiles(hash)
			continue
		}

		info, err := os.Stat(s.payloadPath(hash))
		if err != nil {
			s.logger.Warn().Str("fingerprint", hash).Msg("Removing cache metadata without payload")
			if err := os.Remove(s.metadataPath(hash)); err != nil && !os.IsNotExist(err) {
				s.logger.Warn().Err(err).Str("fingerprint", hash).Msg("Failed to remove cache metadata")
			}
			continue
		}
		meta.SizeBytes = info.Size()

		s.index[hash] = &indexEntry{hash: hash, meta: meta}
	}

	return nil
}

// Get returns the cached table for the fingerprint. Stale entries report a
// miss and stay on disk; unreadable entries are dropped.
func (s *Service) Get(ctx context.Context, fp *models.Fingerprint) (*models.Table, bool) {
	hash := fp.Hash()
	now := time.Now().UTC()

	s.mu.Lock()
	entry, exists := s.index[hash]
	if !exists {
		s.misses++
		s.mu.Unlock()
		return nil, false
	}
	meta := entry.meta
	s.mu.Unlock()

	if result := s.policy.Check(&meta, now); result.IsStale {
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		s.logger.Debug().
			Str("fingerprint", hash).
			Str("reason", result.Reason).
			Msg("Cache entry is stale")
		return nil, false
	}

	table, err := s.readPayload(hash)
	if err != nil {
		s.logger.Warn().Err(err).Str("fingerprint", hash).Msg("Dropping unreadable cache entry")
		s.mu.Lock()
		delete(s.index, hash)
		s.misses++
		s.mu.Unlock()
		s.removeFiles(hash)
		return nil, false
	}

	s.mu.Lock()
	current, indexed := s.index[hash]
	if indexed {
		current.meta.LastAccess = now
		meta = current.meta
	}
	s.hits++
	s.mu.Unlock()

	// Persist the access time so LRU order survives restarts. An entry
	// evicted while the payload was being read gets no new sidecar.
	if indexed {
		if err := s.writeMetadata(hash, &meta); err != nil {
			s.logger.Warn().Err(err).Str("fingerprint", hash).Msg("Failed to persist cache access time")
		}
	}

	return table, true
}

// Put persists the table for the fingerprint, overwriting any previous
// entry, then evicts least-recently-used entries beyond the bound.
func (s *Service) Put(ctx context.Context, fp *models.Fingerprint, table *models.Table) error {
	if table == nil {
		return fmt.Errorf("cannot cache a nil table")
	}

	hash := fp.Hash()
	now := time.Now().UTC()

	payload, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to serialize table: %w", err)
	}

	meta := models.EntryMetadata{
		Fingerprint: fp.Canonical(),
		Market:      fp.Market,
		Capability:  fp.Capability,
		RangeEnd:    fp.End,
		Created:     now,
		LastAccess:  now,
		SizeBytes:   int64(len(payload)),
	}

	if err := s.writeFileAtomic(s.payloadPath(hash), payload); err != nil {
		return err
	}
	if err := s.writeMetadata(hash, &meta); err != nil {
		// Do not leave a payload the index will never load
		s.removeFiles(hash)
		return err
	}

	s.mu.Lock()
	s.index[hash] = &indexEntry{hash: hash, meta: meta}
	victims := s.evictLocked()
	s.mu.Unlock()

	for _, victim := range victims {
		s.removeFiles(victim)
	}

	s.logger.Debug().
		Str("fingerprint", hash).
		Str("capability", string(fp.Capability)).
		Int("rows", table.Len()).
		Int("evicted", len(victims)).
		Msg("Stored cache entry")

	return nil
}

// LatestStoredPath returns the payload path of the most recently created
// entry, empty when the cache holds nothing.
func (s *Service) LatestStoredPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	latest := ""
	var latestCreated time.Time
	for hash, entry := range s.index {
		if latest == "" || entry.meta.Created.After(latestCreated) {
			latest = hash
			latestCreated = entry.meta.Created
		}
	}
	if latest == "" {
		return ""
	}
	return s.payloadPath(latest)
}

// Stats reports entry count, byte size and hit/miss/eviction counters.
func (s *Service) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.CacheStats{
		Entries:    len(s.index),
		MaxEntries: s.maxEntries,
		Hits:       s.hits,
		Misses:     s.misses,
		Evictions:  s.evictions,
	}
	for _, entry := range s.index {
		stats.SizeBytes += entry.meta.SizeBytes
	}
	return stats
}

// Sweep removes stale entries plus files the index does not know about:
// orphaned payloads, sidecars without payloads and abandoned temp files.
// Wired to the cron scheduler and safe to call manually.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	removed := 0

	s.mu.Lock()
	var stale []string
	for hash, entry := range s.index {
		meta := entry.meta
		if result := s.policy.Check(&meta, now); result.IsStale {
			stale = append(stale, hash)
		}
	}
	for _, hash := range stale {
		delete(s.index, hash)
	}
	s.mu.Unlock()

	for _, hash := range stale {
		s.removeFiles(hash)
		removed++
	}

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return removed, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	for _, dirent := range dirents {
		if dirent.IsDir() {
			continue
		}
		name := dirent.Name()

		if strings.HasSuffix(name, tempSuffix) {
			// Old temp files are abandoned writes; recent ones may still be
			// in flight
			info, err := dirent.Info()
			if err != nil || now.Sub(info.ModTime()) < tempFileMaxAge {
				continue
			}
			if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
				removed++
				s.logger.Debug().Str("file", name).Msg("Removed abandoned temp file")
			}
			continue
		}

		if !strings.HasSuffix(name, payloadSuffix) {
			continue
		}
		hash := strings.TrimSuffix(strings.TrimSuffix(name, metadataSuffix), payloadSuffix)

		s.mu.Lock()
		_, known := s.index[hash]
		s.mu.Unlock()
		if !known {
			if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
				removed++
				s.logger.Debug().Str("file", name).Msg("Removed orphaned cache file")
			}
		}
	}

	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Int("stale_entries", len(stale)).
			Msg("Swept quote cache")
	}

	return removed, nil
}

// evictLocked removes least-recently-used index records until the bound
// holds, oldest last access first, ties by creation time then hash. The
// caller holds s.mu and deletes the returned files after unlocking.
func (s *Service) evictLocked() []string {
	var victims []string
	for len(s.index) > s.maxEntries {
		victim := ""
		var victimMeta models.EntryMetadata
		for hash, entry := range s.index {
			if victim == "" || lessRecentlyUsed(entry.meta, hash, victimMeta, victim) {
				victim = hash
				victimMeta = entry.meta
			}
		}
		delete(s.index, victim)
		s.evictions++
		victims = append(victims, victim)
		s.logger.Debug().
			Str("fingerprint", victim).
			Str("last_access", victimMeta.LastAccess.Format(time.RFC3339)).
			Msg("Evicting cache entry")
	}
	return victims
}

func lessRecentlyUsed(a models.EntryMetadata, aHash string, b models.EntryMetadata, bHash string) bool {
	if !a.LastAccess.Equal(b.LastAccess) {
		return a.LastAccess.Before(b.LastAccess)
	}
	if !a.Created.Equal(b.Created) {
		return a.Created.Before(b.Created)
	}
	return aHash < bHash
}

func (s *Service) readPayload(hash string) (*models.Table, error) {
	data, err := os.ReadFile(s.payloadPath(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to read cache payload: %w", err)
	}
	var table models.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse cache payload: %w", err)
	}
	return &table, nil
}

func (s *Service) writeMetadata(hash string, meta *models.EntryMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cache metadata: %w", err)
	}
	return s.writeFileAtomic(s.metadataPath(hash), data)
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial entry.
func (s *Service) writeFileAtomic(path string, data []byte) error {
	tempPath := path + tempSuffix
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

func (s *Service) removeFiles(hash string) {
	if err := os.Remove(s.payloadPath(hash)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("fingerprint", hash).Msg("Failed to remove cache payload")
	}
	if err := os.Remove(s.metadataPath(hash)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("fingerprint", hash).Msg("Failed to remove cache metadata")
	}
}

func (s *Service) payloadPath(hash string) string {
	return filepath.Join(s.dir, hash+payloadSuffix)
}

func (s *Service) metadataPath(hash string) string {
	return filepath.Join(s.dir, hash+metadataSuffix)
}
