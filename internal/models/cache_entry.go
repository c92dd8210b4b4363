package models

import "time"

// EntryMetadata is the sidecar record persisted next to each cache payload.
// The in-memory index is rebuilt from these records at startup; an entry
// whose metadata cannot be read is treated as corrupt.
type EntryMetadata struct {
	Fingerprint string     `json:"fingerprint"`
	Market      string     `json:"market"`
	Capability  Capability `json:"capability"`
	RangeEnd    string     `json:"range_end,omitempty"` // canonical end date, staleness input for history
	Created     time.Time  `json:"created"`
	LastAccess  time.Time  `json:"last_access"`
	SizeBytes   int64      `json:"size_bytes"`
}

// CacheStats is a point-in-time summary of the cache for the status surface.
type CacheStats struct {
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	SizeBytes  int64  `json:"size_bytes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
}
