package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
)

// CacheHandler exposes the quote cache: stats on demand and a manual sweep
// trigger alongside the scheduled one.
type CacheHandler struct {
	cache  interfaces.QuoteCache
	logger arbor.ILogger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cache interfaces.QuoteCache, logger arbor.ILogger) *CacheHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &CacheHandler{
		cache:  cache,
		logger: logger,
	}
}

// GetCacheHandler handles GET /api/cache
func (h *CacheHandler) GetCacheHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"stats":              h.cache.Stats(),
		"latest_stored_path": h.cache.LatestStoredPath(),
	})
}

// SweepCacheHandler handles POST /api/cache/sweep
func (h *CacheHandler) SweepCacheHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	removed, err := h.cache.Sweep(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Cache sweep failed")
		WriteError(w, http.StatusInternalServerError, "Cache sweep failed")
		return
	}

	h.logger.Info().Int("removed", removed).Msg("Cache sweep triggered via API")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"removed": removed,
	})
}
