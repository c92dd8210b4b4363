package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/pretium/internal/models"
)

// mockQuoteCache implements interfaces.QuoteCache for testing
type mockQuoteCache struct {
	statsFunc      func() models.CacheStats
	latestPathFunc func() string
	sweepFunc      func(ctx context.Context) (int, error)
}

func (m *mockQuoteCache) Get(ctx context.Context, fp *models.Fingerprint) (*models.Table, bool) {
	return nil, false
}

func (m *mockQuoteCache) Put(ctx context.Context, fp *models.Fingerprint, table *models.Table) error {
	return nil
}

func (m *mockQuoteCache) LatestStoredPath() string {
	if m.latestPathFunc != nil {
		return m.latestPathFunc()
	}
	return ""
}

func (m *mockQuoteCache) Stats() models.CacheStats {
	if m.statsFunc != nil {
		return m.statsFunc()
	}
	return models.CacheStats{}
}

func (m *mockQuoteCache) Sweep(ctx context.Context) (int, error) {
	if m.sweepFunc != nil {
		return m.sweepFunc(ctx)
	}
	return 0, nil
}

func TestGetCacheHandler_Success(t *testing.T) {
	cache := &mockQuoteCache{
		statsFunc: func() models.CacheStats {
			return models.CacheStats{Entries: 3, MaxEntries: 50, SizeBytes: 2048, Hits: 10, Misses: 4, Evictions: 1}
		},
		latestPathFunc: func() string {
			return "/var/cache/pretium/ab12cd34.json"
		},
	}

	handler := NewCacheHandler(cache, nil)
	req := httptest.NewRequest("GET", "/api/cache", nil)
	rec := httptest.NewRecorder()

	handler.GetCacheHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["latest_stored_path"] != "/var/cache/pretium/ab12cd34.json" {
		t.Errorf("Unexpected latest_stored_path: %v", response["latest_stored_path"])
	}

	stats := response["stats"].(map[string]interface{})
	if int(stats["entries"].(float64)) != 3 {
		t.Errorf("Expected 3 entries, got %v", stats["entries"])
	}
	if int(stats["max_entries"].(float64)) != 50 {
		t.Errorf("Expected max_entries 50, got %v", stats["max_entries"])
	}
	if int(stats["hits"].(float64)) != 10 {
		t.Errorf("Expected 10 hits, got %v", stats["hits"])
	}
}

func TestSweepCacheHandler_Success(t *testing.T) {
	swept := false
	cache := &mockQuoteCache{
		sweepFunc: func(ctx context.Context) (int, error) {
			swept = true
			return 2, nil
		},
	}

	handler := NewCacheHandler(cache, nil)
	req := httptest.NewRequest("POST", "/api/cache/sweep", nil)
	rec := httptest.NewRecorder()

	handler.SweepCacheHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !swept {
		t.Error("Expected sweep to be called")
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if int(response["removed"].(float64)) != 2 {
		t.Errorf("Expected 2 removed, got %v", response["removed"])
	}
}

func TestSweepCacheHandler_Error(t *testing.T) {
	cache := &mockQuoteCache{
		sweepFunc: func(ctx context.Context) (int, error) {
			return 0, errors.New("directory vanished")
		},
	}

	handler := NewCacheHandler(cache, nil)
	req := httptest.NewRequest("POST", "/api/cache/sweep", nil)
	rec := httptest.NewRecorder()

	handler.SweepCacheHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestSweepCacheHandler_MethodNotAllowed(t *testing.T) {
	handler := NewCacheHandler(&mockQuoteCache{}, nil)
	req := httptest.NewRequest("GET", "/api/cache/sweep", nil)
	rec := httptest.NewRecorder()

	handler.SweepCacheHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}
