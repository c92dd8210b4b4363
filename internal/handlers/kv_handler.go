package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
)

// KVHandler exposes the credential key/value store over HTTP. The list
// endpoint masks stored values so API tokens never appear in full on the
// overview; fetching a single key returns the value unmasked for editing.
type KVHandler struct {
	kv       interfaces.KeyValueStorage
	onChange func(key string)
	logger   arbor.ILogger
}

// NewKVHandler creates a new KV handler. onChange, when non-nil, runs after
// every successful write or delete so the application can re-check readiness
// of providers whose credentials live in the store.
func NewKVHandler(kv interfaces.KeyValueStorage, onChange func(key string), logger arbor.ILogger) *KVHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &KVHandler{
		kv:       kv,
		onChange: onChange,
		logger:   logger,
	}
}

// ListKeysHandler handles GET /api/keys - lists all stored key/value pairs
// with masked values
func (h *KVHandler) ListKeysHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	pairs, err := h.kv.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list stored keys")
		WriteError(w, http.StatusInternalServerError, "Failed to list stored keys")
		return
	}

	masked := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		masked[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       maskValue(pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(pairs),
		"keys":  masked,
	})
}

// CreateKeyHandler handles POST /api/keys - stores a new key/value pair
func (h *KVHandler) CreateKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Key         string `json:"key"`
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		WriteError(w, http.StatusBadRequest, "key is required")
		return
	}
	if req.Value == "" {
		WriteError(w, http.StatusBadRequest, "value is required")
		return
	}

	// Keys are stored case-insensitively, so an existing pair under any
	// casing counts as a conflict
	if _, err := h.kv.GetPair(r.Context(), req.Key); err == nil {
		WriteError(w, http.StatusConflict, fmt.Sprintf("key '%s' already exists", req.Key))
		return
	} else if !errors.Is(err, interfaces.ErrKeyNotFound) {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to check for existing key")
		WriteError(w, http.StatusInternalServerError, "Failed to store key")
		return
	}

	if err := h.kv.Set(r.Context(), req.Key, req.Value, req.Description); err != nil {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to store key")
		WriteError(w, http.StatusInternalServerError, "Failed to store key")
		return
	}

	h.logger.Info().Str("key", req.Key).Msg("Stored key")
	h.notifyChange(req.Key)

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":  "success",
		"message": "Key stored successfully",
		"key":     req.Key,
	})
}

// GetKeyHandler handles GET /api/keys/{key} - retrieves a single pair with
// the value unmasked
func (h *KVHandler) GetKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	pair, err := h.kv.GetPair(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to retrieve key")
		WriteError(w, http.StatusInternalServerError, "Failed to retrieve key")
		return
	}

	WriteJSON(w, http.StatusOK, pair)
}

// UpdateKeyHandler handles PUT /api/keys/{key} - inserts or updates a pair.
// An empty value updates the description only, preserving the stored value.
func (h *KVHandler) UpdateKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	var req struct {
		Value       string `json:"value"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	value := req.Value
	if value == "" {
		existing, err := h.kv.GetPair(r.Context(), key)
		if err != nil {
			if errors.Is(err, interfaces.ErrKeyNotFound) {
				WriteError(w, http.StatusNotFound, "Key not found, cannot update description without a value")
				return
			}
			h.logger.Error().Err(err).Str("key", key).Msg("Failed to retrieve key for description update")
			WriteError(w, http.StatusInternalServerError, "Failed to update key")
			return
		}
		value = existing.Value
	}

	created, err := h.kv.Upsert(r.Context(), key, value, req.Description)
	if err != nil {
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to upsert key")
		WriteError(w, http.StatusInternalServerError, "Failed to update key")
		return
	}

	h.logger.Info().Str("key", key).Bool("created", created).Msg("Updated key")
	h.notifyChange(key)

	status := http.StatusOK
	message := "Key updated successfully"
	if created {
		status = http.StatusCreated
		message = "Key stored successfully"
	}
	WriteJSON(w, status, map[string]interface{}{
		"status":  "success",
		"message": message,
		"key":     key,
		"created": created,
	})
}

// DeleteKeyHandler handles DELETE /api/keys/{key} - removes a pair
func (h *KVHandler) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	key, ok := h.keyFromPath(w, r)
	if !ok {
		return
	}

	if err := h.kv.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key")
		WriteError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	h.logger.Info().Str("key", key).Msg("Deleted key")
	h.notifyChange(key)

	WriteSuccess(w, "Key deleted successfully")
}

// keyFromPath extracts and decodes the {key} segment from /api/keys/{key}.
// Writes the error response and returns false when the segment is missing or
// malformed.
func (h *KVHandler) keyFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	encoded := strings.TrimPrefix(r.URL.Path, "/api/keys/")
	key, err := url.QueryUnescape(encoded)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid key encoding")
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Missing key in path")
		return "", false
	}
	return key, true
}

func (h *KVHandler) notifyChange(key string) {
	if h.onChange != nil {
		h.onChange(key)
	}
}

// maskValue hides stored credential values in list responses, keeping just
// enough of the value to recognize it
func maskValue(value string) string {
	if len(value) < 8 {
		return "********"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
