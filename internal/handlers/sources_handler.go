package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

// SourcesHandler exposes the source registry: listing registrations and
// changing the default provider for a pair.
type SourcesHandler struct {
	registry interfaces.SourceRegistry
	logger   arbor.ILogger
}

// NewSourcesHandler creates a new SourcesHandler
func NewSourcesHandler(registry interfaces.SourceRegistry, logger arbor.ILogger) *SourcesHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &SourcesHandler{
		registry: registry,
		logger:   logger,
	}
}

// ListSourcesHandler handles GET /api/sources
func (h *SourcesHandler) ListSourcesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	descriptors := h.registry.Descriptors()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(descriptors),
		"sources": descriptors,
	})
}

// GetDefaultHandler handles GET /api/sources/default
func (h *SourcesHandler) GetDefaultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	market := r.URL.Query().Get("market")
	if market == "" {
		WriteError(w, http.StatusBadRequest, "market and capability are required")
		return
	}
	capability, err := models.ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	descriptor, ok := h.registry.Default(market, capability)
	if !ok {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("no providers registered for %s/%s", market, capability))
		return
	}

	WriteJSON(w, http.StatusOK, descriptor)
}

// setDefaultRequest is the body of a default-source change.
type setDefaultRequest struct {
	Market     string `json:"market"`
	Capability string `json:"capability"`
	Name       string `json:"name"`
}

// SetDefaultHandler handles POST /api/sources/default
func (h *SourcesHandler) SetDefaultHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var body setDefaultRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if body.Market == "" || body.Name == "" {
		WriteError(w, http.StatusBadRequest, "market, capability and name are required")
		return
	}
	capability, err := models.ParseCapability(body.Capability)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.registry.SetDefault(body.Market, capability, body.Name); err != nil {
		var unknown *interfaces.UnknownProviderError
		if errors.As(err, &unknown) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error().
			Str("market", body.Market).
			Str("capability", body.Capability).
			Str("name", body.Name).
			Err(err).
			Msg("Failed to set default source")
		WriteError(w, http.StatusInternalServerError, "Failed to set default source")
		return
	}

	h.logger.Info().
		Str("market", body.Market).
		Str("capability", body.Capability).
		Str("name", body.Name).
		Msg("Default source changed")

	WriteSuccess(w, fmt.Sprintf("Default source for %s/%s set to %s", body.Market, capability, body.Name))
}
