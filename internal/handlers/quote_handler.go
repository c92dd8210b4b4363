package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

// QuoteHandler serves quote retrieval requests over the dispatcher.
type QuoteHandler struct {
	quotes interfaces.QuoteService
	logger arbor.ILogger
}

func NewQuoteHandler(quotes interfaces.QuoteService, logger arbor.ILogger) *QuoteHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &QuoteHandler{
		quotes: quotes,
		logger: logger,
	}
}

// QuoteHandler handles GET /api/quote requests. Query parameters mirror the
// request model: market, code (repeatable) or codes (comma-separated),
// capability, start, end, freq, adjust, fields. Capability defaults to
// history.
func (h *QuoteHandler) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	req, err := parseQuoteRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := h.quotes.Fetch(r.Context(), req)
	if err != nil {
		writeFetchError(w, h.logger, req, err)
		return
	}

	WriteJSON(w, http.StatusOK, table)
}

// parseQuoteRequest builds a quote request from query parameters. Only
// presence is checked here; normalization happens when the dispatcher builds
// the fingerprint.
func parseQuoteRequest(r *http.Request) (*models.QuoteRequest, error) {
	query := r.URL.Query()

	req := &models.QuoteRequest{
		Market:     strings.TrimSpace(query.Get("market")),
		Capability: strings.TrimSpace(query.Get("capability")),
		Start:      strings.TrimSpace(query.Get("start")),
		End:        strings.TrimSpace(query.Get("end")),
		Freq:       strings.TrimSpace(query.Get("freq")),
		Adjust:     strings.TrimSpace(query.Get("adjust")),
		Fields:     strings.TrimSpace(query.Get("fields")),
	}
	if req.Capability == "" {
		req.Capability = string(models.CapabilityHistory)
	}

	values := append(query["code"], query["codes"]...)
	for _, value := range values {
		for _, code := range strings.Split(value, ",") {
			if code = strings.TrimSpace(code); code != "" {
				req.Codes = append(req.Codes, code)
			}
		}
	}

	if req.Market == "" {
		return nil, fmt.Errorf("missing required parameter: market")
	}
	if len(req.Codes) == 0 {
		return nil, fmt.Errorf("missing required parameter: code")
	}

	return req, nil
}

// writeFetchError maps dispatcher errors to HTTP statuses. Parameter errors
// are the caller's fault, an empty provider chain means the pair is not
// serviceable right now, and an exhausted chain reports every failure in
// order.
func writeFetchError(w http.ResponseWriter, logger arbor.ILogger, req *models.QuoteRequest, err error) {
	var invalidParam *models.InvalidParameterError
	var invalidFreq *models.InvalidFrequencyError
	var validationErrs validator.ValidationErrors
	var noProvider *interfaces.NoProviderAvailableError
	var exhausted *interfaces.AllSourcesExhaustedError

	switch {
	case errors.As(err, &invalidParam), errors.As(err, &invalidFreq), errors.As(err, &validationErrs):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noProvider):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &exhausted):
		logger.Warn().
			Str("market", req.Market).
			Str("capability", req.Capability).
			Int("failures", len(exhausted.Failures)).
			Msg("All sources exhausted")
		WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"status":   "error",
			"error":    exhausted.Error(),
			"failures": exhausted.Failures,
		})
	default:
		logger.Error().
			Str("market", req.Market).
			Str("capability", req.Capability).
			Err(err).
			Msg("Quote fetch failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch quote data")
	}
}
