package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/indicators"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

const (
	// defaultIndicatorPeriod is the window used when n is not supplied.
	defaultIndicatorPeriod = 20

	// defaultBollingerWidth is the band width in standard deviations.
	defaultBollingerWidth = 2.0
)

// IndicatorsHandler computes technical indicators over bar history fetched
// through the dispatcher, so the cache and the fallback chain apply the same
// way they do for a plain history quote.
type IndicatorsHandler struct {
	quotes interfaces.QuoteService
	logger arbor.ILogger
}

func NewIndicatorsHandler(quotes interfaces.QuoteService, logger arbor.ILogger) *IndicatorsHandler {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &IndicatorsHandler{
		quotes: quotes,
		logger: logger,
	}
}

// IndicatorsHandler handles GET /api/indicators requests. Query parameters:
// market, code (exactly one), indicator (ma, rsi, bollinger, drawdown,
// volume_ratio, volatility), start, end, plus optional freq, adjust, n
// (window, default 20) and k (band width, default 2).
func (h *IndicatorsHandler) IndicatorsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	params, err := parseIndicatorParams(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := h.quotes.Fetch(r.Context(), params.request)
	if err != nil {
		writeFetchError(w, h.logger, params.request, err)
		return
	}

	response, err := computeIndicator(params, table)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, response)
}

// indicatorParams is one parsed indicator request: the history fetch to run
// and the computation to apply on top of it.
type indicatorParams struct {
	request   *models.QuoteRequest
	indicator string
	n         int
	k         float64
}

// parseIndicatorParams validates the query and builds the underlying history
// request. Date normalization happens when the dispatcher builds the
// fingerprint, like every other quote.
func parseIndicatorParams(r *http.Request) (*indicatorParams, error) {
	query := r.URL.Query()

	name := strings.ToLower(strings.TrimSpace(query.Get("indicator")))
	switch name {
	case "":
		return nil, fmt.Errorf("missing required parameter: indicator")
	case "ma", "rsi", "bollinger", "drawdown", "volume_ratio", "volatility":
	default:
		return nil, fmt.Errorf("unknown indicator %q, supported: ma, rsi, bollinger, drawdown, volume_ratio, volatility", name)
	}

	market := strings.TrimSpace(query.Get("market"))
	if market == "" {
		return nil, fmt.Errorf("missing required parameter: market")
	}

	code := strings.TrimSpace(query.Get("code"))
	if code == "" {
		return nil, fmt.Errorf("missing required parameter: code")
	}
	if len(query["code"]) > 1 || strings.Contains(code, ",") {
		return nil, fmt.Errorf("indicators take a single code")
	}

	params := &indicatorParams{
		indicator: name,
		n:         defaultIndicatorPeriod,
		k:         defaultBollingerWidth,
		request: &models.QuoteRequest{
			Market:     market,
			Codes:      []string{code},
			Capability: string(models.CapabilityHistory),
			Start:      strings.TrimSpace(query.Get("start")),
			End:        strings.TrimSpace(query.Get("end")),
			Freq:       strings.TrimSpace(query.Get("freq")),
			Adjust:     strings.TrimSpace(query.Get("adjust")),
		},
	}

	if raw := strings.TrimSpace(query.Get("n")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter n: %q is not an integer", raw)
		}
		params.n = n
	}
	if raw := strings.TrimSpace(query.Get("k")); raw != "" {
		k, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter k: %q is not a number", raw)
		}
		params.k = k
	}

	return params, nil
}

// computeIndicator runs the requested computation over the fetched bars and
// assembles the response. Window parameters echo back only where they apply.
func computeIndicator(params *indicatorParams, table *models.Table) (map[string]interface{}, error) {
	response := map[string]interface{}{
		"market":    params.request.Market,
		"code":      params.request.Codes[0],
		"indicator": params.indicator,
		"bars":      table.Len(),
	}

	switch params.indicator {
	case "ma":
		value, err := indicators.MA(table, params.n)
		if err != nil {
			return nil, err
		}
		response["period"] = params.n
		response["value"] = value
	case "rsi":
		value, err := indicators.RSI(table, params.n)
		if err != nil {
			return nil, err
		}
		response["period"] = params.n
		response["value"] = value
	case "bollinger":
		bands, err := indicators.Bollinger(table, params.n, params.k)
		if err != nil {
			return nil, err
		}
		response["period"] = params.n
		response["k"] = params.k
		response["bands"] = bands
	case "drawdown":
		value, err := indicators.MaxDrawdown(table)
		if err != nil {
			return nil, err
		}
		response["value"] = value
	case "volume_ratio":
		value, err := indicators.VolumeRatio(table, params.n)
		if err != nil {
			return nil, err
		}
		response["period"] = params.n
		response["value"] = value
	case "volatility":
		value, err := indicators.Volatility(table, params.n)
		if err != nil {
			return nil, err
		}
		response["period"] = params.n
		response["value"] = value
	default:
		return nil, fmt.Errorf("unknown indicator %q", params.indicator)
	}

	return response, nil
}
