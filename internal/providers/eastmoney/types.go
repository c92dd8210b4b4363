package eastmoney

import (
	"encoding/json"
	"fmt"
)

// APIError represents a non-200 response from an Eastmoney endpoint.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eastmoney API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// klineResponse is the kline endpoint envelope. A null data object means the
// security id did not resolve.
type klineResponse struct {
	Data *klineData `json:"data"`
}

type klineData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

// quoteResponse is the realtime snapshot envelope.
type quoteResponse struct {
	Data *quoteData `json:"data"`
}

// quoteData carries the snapshot fields requested from the quote endpoint.
// Numeric fields arrive as integers or floats depending on fltt, so they
// stay json.Number and pass through as text.
type quoteData struct {
	Price     json.Number `json:"f43"`
	Volume    json.Number `json:"f47"`
	Amount    json.Number `json:"f48"`
	Code      string      `json:"f57"`
	Name      string      `json:"f58"`
	Time      int64       `json:"f86"`
	ChangePct json.Number `json:"f170"`
}
