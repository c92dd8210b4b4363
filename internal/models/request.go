package models

// QuoteRequest is the caller-facing request for one logical fetch. Fields
// accept the human spellings; normalization happens when the fingerprint is
// built.
type QuoteRequest struct {
	Market     string   `json:"market" validate:"required"`
	Codes      []string `json:"codes" validate:"required,min=1"`
	Capability string   `json:"capability" validate:"required"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Freq       string   `json:"freq,omitempty"`
	Adjust     string   `json:"adjust,omitempty"`
	Fields     string   `json:"fields,omitempty" validate:"omitempty,oneof=basic full"`
}
