// Package models defines the data types exchanged between the source
// registry, the quote cache, and the upstream providers.
package models

import (
	"fmt"
	"strings"
)

// Capability identifies one category of retrievable market data.
type Capability string

const (
	// CapabilityHistory is historical OHLCV bars over a date range.
	CapabilityHistory Capability = "history"

	// CapabilityRealtime is the latest snapshot quote.
	CapabilityRealtime Capability = "realtime"

	// CapabilityFactors is per-day valuation factors (PE, PB, market cap).
	CapabilityFactors Capability = "factors"

	// CapabilityProfile is the static company profile.
	CapabilityProfile Capability = "profile"

	// CapabilityFinancials is periodic financial statement data.
	CapabilityFinancials Capability = "financials"
)

// FieldSet tags for the history schema.
const (
	FieldSetBasic = "basic"
	FieldSetFull  = "full"
)

// Capabilities returns every supported capability in a stable order.
func Capabilities() []Capability {
	return []Capability{
		CapabilityHistory,
		CapabilityRealtime,
		CapabilityFactors,
		CapabilityProfile,
		CapabilityFinancials,
	}
}

// ParseCapability converts a string to a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &InvalidParameterError{Field: "capability", Value: s, Reason: fmt.Sprintf("must be one of %v", Capabilities())}
	}
	return c, nil
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityHistory, CapabilityRealtime, CapabilityFactors, CapabilityProfile, CapabilityFinancials:
		return true
	}
	return false
}

// String returns the capability name.
func (c Capability) String() string {
	return string(c)
}

// UsesDateRange reports whether requests for this capability carry a date range.
func (c Capability) UsesDateRange() bool {
	switch c {
	case CapabilityHistory, CapabilityFactors, CapabilityFinancials:
		return true
	}
	return false
}

// UsesBars reports whether requests for this capability carry frequency and
// adjustment codes. Only bar history does.
func (c Capability) UsesBars() bool {
	return c == CapabilityHistory
}

// historyBasicColumns is the minimal bar schema every history provider must return.
var historyBasicColumns = []string{"date", "open", "high", "low", "close", "volume", "amount"}

// historyFullColumns extends the basic schema with derived per-bar metrics.
var historyFullColumns = []string{
	"date", "open", "high", "low", "close", "volume", "amount",
	"change_pct", "turnover_pct", "change", "amplitude_pct",
}

// RequiredColumns returns the minimal schema for the capability. The fields
// tag only matters for history ("basic" or "full"); other capabilities have a
// single fixed schema.
func (c Capability) RequiredColumns(fields string) []string {
	switch c {
	case CapabilityHistory:
		if fields == FieldSetFull {
			return historyFullColumns
		}
		return historyBasicColumns
	case CapabilityRealtime:
		return []string{"code", "price", "change_pct", "volume", "amount", "time"}
	case CapabilityFactors:
		return []string{"date", "pe", "pb", "total_mv", "turnover"}
	case CapabilityProfile:
		return []string{"code", "name", "industry", "listing_date", "description"}
	case CapabilityFinancials:
		return []string{"period", "revenue", "net_profit", "eps", "roe"}
	}
	return nil
}

// NormalizeFieldSet validates the field-set tag. Empty defaults to basic.
func NormalizeFieldSet(fields string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(fields))
	switch f {
	case "":
		return FieldSetBasic, nil
	case FieldSetBasic, FieldSetFull:
		return f, nil
	}
	return "", &InvalidParameterError{Field: "fields", Value: fields, Reason: fmt.Sprintf("must be %q or %q", FieldSetBasic, FieldSetFull)}
}
