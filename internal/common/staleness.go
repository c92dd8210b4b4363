package common

import (
	"fmt"
	"time"

	"github.com/ternarybob/pretium/internal/models"
)

// StalenessResult contains the result of a staleness check.
type StalenessResult struct {
	// IsStale indicates whether the cached data is stale and needs refresh.
	IsStale bool
	// Reason provides a human-readable explanation for the staleness decision.
	Reason string
}

// StalenessPolicy decides whether cached entries are still fresh based on
// their capability and the trading calendar of their market.
type StalenessPolicy struct {
	calendar   *Calendar
	realtime   time.Duration
	history    time.Duration
	factors    time.Duration
	profile    time.Duration
	financials time.Duration
}

// NewStalenessPolicy builds a policy from the configured windows.
// Empty or unparseable window strings fall back to the documented defaults.
func NewStalenessPolicy(cfg StalenessConfig, calendar *Calendar) *StalenessPolicy {
	if calendar == nil {
		calendar = DefaultCalendar()
	}
	return &StalenessPolicy{
		calendar:   calendar,
		realtime:   parseDurationOr(cfg.Realtime, 15*time.Second),
		history:    parseDurationOr(cfg.History, 5*time.Minute),
		factors:    parseDurationOr(cfg.Factors, 24*time.Hour),
		profile:    parseDurationOr(cfg.Profile, 7*24*time.Hour),
		financials: parseDurationOr(cfg.Financials, 24*time.Hour),
	}
}

// Check reports whether a cached entry is stale at the given time.
//
// Rules per capability:
//   - realtime: fresh for the realtime window while the market session is
//     open; outside session hours fresh until the next session open.
//   - history: final once the requested range ends on or before the last
//     completed trading day; otherwise fresh for the history window.
//   - factors: fresh until the next market close after creation, bounded by
//     the factors window.
//   - profile, financials: fixed windows.
func (p *StalenessPolicy) Check(meta *models.EntryMetadata, now time.Time) StalenessResult {
	// If no metadata, assume always stale (fallback behavior)
	if meta == nil {
		return StalenessResult{
			IsStale: true,
			Reason:  "no entry metadata available, assuming stale",
		}
	}

	now = now.UTC()
	age := now.Sub(meta.Created)

	switch meta.Capability {
	case models.CapabilityRealtime:
		return p.checkRealtime(meta, now, age)
	case models.CapabilityHistory:
		return p.checkHistory(meta, now, age)
	case models.CapabilityFactors:
		return p.checkFactors(meta, now, age)
	case models.CapabilityProfile:
		return p.checkWindow(age, p.profile, "profile")
	case models.CapabilityFinancials:
		return p.checkWindow(age, p.financials, "financials")
	default:
		return StalenessResult{
			IsStale: true,
			Reason:  fmt.Sprintf("unknown capability %q, assuming stale", meta.Capability),
		}
	}
}

func (p *StalenessPolicy) checkRealtime(meta *models.EntryMetadata, now time.Time, age time.Duration) StalenessResult {
	if p.calendar.IsSessionOpen(meta.Market, now) {
		if age > p.realtime {
			return StalenessResult{
				IsStale: true,
				Reason: fmt.Sprintf(
					"realtime snapshot is %s old during an open %s session (window %s)",
					age.Round(time.Second), meta.Market, p.realtime,
				),
			}
		}
		return StalenessResult{
			Reason: fmt.Sprintf(
				"realtime snapshot is %s old, within the open-session window %s",
				age.Round(time.Second), p.realtime,
			),
		}
	}

	// Session closed: the snapshot stays valid until trading resumes
	nextOpen := p.calendar.NextOpen(meta.Market, meta.Created)
	if !nextOpen.After(now) {
		return StalenessResult{
			IsStale: true,
			Reason: fmt.Sprintf(
				"market %s reopened at %s after the snapshot was taken",
				meta.Market, nextOpen.Format(time.RFC3339),
			),
		}
	}
	return StalenessResult{
		Reason: fmt.Sprintf(
			"market %s is closed, snapshot fresh until next open at %s",
			meta.Market, nextOpen.Format(time.RFC3339),
		),
	}
}

func (p *StalenessPolicy) checkHistory(meta *models.EntryMetadata, now time.Time, age time.Duration) StalenessResult {
	if meta.RangeEnd != "" {
		lastCompleted := p.calendar.LastCompletedTradingDay(meta.Market, now).Format(models.DateLayout)
		// YYYYMMDD strings order chronologically
		if meta.RangeEnd <= lastCompleted {
			return StalenessResult{
				Reason: fmt.Sprintf(
					"range ends %s, last completed trading day is %s, data is final",
					meta.RangeEnd, lastCompleted,
				),
			}
		}
	}
	return p.checkWindow(age, p.history, "history")
}

func (p *StalenessPolicy) checkFactors(meta *models.EntryMetadata, now time.Time, age time.Duration) StalenessResult {
	nextClose := p.calendar.NextClose(meta.Market, meta.Created)
	if !nextClose.After(now) {
		return StalenessResult{
			IsStale: true,
			Reason: fmt.Sprintf(
				"market %s closed at %s after the factors were fetched",
				meta.Market, nextClose.Format(time.RFC3339),
			),
		}
	}
	return p.checkWindow(age, p.factors, "factors")
}

func (p *StalenessPolicy) checkWindow(age, window time.Duration, what string) StalenessResult {
	if age > window {
		return StalenessResult{
			IsStale: true,
			Reason:  fmt.Sprintf("%s data is %s old (window %s)", what, age.Round(time.Second), window),
		}
	}
	return StalenessResult{
		Reason: fmt.Sprintf("%s data is %s old, within window %s", what, age.Round(time.Second), window),
	}
}
