// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"

	"github.com/ternarybob/pretium/internal/models"
)

// Provider is the base contract every upstream data source implements.
// Capability-specific fetch methods live on the typed fetcher interfaces
// below; the registry checks at registration time that a provider implements
// the interface matching its declared capability.
type Provider interface {
	// Name returns the provider's registry name.
	Name() string
}

// HistoryFetcher retrieves historical bars for the fingerprint's codes and
// range. The fingerprint carries canonical dates, frequency and adjustment
// codes.
type HistoryFetcher interface {
	Provider
	FetchHistory(ctx context.Context, fp *models.Fingerprint) (*models.Table, error)
}

// RealtimeFetcher retrieves the latest snapshot quote.
type RealtimeFetcher interface {
	Provider
	FetchRealtime(ctx context.Context, fp *models.Fingerprint) (*models.Table, error)
}

// FactorsFetcher retrieves per-day valuation factors.
type FactorsFetcher interface {
	Provider
	FetchFactors(ctx context.Context, fp *models.Fingerprint) (*models.Table, error)
}

// ProfileFetcher retrieves the static company profile.
type ProfileFetcher interface {
	Provider
	FetchProfile(ctx context.Context, fp *models.Fingerprint) (*models.Table, error)
}

// FinancialsFetcher retrieves periodic financial statement data.
type FinancialsFetcher interface {
	Provider
	FetchFinancials(ctx context.Context, fp *models.Fingerprint) (*models.Table, error)
}

// ImplementsCapability reports whether p implements the fetcher interface for
// the given capability.
func ImplementsCapability(p Provider, capability models.Capability) bool {
	switch capability {
	case models.CapabilityHistory:
		_, ok := p.(HistoryFetcher)
		return ok
	case models.CapabilityRealtime:
		_, ok := p.(RealtimeFetcher)
		return ok
	case models.CapabilityFactors:
		_, ok := p.(FactorsFetcher)
		return ok
	case models.CapabilityProfile:
		_, ok := p.(ProfileFetcher)
		return ok
	case models.CapabilityFinancials:
		_, ok := p.(FinancialsFetcher)
		return ok
	}
	return false
}

// Fetch dispatches to the fetcher method matching the fingerprint's
// capability.
func Fetch(ctx context.Context, p Provider, fp *models.Fingerprint) (*models.Table, error) {
	switch fp.Capability {
	case models.CapabilityHistory:
		if f, ok := p.(HistoryFetcher); ok {
			return f.FetchHistory(ctx, fp)
		}
	case models.CapabilityRealtime:
		if f, ok := p.(RealtimeFetcher); ok {
			return f.FetchRealtime(ctx, fp)
		}
	case models.CapabilityFactors:
		if f, ok := p.(FactorsFetcher); ok {
			return f.FetchFactors(ctx, fp)
		}
	case models.CapabilityProfile:
		if f, ok := p.(ProfileFetcher); ok {
			return f.FetchProfile(ctx, fp)
		}
	case models.CapabilityFinancials:
		if f, ok := p.(FinancialsFetcher); ok {
			return f.FetchFinancials(ctx, fp)
		}
	}
	return nil, &UnknownProviderError{Name: p.Name(), Market: fp.Market, Capability: fp.Capability}
}
