package interfaces

import (
	"context"

	"github.com/ternarybob/pretium/internal/models"
)

// QuoteService orchestrates one logical fetch: fingerprint, cache lookup,
// fallback across the registry's provider chain and write-back of the first
// successful result. It owns no persistent state.
type QuoteService interface {
	// Fetch resolves the request to a normalized table. Identical concurrent
	// requests collapse to a single upstream call; every caller receives the
	// same payload. Returns NoProviderAvailableError when the chain is empty
	// and AllSourcesExhaustedError when every provider failed.
	Fetch(ctx context.Context, req *models.QuoteRequest) (*models.Table, error)
}
