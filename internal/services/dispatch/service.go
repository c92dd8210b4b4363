// Package dispatch orchestrates one logical quote fetch: validate and
// fingerprint the request, consult the cache, walk the registry's fallback
// chain and write the first verified result back to the cache.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/common"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
	"golang.org/x/sync/singleflight"
)

// defaultProviderTimeout bounds one upstream call when the provider has no
// configured timeout.
const defaultProviderTimeout = 30 * time.Second

// Service implements the QuoteService interface. It holds no persistent
// state; every fetch is resolved from the registry and cache it was built
// with.
type Service struct {
	registry interfaces.SourceRegistry
	cache    interfaces.QuoteCache
	timeouts map[string]time.Duration // per-provider call timeout by name
	logger   arbor.ILogger
	flights  singleflight.Group
}

var _ interfaces.QuoteService = (*Service)(nil)

// NewService creates a dispatcher over the given registry and cache. The
// timeouts map bounds individual provider calls by provider name; providers
// absent from the map get defaultProviderTimeout.
func NewService(registry interfaces.SourceRegistry, cache interfaces.QuoteCache, timeouts map[string]time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		registry: registry,
		cache:    cache,
		timeouts: timeouts,
		logger:   logger,
	}
}

// Fetch resolves one quote request. Concurrent identical requests collapse
// to a single upstream call; every caller receives the shared result.
func (s *Service) Fetch(ctx context.Context, req *models.QuoteRequest) (*models.Table, error) {
	requestID := common.NewRequestID()

	if req == nil {
		return nil, fmt.Errorf("quote request is nil")
	}
	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid quote request: %w", err)
	}

	fp, err := models.BuildFingerprint(req)
	if err != nil {
		return nil, err
	}
	hash := fp.Hash()

	s.logger.Debug().
		Str("request_id", requestID).
		Str("fingerprint", hash).
		Str("market", fp.Market).
		Str("capability", string(fp.Capability)).
		Msg("Dispatching quote request")

	if table, ok := s.cache.Get(ctx, fp); ok {
		s.logger.Debug().
			Str("request_id", requestID).
			Str("fingerprint", hash).
			Msg("Serving cached table")
		return table, nil
	}

	result, err, shared := s.flights.Do(hash, func() (interface{}, error) {
		return s.fetchUpstream(ctx, requestID, fp)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.Debug().
			Str("request_id", requestID).
			Str("fingerprint", hash).
			Msg("Joined in-flight upstream fetch")
	}

	return result.(*models.Table), nil
}

// fetchUpstream runs inside a singleflight and tries the fallback chain in
// order. Only a complete, schema-verified table is cached and returned.
func (s *Service) fetchUpstream(ctx context.Context, requestID string, fp *models.Fingerprint) (*models.Table, error) {
	// An earlier flight for the same fingerprint may have filled the cache
	// while this caller waited
	if table, ok := s.cache.Get(ctx, fp); ok {
		return table, nil
	}

	chain := s.registry.Resolve(fp.Market, fp.Capability)
	if len(chain) == 0 {
		return nil, &interfaces.NoProviderAvailableError{Market: fp.Market, Capability: fp.Capability}
	}

	required := fp.Capability.RequiredColumns(fp.Fields)
	var failures []interfaces.ProviderFailure

	for position, source := range chain {
		name := source.Descriptor.Name

		table, err := s.callProvider(ctx, source.Provider, fp)
		if err == nil && table == nil {
			err = fmt.Errorf("provider returned no data")
		}
		if err == nil {
			if schemaErr := table.HasColumns(required...); schemaErr != nil {
				err = fmt.Errorf("response schema incomplete: %w", schemaErr)
			}
		}
		if err != nil {
			failures = append(failures, interfaces.ProviderFailure{
				Provider: name,
				Reason:   err.Error(),
				Err:      err,
			})
			s.logger.Warn().
				Str("request_id", requestID).
				Str("fingerprint", fp.Hash()).
				Str("provider", name).
				Int("position", position+1).
				Err(err).
				Msg("Provider failed, trying next source")
			continue
		}

		// Cache write failures do not fail the fetch
		if err := s.cache.Put(ctx, fp, table); err != nil {
			s.logger.Warn().
				Str("request_id", requestID).
				Str("fingerprint", fp.Hash()).
				Err(err).
				Msg("Failed to cache fetched table")
		}

		s.logger.Info().
			Str("request_id", requestID).
			Str("provider", name).
			Str("market", fp.Market).
			Str("capability", string(fp.Capability)).
			Int("rows", table.Len()).
			Msg("Fetched quote data")
		return table, nil
	}

	return nil, &interfaces.AllSourcesExhaustedError{
		Market:     fp.Market,
		Capability: fp.Capability,
		Failures:   failures,
	}
}

// callProvider invokes the fetcher matching the fingerprint's capability
// under the provider's call timeout.
func (s *Service) callProvider(ctx context.Context, provider interfaces.Provider, fp *models.Fingerprint) (*models.Table, error) {
	timeout := s.timeouts[provider.Name()]
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return interfaces.Fetch(callCtx, provider, fp)
}
