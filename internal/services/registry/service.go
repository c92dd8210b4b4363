// Package registry tracks the quote providers registered per
// (market, capability) pair and resolves each pair to its priority-ordered
// fallback chain.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pretium/internal/interfaces"
	"github.com/ternarybob/pretium/internal/models"
)

// registration pairs a descriptor with its implementation. Slices hold
// pointers so readiness flips are visible through every view.
type registration struct {
	descriptor models.ProviderDescriptor
	provider   interfaces.Provider
}

// Service implements the SourceRegistry interface.
type Service struct {
	mu       sync.RWMutex
	regs     []*registration            // global insertion order, backs Descriptors()
	pairs    map[string][]*registration // per-pair views in insertion order
	defaults map[string]string          // pair key -> default provider name
	logger   arbor.ILogger
}

var _ interfaces.SourceRegistry = (*Service)(nil)

// NewService creates an empty source registry.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		pairs:    make(map[string][]*registration),
		defaults: make(map[string]string),
		logger:   logger,
	}
}

// Register adds a provider under the descriptor's (market, capability) pair.
// The first provider registered for a pair becomes its default.
func (s *Service) Register(descriptor models.ProviderDescriptor, provider interfaces.Provider) error {
	if err := descriptor.Validate(); err != nil {
		return fmt.Errorf("invalid provider descriptor: %w", err)
	}
	if provider == nil {
		return fmt.Errorf("provider %s has no implementation", descriptor.Name)
	}
	if !interfaces.ImplementsCapability(provider, descriptor.Capability) {
		return fmt.Errorf("provider %s does not implement capability %s", descriptor.Name, descriptor.Capability)
	}

	key := descriptor.PairKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.pairs[key] {
		if reg.descriptor.Name == descriptor.Name {
			return &interfaces.DuplicateProviderError{
				Name:       descriptor.Name,
				Market:     descriptor.Market,
				Capability: descriptor.Capability,
			}
		}
	}

	reg := &registration{descriptor: descriptor, provider: provider}
	s.regs = append(s.regs, reg)
	s.pairs[key] = append(s.pairs[key], reg)

	if _, exists := s.defaults[key]; !exists {
		s.defaults[key] = descriptor.Name
	}

	s.logger.Info().
		Str("provider", descriptor.Name).
		Str("market", descriptor.Market).
		Str("capability", string(descriptor.Capability)).
		Int("priority", descriptor.Priority).
		Bool("ready", descriptor.Ready).
		Msg("Registered quote provider")

	return nil
}

// SetDefault makes the named provider the default for the pair.
func (s *Service) SetDefault(market string, capability models.Capability, name string) error {
	key := pairKey(market, capability)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.pairs[key] {
		if reg.descriptor.Name == name {
			s.defaults[key] = name
			s.logger.Info().
				Str("provider", name).
				Str("market", market).
				Str("capability", string(capability)).
				Msg("Changed default quote provider")
			return nil
		}
	}

	return &interfaces.UnknownProviderError{Name: name, Market: market, Capability: capability}
}

// Default returns the pair's default descriptor, false when the pair has no
// registrations.
func (s *Service) Default(market string, capability models.Capability) (models.ProviderDescriptor, bool) {
	key := pairKey(market, capability)

	s.mu.RLock()
	defer s.mu.RUnlock()

	name, exists := s.defaults[key]
	if !exists {
		return models.ProviderDescriptor{}, false
	}
	for _, reg := range s.pairs[key] {
		if reg.descriptor.Name == name {
			descriptor := reg.descriptor
			descriptor.Default = true
			return descriptor, true
		}
	}
	return models.ProviderDescriptor{}, false
}

// Resolve returns the ready providers for the pair sorted by priority
// ascending, ties broken by registration order.
func (s *Service) Resolve(market string, capability models.Capability) []interfaces.RegisteredProvider {
	key := pairKey(market, capability)

	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := make([]interfaces.RegisteredProvider, 0, len(s.pairs[key]))
	for _, reg := range s.pairs[key] {
		if !reg.descriptor.Ready {
			continue
		}
		chain = append(chain, interfaces.RegisteredProvider{
			Descriptor: reg.descriptor,
			Provider:   reg.provider,
		})
	}

	// Stable sort keeps registration order for equal priorities
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Descriptor.Priority < chain[j].Descriptor.Priority
	})

	return chain
}

// MarkReady flips every registration of the named provider to ready.
func (s *Service) MarkReady(name string) {
	s.setReady(name, true)
}

// MarkUnready flips every registration of the named provider to not ready.
func (s *Service) MarkUnready(name string) {
	s.setReady(name, false)
}

func (s *Service) setReady(name string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, reg := range s.regs {
		if reg.descriptor.Name == name && reg.descriptor.Ready != ready {
			reg.descriptor.Ready = ready
			changed++
		}
	}

	if changed > 0 {
		s.logger.Info().
			Str("provider", name).
			Bool("ready", ready).
			Int("registrations", changed).
			Msg("Changed provider readiness")
	}
}

// Descriptors returns a snapshot of all registrations in registration order,
// with the pair defaults flagged.
func (s *Service) Descriptors() []models.ProviderDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptors := make([]models.ProviderDescriptor, 0, len(s.regs))
	for _, reg := range s.regs {
		descriptor := reg.descriptor
		descriptor.Default = s.defaults[descriptor.PairKey()] == descriptor.Name
		descriptors = append(descriptors, descriptor)
	}
	return descriptors
}

func pairKey(market string, capability models.Capability) string {
	return market + "/" + string(capability)
}
