package interfaces

import "github.com/ternarybob/pretium/internal/models"

// RegisteredProvider pairs a descriptor with its implementation in resolve
// order.
type RegisteredProvider struct {
	Descriptor models.ProviderDescriptor
	Provider   Provider
}

// SourceRegistry holds the providers registered per (market, capability)
// pair and resolves a request to its priority-ordered fallback chain.
type SourceRegistry interface {
	// Register adds a provider for the descriptor's (market, capability)
	// pair. The first provider registered for a pair becomes its default.
	// Returns DuplicateProviderError if the name is taken for the pair.
	Register(descriptor models.ProviderDescriptor, provider Provider) error

	// SetDefault makes the named provider the default for the pair.
	// Returns UnknownProviderError if no such registration exists.
	SetDefault(market string, capability models.Capability, name string) error

	// Default returns the pair's default descriptor, false when the pair has
	// no registrations.
	Default(market string, capability models.Capability) (models.ProviderDescriptor, bool)

	// Resolve returns the ready providers for the pair sorted by priority
	// ascending, ties broken by registration order. Providers marked not
	// ready are excluded but stay registered.
	Resolve(market string, capability models.Capability) []RegisteredProvider

	// MarkReady flips every registration of the named provider to ready.
	// Idempotent.
	MarkReady(name string)

	// MarkUnready flips every registration of the named provider to not
	// ready. Idempotent.
	MarkUnready(name string)

	// Descriptors returns a snapshot of all registrations for the status
	// surface.
	Descriptors() []models.ProviderDescriptor
}
