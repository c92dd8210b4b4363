package interfaces

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/pretium/internal/models"
)

// ErrKeyNotFound is returned when a key is not found in the key/value store.
var ErrKeyNotFound = errors.New("key not found")

// DuplicateProviderError is returned when a provider name is already
// registered for the same (market, capability) pair.
type DuplicateProviderError struct {
	Name       string
	Market     string
	Capability models.Capability
}

func (e *DuplicateProviderError) Error() string {
	return fmt.Sprintf("provider %q already registered for %s/%s", e.Name, e.Market, e.Capability)
}

// UnknownProviderError is returned when an operation names a provider that
// was never registered for the pair.
type UnknownProviderError struct {
	Name       string
	Market     string
	Capability models.Capability
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("no provider %q registered for %s/%s", e.Name, e.Market, e.Capability)
}

// NoProviderAvailableError is returned when a fetch resolves to an empty
// provider chain for its (market, capability) pair.
type NoProviderAvailableError struct {
	Market     string
	Capability models.Capability
}

func (e *NoProviderAvailableError) Error() string {
	return fmt.Sprintf("no ready provider for %s/%s", e.Market, e.Capability)
}

// ProviderFailure records why one provider in the fallback chain was skipped.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// AllSourcesExhaustedError is returned when every provider in the fallback
// chain failed. Failures are listed in the order the providers were tried.
type AllSourcesExhaustedError struct {
	Market     string
	Capability models.Capability
	Failures   []ProviderFailure
}

func (e *AllSourcesExhaustedError) Error() string {
	reasons := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		reasons[i] = fmt.Sprintf("%s: %s", f.Provider, f.Reason)
	}
	return fmt.Sprintf("all sources exhausted for %s/%s: [%s]", e.Market, e.Capability, strings.Join(reasons, "; "))
}

// Unwrap exposes the last provider error for errors.Is/As chains.
func (e *AllSourcesExhaustedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}
	return e.Failures[len(e.Failures)-1].Err
}
