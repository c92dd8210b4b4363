package models

import "fmt"

// ProviderDescriptor identifies one registered provider for a
// (market, capability) pair. Immutable after registration except Ready,
// which flips when the provider's required initialization (usually a
// credential) is supplied or withdrawn.
type ProviderDescriptor struct {
	Name       string     `json:"name"`
	Market     string     `json:"market"`
	Capability Capability `json:"capability"`
	Priority   int        `json:"priority"` // lower is tried first
	Ready      bool       `json:"ready"`
	Default    bool       `json:"default"` // set on snapshots for the status surface
}

// Validate checks the descriptor's identity fields.
func (d *ProviderDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("provider name is required")
	}
	if _, err := NormalizeMarket(d.Market); err != nil {
		return err
	}
	if !d.Capability.Valid() {
		return fmt.Errorf("unknown capability %q", d.Capability)
	}
	return nil
}

// PairKey identifies the (market, capability) pair the descriptor serves.
func (d *ProviderDescriptor) PairKey() string {
	return d.Market + "/" + string(d.Capability)
}
