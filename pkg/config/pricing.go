package config

// PricingConfig holds per-provider model pricing used for cost estimation
// and optimization suggestions. Prices are dollars per one million tokens,
// except PerRequest which is a flat dollar amount per call (image
// generation is billed per request, not per token).
type PricingConfig struct {
	Providers map[string]*ProviderPricing `yaml:"providers"`
}

// ProviderPricing is the model price table for one provider.
type ProviderPricing struct {
	Models map[string]*ModelPrice `yaml:"models"`
}

// ModelPrice is the price entry for one model tier.
type ModelPrice struct {
	InputPer1M  float64 `yaml:"input_per_1m"`
	OutputPer1M float64 `yaml:"output_per_1m"`
	PerRequest  float64 `yaml:"per_request"`

	// Capability is a short human note on what the tier can do, surfaced
	// in optimization suggestions.
	Capability string `yaml:"capability"`

	// CheaperAlternative names a model in the same provider's table that
	// covers this tier's workload at lower cost. Empty means no downgrade
	// is considered adequate.
	CheaperAlternative string `yaml:"cheaper_alternative"`
}

// Model looks up a model's price entry.
func (p *PricingConfig) Model(provider, model string) (*ModelPrice, bool) {
	if p == nil {
		return nil, false
	}
	pp, ok := p.Providers[provider]
	if !ok {
		return nil, false
	}
	mp, ok := pp.Models[model]
	return mp, ok
}
