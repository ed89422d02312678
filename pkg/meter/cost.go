package meter

import (
	"fmt"
	"sort"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/models"
)

// CostBreakdown is the estimated dollar cost of all recorded usage.
type CostBreakdown struct {
	Total      float64            `json:"total"`
	ByProvider map[string]float64 `json:"byProvider"`
}

// Suggestion proposes a cheaper model tier for a (provider, operation)
// pair whose recorded usage ran on a model with an adequate downgrade.
type Suggestion struct {
	Provider         string  `json:"provider"`
	Operation        string  `json:"operation"`
	CurrentModel     string  `json:"currentModel"`
	SuggestedModel   string  `json:"suggestedModel"`
	PotentialSavings float64 `json:"potentialSavings"`
	Reason           string  `json:"reason"`
}

// recordCost prices a single usage record. Per-request entries win over
// token prices (image generation is billed per call); a missing input or
// output split falls back to pricing all tokens at the input rate.
func recordCost(u models.Usage, price *config.ModelPrice) float64 {
	if price == nil {
		return 0
	}
	if price.PerRequest > 0 {
		return price.PerRequest
	}
	if u.InputTokens > 0 || u.OutputTokens > 0 {
		return float64(u.InputTokens)*price.InputPer1M/1e6 +
			float64(u.OutputTokens)*price.OutputPer1M/1e6
	}
	return float64(u.Tokens) * price.InputPer1M / 1e6
}

// EstimatedCost prices every record against the pricing table. Records
// whose model has no price entry contribute zero (local daemons are free).
func (m *Meter) EstimatedCost(pricing *config.PricingConfig) *CostBreakdown {
	m.mu.RLock()
	defer m.mu.RUnlock()

	breakdown := &CostBreakdown{ByProvider: make(map[string]float64)}
	for _, u := range m.records {
		price, ok := pricing.Model(u.Provider, u.Metadata.Model)
		if !ok {
			continue
		}
		cost := recordCost(u, price)
		breakdown.ByProvider[u.Provider] += cost
		breakdown.Total += cost
	}
	return breakdown
}

// usageGroup keys suggestion aggregation.
type usageGroup struct {
	provider  string
	operation string
	model     string
}

// OptimizationSuggestions finds (provider, operation) pairs whose model
// has a configured cheaper alternative and computes what the recorded
// usage would have saved on that tier. Sorted by savings, largest first.
func (m *Meter) OptimizationSuggestions(pricing *config.PricingConfig) []Suggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	grouped := make(map[usageGroup][]models.Usage)
	for _, u := range m.records {
		if u.Metadata.Model == "" {
			continue
		}
		key := usageGroup{u.Provider, u.Operation, u.Metadata.Model}
		grouped[key] = append(grouped[key], u)
	}

	var suggestions []Suggestion
	for key, records := range grouped {
		current, ok := pricing.Model(key.provider, key.model)
		if !ok || current.CheaperAlternative == "" {
			continue
		}
		cheaper, ok := pricing.Model(key.provider, current.CheaperAlternative)
		if !ok {
			continue
		}

		var currentCost, cheaperCost float64
		for _, u := range records {
			currentCost += recordCost(u, current)
			cheaperCost += recordCost(u, cheaper)
		}
		savings := currentCost - cheaperCost
		if savings <= 0 {
			continue
		}

		reason := fmt.Sprintf("%s covers %s/%s", current.CheaperAlternative, key.provider, key.operation)
		if cheaper.Capability != "" {
			reason = fmt.Sprintf("%s (%s)", reason, cheaper.Capability)
		}
		suggestions = append(suggestions, Suggestion{
			Provider:         key.provider,
			Operation:        key.operation,
			CurrentModel:     key.model,
			SuggestedModel:   current.CheaperAlternative,
			PotentialSavings: savings,
			Reason:           reason,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].PotentialSavings != suggestions[j].PotentialSavings {
			return suggestions[i].PotentialSavings > suggestions[j].PotentialSavings
		}
		// Stable order for equal savings.
		if suggestions[i].Provider != suggestions[j].Provider {
			return suggestions[i].Provider < suggestions[j].Provider
		}
		return suggestions[i].Operation < suggestions[j].Operation
	})
	return suggestions
}
