package config

import (
	"time"

	"github.com/easel-ai/easel/pkg/models"
)

// Default ports, one per model daemon. Overridable per service via YAML or
// the {SERVICE}_PORT environment variables.
const (
	DefaultFluxPort   = 8001
	DefaultVisionPort = 8002
	DefaultLLMPort    = 8003
	DefaultVLMPort    = 8004
)

const (
	defaultHealthPath      = "/health"
	defaultGracefulTimeout = 5 * time.Second
	defaultStartupTimeout  = 120 * time.Second
)

// DefaultServices returns the built-in launch definitions for the four
// model daemons. Commands assume the daemon scripts are importable Python
// modules; deployments override command/args through easel.yaml.
func DefaultServices() map[string]*ServiceConfig {
	services := map[string]*ServiceConfig{
		ServiceLLM: {
			Name:    ServiceLLM,
			Port:    DefaultLLMPort,
			Command: "python3",
			Args:    []string{"-m", "services.llm_server", "--port", "{port}"},
		},
		ServiceFlux: {
			Name:    ServiceFlux,
			Port:    DefaultFluxPort,
			Command: "python3",
			Args:    []string{"-m", "services.flux_server", "--port", "{port}"},
		},
		ServiceVision: {
			Name:    ServiceVision,
			Port:    DefaultVisionPort,
			Command: "python3",
			Args:    []string{"-m", "services.vision_server", "--port", "{port}"},
		},
		ServiceVLM: {
			Name:    ServiceVLM,
			Port:    DefaultVLMPort,
			Command: "python3",
			Args:    []string{"-m", "services.vlm_server", "--port", "{port}"},
		},
	}
	for _, svc := range services {
		svc.HealthPath = defaultHealthPath
		svc.GracefulTimeout = defaultGracefulTimeout
		svc.StartupTimeout = defaultStartupTimeout
	}
	return services
}

// DefaultPricing returns the built-in pricing table. Local daemons cost
// nothing to call; the hosted tiers are priced so cost estimates stay
// meaningful when providers are swapped to hosted implementations.
func DefaultPricing() *PricingConfig {
	return &PricingConfig{
		Providers: map[string]*ProviderPricing{
			"llm": {
				Models: map[string]*ModelPrice{
					"gpt-4o": {
						InputPer1M:         2.50,
						OutputPer1M:        10.00,
						Capability:         "full prompt-engineering tier",
						CheaperAlternative: "gpt-4o-mini",
					},
					"gpt-4o-mini": {
						InputPer1M:  0.15,
						OutputPer1M: 0.60,
						Capability:  "adequate for prompt refinement",
					},
					"local": {},
				},
			},
			"vision": {
				Models: map[string]*ModelPrice{
					"gpt-4o": {
						InputPer1M:         2.50,
						OutputPer1M:        10.00,
						Capability:         "full analysis tier",
						CheaperAlternative: "gpt-4o-mini",
					},
					"gpt-4o-mini": {
						InputPer1M:  0.15,
						OutputPer1M: 0.60,
						Capability:  "adequate for alignment scoring",
					},
					"local": {},
				},
			},
			"vlm": {
				Models: map[string]*ModelPrice{
					"local": {},
				},
			},
			"image": {
				Models: map[string]*ModelPrice{
					"flux-dev": {
						PerRequest:         0.025,
						Capability:         "50-step quality tier",
						CheaperAlternative: "flux-schnell",
					},
					"flux-schnell": {
						PerRequest: 0.003,
						Capability: "4-step distilled tier",
					},
					"local": {},
				},
			},
		},
	}
}

// DefaultBeamDefaults returns the built-in beam-search parameter defaults.
func DefaultBeamDefaults() *BeamDefaults {
	return &BeamDefaults{
		N:           models.DefaultN,
		M:           models.DefaultM,
		Iterations:  models.DefaultIterations,
		Alpha:       models.DefaultAlpha,
		Temperature: models.DefaultTemperature,
	}
}
