package provider

import (
	"fmt"
	"log/slog"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/meter"
)

// Set bundles one provider per capability, the unit the orchestrator is
// constructed with.
type Set struct {
	LLM    LLM
	Image  Image
	Vision Vision
	Critic Critic
	Ranker Ranker
}

// NewSet builds the production provider set: the local daemons on their
// configured ports, the hosted Modal endpoint for image generation when
// its credentials are present, each wrapped with retry and metering.
//
// The meter is session-scoped, so a Set is built per job.
func NewSet(cfg *config.Config, m *meter.Meter) (*Set, error) {
	llmSvc, err := cfg.Service(config.ServiceLLM)
	if err != nil {
		return nil, fmt.Errorf("resolve llm service: %w", err)
	}
	fluxSvc, err := cfg.Service(config.ServiceFlux)
	if err != nil {
		return nil, fmt.Errorf("resolve flux service: %w", err)
	}
	visionSvc, err := cfg.Service(config.ServiceVision)
	if err != nil {
		return nil, fmt.Errorf("resolve vision service: %w", err)
	}
	vlmSvc, err := cfg.Service(config.ServiceVLM)
	if err != nil {
		return nil, fmt.Errorf("resolve vlm service: %w", err)
	}

	var image Image = NewLocalFlux(fluxSvc.BaseURL())
	if cfg.Modal != nil {
		slog.Info("Using hosted image generation", "endpoint", cfg.Modal.EndpointURL)
		image = NewModalImage(cfg.Modal)
	}

	return &Set{
		LLM:    MeteredLLM(LLMWithRetry(NewLocalLLM(llmSvc.BaseURL())), m),
		Image:  MeteredImage(ImageWithRetry(image), m),
		Vision: MeteredVision(VisionWithRetry(NewLocalVision(visionSvc.BaseURL())), m),
		Critic: MeteredCritic(CriticWithRetry(NewVLMCritic(vlmSvc.BaseURL())), m),
		Ranker: MeteredRanker(RankerWithRetry(NewVLMRanker(vlmSvc.BaseURL())), m),
	}, nil
}
