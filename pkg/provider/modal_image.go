package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/easel-ai/easel/pkg/config"
)

// ModalImage talks to a hosted Modal image-generation endpoint. It is the
// drop-in alternative to LocalFlux, selected when the MODAL_* environment
// triple is present. Hosted generation does not occupy the local GPU, so
// calls bypass the coordinator.
type ModalImage struct {
	endpointURL string
	tokenID     string
	tokenSecret string
	client      *http.Client
	logger      *slog.Logger
}

// NewModalImage returns an Image provider bound to the configured endpoint.
func NewModalImage(cfg *config.ModalConfig) *ModalImage {
	return &ModalImage{
		endpointURL: cfg.EndpointURL,
		tokenID:     cfg.TokenID,
		tokenSecret: cfg.TokenSecret,
		client:      newHTTPClient(),
		logger:      slog.With("component", "modal_provider"),
	}
}

// GPUBound reports that hosted generation runs off-box.
func (p *ModalImage) GPUBound() bool { return false }

type modalGenerateRequest struct {
	Prompt   string  `json:"prompt"`
	Size     string  `json:"size,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
	Seed     *int64  `json:"seed,omitempty"`

	// img2img fields. The endpoint cannot read local paths, so the input
	// image travels inline.
	InputImageB64   string  `json:"input_image_b64,omitempty"`
	DenoiseStrength float64 `json:"denoise_strength,omitempty"`
}

// GenerateImage renders prompt on the hosted endpoint and writes the PNG
// under opts.OutputDir, same layout as the local generator.
func (p *ModalImage) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImageResult, error) {
	start := time.Now()
	req := modalGenerateRequest{
		Prompt:          prompt,
		Size:            opts.Size,
		Steps:           opts.Steps,
		Guidance:        opts.Guidance,
		Seed:            opts.Seed,
		DenoiseStrength: opts.DenoiseStrength,
	}
	if opts.InputImage != "" {
		data, err := os.ReadFile(opts.InputImage)
		if err != nil {
			return nil, Classify(NameImage, fmt.Errorf("modal generate: read input image: %w", err))
		}
		req.InputImageB64 = base64.StdEncoding.EncodeToString(data)
	}

	headers := map[string]string{
		"Modal-Key":    p.tokenID,
		"Modal-Secret": p.tokenSecret,
	}

	var resp generateResponse
	if err := postJSON(ctx, p.client, p.endpointURL, headers, req, &resp); err != nil {
		return nil, Classify(NameImage, fmt.Errorf("modal generate: %w", err))
	}

	localPath, err := writeImage(opts.OutputDir, imageFilename(opts), resp.ImageB64)
	if err != nil {
		return nil, Classify(NameImage, fmt.Errorf("modal generate: %w", err))
	}

	p.logger.Debug("Generated image via hosted endpoint",
		"iteration", opts.Iteration,
		"candidate_id", opts.CandidateID,
		"img2img", opts.InputImage != "",
		"elapsed_ms", elapsedMS(start))

	return &ImageResult{
		URL:       ImageURL(opts.SessionID, imageFilename(opts)),
		LocalPath: localPath,
		Metadata: ImageMetadata{
			Model: resp.Model,
			Size:  resp.Size,
			Seed:  resp.Seed,
		},
	}, nil
}
