package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/easel-ai/easel/pkg/models"
)

// LocalFlux talks to the local flux daemon's generate endpoint and writes
// the returned PNG into the session's image directory.
type LocalFlux struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewLocalFlux returns an Image provider bound to the daemon at baseURL.
func NewLocalFlux(baseURL string) *LocalFlux {
	return &LocalFlux{
		baseURL: baseURL,
		client:  newHTTPClient(),
		logger:  slog.With("component", "flux_provider"),
	}
}

// GPUBound reports that the daemon shares the single local GPU.
func (p *LocalFlux) GPUBound() bool { return true }

type generateRequest struct {
	Prompt   string  `json:"prompt"`
	Size     string  `json:"size,omitempty"`
	Steps    int     `json:"steps,omitempty"`
	Guidance float64 `json:"guidance,omitempty"`
	Seed     *int64  `json:"seed,omitempty"`

	// img2img fields. The daemon runs on the same host, so the input
	// image travels as a path, not inline bytes.
	InputImagePath  string  `json:"input_image_path,omitempty"`
	DenoiseStrength float64 `json:"denoise_strength,omitempty"`
}

type generateResponse struct {
	ImageB64 string `json:"image_b64"`
	Model    string `json:"model"`
	Size     string `json:"size"`
	Seed     *int64 `json:"seed,omitempty"`
}

// GenerateImage renders prompt and writes the PNG under opts.OutputDir as
// i{iteration}c{candidateId}.png. With opts.InputImage set the daemon runs
// img2img from that image at opts.DenoiseStrength.
func (p *LocalFlux) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImageResult, error) {
	start := time.Now()
	req := generateRequest{
		Prompt:          prompt,
		Size:            opts.Size,
		Steps:           opts.Steps,
		Guidance:        opts.Guidance,
		Seed:            opts.Seed,
		InputImagePath:  opts.InputImage,
		DenoiseStrength: opts.DenoiseStrength,
	}

	var resp generateResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/generate", nil, req, &resp); err != nil {
		return nil, Classify(NameImage, fmt.Errorf("flux daemon generate: %w", err))
	}

	localPath, err := writeImage(opts.OutputDir, imageFilename(opts), resp.ImageB64)
	if err != nil {
		return nil, Classify(NameImage, fmt.Errorf("flux daemon generate: %w", err))
	}

	p.logger.Debug("Generated image",
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

// imageFilename names the candidate's PNG within the session image dir.
func imageFilename(opts ImageOptions) string {
	return models.CandidateKey(opts.Iteration, opts.CandidateID) + ".png"
}

// ImageURL is the session-scoped path the HTTP boundary serves the
// image on. It must match the image route the API server registers.
func ImageURL(sessionID, filename string) string {
	return fmt.Sprintf("/api/images/%s/%s", sessionID, filename)
}

// writeImage decodes a base64 PNG and writes it into dir. Hosted endpoints
// return data URLs, local daemons plain base64; both forms are accepted.
func writeImage(dir, filename, b64 string) (string, error) {
	if b64 == "" {
		return "", fmt.Errorf("empty image payload")
	}
	if idx := strings.IndexByte(b64, ','); idx >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}
