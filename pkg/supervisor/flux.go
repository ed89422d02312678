package supervisor

import (
	"fmt"
	"os"

	"github.com/easel-ai/easel/pkg/config"
)

// ValidateFluxEncoderPaths enforces the local-checkpoint rule for the
// flux daemon: a non-empty model_path requires the CLIP-L and T5-XXL
// text encoders plus the VAE, all present on disk. Hosted models carry
// their own weights, so an empty model_path skips validation entirely.
func ValidateFluxEncoderPaths(svc *config.ServiceConfig) error {
	if svc.ModelPath == "" {
		return nil
	}

	encoders := []struct {
		label string
		path  string
	}{
		{"CLIP-L text encoder", svc.TextEncoderPath},
		{"T5-XXL text encoder", svc.TextEncoder2Path},
		{"VAE", svc.VAEPath},
	}
	for _, enc := range encoders {
		if enc.path == "" {
			return fmt.Errorf("%w: %s path is required when model_path is set",
				ErrEncoderValidation, enc.label)
		}
		if _, err := os.Stat(enc.path); err != nil {
			return fmt.Errorf("%w: %s not found at %s",
				ErrEncoderValidation, enc.label, enc.path)
		}
	}
	if _, err := os.Stat(svc.ModelPath); err != nil {
		return fmt.Errorf("%w: model checkpoint not found at %s",
			ErrEncoderValidation, svc.ModelPath)
	}
	return nil
}
