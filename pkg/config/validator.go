package config

import (
	"fmt"
	"strings"

	"github.com/easel-ai/easel/pkg/models"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateServices(); err != nil {
		return fmt.Errorf("service validation failed: %w", err)
	}

	if err := v.validatePricing(); err != nil {
		return fmt.Errorf("pricing validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	if err := v.validateDefaults(); err != nil {
		return fmt.Errorf("defaults validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	if v.cfg.Port < 1 || v.cfg.Port > 65535 {
		return NewValidationError("server", "port", "",
			fmt.Errorf("%w: must be 1-65535, got %d", ErrInvalidValue, v.cfg.Port))
	}
	if v.cfg.SessionHistoryDir == "" {
		return NewValidationError("server", "session_history_dir", "",
			fmt.Errorf("%w: must be non-empty", ErrMissingRequiredField))
	}
	if v.cfg.GPUCleanupDelay < 0 {
		return NewValidationError("server", "gpu_cleanup_delay", "",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateServices() error {
	seenPorts := map[int]string{v.cfg.Port: "server"}

	for _, name := range ServiceNames() {
		svc, ok := v.cfg.Services[name]
		if !ok {
			return NewValidationError("service", name, "",
				fmt.Errorf("%w: service definition missing", ErrMissingRequiredField))
		}
		if svc.Disabled {
			continue
		}
		if svc.Port < 1 || svc.Port > 65535 {
			return NewValidationError("service", name, "port",
				fmt.Errorf("%w: must be 1-65535, got %d", ErrInvalidValue, svc.Port))
		}
		if owner, clash := seenPorts[svc.Port]; clash {
			return NewValidationError("service", name, "port",
				fmt.Errorf("%w: port %d already used by %s", ErrInvalidValue, svc.Port, owner))
		}
		seenPorts[svc.Port] = name

		if svc.Command == "" {
			return NewValidationError("service", name, "command",
				fmt.Errorf("%w: command required", ErrMissingRequiredField))
		}
		if !strings.HasPrefix(svc.HealthPath, "/") {
			return NewValidationError("service", name, "health_path",
				fmt.Errorf("%w: must start with '/', got %q", ErrInvalidValue, svc.HealthPath))
		}
		if svc.GracefulTimeout <= 0 {
			return NewValidationError("service", name, "graceful_timeout",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if svc.StartupTimeout <= 0 {
			return NewValidationError("service", name, "startup_timeout",
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if svc.LoraScale < 0 {
			return NewValidationError("service", name, "lora_scale",
				fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
	}

	return nil
}

func (v *ConfigValidator) validatePricing() error {
	for provider, table := range v.cfg.Pricing.Providers {
		for model, price := range table.Models {
			if price == nil {
				return NewValidationError("pricing", provider, model,
					fmt.Errorf("%w: empty price entry", ErrMissingRequiredField))
			}
			if price.InputPer1M < 0 || price.OutputPer1M < 0 || price.PerRequest < 0 {
				return NewValidationError("pricing", provider, model,
					fmt.Errorf("%w: prices must not be negative", ErrInvalidValue))
			}
			if price.CheaperAlternative != "" {
				if _, ok := table.Models[price.CheaperAlternative]; !ok {
					return NewValidationError("pricing", provider, model,
						fmt.Errorf("%w: cheaper_alternative '%s' not in provider table",
							ErrInvalidValue, price.CheaperAlternative))
				}
			}
		}
	}
	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r.SessionRetentionDays < 0 {
		return NewValidationError("retention", "session_retention_days", "",
			fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if r.CleanupInterval <= 0 {
		return NewValidationError("retention", "cleanup_interval", "",
			fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

// validateDefaults runs the beam defaults through the same parameter
// validation the submit path uses, so a bad easel.yaml fails at startup
// instead of on the first job.
func (v *ConfigValidator) validateDefaults() error {
	d := v.cfg.Defaults
	p := models.Params{
		Prompt:      "startup validation",
		N:           d.N,
		M:           d.M,
		Iterations:  d.Iterations,
		Alpha:       d.Alpha,
		Temperature: d.Temperature,
	}
	if err := p.Validate(); err != nil {
		return NewValidationError("defaults", "beam", "", err)
	}
	return nil
}
