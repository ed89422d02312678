package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// EaselYAMLConfig represents the complete easel.yaml file structure.
// Every section is optional; built-in defaults cover the rest.
type EaselYAMLConfig struct {
	Services  map[string]*ServiceConfig `yaml:"services"`
	Pricing   *PricingConfig            `yaml:"pricing"`
	Retention *RetentionConfig          `yaml:"retention"`
	Defaults  *BeamDefaults             `yaml:"defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load easel.yaml from configDir (optional)
//  2. Expand environment variables
//  3. Merge user-defined over built-in configuration
//  4. Apply environment overrides (ports, paths, tokens)
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"services", stats.Services,
		"priced_models", stats.PricedModels,
		"hosted_image_gen", stats.HostedImageGen)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	yamlCfg, err := loader.loadEaselYAML()
	if err != nil {
		return nil, NewLoadError("easel.yaml", err)
	}

	services, err := resolveServices(yamlCfg.Services)
	if err != nil {
		return nil, err
	}

	pricing, err := resolvePricing(yamlCfg.Pricing)
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:         configDir,
		Port:              envIntOrDefault(EnvPort, 3000),
		SessionHistoryDir: envOrDefault(EnvSessionHistoryDir, "./session-history"),
		GPUCleanupDelay:   time.Duration(envIntOrDefault(EnvGPUCleanupDelayMS, 0)) * time.Millisecond,
		Services:          services,
		Pricing:           pricing,
		Retention:         resolveRetention(yamlCfg.Retention),
		Defaults:          resolveBeamDefaults(yamlCfg.Defaults),
		Modal:             resolveModal(),
		HFToken:           os.Getenv(EnvHFToken),
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	// Parse YAML
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// loadEaselYAML reads the optional easel.yaml. A missing file yields an
// empty config so built-in defaults apply unchanged.
func (l *configLoader) loadEaselYAML() (*EaselYAMLConfig, error) {
	var config EaselYAMLConfig
	config.Services = make(map[string]*ServiceConfig)

	if err := l.loadYAML("easel.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return &config, nil
		}
		return nil, err
	}

	return &config, nil
}

// resolveServices merges user service definitions over built-ins, rejects
// unknown service names, and applies the port environment overrides.
func resolveServices(user map[string]*ServiceConfig) (map[string]*ServiceConfig, error) {
	services := DefaultServices()

	for name, userSvc := range user {
		if !IsValidServiceName(name) {
			return nil, NewValidationError("service", name, "",
				fmt.Errorf("%w: unknown service name", ErrInvalidValue))
		}
		base := services[name]
		// Merge user-provided fields into defaults (non-zero values override)
		if err := mergo.Merge(base, userSvc, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge service %s config: %w", name, err)
		}
		base.Name = name
	}

	for name, svc := range services {
		if envName := servicePortEnv(name); envName != "" {
			svc.Port = envIntOrDefault(envName, svc.Port)
		}
	}

	// Flux LoRA settings come from the environment when not set in YAML.
	flux := services[ServiceFlux]
	if flux.LoraPath == "" {
		flux.LoraPath = os.Getenv(EnvFluxLoraPath)
	}
	if flux.LoraScale == 0 {
		flux.LoraScale = envFloatOrDefault(EnvFluxLoraScale, 0)
	}

	return services, nil
}

// resolvePricing merges a user pricing table over the built-in one.
// Merging is per provider: a provider present in the user table replaces
// the built-in provider entry wholesale.
func resolvePricing(user *PricingConfig) (*PricingConfig, error) {
	pricing := DefaultPricing()
	if user == nil {
		return pricing, nil
	}
	for provider, table := range user.Providers {
		if table == nil || len(table.Models) == 0 {
			return nil, NewValidationError("pricing", provider, "models",
				fmt.Errorf("%w: provider entry has no models", ErrMissingRequiredField))
		}
		pricing.Providers[provider] = table
	}
	return pricing, nil
}

// resolveRetention resolves retention configuration from YAML, applying defaults.
func resolveRetention(user *RetentionConfig) *RetentionConfig {
	cfg := DefaultRetentionConfig()

	if user == nil {
		return cfg
	}

	if user.SessionRetentionDays > 0 {
		cfg.SessionRetentionDays = user.SessionRetentionDays
	}
	if user.CleanupInterval > 0 {
		cfg.CleanupInterval = user.CleanupInterval
	}

	return cfg
}

// resolveBeamDefaults resolves beam-search defaults from YAML, applying built-ins.
func resolveBeamDefaults(user *BeamDefaults) *BeamDefaults {
	cfg := DefaultBeamDefaults()

	if user == nil {
		return cfg
	}

	if user.N != 0 {
		cfg.N = user.N
	}
	if user.M != 0 {
		cfg.M = user.M
	}
	if user.Iterations != 0 {
		cfg.Iterations = user.Iterations
	}
	if user.Alpha != 0 {
		cfg.Alpha = user.Alpha
	}
	if user.Temperature != 0 {
		cfg.Temperature = user.Temperature
	}

	return cfg
}

// resolveModal reads the hosted image-generation endpoint credentials.
// All three variables must be present; a partial triple is treated as
// absent and logged, since a misconfigured hosted path should fall back
// to the local generator rather than fail mid-job.
func resolveModal() *ModalConfig {
	url := os.Getenv(EnvModalEndpointURL)
	id := os.Getenv(EnvModalTokenID)
	secret := os.Getenv(EnvModalTokenSecret)

	if url == "" && id == "" && secret == "" {
		return nil
	}
	if url == "" || id == "" || secret == "" {
		slog.Warn("Incomplete Modal credentials, using local image generation",
			"have_endpoint", url != "",
			"have_token_id", id != "",
			"have_token_secret", secret != "")
		return nil
	}

	return &ModalConfig{
		EndpointURL: url,
		TokenID:     id,
		TokenSecret: secret,
	}
}
