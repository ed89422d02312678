// Package config loads and validates the runtime configuration: HTTP port,
// session-history location, the four model-service launch definitions,
// pricing tables for cost estimation, retention policy, and beam-search
// defaults.
//
// Configuration comes from three layers, lowest priority first: built-in
// defaults, an optional easel.yaml in the config dir, and environment
// variables. Environment variables win; they are the deployment knobs.
package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	configDir string

	// Port is the HTTP/WS listen port.
	Port int

	// SessionHistoryDir is the root of the on-disk session store.
	SessionHistoryDir string

	// GPUCleanupDelay is the settle delay applied after evicting model
	// families before the next family loads.
	GPUCleanupDelay time.Duration

	// Services maps service name (llm, flux, vision, vlm) to its launch
	// definition.
	Services map[string]*ServiceConfig

	// Pricing holds per-provider model pricing for cost estimation.
	Pricing *PricingConfig

	// Retention controls the session-history sweeper.
	Retention *RetentionConfig

	// Defaults are the beam-search parameter defaults applied to submit
	// requests that omit fields.
	Defaults *BeamDefaults

	// Modal holds the hosted image-generation endpoint credentials; nil
	// when the MODAL_* env triple is not fully present.
	Modal *ModalConfig

	// HFToken is propagated to started services for model downloads.
	HFToken string
}

// ModalConfig holds the hosted image-generation endpoint credentials.
type ModalConfig struct {
	EndpointURL string
	TokenID     string
	TokenSecret string
}

// BeamDefaults are the beam-search parameter defaults.
type BeamDefaults struct {
	N           int     `yaml:"n"`
	M           int     `yaml:"m"`
	Iterations  int     `yaml:"iterations"`
	Alpha       float64 `yaml:"alpha"`
	Temperature float64 `yaml:"temperature"`
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Service returns the launch definition for a named service.
func (c *Config) Service(name string) (*ServiceConfig, error) {
	svc, ok := c.Services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return svc, nil
}

// Stats summarizes the loaded configuration for the startup log line.
type Stats struct {
	Services       int
	PricedModels   int
	HostedImageGen bool
}

// Stats returns summary counts of the loaded configuration.
func (c *Config) Stats() Stats {
	priced := 0
	if c.Pricing != nil {
		for _, p := range c.Pricing.Providers {
			priced += len(p.Models)
		}
	}
	return Stats{
		Services:       len(c.Services),
		PricedModels:   priced,
		HostedImageGen: c.Modal != nil,
	}
}
